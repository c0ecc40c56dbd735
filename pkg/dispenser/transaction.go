// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dispenser

import (
	"errors"

	"github.com/gaskit/terminal/pkg/gaskitlink"
)

func (s *step) tickTransaction() {
	if s.gated() {
		return
	}
	if !s.c.TransactionStarted || !s.c.MonitorActive {
		s.send(gaskitlink.NewStatusRequest())
		return
	}
	switch s.c.MonitorState {
	case MonitorLiters:
		s.send(gaskitlink.NewLitersMonitor())
	case MonitorRevenue:
		s.send(gaskitlink.NewRevenueMonitor())
	default:
		s.send(gaskitlink.NewStatusRequest())
	}
}

func (s *step) replyTransaction(r Reply) {
	switch r.Command {
	case gaskitlink.CmdStatus:
		if s.c.TransactionStarted {
			s.statusWhileDispensing(r)
		} else {
			s.statusBeforeStart(r)
		}
	case gaskitlink.CmdLitersMonitor:
		s.monitorReply(r, MonitorRevenue)
	case gaskitlink.CmdRevenueMonitor:
		s.monitorReply(r, MonitorStatus)
	}
}

func (s *step) statusBeforeStart(r Reply) {
	code, ok := s.status(r,
		gaskitlink.StatusIdle, gaskitlink.StatusNozzleUp, gaskitlink.StatusAuthorized,
		gaskitlink.StatusStarting, gaskitlink.StatusDispensing, gaskitlink.StatusPaused,
		gaskitlink.StatusStopped, gaskitlink.StatusCompleted)
	if !ok {
		return
	}
	switch code {
	case gaskitlink.StatusNozzleUp:
		s.startTransaction()
	case gaskitlink.StatusCompleted:
		s.send(gaskitlink.NewNozzleOff())
	case gaskitlink.StatusDispensing:
		s.resumeMonitoring("Dispensing...")
	case gaskitlink.StatusPaused:
		s.c.TransactionStarted = true
		s.enterPaused()
	default:
		s.debug("Status ignored", "code", code, "state", s.c.State)
	}
}

func (s *step) startTransaction() {
	wire := gaskitlink.WirePrice(s.c.Price)
	var (
		cmd gaskitlink.Command
		err error
	)
	switch s.c.FuelMode {
	case ByVolume:
		cmd, err = gaskitlink.NewStartByVolume(s.c.TransactionVolume, wire)
	case ByPrice:
		cmd, err = gaskitlink.NewStartByAmount(s.c.TransactionAmount, wire)
	default:
		cmd, err = gaskitlink.NewStartFullTank(wire)
	}
	if err != nil {
		s.error("Start command rejected", "err", err)
		s.enterError("Pump Error")
		return
	}

	s.send(cmd)
	s.c.TransactionStarted = true
	s.c.MonitorActive = false
	s.c.MonitorState = MonitorStatus
	s.c.CurrentLiters = 0
	s.c.CurrentAmount = 0
	s.c.FinalLiters = 0
	s.c.FinalAmount = 0
	s.info("Transaction started", "command", cmd, "mode", s.c.FuelMode, "price", s.c.Price)
	s.showTransaction(0, 0, "Dispensing...")
	s.save(0, 0)
}

func (s *step) statusWhileDispensing(r Reply) {
	code, ok := s.status(r,
		gaskitlink.StatusNozzleUp, gaskitlink.StatusAuthorized, gaskitlink.StatusStarting,
		gaskitlink.StatusDispensing, gaskitlink.StatusPaused, gaskitlink.StatusStopped,
		gaskitlink.StatusCompleted, gaskitlink.StatusIdle)
	if !ok {
		return
	}
	switch code {
	case gaskitlink.StatusDispensing:
		s.c.MonitorActive = true
		s.c.MonitorState = MonitorLiters
		s.send(gaskitlink.NewLitersMonitor())
	case gaskitlink.StatusPaused:
		s.enterPaused()
	case gaskitlink.StatusStopped, gaskitlink.StatusCompleted:
		s.c.FinalLiters = s.c.CurrentLiters
		s.c.FinalAmount = s.c.CurrentAmount
		s.enterTransactionEnd()
	case gaskitlink.StatusIdle:
		s.info("Pump returned to idle", "liters", s.c.CurrentLiters, "amount", s.c.CurrentAmount)
		s.finishToIdle()
	}
}

// monitorReply stores a liters or revenue reading and moves to next.
func (s *step) monitorReply(r Reply, next int) {
	if !s.exchangeOK(r) {
		return
	}
	s.c.ErrorCount = 0
	v, err := gaskitlink.ParseMonitor(r.Frame, r.Command)
	switch {
	case err == nil:
		if r.Command == gaskitlink.CmdLitersMonitor {
			s.c.CurrentLiters = v
		} else {
			s.c.CurrentAmount = v
		}
		s.showTransaction(s.c.CurrentLiters, s.c.CurrentAmount, "Dispensing...")
	case errors.Is(err, gaskitlink.ErrDataInvalid):
		s.error("Monitor data invalid", "command", gaskitlink.FormatCommand(r.Command), "err", err)
	default:
		// Not ready yet; check status again
		s.debug("Monitor not ready", "command", gaskitlink.FormatCommand(r.Command))
		next = MonitorStatus
	}
	s.c.MonitorState = next
}

func (s *step) keyTransaction(k byte) {
	if k != 'E' {
		return
	}
	s.c.WaitingForResponse = false
	s.c.Pending = 0
	if !s.c.TransactionStarted {
		s.send(gaskitlink.NewNozzleOff())
		s.c.clearTransaction()
		s.c.NozzleUpWarning = false
		s.c.ErrorCount = 0
		s.c.StatusPollingActive = true
		s.c.ResumePollingAt = s.now.Add(s.t.CancelSettle)
		s.info("Transaction cancelled before start")
		s.enter(Idle)
		s.showMode()
		return
	}
	s.send(gaskitlink.NewPause())
	s.enterPaused()
}

func (s *step) tickPaused() {
	if s.elapsed() > s.t.PauseTimeout {
		s.c.FinalLiters = s.c.CurrentLiters
		s.c.FinalAmount = s.c.CurrentAmount
		s.c.WaitingForResponse = false
		s.c.Pending = 0
		s.info("Pause timed out", "liters", s.c.FinalLiters, "amount", s.c.FinalAmount)
		s.enterTransactionEnd()
		s.showTransaction(s.c.FinalLiters, s.c.FinalAmount, "Nozzle back! Trans end")
		return
	}
	if s.gated() {
		return
	}
	s.send(gaskitlink.NewStatusRequest())
}

func (s *step) replyPaused(r Reply) {
	if !s.exchangeOK(r) {
		return
	}
	code := gaskitlink.StatusCode(r.Frame)
	if !gaskitlink.IsKnownStatus(code) {
		s.fail("unexpected status", "code", code, "state", s.c.State)
		return
	}
	s.c.ErrorCount = 0
	switch code {
	case gaskitlink.StatusPaused:
	case gaskitlink.StatusCompleted:
		s.c.FinalLiters = s.c.CurrentLiters
		s.c.FinalAmount = s.c.CurrentAmount
		s.enterTransactionEnd()
	default:
		s.c.MonitorActive = true
		s.c.MonitorState = MonitorStatus
		s.enter(Transaction)
		s.showTransaction(s.c.CurrentLiters, s.c.CurrentAmount, "Dispensing...")
	}
}

func (s *step) keyPaused(k byte) {
	switch k {
	case 'K':
		s.c.WaitingForResponse = false
		s.c.Pending = 0
		s.send(gaskitlink.NewResume())
		s.c.TransactionStarted = true
		s.c.MonitorActive = true
		s.c.MonitorState = MonitorStatus
		s.enter(Transaction)
		s.showTransaction(s.c.CurrentLiters, s.c.CurrentAmount, "Dispensing...")
		s.save(s.c.CurrentLiters, s.c.CurrentAmount)
	case 'E':
		s.c.WaitingForResponse = false
		s.c.Pending = 0
		s.c.FinalLiters = s.c.CurrentLiters
		s.c.FinalAmount = s.c.CurrentAmount
		s.enterTransactionEnd()
	}
}

// enterTransactionEnd requests final totals and persists the last
// known snapshot.
func (s *step) enterTransactionEnd() {
	s.c.EndAttempts = 0
	s.c.EndDataReceived = false
	s.enter(TransactionEnd)
	s.save(s.c.FinalLiters, s.c.FinalAmount)
	s.sendEndRequest()
}

func (s *step) sendEndRequest() {
	s.c.EndAttempts++
	s.debug("Requesting transaction totals", "attempt", s.c.EndAttempts)
	s.send(gaskitlink.NewTransactionUpdate())
}

func (s *step) tickTransactionEnd() {
	if s.c.EndDataReceived || s.c.EndAttempts >= s.t.MaxEndAttempts || s.gated() {
		return
	}
	s.sendEndRequest()
}

func (s *step) replyTransactionEnd(r Reply) {
	if r.Outcome.Failed() {
		s.endAttemptFailed(r.Outcome.String())
		return
	}
	totals, err := gaskitlink.ParseTransactionEnd(r.Frame)
	switch {
	case err == nil:
		s.c.FinalLiters = totals.Liters
		s.c.FinalAmount = totals.Amount
	case errors.Is(err, gaskitlink.ErrDataInvalid):
		s.error("Transaction totals invalid", "err", err)
	default:
		s.endAttemptFailed(err.Error())
		return
	}

	s.c.ErrorCount = 0
	s.c.EndDataReceived = true
	s.info("Transaction finished", "liters", s.c.FinalLiters, "amount", s.c.FinalAmount)
	s.showTransaction(s.c.FinalLiters, s.c.FinalAmount, "Filling end")
	s.send(gaskitlink.NewNozzleOff())
	s.save(s.c.FinalLiters, s.c.FinalAmount)
}

func (s *step) endAttemptFailed(reason string) {
	if s.c.ErrorCount < s.t.MaxErrors {
		s.c.ErrorCount++
	}
	s.debug("Transaction totals attempt failed", "attempt", s.c.EndAttempts, "reason", reason)
	if s.c.EndAttempts >= s.t.MaxEndAttempts {
		s.enterError("Trans error! Check pump")
	}
}

func (s *step) sendCounterRequest() {
	s.c.CounterAttempts++
	s.c.LastCounterSendAt = s.now
	s.send(gaskitlink.NewTotalCounter())
}

func (s *step) tickTotalCounter() {
	if s.c.CounterAttempts >= s.t.MaxEndAttempts || s.gated() {
		return
	}
	if s.now.Sub(s.c.LastCounterSendAt) < s.t.ResponseTimeout {
		return
	}
	s.sendCounterRequest()
}

func (s *step) replyTotalCounter(r Reply) {
	if !s.exchangeOK(r) {
		if s.c.State == TotalCounter && s.c.CounterAttempts >= s.t.MaxEndAttempts {
			s.show("TOTAL:\nError", 0)
		}
		return
	}
	s.c.ErrorCount = 0
	total, err := gaskitlink.ParseTotalCounter(r.Frame)
	switch {
	case err == nil:
		s.c.CounterAttempts = s.t.MaxEndAttempts
		s.info("Total counter", "milliliters", total)
		s.show("TOTAL:\n"+gaskitlink.FormatTotalCounter(total), 0)
	case errors.Is(err, gaskitlink.ErrDataInvalid):
		s.c.CounterAttempts = s.t.MaxEndAttempts
		s.show("TOTAL:\nError", 0)
	default:
		if s.c.CounterAttempts >= s.t.MaxEndAttempts {
			s.show("TOTAL:\nError", 0)
		}
	}
}
