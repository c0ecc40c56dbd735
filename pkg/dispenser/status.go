// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dispenser

import (
	"time"

	"github.com/gaskit/terminal/pkg/gaskitlink"
)

func (s *step) tickCheckStatus() {
	if s.gated() {
		return
	}
	s.send(gaskitlink.NewStatusRequest())
}

func (s *step) replyCheckStatus(r Reply) {
	code, ok := s.status(r,
		gaskitlink.StatusCompleted, gaskitlink.StatusIdle, gaskitlink.StatusNozzleUp,
		gaskitlink.StatusPaused, gaskitlink.StatusDispensing,
		gaskitlink.StatusAuthorized, gaskitlink.StatusStarting, gaskitlink.StatusStopped)
	if !ok {
		return
	}
	if code != gaskitlink.StatusNozzleUp {
		s.c.NozzleUpSince = time.Time{}
	}

	switch code {
	case gaskitlink.StatusCompleted:
		if s.c.TransactionStarted {
			s.c.FinalLiters = s.c.CurrentLiters
			s.c.FinalAmount = s.c.CurrentAmount
			s.enterTransactionEnd()
			return
		}
		s.send(gaskitlink.NewNozzleOff())
	case gaskitlink.StatusIdle:
		s.c.NozzleUpWarning = false
		if s.c.TransactionStarted {
			s.c.clearTransaction()
			s.enter(Idle)
			s.save(0, 0)
		} else {
			s.enter(Idle)
		}
		s.showMode()
	case gaskitlink.StatusNozzleUp:
		s.send(gaskitlink.NewNozzleOff())
		s.c.NozzleUpWarning = true
		if s.c.NozzleUpSince.IsZero() {
			s.c.NozzleUpSince = s.now
		}
		if s.now.Sub(s.c.NozzleUpSince) > s.t.NozzleUpLimit {
			s.enterError("Nozzle up long! Check")
			return
		}
		s.show("Nozzle up! Hang up", 0)
	case gaskitlink.StatusPaused:
		s.enterPaused()
	case gaskitlink.StatusDispensing:
		s.resumeMonitoring("Restoring trans...")
	default:
		s.debug("Status ignored", "code", code, "state", s.c.State)
	}
}

// enterPaused moves to TransactionPaused and persists the snapshot.
func (s *step) enterPaused() {
	s.c.MonitorActive = true
	s.c.MonitorState = MonitorStatus
	s.enter(TransactionPaused)
	s.showTransaction(s.c.CurrentLiters, s.c.CurrentAmount, "Paused")
	s.save(s.c.CurrentLiters, s.c.CurrentAmount)
}

// resumeMonitoring returns to an already started transaction and polls
// liters first.
func (s *step) resumeMonitoring(status string) {
	s.c.TransactionStarted = true
	s.c.MonitorActive = true
	s.c.MonitorState = MonitorLiters
	s.enter(Transaction)
	s.send(gaskitlink.NewLitersMonitor())
	s.showTransaction(s.c.CurrentLiters, s.c.CurrentAmount, status)
}

func (s *step) tickIdle() {
	if s.c.NozzleUpWarning && s.elapsed() > s.t.NozzleWarningReset {
		s.c.NozzleUpWarning = false
		s.c.ErrorCount = 0
		s.showMode()
	}
	if !s.c.StatusPollingActive || s.now.Before(s.c.ResumePollingAt) || s.gated() {
		return
	}
	s.send(gaskitlink.NewStatusRequest())
}

func (s *step) replyIdle(r Reply) {
	code, ok := s.status(r, gaskitlink.StatusCompleted, gaskitlink.StatusIdle, gaskitlink.StatusNozzleUp)
	if !ok {
		return
	}
	switch code {
	case gaskitlink.StatusCompleted:
		s.send(gaskitlink.NewNozzleOff())
		s.c.NozzleUpWarning = false
		s.c.NozzleUpSince = time.Time{}
	case gaskitlink.StatusIdle:
		s.c.NozzleUpSince = time.Time{}
		if s.c.NozzleUpWarning {
			s.c.NozzleUpWarning = false
			s.showMode()
		}
	case gaskitlink.StatusNozzleUp:
		s.send(gaskitlink.NewNozzleOff())
		s.c.NozzleUpWarning = true
		if s.c.NozzleUpSince.IsZero() {
			s.c.NozzleUpSince = s.now
		}
		s.c.StateEntryTime = s.now
		s.show("Nozzle up! Hang up", 0)
	}
}

func (s *step) keyIdle(k byte) {
	switch {
	case k == 'K' && s.c.NozzleUpWarning:
		s.c.StateEntryTime = s.now
		s.show("Nozzle up! Hang up", 0)
	case k == 'G':
		s.enter(ViewPrice)
		s.show(priceText(s.c.Price), 0)
	case k == 'E':
		s.c.StatusPollingActive = true
		s.c.ModeSelected = false
		s.c.StateEntryTime = s.now
		s.showModeUnlessWarning()
	case k == 'C':
		s.c.FuelMode = s.c.FuelMode.Next()
		s.c.ModeSelected = true
		s.c.StateEntryTime = s.now
		s.showMode()
	case k == 'K':
		s.selectTarget()
	case k == 'A':
		s.c.StatusPollingActive = false
		s.c.ErrorCount = 0
		s.c.CounterAttempts = 0
		s.enter(TotalCounter)
		s.sendCounterRequest()
		s.show("TOTAL:\nWaiting...", 0)
	}
}

func (s *step) selectTarget() {
	s.c.TransactionVolume = 0
	s.c.TransactionAmount = 0
	s.c.PriceInput = ""
	switch s.c.FuelMode {
	case ByFullTank:
		s.c.TransactionAmount = gaskitlink.FullTankAmount
		s.enter(ConfirmTransaction)
		s.show("Confirm? Press K", 0)
	default:
		s.enter(WaitForPriceInput)
		s.show("Enter "+inputLabel(s.c.FuelMode), 0)
	}
}

func (s *step) tickError() {
	if s.gated() {
		return
	}
	if !s.c.LastProbeAt.IsZero() && s.now.Sub(s.c.LastProbeAt) < s.t.ResponseTimeout {
		return
	}
	if !s.c.LastProbeAt.IsZero() {
		s.show("Pump offline! Check", 0)
	}
	s.c.LastProbeAt = s.now
	s.send(gaskitlink.NewStatusRequest())
}

func (s *step) replyError(r Reply) {
	if r.Outcome.Failed() {
		s.debug("Probe failed", "outcome", r.Outcome)
		return
	}
	s.c.ErrorCount = 0
	code := gaskitlink.StatusCode(r.Frame)
	if code != gaskitlink.StatusNozzleUp {
		s.c.NozzleUpSince = time.Time{}
	}
	s.info("Pump answered", "code", code)

	switch code {
	case gaskitlink.StatusCompleted:
		s.send(gaskitlink.NewNozzleOff())
	case gaskitlink.StatusIdle:
		s.c.clearTransaction()
		s.c.NozzleUpWarning = false
		s.enter(Idle)
		s.showMode()
	case gaskitlink.StatusNozzleUp:
		s.send(gaskitlink.NewNozzleOff())
		s.c.NozzleUpWarning = true
		s.show("Nozzle up! Hang up", 0)
	case gaskitlink.StatusPaused:
		s.enterPaused()
	case gaskitlink.StatusDispensing:
		s.resumeMonitoring("Restoring trans...")
	default:
		s.enter(CheckStatus)
	}
}
