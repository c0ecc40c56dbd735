// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dispenser

import (
	"time"

	"github.com/gaskit/terminal/pkg/gaskitlink"
	"github.com/gaskit/terminal/pkg/persist"
	"github.com/gaskit/terminal/pkg/transport"
)

// Machine runs the transaction state machine with the given timing.
type Machine struct {
	Timing Timing
}

// New creates a machine
func New(timing Timing) Machine {
	return Machine{Timing: timing}
}

// step accumulates the outcome of one handler invocation
type step struct {
	t       Timing
	c       Context
	now     time.Time
	effects []Effect
}

// Start builds the initial context from the persisted price and
// transaction record. An active record resumes the transaction through a
// status check.
func (m Machine) Start(now time.Time, price uint32, priceOK bool, rec persist.TransactionRecord, recOK bool) (Context, []Effect) {
	s := &step{t: m.Timing, now: now}
	s.c = Context{
		FuelMode:            ByVolume,
		StatusPollingActive: true,
		StateEntryTime:      now,
	}

	s.send(gaskitlink.NewNozzleOff())
	s.show("CENSTAR", m.Timing.WelcomeDuration)

	if priceOK && price <= MaxPrice {
		s.c.Price = price
		s.c.PriceValid = price > 0
	}

	if recOK && Active(rec) {
		s.c.FuelMode = FuelMode(rec.Mode)
		s.c.ModeSelected = rec.ModeSelected
		s.c.CurrentLiters = rec.Liters
		s.c.CurrentAmount = rec.Amount
		s.c.TransactionStarted = true
		s.c.MonitorActive = true
		s.c.MonitorState = MonitorLiters
		s.info("Restoring transaction", "saved_state", State(rec.State), "liters", rec.Liters, "amount", rec.Amount)
		s.enter(CheckStatus)
		s.showTransaction(rec.Liters, rec.Amount, "Restoring trans...")
	} else if !s.c.PriceValid {
		s.enter(WaitForPriceInput)
		s.show("Set price (0-99999)", 0)
	} else {
		s.enter(CheckStatus)
		s.show("Please select mode", 0)
	}

	if s.c.State == CheckStatus {
		s.send(gaskitlink.NewStatusRequest())
	}
	return s.c, s.effects
}

// Step applies one event to c.
func (m Machine) Step(c Context, ev Event) (Context, []Effect) {
	s := &step{t: m.Timing, c: c}
	switch e := ev.(type) {
	case Tick:
		s.now = e.At
		s.tick()
	case KeyPress:
		s.now = e.At
		s.key(e.Key)
	case Reply:
		s.now = e.At
		s.reply(e)
	}
	return s.c, s.effects
}

func (s *step) tick() {
	switch s.c.State {
	case CheckStatus:
		s.tickCheckStatus()
	case Idle:
		s.tickIdle()
	case ViewPrice:
		if s.elapsed() >= s.t.ViewTimeout {
			s.toIdle()
		}
	case EditPrice:
		if s.elapsed() >= s.t.EditTimeout {
			s.c.PriceInput = ""
			s.toIdle()
		}
	case TransitionPriceSet, TransitionEditPrice:
		s.tickTransition()
	case Error:
		s.tickError()
	case Transaction:
		s.tickTransaction()
	case TransactionPaused:
		s.tickPaused()
	case TransactionEnd:
		s.tickTransactionEnd()
	case TotalCounter:
		s.tickTotalCounter()
	}
}

func (s *step) key(k byte) {
	if !IsKey(k) {
		s.debug("Ignored key", "key", string(k))
		return
	}
	if !s.c.LastKeyTime.IsZero() && s.now.Sub(s.c.LastKeyTime) < s.t.KeyDebounce {
		s.show("Slow down! Wait", 0)
		return
	}
	s.c.LastKeyTime = s.now
	s.debug("Key pressed", "key", string(k), "state", s.c.State)

	switch s.c.State {
	case Idle:
		s.keyIdle(k)
	case WaitForPriceInput:
		s.keyPriceInput(k)
	case ViewPrice:
		s.keyViewPrice(k)
	case EditPrice:
		s.keyEditPrice(k)
	case ConfirmTransaction:
		s.keyConfirm(k)
	case Transaction:
		s.keyTransaction(k)
	case TransactionPaused:
		s.keyPaused(k)
	case TransactionEnd:
		if k == 'E' {
			s.finishToIdle()
		}
	case TotalCounter:
		if k == 'E' {
			s.c.CounterAttempts = 0
			s.c.StatusPollingActive = true
			s.toIdle()
		}
	}
}

func (s *step) reply(r Reply) {
	if !s.c.WaitingForResponse || r.Command != s.c.Pending {
		s.debug("Dropped stale reply", "command", gaskitlink.FormatCommand(r.Command), "state", s.c.State)
		return
	}
	s.c.WaitingForResponse = false
	s.c.Pending = 0
	s.c.LastExchangeAt = r.At

	if r.Outcome == transport.Busy {
		s.debug("Link busy", "command", gaskitlink.FormatCommand(r.Command))
		return
	}

	switch s.c.State {
	case CheckStatus:
		s.replyCheckStatus(r)
	case Idle:
		s.replyIdle(r)
	case Error:
		s.replyError(r)
	case Transaction:
		s.replyTransaction(r)
	case TransactionPaused:
		s.replyPaused(r)
	case TransactionEnd:
		s.replyTransactionEnd(r)
	case TotalCounter:
		s.replyTotalCounter(r)
	default:
		s.debug("Reply ignored", "command", gaskitlink.FormatCommand(r.Command), "state", s.c.State)
	}
}

// exchangeOK reports whether r carries a valid frame. Failures count
// towards the error limit.
func (s *step) exchangeOK(r Reply) bool {
	if r.Outcome == transport.Success {
		return true
	}
	s.fail("exchange failed", "command", gaskitlink.FormatCommand(r.Command), "outcome", r.Outcome)
	return false
}

// status returns the status code of r when it is one of known. Any other
// code counts as a failure.
func (s *step) status(r Reply, known ...string) (string, bool) {
	if !s.exchangeOK(r) {
		return "", false
	}
	code := gaskitlink.StatusCode(r.Frame)
	for _, k := range known {
		if code == k {
			s.c.ErrorCount = 0
			return code, true
		}
	}
	s.fail("unexpected status", "code", code, "state", s.c.State)
	return "", false
}

func (s *step) fail(msg string, keyvals ...interface{}) {
	if s.c.ErrorCount < s.t.MaxErrors {
		s.c.ErrorCount++
	}
	s.debug(msg, append(keyvals, "errors", s.c.ErrorCount)...)
	if s.c.ErrorCount >= s.t.MaxErrors && s.c.State != Error {
		s.enterError("Pump Error")
	}
}

// gated reports whether the minimum gap since the last exchange has passed
// and no reply is outstanding.
func (s *step) gated() bool {
	return s.c.WaitingForResponse || s.now.Sub(s.c.LastExchangeAt) < s.t.DelayAfterResponse
}

func (s *step) elapsed() time.Duration {
	return s.now.Sub(s.c.StateEntryTime)
}

func (s *step) enter(state State) {
	if state != s.c.State {
		s.debug("State change", "from", s.c.State, "to", state)
	}
	s.c.State = state
	s.c.StateEntryTime = s.now
}

func (s *step) enterError(msg string) {
	s.error("Pump error", "reason", msg, "errors", s.c.ErrorCount)
	s.enter(Error)
	s.c.LastProbeAt = time.Time{}
	s.show(msg, 0)
}

func (s *step) send(cmd gaskitlink.Command) {
	s.effects = append(s.effects, Send{Command: cmd})
	s.c.LastExchangeAt = s.now
	if cmd.Reply.Awaited() {
		s.c.WaitingForResponse = true
		s.c.Pending = cmd.Code
	}
}

func (s *step) show(text string, hold time.Duration) {
	s.effects = append(s.effects, Show{Text: text, Hold: hold})
}

func (s *step) save(liters, amount uint32) {
	s.effects = append(s.effects, SaveTransaction{Record: s.c.Record(liters, amount)})
}

func (s *step) log(level Level, msg string, keyvals []interface{}) {
	s.effects = append(s.effects, Log{Level: level, Msg: msg, KeyVals: keyvals})
}

func (s *step) debug(msg string, keyvals ...interface{}) { s.log(LevelDebug, msg, keyvals) }
func (s *step) info(msg string, keyvals ...interface{})  { s.log(LevelInfo, msg, keyvals) }
func (s *step) error(msg string, keyvals ...interface{}) { s.log(LevelError, msg, keyvals) }

func (s *step) showMode() {
	s.show(modeText(s.c), 0)
}

func (s *step) showModeUnlessWarning() {
	if !s.c.NozzleUpWarning {
		s.showMode()
	}
}

func (s *step) showTransaction(liters, amount uint32, status string) {
	s.show(transactionText(s.c.Price, liters, amount, status), 0)
}

func (s *step) toIdle() {
	s.enter(Idle)
	s.showModeUnlessWarning()
}

// finishToIdle leaves a transaction for Idle and records that nothing is
// active any more.
func (s *step) finishToIdle() {
	s.c.clearTransaction()
	s.c.ErrorCount = 0
	s.c.NozzleUpWarning = false
	s.c.StatusPollingActive = true
	s.enter(Idle)
	s.save(0, 0)
	s.showMode()
}
