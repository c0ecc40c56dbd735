// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dispenser

import (
	"strings"
	"testing"
	"time"

	"github.com/gaskit/terminal/pkg/gaskitlink"
	"github.com/gaskit/terminal/pkg/persist"
	"github.com/gaskit/terminal/pkg/transport"
)

var t0 = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

// harness drives a machine and keeps the last step's effects.
type harness struct {
	t       *testing.T
	m       Machine
	c       Context
	now     time.Time
	effects []Effect
}

func newHarness(t *testing.T, price uint32, priceOK bool) *harness {
	h := &harness{t: t, m: New(DefaultTiming()), now: t0}
	h.c, h.effects = h.m.Start(t0, price, priceOK, persist.TransactionRecord{}, false)
	return h
}

// idle returns a harness already in Idle with a valid price.
func idle(t *testing.T, price uint32) *harness {
	h := newHarness(t, price, true)
	h.reply('S', gaskitlink.StatusIdle)
	if h.c.State != Idle {
		t.Fatalf("expected IDLE, got %s", h.c.State)
	}
	return h
}

func (h *harness) advance(d time.Duration) {
	h.now = h.now.Add(d)
}

func (h *harness) tick() {
	h.advance(5 * time.Millisecond)
	h.c, h.effects = h.m.Step(h.c, Tick{At: h.now})
}

func (h *harness) press(keys string) {
	for i := 0; i < len(keys); i++ {
		h.advance(20 * time.Millisecond)
		h.c, h.effects = h.m.Step(h.c, KeyPress{Key: keys[i], At: h.now})
	}
}

func (h *harness) reply(cmd byte, body string) {
	h.t.Helper()
	h.advance(10 * time.Millisecond)
	h.c, h.effects = h.m.Step(h.c, Reply{Command: cmd, Outcome: transport.Success, Frame: frame(cmd, body), At: h.now})
}

func (h *harness) fail(cmd byte, outcome transport.Outcome) {
	h.advance(10 * time.Millisecond)
	h.c, h.effects = h.m.Step(h.c, Reply{Command: cmd, Outcome: outcome, At: h.now})
}

func frame(cmd byte, body string) []byte {
	f := append([]byte{gaskitlink.STX, 0x00, 0x01, cmd}, body...)
	return append(f, gaskitlink.Checksum(f))
}

func sent(effects []Effect) string {
	var b strings.Builder
	for _, e := range effects {
		if s, ok := e.(Send); ok {
			b.WriteByte(s.Command.Code)
		}
	}
	return b.String()
}

func lastShow(effects []Effect) string {
	text := ""
	for _, e := range effects {
		if s, ok := e.(Show); ok {
			text = s.Text
		}
	}
	return text
}

func savedRecord(effects []Effect) (persist.TransactionRecord, bool) {
	for _, e := range effects {
		if s, ok := e.(SaveTransaction); ok {
			return s.Record, true
		}
	}
	return persist.TransactionRecord{}, false
}

func TestStart_WithoutPriceAsksForInput(t *testing.T) {
	h := newHarness(t, 0, false)

	if h.c.State != WaitForPriceInput {
		t.Fatalf("expected WAIT_FOR_PRICE_INPUT, got %s", h.c.State)
	}
	if got := sent(h.effects); got != "N" {
		t.Errorf("expected only nozzle off, got %q", got)
	}
	if first, ok := h.effects[0].(Send); !ok || first.Command.Code != 'N' {
		t.Errorf("nozzle off must be the first effect, got %#v", h.effects[0])
	}
	if got := lastShow(h.effects); got != "Set price (0-99999)" {
		t.Errorf("unexpected prompt %q", got)
	}

	h.c.FuelMode = ByPrice
	h.press("12345K")
	if h.c.State != ConfirmTransaction {
		t.Fatalf("expected CONFIRM_TRANSACTION, got %s", h.c.State)
	}
	if h.c.TransactionAmount != 12345 || h.c.TransactionVolume != 0 {
		t.Errorf("unexpected target volume=%d amount=%d", h.c.TransactionVolume, h.c.TransactionAmount)
	}
	if got := lastShow(h.effects); got != "Confirm? Press K" {
		t.Errorf("unexpected display %q", got)
	}
}

func TestStart_WithPriceChecksStatus(t *testing.T) {
	h := newHarness(t, 5000, true)

	if h.c.State != CheckStatus {
		t.Fatalf("expected CHECK_STATUS, got %s", h.c.State)
	}
	if got := sent(h.effects); got != "NS" {
		t.Errorf("expected N then S, got %q", got)
	}
	if !h.c.WaitingForResponse || h.c.Pending != 'S' {
		t.Error("status reply should be awaited")
	}
	welcome, ok := h.effects[1].(Show)
	if !ok || welcome.Text != "CENSTAR" || welcome.Hold == 0 {
		t.Errorf("expected held welcome text, got %#v", h.effects[1])
	}
}

func TestStart_ImplausiblePriceIsUnset(t *testing.T) {
	h := newHarness(t, 200000, true)
	if h.c.PriceValid || h.c.State != WaitForPriceInput {
		t.Errorf("price above limit must be treated as unset, state %s", h.c.State)
	}
}

func TestStart_RestoresActiveTransaction(t *testing.T) {
	m := New(DefaultTiming())
	rec := persist.TransactionRecord{
		Liters:       1234,
		Amount:       5678,
		State:        uint8(TransactionPaused),
		Mode:         uint8(ByPrice),
		ModeSelected: true,
	}
	c, effects := m.Start(t0, 5000, true, rec, true)

	if c.State != CheckStatus {
		t.Fatalf("expected CHECK_STATUS, got %s", c.State)
	}
	if !c.TransactionStarted || !c.MonitorActive || c.MonitorState != MonitorLiters {
		t.Error("transaction flags not restored")
	}
	if c.FuelMode != ByPrice || !c.ModeSelected {
		t.Error("mode not restored")
	}
	if c.CurrentLiters != 1234 || c.CurrentAmount != 5678 {
		t.Errorf("totals not restored: %d/%d", c.CurrentLiters, c.CurrentAmount)
	}
	if got := lastShow(effects); !strings.HasPrefix(got, "Restoring trans...\nL: 12.34") {
		t.Errorf("unexpected display %q", got)
	}

	h := &harness{t: t, m: m, c: c, now: t0}
	h.reply('S', gaskitlink.StatusDispensing)
	if h.c.State != Transaction || sent(h.effects) != "L" {
		t.Errorf("expected TRANSACTION polling liters, got %s sent %q", h.c.State, sent(h.effects))
	}
}

func TestStart_InactiveRecordIgnored(t *testing.T) {
	m := New(DefaultTiming())
	rec := persist.TransactionRecord{Liters: 100, State: uint8(TransactionEnd)}
	c, _ := m.Start(t0, 5000, true, rec, true)
	if c.TransactionStarted || c.CurrentLiters != 0 {
		t.Error("finished transaction must not be restored")
	}
}

func TestErrorCount_EscalatesOnFifthFailure(t *testing.T) {
	outcomes := []transport.Outcome{
		transport.Timeout, transport.Malformed, transport.Timeout, transport.Malformed, transport.Timeout,
	}
	h := newHarness(t, 5000, true)

	for i, outcome := range outcomes {
		h.fail('S', outcome)
		if i < len(outcomes)-1 {
			if h.c.State != CheckStatus {
				t.Fatalf("failure %d: left CHECK_STATUS early (%s)", i+1, h.c.State)
			}
			if h.c.ErrorCount != i+1 {
				t.Errorf("failure %d: error count %d", i+1, h.c.ErrorCount)
			}
			h.tick()
			if sent(h.effects) != "S" {
				t.Fatalf("failure %d: expected status retry", i+1)
			}
		}
	}
	if h.c.State != Error {
		t.Fatalf("expected ERROR on fifth failure, got %s", h.c.State)
	}
	if got := lastShow(h.effects); got != "Pump Error" {
		t.Errorf("unexpected display %q", got)
	}

	h.tick()
	if sent(h.effects) != "S" {
		t.Fatal("error state should probe immediately")
	}
	h.reply('S', gaskitlink.StatusIdle)
	if h.c.ErrorCount != 0 || h.c.State != Idle {
		t.Errorf("expected recovery to IDLE, got %s errors=%d", h.c.State, h.c.ErrorCount)
	}
}

func TestErrorCount_ResetsOnSuccess(t *testing.T) {
	h := newHarness(t, 5000, true)
	h.fail('S', transport.Timeout)
	h.tick()
	h.fail('S', transport.Timeout)
	h.tick()
	h.reply('S', gaskitlink.StatusCompleted)
	if h.c.ErrorCount != 0 {
		t.Errorf("success should reset error count, got %d", h.c.ErrorCount)
	}
}

func TestErrorCount_UnknownStatusEscalates(t *testing.T) {
	h := idle(t, 5000)
	for i := 0; i < 5; i++ {
		h.tick()
		h.reply('S', "55")
	}
	if h.c.State != Error {
		t.Errorf("unrecognized status codes should escalate, got %s", h.c.State)
	}
}

func TestError_ProbesEveryResponseTimeout(t *testing.T) {
	h := idle(t, 5000)
	for i := 0; i < 5; i++ {
		h.tick()
		h.fail('S', transport.Timeout)
	}
	if h.c.State != Error {
		t.Fatalf("expected ERROR, got %s", h.c.State)
	}

	h.tick()
	h.fail('S', transport.Timeout)
	if h.c.State != Error {
		t.Fatal("probe failure must not leave ERROR")
	}
	h.tick()
	if sent(h.effects) != "" {
		t.Error("probe repeated before response timeout")
	}
	h.advance(3 * time.Second)
	h.tick()
	if sent(h.effects) != "S" || lastShow(h.effects) != "Pump offline! Check" {
		t.Errorf("expected offline probe, sent %q display %q", sent(h.effects), lastShow(h.effects))
	}
}

func TestTick_IdempotentWhileWaiting(t *testing.T) {
	h := newHarness(t, 5000, true)
	for i := 0; i < 10; i++ {
		h.tick()
		if got := sent(h.effects); got != "" {
			t.Fatalf("tick %d sent %q while a reply is pending", i, got)
		}
	}
}

func TestTick_RespectsExchangeGap(t *testing.T) {
	h := idle(t, 5000)
	h.c, h.effects = h.m.Step(h.c, Tick{At: h.now.Add(time.Millisecond)})
	if sent(h.effects) != "" {
		t.Error("polled before the inter-exchange delay")
	}
	h.c, h.effects = h.m.Step(h.c, Tick{At: h.now.Add(3 * time.Millisecond)})
	if sent(h.effects) != "S" {
		t.Error("expected status poll after the delay")
	}
}

func TestReply_StaleDropped(t *testing.T) {
	h := newHarness(t, 5000, true)
	h.reply('L', "1;0;000100")
	if !h.c.WaitingForResponse || h.c.Pending != 'S' {
		t.Error("reply for another command must not clear the pending status request")
	}
	if h.c.State != CheckStatus {
		t.Errorf("state changed on stale reply: %s", h.c.State)
	}
}

func TestReply_BusyClearsWaitWithoutError(t *testing.T) {
	h := newHarness(t, 5000, true)
	h.fail('S', transport.Busy)
	if h.c.WaitingForResponse || h.c.ErrorCount != 0 {
		t.Errorf("busy should clear the wait only (errors=%d)", h.c.ErrorCount)
	}
}

func TestKeyDebounce(t *testing.T) {
	h := idle(t, 5000)
	at := h.now.Add(time.Second)

	h.c, h.effects = h.m.Step(h.c, KeyPress{Key: 'C', At: at})
	if h.c.FuelMode != ByPrice {
		t.Fatalf("expected mode Price, got %s", h.c.FuelMode)
	}
	h.c, h.effects = h.m.Step(h.c, KeyPress{Key: 'C', At: at.Add(10 * time.Millisecond)})
	if h.c.FuelMode != ByPrice || lastShow(h.effects) != "Slow down! Wait" {
		t.Errorf("key within 15ms should be rejected, mode %s display %q", h.c.FuelMode, lastShow(h.effects))
	}
	h.c, h.effects = h.m.Step(h.c, KeyPress{Key: 'C', At: at.Add(15 * time.Millisecond)})
	if h.c.FuelMode != ByFullTank {
		t.Errorf("key after 15ms should be accepted, mode %s", h.c.FuelMode)
	}
}

func TestCheckStatus_NozzleUpTooLong(t *testing.T) {
	h := newHarness(t, 5000, true)

	h.reply('S', gaskitlink.StatusNozzleUp)
	if h.c.State != CheckStatus || lastShow(h.effects) != "Nozzle up! Hang up" {
		t.Fatalf("expected warning, got %s %q", h.c.State, lastShow(h.effects))
	}
	if sent(h.effects) != "N" {
		t.Errorf("expected nozzle off, got %q", sent(h.effects))
	}

	h.advance(61 * time.Second)
	h.tick()
	h.reply('S', gaskitlink.StatusNozzleUp)
	if h.c.State != Error {
		t.Fatalf("expected ERROR after 61s nozzle up, got %s", h.c.State)
	}
	if got := lastShow(h.effects); got != "Nozzle up long! Check" {
		t.Errorf("unexpected display %q", got)
	}
}

func TestIdle_NozzleWarningClears(t *testing.T) {
	h := idle(t, 5000)
	h.tick()
	h.reply('S', gaskitlink.StatusNozzleUp)
	if !h.c.NozzleUpWarning {
		t.Fatal("expected nozzle warning")
	}
	h.press("K")
	if lastShow(h.effects) != "Nozzle up! Hang up" || h.c.State != Idle {
		t.Error("K must be refused while the nozzle is up")
	}

	h.c.StatusPollingActive = false
	h.advance(4 * time.Second)
	h.tick()
	if h.c.NozzleUpWarning {
		t.Error("warning should clear after 3 seconds")
	}
}

func TestIdle_KeyUsesCurrentMode(t *testing.T) {
	h := idle(t, 5000)
	h.press("K")
	if h.c.State != WaitForPriceInput || lastShow(h.effects) != "Enter Volume" {
		t.Errorf("expected volume prompt in default mode, got %s %q", h.c.State, lastShow(h.effects))
	}
	h.press("E")
	if h.c.State != Idle {
		t.Fatalf("E on empty input should return to IDLE, got %s", h.c.State)
	}

	h.press("CCC")
	if h.c.FuelMode != ByVolume || !h.c.ModeSelected {
		t.Fatalf("mode should cycle back to Volume, got %s", h.c.FuelMode)
	}
	h.press("E")
	if h.c.ModeSelected {
		t.Error("E should clear the mode selection")
	}
}

func TestIdle_FullTankSkipsInput(t *testing.T) {
	h := idle(t, 5000)
	h.press("CCK")
	if h.c.State != ConfirmTransaction || h.c.TransactionAmount != 999999 {
		t.Errorf("expected full-tank confirmation, got %s amount %d", h.c.State, h.c.TransactionAmount)
	}
}

func TestPriceInput(t *testing.T) {
	h := idle(t, 5000)
	h.press("CCCK")
	if h.c.State != WaitForPriceInput || lastShow(h.effects) != "Enter Volume" {
		t.Fatalf("expected volume prompt, got %s %q", h.c.State, lastShow(h.effects))
	}

	h.press("12*5")
	if h.c.PriceInput != "12.5" || lastShow(h.effects) != "Volume: 12.5" {
		t.Errorf("unexpected input %q display %q", h.c.PriceInput, lastShow(h.effects))
	}
	h.press("*")
	if h.c.PriceInput != "12.5" {
		t.Errorf("second decimal point accepted: %q", h.c.PriceInput)
	}
	h.press("E")
	if h.c.PriceInput != "" || lastShow(h.effects) != "Cleared" {
		t.Error("E should clear non-empty input")
	}
	h.press("0K")
	if h.c.State != WaitForPriceInput || lastShow(h.effects) != "Invalid volume!" {
		t.Errorf("zero volume should be rejected, got %q", lastShow(h.effects))
	}
	h.press("12345678")
	if h.c.PriceInput != "1234567" {
		t.Errorf("input should stop at 7 characters, got %q", h.c.PriceInput)
	}
	h.press("K")
	if lastShow(h.effects) != "Invalid volume!" {
		t.Error("volume above 9999.99 should be rejected")
	}
	h.press("20*5K")
	if h.c.State != ConfirmTransaction || h.c.TransactionVolume != 2050 {
		t.Errorf("expected 20.5 L confirmation, got %s volume %d", h.c.State, h.c.TransactionVolume)
	}
	h.press("E")
	if h.c.State != Idle || h.c.TransactionVolume != 0 {
		t.Error("E in confirmation should return to IDLE and clear the target")
	}
	h.press("KE")
	if h.c.State != Idle {
		t.Errorf("E on empty input should return to IDLE, got %s", h.c.State)
	}
}

func TestEditPrice(t *testing.T) {
	h := idle(t, 5000)
	h.press("G")
	if h.c.State != ViewPrice || lastShow(h.effects) != "Price: 5000" {
		t.Fatalf("expected price view, got %s %q", h.c.State, lastShow(h.effects))
	}
	h.press("G")
	if h.c.State != EditPrice {
		t.Fatalf("expected EDIT_PRICE, got %s", h.c.State)
	}

	h.press("123456K")
	if lastShow(h.effects) != "Price too high! Max" || h.c.Price != 5000 {
		t.Errorf("price above 99999 must be rejected, display %q", lastShow(h.effects))
	}
	h.press("70000K")
	if lastShow(h.effects) != "Price too high! Max" || h.c.Price != 5000 {
		t.Errorf("price that does not fit the record must be rejected, display %q", lastShow(h.effects))
	}

	h.press("12500K")
	if h.c.Price != 12500 || h.c.State != TransitionEditPrice {
		t.Fatalf("expected price 12500 in transition, got %d %s", h.c.Price, h.c.State)
	}
	var saved bool
	for _, e := range h.effects {
		if sp, ok := e.(SavePrice); ok && sp.Price == 12500 {
			saved = true
		}
	}
	if !saved {
		t.Error("price not persisted")
	}

	h.tick()
	if h.c.State != TransitionEditPrice {
		t.Error("transition left early")
	}
	h.advance(2 * time.Second)
	h.tick()
	if h.c.State != Idle {
		t.Errorf("expected IDLE after transition, got %s", h.c.State)
	}
}

func TestEditPrice_FirstPriceReturnsToIdle(t *testing.T) {
	h := newHarness(t, 0, false)
	h.press("E")
	h.press("GG7000K")
	if h.c.State != TransitionEditPrice || !h.c.PriceValid || h.c.Price != 7000 {
		t.Fatalf("expected TRANSITION_EDIT_PRICE with price 7000, got %s %d", h.c.State, h.c.Price)
	}
	h.advance(2 * time.Second)
	h.tick()
	if h.c.State != Idle {
		t.Errorf("expected IDLE, got %s", h.c.State)
	}
}

func TestTransitionPriceSet_FunnelsToStatusCheck(t *testing.T) {
	h := idle(t, 5000)
	h.c.State = TransitionPriceSet
	h.c.StateEntryTime = h.now
	h.tick()
	if h.c.State != TransitionPriceSet {
		t.Fatal("transition left early")
	}
	h.advance(2 * time.Second)
	h.tick()
	if h.c.State != CheckStatus {
		t.Errorf("expected CHECK_STATUS, got %s", h.c.State)
	}
}

func TestViewAndEditTimeouts(t *testing.T) {
	h := idle(t, 5000)
	h.press("G")
	h.advance(10 * time.Second)
	h.tick()
	if h.c.State != Idle {
		t.Errorf("view should time out to IDLE, got %s", h.c.State)
	}

	h.press("GG12")
	h.advance(9 * time.Second)
	h.tick()
	if h.c.State != EditPrice {
		t.Fatal("edit timed out early")
	}
	h.advance(time.Second)
	h.tick()
	if h.c.State != Idle || h.c.PriceInput != "" {
		t.Errorf("edit should time out to IDLE, got %s", h.c.State)
	}
}

func TestTransaction_FullFlow(t *testing.T) {
	h := idle(t, 5000)
	h.press("CK500KK")
	if h.c.State != Transaction || lastShow(h.effects) != "Confirm! UP Nozzle" {
		t.Fatalf("expected TRANSACTION, got %s %q", h.c.State, lastShow(h.effects))
	}

	h.tick()
	h.reply('S', gaskitlink.StatusIdle)
	if h.c.TransactionStarted {
		t.Fatal("status 10 must not start the transaction")
	}

	h.tick()
	h.reply('S', gaskitlink.StatusNozzleUp)
	if !h.c.TransactionStarted {
		t.Fatal("status 21 should start the transaction")
	}
	var start gaskitlink.Command
	for _, e := range h.effects {
		if s, ok := e.(Send); ok {
			start = s.Command
		}
	}
	if start.Code != 'M' || string(start.Payload) != "1;000500;5000" {
		t.Errorf("unexpected start command %s %q", start, start.Payload)
	}
	if rec, ok := savedRecord(h.effects); !ok || State(rec.State) != Transaction {
		t.Error("transaction start should be persisted")
	}

	h.tick()
	h.reply('S', gaskitlink.StatusDispensing)
	if sent(h.effects) != "L" {
		t.Fatalf("expected liters poll, got %q", sent(h.effects))
	}
	h.reply('L', "1;0;000150")
	h.tick()
	if sent(h.effects) != "R" {
		t.Fatalf("expected revenue poll, got %q", sent(h.effects))
	}
	h.reply('R', "1;0;000750")
	if got := lastShow(h.effects); got != "Dispensing...\nL: 1.50\nP: 750" {
		t.Errorf("unexpected display %q", got)
	}

	h.tick()
	if sent(h.effects) != "S" {
		t.Fatal("monitor should cycle back to status")
	}
	h.reply('S', gaskitlink.StatusStopped)
	if h.c.State != TransactionEnd || sent(h.effects) != "T" {
		t.Fatalf("expected TRANSACTION_END requesting totals, got %s %q", h.c.State, sent(h.effects))
	}

	h.reply('T', "1;00000500;000100")
	if h.c.FinalAmount != 500 || h.c.FinalLiters != 100 {
		t.Errorf("unexpected finals %d/%d", h.c.FinalLiters, h.c.FinalAmount)
	}
	if !strings.HasPrefix(lastShow(h.effects), "Filling end") || sent(h.effects) != "N" {
		t.Errorf("expected filling end and nozzle off, got %q %q", lastShow(h.effects), sent(h.effects))
	}

	h.tick()
	if sent(h.effects) != "" {
		t.Error("no more requests after totals were received")
	}
	h.press("E")
	if h.c.State != Idle || h.c.TransactionStarted {
		t.Errorf("expected clean IDLE, got %s", h.c.State)
	}
	if rec, ok := savedRecord(h.effects); !ok || Active(rec) {
		t.Error("returning to IDLE should persist an inactive record")
	}
}

func TestTransaction_StartPriceScaled(t *testing.T) {
	h := idle(t, 12000)
	h.press("CCCK10KK")
	h.tick()
	h.reply('S', gaskitlink.StatusNozzleUp)
	var start gaskitlink.Command
	for _, e := range h.effects {
		if s, ok := e.(Send); ok {
			start = s.Command
		}
	}
	if start.Code != 'V' || string(start.Payload) != "1;001000;1200" {
		t.Errorf("unexpected start command %s %q", start, start.Payload)
	}
}

func TestTransaction_CancelBeforeStart(t *testing.T) {
	h := idle(t, 5000)
	h.press("CCK")
	h.press("K")
	h.tick()
	h.press("E")

	if h.c.State != Idle || sent(h.effects) != "N" {
		t.Fatalf("expected IDLE with nozzle off, got %s %q", h.c.State, sent(h.effects))
	}
	if h.c.WaitingForResponse {
		t.Error("cancel should drop the pending request")
	}

	h.c, h.effects = h.m.Step(h.c, Tick{At: h.now.Add(50 * time.Millisecond)})
	if sent(h.effects) != "" {
		t.Error("polling resumed before the settle delay")
	}
	h.c, h.effects = h.m.Step(h.c, Tick{At: h.now.Add(150 * time.Millisecond)})
	if sent(h.effects) != "S" {
		t.Error("polling should resume after the settle delay")
	}
}

func TestTransaction_StatusBeforeStart(t *testing.T) {
	confirmed := func() *harness {
		h := idle(t, 5000)
		h.press("CCK")
		h.press("K")
		h.tick()
		if h.c.State != Transaction || h.c.TransactionStarted {
			t.Fatalf("expected unstarted TRANSACTION, got %s", h.c.State)
		}
		return h
	}

	h := confirmed()
	h.reply('S', gaskitlink.StatusDispensing)
	if h.c.State != Transaction || !h.c.TransactionStarted || sent(h.effects) != "L" {
		t.Errorf("dispensing should start monitoring, got %s %q", h.c.State, sent(h.effects))
	}
	if h.c.ErrorCount != 0 {
		t.Errorf("dispensing must not count as a failure, errors %d", h.c.ErrorCount)
	}

	h = confirmed()
	h.reply('S', gaskitlink.StatusPaused)
	if h.c.State != TransactionPaused || !h.c.TransactionStarted || h.c.ErrorCount != 0 {
		t.Errorf("paused should enter TRANSACTION_PAUSED, got %s errors %d", h.c.State, h.c.ErrorCount)
	}

	h = confirmed()
	h.reply('S', gaskitlink.StatusStopped)
	if h.c.State != Transaction || h.c.TransactionStarted || h.c.ErrorCount != 0 {
		t.Errorf("stopped before start should be ignored, got %s errors %d", h.c.State, h.c.ErrorCount)
	}
}

func pausedHarness(t *testing.T) *harness {
	h := idle(t, 5000)
	h.press("CCK")
	h.press("K")
	h.tick()
	h.reply('S', gaskitlink.StatusNozzleUp)
	h.c.CurrentLiters = 300
	h.c.CurrentAmount = 4500
	h.press("E")
	if h.c.State != TransactionPaused || sent(h.effects) != "B" {
		t.Fatalf("expected pause, got %s %q", h.c.State, sent(h.effects))
	}
	return h
}

func TestPaused_ResumeWithK(t *testing.T) {
	h := pausedHarness(t)
	if rec, ok := savedRecord(h.effects); !ok || State(rec.State) != TransactionPaused || rec.Liters != 300 {
		t.Error("pause should persist the snapshot")
	}
	h.press("K")
	if h.c.State != Transaction || sent(h.effects) != "G" {
		t.Errorf("expected resume, got %s %q", h.c.State, sent(h.effects))
	}
}

func TestPaused_StatusResumes(t *testing.T) {
	h := pausedHarness(t)
	h.tick()
	h.reply('S', gaskitlink.StatusPaused)
	if h.c.State != TransactionPaused {
		t.Fatal("status 71 should keep the pause")
	}
	h.tick()
	h.reply('S', gaskitlink.StatusDispensing)
	if h.c.State != Transaction || lastShow(h.effects) != "Dispensing...\nL: 3.00\nP: 4500" {
		t.Errorf("expected resume, got %s %q", h.c.State, lastShow(h.effects))
	}
}

func TestPaused_Timeout(t *testing.T) {
	h := pausedHarness(t)
	h.advance(31 * time.Second)
	h.tick()
	if h.c.State != TransactionEnd || sent(h.effects) != "T" {
		t.Fatalf("expected TRANSACTION_END, got %s %q", h.c.State, sent(h.effects))
	}
	if !strings.HasPrefix(lastShow(h.effects), "Nozzle back! Trans end") {
		t.Errorf("unexpected display %q", lastShow(h.effects))
	}
	if h.c.FinalLiters != 300 || h.c.FinalAmount != 4500 {
		t.Error("finals should be the paused snapshot")
	}
}

func TestTransactionEnd_ShortRepliesEscalate(t *testing.T) {
	h := pausedHarness(t)
	h.press("E")
	if h.c.State != TransactionEnd || sent(h.effects) != "T" {
		t.Fatalf("expected totals request, got %s %q", h.c.State, sent(h.effects))
	}

	for attempt := 1; attempt <= 5; attempt++ {
		if h.c.EndAttempts != attempt {
			t.Fatalf("expected attempt %d, got %d", attempt, h.c.EndAttempts)
		}
		h.fail('T', transport.Malformed)
		if attempt < 5 {
			if h.c.State != TransactionEnd {
				t.Fatalf("attempt %d: left TRANSACTION_END (%s)", attempt, h.c.State)
			}
			h.tick()
			if sent(h.effects) != "T" {
				t.Fatalf("attempt %d: expected retry", attempt)
			}
		}
	}
	if h.c.State != Error || lastShow(h.effects) != "Trans error! Check pump" {
		t.Errorf("expected ERROR, got %s %q", h.c.State, lastShow(h.effects))
	}
	if h.c.FinalLiters != 300 || h.c.FinalAmount != 4500 {
		t.Errorf("finals changed: %d/%d", h.c.FinalLiters, h.c.FinalAmount)
	}
}

func TestTransactionEnd_InvalidDigitsKeepFinals(t *testing.T) {
	h := pausedHarness(t)
	h.press("E")
	h.reply('T', "1;0000x500;000100")
	if !h.c.EndDataReceived {
		t.Error("invalid digits still end the transaction")
	}
	if h.c.FinalLiters != 300 || h.c.FinalAmount != 4500 {
		t.Errorf("finals changed: %d/%d", h.c.FinalLiters, h.c.FinalAmount)
	}
}

func TestTotalCounter(t *testing.T) {
	h := idle(t, 5000)
	h.press("A")
	if h.c.State != TotalCounter || sent(h.effects) != "C" || h.c.StatusPollingActive {
		t.Fatalf("expected counter request, got %s %q", h.c.State, sent(h.effects))
	}
	if lastShow(h.effects) != "TOTAL:\nWaiting..." {
		t.Errorf("unexpected display %q", lastShow(h.effects))
	}

	h.fail('C', transport.Timeout)
	h.tick()
	if sent(h.effects) != "" {
		t.Error("counter resent before the response timeout")
	}
	h.advance(3 * time.Second)
	h.tick()
	if sent(h.effects) != "C" || h.c.CounterAttempts != 2 {
		t.Fatalf("expected second attempt, got %q attempts=%d", sent(h.effects), h.c.CounterAttempts)
	}

	h.reply('C', "1;001234567")
	if got := lastShow(h.effects); got != "TOTAL:\n1234.56" {
		t.Errorf("unexpected display %q", got)
	}
	h.advance(3 * time.Second)
	h.tick()
	if sent(h.effects) != "" {
		t.Error("counter polled after a valid reply")
	}

	h.press("E")
	if h.c.State != Idle || !h.c.StatusPollingActive {
		t.Error("E should return to IDLE with polling enabled")
	}
}

func TestParseVolume(t *testing.T) {
	tests := []struct {
		in      string
		want    uint32
		wantErr bool
	}{
		{"12.5", 1250, false},
		{"12.", 1200, false},
		{"1.234", 123, false},
		{"9999.99", 999999, false},
		{"0.01", 1, false},
		{"0", 0, true},
		{"0.001", 0, true},
		{"10000", 0, true},
		{".", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseVolume(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseVolume(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseVolume(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    uint32
		wantErr bool
	}{
		{"12345", 12345, false},
		{"12.9", 12, false},
		{"999999", 999999, false},
		{"0", 0, true},
		{"0.5", 0, true},
		{"1000000", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseAmount(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseAmount(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseAmount(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestTransactionText_ScalesHighPrice(t *testing.T) {
	if got := transactionText(12000, 150, 100, "Dispensing..."); got != "Dispensing...\nL: 1.50\nP: 1000" {
		t.Errorf("unexpected text %q", got)
	}
	if got := transactionText(5000, 5, 100, "Paused"); got != "Paused\nL: 0.05\nP: 100" {
		t.Errorf("unexpected text %q", got)
	}
}

func TestStateNames(t *testing.T) {
	if ConfirmTransaction != 12 || TransactionPaused != 11 {
		t.Fatal("persisted state numbering changed")
	}
	if CheckStatus.String() != "CHECK_STATUS" || State(40).String() != "STATE_40" {
		t.Error("unexpected state names")
	}
	if State(13).Valid() {
		t.Error("state 13 should be invalid")
	}
	if ByFullTank.Next() != ByVolume {
		t.Error("fuel mode should wrap")
	}
}
