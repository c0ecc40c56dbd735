// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dispenser

import (
	"time"

	"github.com/gaskit/terminal/pkg/persist"
)

// Input limits
const (
	MaxInputLength = 7
	MaxPrice       = persist.MaxPrice // largest price the 2-byte record holds
	MaxVolume      = 999999 // hundredths of a liter, 9999.99
	MaxAmount      = 999999
)

// Monitor phases polled while a transaction runs
const (
	MonitorStatus  = 0
	MonitorLiters  = 1
	MonitorRevenue = 2
)

// Context is the complete state of one terminal. It is a value: handlers
// receive a copy and return the updated one.
type Context struct {
	State        State
	FuelMode     FuelMode
	ModeSelected bool

	Price      uint32
	PriceValid bool

	// Operator target, only one of them is non-zero
	TransactionVolume  uint32
	TransactionAmount  uint32
	TransactionStarted bool

	// Hundredths, as reported by the pump
	CurrentLiters uint32
	CurrentAmount uint32
	FinalLiters   uint32
	FinalAmount   uint32

	WaitingForResponse bool
	Pending            byte // command code whose reply is awaited
	ErrorCount         int

	MonitorActive bool
	MonitorState  int

	NozzleUpWarning bool
	NozzleUpSince   time.Time

	StateEntryTime time.Time
	LastKeyTime    time.Time
	LastExchangeAt time.Time

	StatusPollingActive bool
	ResumePollingAt     time.Time

	PriceInput string

	EndAttempts       int
	EndDataReceived   bool
	CounterAttempts   int
	LastCounterSendAt time.Time
	LastProbeAt       time.Time
}

// Record returns the persisted snapshot for the given totals.
func (c Context) Record(liters, amount uint32) persist.TransactionRecord {
	return persist.TransactionRecord{
		Liters:       liters,
		Amount:       amount,
		State:        uint8(c.State),
		Mode:         uint8(c.FuelMode),
		ModeSelected: c.ModeSelected,
	}
}

// Active reports whether a persisted record describes a transaction that
// must be resumed.
func Active(rec persist.TransactionRecord) bool {
	s := State(rec.State)
	return s == Transaction || s == TransactionPaused
}

func (c *Context) clearTransaction() {
	c.TransactionStarted = false
	c.MonitorActive = false
	c.MonitorState = MonitorStatus
	c.WaitingForResponse = false
	c.Pending = 0
	c.CurrentLiters = 0
	c.CurrentAmount = 0
	c.FinalLiters = 0
	c.FinalAmount = 0
	c.TransactionVolume = 0
	c.TransactionAmount = 0
	c.EndAttempts = 0
	c.EndDataReceived = false
}
