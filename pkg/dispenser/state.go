// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package dispenser implements the fuel transaction state machine of a
// dispenser terminal.
//
// The machine is a set of pure handlers: Step takes the current Context and
// one Event (a tick, a key press or a pump reply) and returns the new
// Context together with the effects to carry out. Effects are plain data;
// the caller sends commands, updates the display and persists records.
package dispenser

import (
	"fmt"
	"time"
)

// State is a node of the transaction state machine. The numbering is
// persisted and must not change.
type State uint8

const (
	CheckStatus State = iota
	Idle
	WaitForPriceInput
	ViewPrice
	TransitionPriceSet
	EditPrice
	TransitionEditPrice
	Error
	Transaction
	TransactionEnd
	TotalCounter
	TransactionPaused
	ConfirmTransaction
)

var stateNames = [...]string{
	"CHECK_STATUS",
	"IDLE",
	"WAIT_FOR_PRICE_INPUT",
	"VIEW_PRICE",
	"TRANSITION_PRICE_SET",
	"EDIT_PRICE",
	"TRANSITION_EDIT_PRICE",
	"ERROR",
	"TRANSACTION",
	"TRANSACTION_END",
	"TOTAL_COUNTER",
	"TRANSACTION_PAUSED",
	"CONFIRM_TRANSACTION",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("STATE_%d", uint8(s))
}

// Valid reports whether s is a defined state
func (s State) Valid() bool {
	return s <= ConfirmTransaction
}

// FuelMode selects how a fill is limited
type FuelMode uint8

const (
	ByVolume FuelMode = iota
	ByPrice
	ByFullTank
)

func (m FuelMode) String() string {
	switch m {
	case ByVolume:
		return "Volume"
	case ByPrice:
		return "Price"
	case ByFullTank:
		return "Full Tank"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// Next cycles Volume → Price → Full Tank → Volume
func (m FuelMode) Next() FuelMode {
	return (m + 1) % 3
}

// Timing holds every interval the machine measures.
type Timing struct {
	DelayAfterResponse time.Duration // minimum gap between exchanges
	KeyDebounce        time.Duration
	ResponseTimeout    time.Duration // counter resend and error probe spacing
	ViewTimeout        time.Duration
	EditTimeout        time.Duration
	TransitionTimeout  time.Duration
	PauseTimeout       time.Duration // paused transaction auto-end
	NozzleUpLimit      time.Duration
	NozzleWarningReset time.Duration
	CancelSettle       time.Duration // polling resumes this long after a cancel
	WelcomeDuration    time.Duration
	MaxErrors          int
	MaxEndAttempts     int
}

// DefaultTiming returns the standard terminal timing.
func DefaultTiming() Timing {
	return Timing{
		DelayAfterResponse: 3 * time.Millisecond,
		KeyDebounce:        15 * time.Millisecond,
		ResponseTimeout:    3000 * time.Millisecond,
		ViewTimeout:        10 * time.Second,
		EditTimeout:        10 * time.Second,
		TransitionTimeout:  2 * time.Second,
		PauseTimeout:       30 * time.Second,
		NozzleUpLimit:      60 * time.Second,
		NozzleWarningReset: 3 * time.Second,
		CancelSettle:       100 * time.Millisecond,
		WelcomeDuration:    500 * time.Millisecond,
		MaxErrors:          5,
		MaxEndAttempts:     5,
	}
}
