// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dispenser

import (
	"time"

	"github.com/gaskit/terminal/pkg/gaskitlink"
	"github.com/gaskit/terminal/pkg/persist"
	"github.com/gaskit/terminal/pkg/transport"
)

// Event is an input to Step
type Event interface {
	isEvent()
}

// Tick advances time
type Tick struct {
	At time.Time
}

// KeyPress is one key from the keypad: 0-9, '*' or A-H, K.
type KeyPress struct {
	Key byte
	At  time.Time
}

// Reply is the outcome of an exchange the machine asked for.
type Reply struct {
	Command byte
	Outcome transport.Outcome
	Frame   []byte
	At      time.Time
}

func (Tick) isEvent()     {}
func (KeyPress) isEvent() {}
func (Reply) isEvent()    {}

// Keys accepted from the keypad
const Keys = "0123456789*ABCDEFGHK"

// IsKey reports whether k is a keypad key
func IsKey(k byte) bool {
	for i := 0; i < len(Keys); i++ {
		if Keys[i] == k {
			return true
		}
	}
	return false
}

// Effect is an action requested by Step
type Effect interface {
	isEffect()
}

// Send transmits a command. Commands with an awaited reply come back as a
// Reply event.
type Send struct {
	Command gaskitlink.Command
}

// Show replaces the display text. Hold keeps it visible before the next
// effect runs.
type Show struct {
	Text string
	Hold time.Duration
}

// SavePrice persists the unit price
type SavePrice struct {
	Price uint32
}

// SaveTransaction persists the transaction snapshot
type SaveTransaction struct {
	Record persist.TransactionRecord
}

// Level of a Log effect
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelError
)

// Log is a diagnostic message with key/value pairs
type Log struct {
	Level   Level
	Msg     string
	KeyVals []interface{}
}

func (Send) isEffect()            {}
func (Show) isEffect()            {}
func (SavePrice) isEffect()       {}
func (SaveTransaction) isEffect() {}
func (Log) isEffect()             {}
