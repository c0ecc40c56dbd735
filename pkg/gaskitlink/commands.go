// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gaskitlink

import (
	"errors"
	"fmt"
)

// ErrPriceTooHigh is returned when a start command price does not fit the
// four digit wire field.
var ErrPriceTooHigh = errors.New("price exceeds wire limit")

// ReplySpec describes the reply a command expects. A zero Length means the
// controller does not answer the command.
type ReplySpec struct {
	Command   byte
	Length    int
	MinLength int
}

// Awaited reports whether the command expects a reply.
func (r ReplySpec) Awaited() bool {
	return r.Length > 0
}

// Command is one outbound request with its expected reply.
type Command struct {
	Code    byte
	Payload []byte
	Reply   ReplySpec
}

// Frame assembles the command for the given station.
func (c Command) Frame(addr Address) ([]byte, error) {
	return AssembleFrame(addr, c.Code, c.Payload)
}

func (c Command) String() string {
	if len(c.Payload) == 0 {
		return FormatCommand(c.Code)
	}
	return fmt.Sprintf("%s %q", FormatCommand(c.Code), c.Payload)
}

func exact(cmd byte, length int) ReplySpec {
	return ReplySpec{Command: cmd, Length: length, MinLength: length}
}

// NewStatusRequest creates a status poll (S). Reply carries the status code.
func NewStatusRequest() Command {
	return Command{Code: CmdStatus, Reply: exact(CmdStatus, StatusReplyLength)}
}

// NewNozzleOff creates a nozzle-off command (N).
func NewNozzleOff() Command {
	return Command{Code: CmdNozzleOff}
}

// NewTransactionUpdate requests the final totals of a transaction (T).
// The reply may be truncated down to TransactionReplyMinLength.
func NewTransactionUpdate() Command {
	return Command{
		Code:  CmdTransactionUpdate,
		Reply: ReplySpec{Command: CmdTransactionUpdate, Length: TransactionReplyLength, MinLength: TransactionReplyMinLength},
	}
}

// NewLitersMonitor polls the running volume (L).
func NewLitersMonitor() Command {
	return Command{Code: CmdLitersMonitor, Reply: exact(CmdLitersMonitor, MonitorReplyLength)}
}

// NewRevenueMonitor polls the running amount (R).
func NewRevenueMonitor() Command {
	return Command{Code: CmdRevenueMonitor, Reply: exact(CmdRevenueMonitor, MonitorReplyLength)}
}

// NewTotalCounter requests the totalizer (C).
func NewTotalCounter() Command {
	return Command{Code: CmdTotalCounter, Payload: []byte("1"), Reply: exact(CmdTotalCounter, CounterReplyLength)}
}

// NewPause pauses the running transaction (B).
func NewPause() Command {
	return Command{Code: CmdPause}
}

// NewResume resumes a paused transaction (G).
func NewResume() Command {
	return Command{Code: CmdResume}
}

// NewStartByVolume authorizes a fill of volume hundredths of a liter (V).
func NewStartByVolume(volume uint32, price uint32) (Command, error) {
	payload, err := startPayload(volume, price)
	if err != nil {
		return Command{}, err
	}
	return Command{Code: CmdStartByVolume, Payload: payload}, nil
}

// NewStartByAmount authorizes a fill up to a money amount (M).
func NewStartByAmount(amount uint32, price uint32) (Command, error) {
	payload, err := startPayload(amount, price)
	if err != nil {
		return Command{}, err
	}
	return Command{Code: CmdStartByAmount, Payload: payload}, nil
}

// NewStartFullTank authorizes a full-tank fill.
func NewStartFullTank(price uint32) (Command, error) {
	return NewStartByAmount(FullTankAmount, price)
}

// WirePrice scales a unit price to the four digit wire field.
func WirePrice(price uint32) uint32 {
	if price > MaxWirePrice {
		return price / 10
	}
	return price
}

func startPayload(value uint32, price uint32) ([]byte, error) {
	if price > MaxWirePrice {
		return nil, fmt.Errorf("%w: %d (max %d)", ErrPriceTooHigh, price, MaxWirePrice)
	}
	if value > FullTankAmount {
		value = FullTankAmount
	}
	return []byte(fmt.Sprintf("1;%06d;%04d", value, price)), nil
}
