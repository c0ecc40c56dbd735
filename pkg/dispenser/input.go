// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dispenser

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/gaskit/terminal/pkg/gaskitlink"
)

var (
	errInvalidInput = errors.New("invalid input")
	hundred         = decimal.NewFromInt(100)
	maxLiters       = decimal.New(999999, -2)
)

func parseInput(input string) (decimal.Decimal, error) {
	input = strings.TrimSuffix(input, ".")
	if input == "" {
		return decimal.Zero, errInvalidInput
	}
	return decimal.NewFromString(input)
}

// ParseVolume converts operator input in liters to hundredths. The value
// must be in (0, 9999.99]; extra decimals are truncated.
func ParseVolume(input string) (uint32, error) {
	d, err := parseInput(input)
	if err != nil {
		return 0, errInvalidInput
	}
	if !d.IsPositive() || d.GreaterThan(maxLiters) {
		return 0, errInvalidInput
	}
	v := d.Mul(hundred).Truncate(0).IntPart()
	if v == 0 {
		return 0, errInvalidInput
	}
	return uint32(v), nil
}

// ParseAmount converts operator input to a whole money amount. Any
// fractional part is dropped.
func ParseAmount(input string) (uint32, error) {
	d, err := parseInput(input)
	if err != nil {
		return 0, errInvalidInput
	}
	v := d.Truncate(0).IntPart()
	if v <= 0 || v > MaxAmount {
		return 0, errInvalidInput
	}
	return uint32(v), nil
}

// ParsePrice converts edited digits to a unit price in [0, 99999].
func ParsePrice(input string) (uint32, bool) {
	d, err := decimal.NewFromString(input)
	if err != nil || d.IsNegative() || d.GreaterThan(decimal.NewFromInt(MaxPrice)) {
		return 0, false
	}
	return uint32(d.IntPart()), true
}

func isDigit(k byte) bool {
	return k >= '0' && k <= '9'
}

func (s *step) keyPriceInput(k byte) {
	label := inputLabel(s.c.FuelMode)
	switch {
	case isDigit(k):
		if len(s.c.PriceInput) < MaxInputLength {
			s.c.PriceInput += string(k)
			s.show(label+": "+s.c.PriceInput, 0)
		}
		s.c.StateEntryTime = s.now
	case k == '*':
		if len(s.c.PriceInput) < MaxInputLength-1 && !strings.Contains(s.c.PriceInput, ".") {
			s.c.PriceInput += "."
			s.show(label+": "+s.c.PriceInput, 0)
		}
	case k == 'E':
		if s.c.PriceInput == "" {
			s.toIdle()
			return
		}
		s.c.PriceInput = ""
		s.show("Cleared", 0)
	case k == 'K':
		if s.c.PriceInput == "" {
			return
		}
		s.commitTarget()
	}
}

func (s *step) commitTarget() {
	input := s.c.PriceInput
	s.c.PriceInput = ""
	s.c.TransactionVolume = 0
	s.c.TransactionAmount = 0

	if s.c.FuelMode == ByVolume {
		v, err := ParseVolume(input)
		if err != nil {
			s.show("Invalid volume!", 0)
			return
		}
		s.c.TransactionVolume = v
	} else {
		v, err := ParseAmount(input)
		if err != nil {
			s.show("Invalid amount!", 0)
			return
		}
		s.c.TransactionAmount = v
	}
	s.info("Target set", "mode", s.c.FuelMode, "volume", s.c.TransactionVolume, "amount", s.c.TransactionAmount)
	s.enter(ConfirmTransaction)
	s.show("Confirm? Press K", 0)
}

func (s *step) keyViewPrice(k byte) {
	switch k {
	case 'G':
		s.c.PriceInput = ""
		s.enter(EditPrice)
		s.show("Editing Price", 0)
	case 'E':
		s.toIdle()
	}
}

func (s *step) keyEditPrice(k byte) {
	s.c.StateEntryTime = s.now
	switch {
	case isDigit(k):
		if len(s.c.PriceInput) < MaxInputLength {
			s.c.PriceInput += string(k)
			s.show("New Price: "+s.c.PriceInput, 0)
		}
	case k == 'E':
		s.c.PriceInput = ""
		s.show("Price cleared", 0)
	case k == 'K':
		if s.c.PriceInput == "" {
			s.toIdle()
			return
		}
		price, ok := ParsePrice(s.c.PriceInput)
		s.c.PriceInput = ""
		if !ok {
			s.show("Price too high! Max", 0)
			return
		}
		s.c.Price = price
		s.c.PriceValid = price > 0
		s.effects = append(s.effects, SavePrice{Price: price})
		s.info("Price updated", "price", price, "wire_price", gaskitlink.WirePrice(price))
		s.show("Price updated!", 0)
		s.enter(TransitionEditPrice)
	}
}

func (s *step) tickTransition() {
	if s.elapsed() < s.t.TransitionTimeout {
		return
	}
	s.c.WaitingForResponse = false
	s.c.Pending = 0
	if s.c.State == TransitionPriceSet {
		s.enter(CheckStatus)
		return
	}
	s.toIdle()
}

func (s *step) keyConfirm(k byte) {
	switch k {
	case 'K':
		s.c.TransactionStarted = false
		s.c.MonitorActive = false
		s.c.MonitorState = MonitorStatus
		s.c.WaitingForResponse = false
		s.c.Pending = 0
		s.enter(Transaction)
		s.show("Confirm! UP Nozzle", 0)
	case 'E':
		s.c.TransactionVolume = 0
		s.c.TransactionAmount = 0
		s.c.NozzleUpWarning = false
		s.c.WaitingForResponse = false
		s.c.Pending = 0
		s.c.ErrorCount = 0
		s.enter(Idle)
		s.showMode()
	}
}
