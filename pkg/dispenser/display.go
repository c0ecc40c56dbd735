// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dispenser

import (
	"fmt"

	"github.com/gaskit/terminal/pkg/gaskitlink"
)

func modeText(c Context) string {
	if !c.ModeSelected {
		return "Please select mode"
	}
	return "Mode: " + c.FuelMode.String()
}

func inputLabel(m FuelMode) string {
	if m == ByVolume {
		return "Volume"
	}
	return "Amount"
}

// transactionText renders status, liters and amount. Amounts are scaled
// back up when the unit price exceeds the wire limit.
func transactionText(price, liters, amount uint32, status string) string {
	shown := amount
	if price > gaskitlink.MaxWirePrice {
		shown = amount * 10
	}
	return fmt.Sprintf("%s\nL: %s\nP: %d", status, gaskitlink.FormatHundredths(liters), shown)
}

func priceText(price uint32) string {
	return fmt.Sprintf("Price: %d", price)
}
