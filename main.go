// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Gaskit - GasKitLink Fuel Dispenser Terminal
//
// Runs the operator terminal of a fuel dispenser against a pump controller
// speaking GasKitLink v1.2, and provides tools for probing and sniffing the
// serial link.

package main

import (
	"os"

	"github.com/gaskit/terminal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
