// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import "github.com/gaskit/terminal/pkg/dispenser"

// keypadKey maps a console key name to a keypad key. Letters A-H map to the
// function keys, Enter to K and Escape or Backspace to E.
func keypadKey(name string) (byte, bool) {
	switch name {
	case "enter", "k", "K":
		return 'K', true
	case "esc", "backspace", "e", "E":
		return 'E', true
	}
	if len(name) != 1 {
		return 0, false
	}
	k := name[0]
	if k >= 'a' && k <= 'h' {
		k -= 'a' - 'A'
	}
	if !dispenser.IsKey(k) {
		return 0, false
	}
	return k, true
}

// rawKey maps one byte read from a raw-mode terminal.
func rawKey(b byte) (byte, bool) {
	switch b {
	case '\r', '\n':
		return 'K', true
	case 0x1b, 0x7f, 0x08:
		return 'E', true
	}
	return keypadKey(string(b))
}
