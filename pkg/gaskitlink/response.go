// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gaskitlink

import (
	"errors"
	"fmt"
)

var (
	// ErrDataInvalid is returned when a numeric reply field holds non-digits.
	ErrDataInvalid = errors.New("reply data is not numeric")

	// ErrUnexpectedReply is returned when a reply lacks the ready marker or
	// answers a different command.
	ErrUnexpectedReply = errors.New("unexpected reply")
)

// Reply field positions
const (
	monitorValueOffset   = 8
	monitorValueLength   = 6
	monitorMinLength     = 14
	endVariantOffset     = 5
	endVariantMarker     = 'u'
	endValueOffset       = 8
	endValueOffsetU      = 10
	endValueLength       = 6
	endLitersGap         = 7
	counterValueOffset   = 6
	counterValueLength   = 9
	counterDisplayDivide = 10
)

// StatusCode returns the two character status code of a status reply, or ""
// when the frame is too short to hold one.
func StatusCode(frame []byte) string {
	if len(frame) < statusCodeOffset+statusCodeLength {
		return ""
	}
	return string(frame[statusCodeOffset : statusCodeOffset+statusCodeLength])
}

// IsKnownStatus reports whether code is one the controller is documented to send.
func IsKnownStatus(code string) bool {
	switch code {
	case StatusIdle, StatusNozzleUp, StatusAuthorized, StatusStarting,
		StatusDispensing, StatusPaused, StatusStopped, StatusCompleted:
		return true
	}
	return false
}

// ParseMonitor decodes a liters (L) or revenue (R) monitor reply.
// The value is in hundredths.
func ParseMonitor(frame []byte, command byte) (uint32, error) {
	if len(frame) < monitorMinLength {
		return 0, fmt.Errorf("%w: monitor reply %d bytes", ErrUnexpectedReply, len(frame))
	}
	if frame[3] != command || frame[readyMarkerOffset] != readyMarker {
		return 0, fmt.Errorf("%w: %s", ErrUnexpectedReply, FormatCommand(frame[3]))
	}
	return parseDigits(frame[monitorValueOffset : monitorValueOffset+monitorValueLength])
}

// TransactionTotals is the decoded payload of a transaction update reply.
type TransactionTotals struct {
	Amount uint32
	Liters uint32
}

// ParseTransactionEnd decodes a transaction update (T) reply.
//
// Controllers that mark byte 5 with 'u' shift the values two bytes right.
// The amount comes first, the liters seven bytes after it.
func ParseTransactionEnd(frame []byte) (TransactionTotals, error) {
	if len(frame) < TransactionReplyMinLength {
		return TransactionTotals{}, fmt.Errorf("%w: transaction reply %d bytes", ErrUnexpectedReply, len(frame))
	}
	if frame[3] != CmdTransactionUpdate || frame[readyMarkerOffset] != readyMarker {
		return TransactionTotals{}, fmt.Errorf("%w: transaction not ready", ErrUnexpectedReply)
	}

	offset := endValueOffset
	if frame[endVariantOffset] == endVariantMarker {
		offset = endValueOffsetU
	}
	litersAt := offset + endLitersGap
	if len(frame) < litersAt+endValueLength {
		return TransactionTotals{}, fmt.Errorf("%w: transaction values truncated", ErrDataInvalid)
	}

	amount, err := parseDigits(frame[offset : offset+endValueLength])
	if err != nil {
		return TransactionTotals{}, err
	}
	liters, err := parseDigits(frame[litersAt : litersAt+endValueLength])
	if err != nil {
		return TransactionTotals{}, err
	}
	return TransactionTotals{Amount: amount, Liters: liters}, nil
}

// ParseTotalCounter decodes a totalizer (C) reply in milliliters.
func ParseTotalCounter(frame []byte) (uint32, error) {
	if len(frame) < counterValueOffset+counterValueLength {
		return 0, fmt.Errorf("%w: counter reply %d bytes", ErrUnexpectedReply, len(frame))
	}
	if frame[3] != CmdTotalCounter || frame[readyMarkerOffset] != readyMarker {
		return 0, fmt.Errorf("%w: counter not ready", ErrUnexpectedReply)
	}
	return parseDigits(frame[counterValueOffset : counterValueOffset+counterValueLength])
}

// FormatHundredths renders a hundredths value as "int.frac".
func FormatHundredths(v uint32) string {
	return fmt.Sprintf("%d.%02d", v/100, v%100)
}

// FormatTotalCounter renders a totalizer value for display.
func FormatTotalCounter(milliliters uint32) string {
	return FormatHundredths(milliliters / counterDisplayDivide)
}

func parseDigits(field []byte) (uint32, error) {
	var v uint32
	for _, b := range field {
		if b < '0' || b > '9' {
			return 0, fmt.Errorf("%w: %q", ErrDataInvalid, field)
		}
		v = v*10 + uint32(b-'0')
	}
	return v, nil
}
