// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gaskitlink

import (
	"fmt"
	"strings"
	"time"
)

// FormatCommand returns the human-readable name for a command code
func FormatCommand(code byte) string {
	switch code {
	case CmdStatus:
		return "STATUS"
	case CmdStartByVolume:
		return "START_BY_VOLUME"
	case CmdStartByAmount:
		return "START_BY_AMOUNT"
	case CmdNozzleOff:
		return "NOZZLE_OFF"
	case CmdTransactionUpdate:
		return "TRANSACTION_UPDATE"
	case CmdLitersMonitor:
		return "LITERS_MONITOR"
	case CmdRevenueMonitor:
		return "REVENUE_MONITOR"
	case CmdTotalCounter:
		return "TOTAL_COUNTER"
	case CmdPause:
		return "PAUSE"
	case CmdResume:
		return "RESUME"
	default:
		return fmt.Sprintf("UNKNOWN_0x%02X", code)
	}
}

// FormatStatus returns a description of a status code
func FormatStatus(code string) string {
	switch code {
	case StatusIdle:
		return "idle"
	case StatusNozzleUp:
		return "nozzle up"
	case StatusAuthorized:
		return "authorized"
	case StatusStarting:
		return "starting"
	case StatusDispensing:
		return "dispensing"
	case StatusPaused:
		return "paused"
	case StatusStopped:
		return "stopped"
	case StatusCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// FormatFrame formats a raw frame into a human-readable line.
// Frames too short to carry a header are shown as hex only.
func FormatFrame(ts time.Time, frame []byte) string {
	stamp := ts.Format("15:04:05.000")
	if len(frame) < MinFrameSize {
		return fmt.Sprintf("[%s] FRAGMENT len=%d % X\n", stamp, len(frame), frame)
	}

	code := frame[3]
	payload := frame[HeaderSize : len(frame)-1]
	checksum := frame[len(frame)-1]
	ok := "ok"
	if Checksum(frame[:len(frame)-1]) != checksum {
		ok = "BAD"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s ('%c') addr=%02X%02X len=%d cs=0x%02X (%s)\n",
		stamp, FormatCommand(code), code, frame[1], frame[2], len(frame), checksum, ok)
	if len(payload) > 0 {
		fmt.Fprintf(&b, "  payload: %q\n", payload)
	}
	if code == CmdStatus && len(frame) == StatusReplyLength {
		status := StatusCode(frame)
		fmt.Fprintf(&b, "  status: %s (%s)\n", status, FormatStatus(status))
	}
	return b.String()
}
