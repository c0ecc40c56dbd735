// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package gaskitlink implements the GasKitLink v1.2 serial protocol spoken by
// fuel dispenser controllers.
//
// A frame is STX, a two byte station address, a one byte command, up to 16
// payload bytes and a trailing XOR checksum. The terminal always initiates;
// the controller answers a subset of commands with a fixed-length reply.
// This package provides frame assembly and validation, a byte-at-a-time
// reply decoder, command builders and reply parsers.
package gaskitlink

import "time"

// Protocol framing bytes
const (
	STX = 0x02
)

// Frame size limits
const (
	HeaderSize      = 4 // STX + address[2] + command
	MaxPayloadSize  = 16
	MaxFrameSize    = HeaderSize + MaxPayloadSize + 1
	MinFrameSize    = HeaderSize + 1
	MaxReplyLength  = 27
	MinStationPost  = 1
	MaxStationPost  = 32
	DefaultBaudRate = 9600
)

// Command codes (terminal → controller)
const (
	CmdStatus            = 'S'
	CmdStartByVolume     = 'V'
	CmdStartByAmount     = 'M'
	CmdNozzleOff         = 'N'
	CmdTransactionUpdate = 'T'
	CmdLitersMonitor     = 'L'
	CmdRevenueMonitor    = 'R'
	CmdTotalCounter      = 'C'
	CmdPause             = 'B'
	CmdResume            = 'G'
)

// Reply lengths in bytes, checksum included
const (
	StatusReplyLength         = 7
	MonitorReplyLength        = 15
	TransactionReplyLength    = 27
	TransactionReplyMinLength = 18
	CounterReplyLength        = 16
)

// Status codes reported in bytes 4..5 of a status reply
const (
	StatusIdle        = "10"
	StatusNozzleUp    = "21"
	StatusAuthorized  = "31"
	StatusStarting    = "41"
	StatusDispensing  = "61"
	StatusPaused      = "71"
	StatusStopped     = "81"
	StatusCompleted   = "90"
	statusCodeOffset  = 4
	statusCodeLength  = 2
	readyMarkerOffset = 4
	readyMarker       = '1'
)

// Wire price limit. Prices above this are sent divided by ten.
const MaxWirePrice = 9999

// FullTankAmount is the amount sent for a full-tank fill.
const FullTankAmount = 999999

// Default link timing
const (
	DefaultResponseTimeout  = 3000 * time.Millisecond
	DefaultInterByteTimeout = 3 * time.Millisecond
)
