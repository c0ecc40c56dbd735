// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package persist stores the terminal price and the transaction snapshot
// that must survive a power loss.
package persist

import "encoding/binary"

// Record layout
const (
	PriceOffset       = 0
	PriceSize         = 2
	TransactionOffset = 4
	TransactionSize   = 11

	// MaxPrice is the largest price the 2-byte record holds; 0xFFFF is erased.
	MaxPrice = 0xFFFE

	// Highest valid values of the single byte fields
	maxState = 12
	maxMode  = 2
)

const (
	sentinel16 = 0xFFFF
	sentinel32 = 0xFFFFFFFF
)

// TransactionRecord is the persisted snapshot of a transaction.
type TransactionRecord struct {
	Liters       uint32
	Amount       uint32
	State        uint8
	Mode         uint8
	ModeSelected bool
}

// EncodePrice returns the on-device form of a price, 2 bytes little-endian.
// Only the low 16 bits are kept.
func EncodePrice(price uint32) []byte {
	buf := make([]byte, PriceSize)
	binary.LittleEndian.PutUint16(buf, uint16(price))
	return buf
}

// DecodePrice decodes a stored price. An erased value is absent.
func DecodePrice(buf []byte) (uint32, bool) {
	if len(buf) < PriceSize {
		return 0, false
	}
	price := binary.LittleEndian.Uint16(buf)
	if price == sentinel16 {
		return 0, false
	}
	return uint32(price), true
}

// Encode returns the on-device form of the record.
func (r TransactionRecord) Encode() []byte {
	buf := make([]byte, TransactionSize)
	binary.LittleEndian.PutUint32(buf[0:4], r.Liters)
	binary.LittleEndian.PutUint32(buf[4:8], r.Amount)
	buf[8] = r.State
	buf[9] = r.Mode
	if r.ModeSelected {
		buf[10] = 1
	}
	return buf
}

// DecodeTransaction decodes a stored record. An erased record, or one with
// any field out of its valid range, is absent.
func DecodeTransaction(buf []byte) (TransactionRecord, bool) {
	if len(buf) < TransactionSize {
		return TransactionRecord{}, false
	}
	liters := binary.LittleEndian.Uint32(buf[0:4])
	amount := binary.LittleEndian.Uint32(buf[4:8])
	state, mode, selected := buf[8], buf[9], buf[10]

	if liters == sentinel32 || amount == sentinel32 {
		return TransactionRecord{}, false
	}
	if state > maxState || mode > maxMode || selected > 1 {
		return TransactionRecord{}, false
	}
	return TransactionRecord{
		Liters:       liters,
		Amount:       amount,
		State:        state,
		Mode:         mode,
		ModeSelected: selected == 1,
	}, true
}
