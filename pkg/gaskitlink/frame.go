// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gaskitlink

import (
	"errors"
	"fmt"
)

// ErrPayloadTooLarge is returned when a payload exceeds MaxPayloadSize.
var ErrPayloadTooLarge = errors.New("payload exceeds maximum frame payload")

// ErrInvalidPost is returned for a station post outside 1..32.
var ErrInvalidPost = errors.New("station post out of range")

// Address is the two byte station address, high byte first.
type Address [2]byte

// NewAddress returns the address of the given dispenser post.
func NewAddress(post int) (Address, error) {
	if post < MinStationPost || post > MaxStationPost {
		return Address{}, fmt.Errorf("%w: %d (valid %d-%d)", ErrInvalidPost, post, MinStationPost, MaxStationPost)
	}
	return Address{byte(post >> 8), byte(post)}, nil
}

// Post returns the post number encoded in the address.
func (a Address) Post() int {
	return int(a[0])<<8 | int(a[1])
}

func (a Address) String() string {
	return fmt.Sprintf("%02X%02X", a[0], a[1])
}

// AssembleFrame builds STX | address | command | payload | checksum.
// The checksum covers the address through the end of the payload.
func AssembleFrame(addr Address, command byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(payload), MaxPayloadSize)
	}

	frame := make([]byte, 0, HeaderSize+len(payload)+1)
	frame = append(frame, STX, addr[0], addr[1], command)
	frame = append(frame, payload...)
	frame = append(frame, Checksum(frame))
	return frame, nil
}

// ValidateFrame checks a received reply against the expected envelope.
//
// The frame must be at least expectedLength bytes, start with STX, carry the
// station address and expected command, and end with a checksum matching
// the recomputed one. Any failure is returned as a *ValidationError.
func ValidateFrame(frame []byte, addr Address, expectedLength int, expectedCommand byte) error {
	if len(frame) < expectedLength || len(frame) < MinFrameSize {
		return newValidationError(KindShort,
			fmt.Sprintf("frame too short (%d bytes, expected %d)", len(frame), expectedLength),
			map[string]interface{}{"length": len(frame), "expected": expectedLength})
	}
	if err := checkEnvelope(frame, addr, expectedCommand); err != nil {
		return err
	}

	body := frame[:len(frame)-1]
	received := frame[len(frame)-1]
	calculated := Checksum(body)
	if received != calculated {
		return newValidationError(KindChecksumMismatch,
			fmt.Sprintf("checksum mismatch: expected 0x%02X, got 0x%02X", calculated, received),
			map[string]interface{}{"expected": calculated, "received": received})
	}
	return nil
}

// checkEnvelope validates as much of the header as frame holds.
func checkEnvelope(frame []byte, addr Address, expectedCommand byte) error {
	if len(frame) > 0 && frame[0] != STX {
		return newValidationError(KindBadStart,
			fmt.Sprintf("bad start byte 0x%02X", frame[0]),
			map[string]interface{}{"received": frame[0]})
	}
	for i := 0; i < 2 && 1+i < len(frame); i++ {
		if frame[1+i] != addr[i] {
			return newValidationError(KindAddressMismatch,
				fmt.Sprintf("address mismatch: expected %s", addr),
				map[string]interface{}{"expected": addr.String(), "offset": 1 + i, "received": frame[1+i]})
		}
	}
	if len(frame) > 3 && frame[3] != expectedCommand {
		return newValidationError(KindCommandMismatch,
			fmt.Sprintf("command mismatch: expected '%c', got 0x%02X", expectedCommand, frame[3]),
			map[string]interface{}{"expected": expectedCommand, "received": frame[3]})
	}
	return nil
}
