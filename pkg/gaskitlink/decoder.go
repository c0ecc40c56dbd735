// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gaskitlink

import "fmt"

// Decoder assembles one expected reply from a byte stream.
//
// Bytes before STX are skipped. The header is checked as soon as it arrives
// so a reply to another station or command fails without waiting for the
// rest of the frame. A reply completes when it reaches the expected length,
// or on Flush once the minimum length has been received.
type Decoder struct {
	addr    Address
	expect  ReplySpec
	buffer  []byte
	started bool
	skipped int
}

// NewDecoder creates a decoder for replies addressed from addr.
func NewDecoder(addr Address) *Decoder {
	return &Decoder{
		addr:   addr,
		buffer: make([]byte, 0, MaxReplyLength),
	}
}

// Expect resets the decoder and arms it for the given reply.
func (d *Decoder) Expect(spec ReplySpec) {
	d.expect = spec
	d.Reset()
	d.skipped = 0
}

// Reset drops any partial frame
func (d *Decoder) Reset() {
	d.buffer = d.buffer[:0]
	d.started = false
}

// Pending returns the number of bytes of the partial frame.
func (d *Decoder) Pending() int {
	return len(d.buffer)
}

// Skipped returns the number of bytes discarded while hunting for STX.
func (d *Decoder) Skipped() int {
	return d.skipped
}

// DecodeByte feeds one byte.
// Returns a completed, validated frame, or nil if the frame is incomplete.
// Returns a *ValidationError as soon as the frame is known to be bad.
func (d *Decoder) DecodeByte(b byte) ([]byte, error) {
	if !d.started {
		if b != STX {
			d.skipped++
			return nil, nil
		}
		d.started = true
	}

	d.buffer = append(d.buffer, b)

	if len(d.buffer) <= HeaderSize {
		if err := checkEnvelope(d.buffer, d.addr, d.expect.Command); err != nil {
			d.Reset()
			return nil, err
		}
	}

	if d.expect.Length > 0 && len(d.buffer) >= d.expect.Length {
		return d.complete(d.expect.Length)
	}
	return nil, nil
}

// Flush is called when the line has gone quiet. A partial frame that reached
// the minimum reply length is validated and returned; a shorter one is
// reported as short. Flush on an empty decoder returns nil, nil.
func (d *Decoder) Flush() ([]byte, error) {
	if len(d.buffer) == 0 {
		return nil, nil
	}
	if len(d.buffer) < d.expect.MinLength || d.expect.MinLength == 0 {
		n := len(d.buffer)
		d.Reset()
		return nil, newValidationError(KindShort,
			fmt.Sprintf("frame too short (%d bytes, expected %d)", n, d.expect.MinLength),
			map[string]interface{}{"length": n, "expected": d.expect.MinLength})
	}
	return d.complete(d.expect.MinLength)
}

func (d *Decoder) complete(minLength int) ([]byte, error) {
	frame := make([]byte, len(d.buffer))
	copy(frame, d.buffer)
	d.Reset()

	if err := ValidateFrame(frame, d.addr, minLength, d.expect.Command); err != nil {
		return nil, err
	}
	return frame, nil
}

// Sniffer splits a passively observed byte stream into frames.
// A frame starts at STX and ends when the line goes idle or the frame
// reaches MaxFrameSize.
type Sniffer struct {
	buffer  []byte
	skipped int
}

// NewSniffer creates a passive frame splitter
func NewSniffer() *Sniffer {
	return &Sniffer{buffer: make([]byte, 0, MaxFrameSize)}
}

// Feed adds one byte. Returns a frame when the size limit is reached.
func (s *Sniffer) Feed(b byte) []byte {
	if len(s.buffer) == 0 && b != STX {
		s.skipped++
		return nil
	}
	s.buffer = append(s.buffer, b)
	if len(s.buffer) >= MaxFrameSize {
		return s.Flush()
	}
	return nil
}

// Flush returns the accumulated frame, if any.
func (s *Sniffer) Flush() []byte {
	if len(s.buffer) == 0 {
		return nil
	}
	frame := make([]byte, len(s.buffer))
	copy(frame, s.buffer)
	s.buffer = s.buffer[:0]
	return frame
}

// Skipped returns the number of bytes seen outside any frame.
func (s *Sniffer) Skipped() int {
	return s.skipped
}
