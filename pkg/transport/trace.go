// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Direction of a traced frame
type Direction uint8

const (
	DirectionTx Direction = iota
	DirectionRx
)

func (d Direction) String() string {
	if d == DirectionTx {
		return "TX"
	}
	return "RX"
}

// TraceRecord is one traced frame. Records are written as a CBOR sequence.
type TraceRecord struct {
	Time      time.Time `cbor:"0,keyasint"`
	Direction Direction `cbor:"1,keyasint"`
	Command   byte      `cbor:"2,keyasint"`
	Frame     []byte    `cbor:"3,keyasint,omitempty"`
	Outcome   string    `cbor:"4,keyasint,omitempty"`
	Error     string    `cbor:"5,keyasint,omitempty"`
}

// Tracer appends records to a writer
type Tracer struct {
	mu  sync.Mutex
	enc *cbor.Encoder
}

// NewTracer creates a tracer writing to w.
func NewTracer(w io.Writer) (*Tracer, error) {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		return nil, fmt.Errorf("cbor encoder: %w", err)
	}
	return &Tracer{enc: em.NewEncoder(w)}, nil
}

// Record appends one record
func (t *Tracer) Record(rec TraceRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enc.Encode(rec)
}

// ReadTrace calls fn for every record in r until EOF.
func ReadTrace(r io.Reader, fn func(TraceRecord) error) error {
	dec := cbor.NewDecoder(r)
	for {
		var rec TraceRecord
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("decode trace record: %w", err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}
