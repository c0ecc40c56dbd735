// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package storage provides page-organized byte devices for persisted
// terminal records. Erased cells read back as 0xFF.
package storage

import (
	"errors"
	"fmt"
	"io"
)

// Device geometry
const (
	DefaultSize     = 32768
	DefaultPageSize = 64
	ErasedByte      = 0xFF
)

// ErrOutOfRange is returned for accesses beyond the device size.
var ErrOutOfRange = errors.New("access beyond device size")

// Device is a fixed-size byte store written in pages.
// Implementations only need to handle writes that stay within one page.
type Device interface {
	io.ReaderAt
	Size() int64
	PageSize() int
	WritePage(p []byte, off int64) error
	Sync() error
	Close() error
}

// WriteAt writes p at off, splitting the write at page boundaries.
func WriteAt(dev Device, p []byte, off int64) error {
	if err := checkRange(dev, int64(len(p)), off); err != nil {
		return err
	}

	page := int64(dev.PageSize())
	for len(p) > 0 {
		room := page - off%page
		n := int64(len(p))
		if n > room {
			n = room
		}
		if err := dev.WritePage(p[:n], off); err != nil {
			return fmt.Errorf("write page at %d: %w", off, err)
		}
		p = p[n:]
		off += n
	}
	return dev.Sync()
}

// ReadAt reads len(p) bytes at off.
func ReadAt(dev Device, p []byte, off int64) error {
	if err := checkRange(dev, int64(len(p)), off); err != nil {
		return err
	}
	if _, err := dev.ReadAt(p, off); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read at %d: %w", off, err)
	}
	return nil
}

// Erase resets the whole device to ErasedByte.
func Erase(dev Device) error {
	blank := make([]byte, dev.PageSize())
	for i := range blank {
		blank[i] = ErasedByte
	}
	for off := int64(0); off < dev.Size(); off += int64(len(blank)) {
		if err := dev.WritePage(blank, off); err != nil {
			return fmt.Errorf("erase page at %d: %w", off, err)
		}
	}
	return dev.Sync()
}

func checkRange(dev Device, n, off int64) error {
	if off < 0 || off+n > dev.Size() {
		return fmt.Errorf("%w: %d+%d > %d", ErrOutOfRange, off, n, dev.Size())
	}
	return nil
}
