// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package storage

import (
	"bytes"
	"fmt"
	"os"
)

// FileDevice is a device backed by a flat image file.
type FileDevice struct {
	f        *os.File
	size     int64
	pageSize int
}

// OpenFile opens or creates an image of the given size. A new or short
// image is padded with erased bytes.
func OpenFile(path string, size int64, pageSize int) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open storage image %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat storage image %s: %w", path, err)
	}
	if info.Size() < size {
		pad := bytes.Repeat([]byte{ErasedByte}, int(size-info.Size()))
		if _, err := f.WriteAt(pad, info.Size()); err != nil {
			f.Close()
			return nil, fmt.Errorf("initialize storage image %s: %w", path, err)
		}
	}

	return &FileDevice{f: f, size: size, pageSize: pageSize}, nil
}

func (d *FileDevice) ReadAt(p []byte, off int64) (int, error) {
	return d.f.ReadAt(p, off)
}

func (d *FileDevice) WritePage(p []byte, off int64) error {
	_, err := d.f.WriteAt(p, off)
	return err
}

func (d *FileDevice) Size() int64   { return d.size }
func (d *FileDevice) PageSize() int { return d.pageSize }
func (d *FileDevice) Sync() error   { return d.f.Sync() }
func (d *FileDevice) Close() error  { return d.f.Close() }
