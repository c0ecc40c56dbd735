// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package storage

import (
	"fmt"

	dbm "github.com/tendermint/tm-db"
)

// KVDevice stores each page as one key of a tm-db database.
// Pages never written read back erased.
type KVDevice struct {
	db       dbm.DB
	size     int64
	pageSize int
}

// NewKVDevice wraps an open database.
func NewKVDevice(db dbm.DB, size int64, pageSize int) *KVDevice {
	return &KVDevice{db: db, size: size, pageSize: pageSize}
}

// OpenLevelDB opens a GoLevelDB-backed device named name under dir.
func OpenLevelDB(name, dir string, size int64, pageSize int) (*KVDevice, error) {
	db, err := dbm.NewGoLevelDB(name, dir)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s in %s: %w", name, dir, err)
	}
	return NewKVDevice(db, size, pageSize), nil
}

// NewMemoryDevice returns a device held in memory.
func NewMemoryDevice(size int64, pageSize int) *KVDevice {
	return NewKVDevice(dbm.NewMemDB(), size, pageSize)
}

func pageKey(page int64) []byte {
	return []byte(fmt.Sprintf("page:%05d", page))
}

func (d *KVDevice) loadPage(page int64) ([]byte, error) {
	buf := make([]byte, d.pageSize)
	stored, err := d.db.Get(pageKey(page))
	if err != nil {
		return nil, err
	}
	n := copy(buf, stored)
	for i := n; i < len(buf); i++ {
		buf[i] = ErasedByte
	}
	return buf, nil
}

func (d *KVDevice) ReadAt(p []byte, off int64) (int, error) {
	read := 0
	ps := int64(d.pageSize)
	for read < len(p) {
		pos := off + int64(read)
		page, err := d.loadPage(pos / ps)
		if err != nil {
			return read, fmt.Errorf("load page %d: %w", pos/ps, err)
		}
		read += copy(p[read:], page[pos%ps:])
	}
	return read, nil
}

func (d *KVDevice) WritePage(p []byte, off int64) error {
	ps := int64(d.pageSize)
	index := off / ps
	page, err := d.loadPage(index)
	if err != nil {
		return fmt.Errorf("load page %d: %w", index, err)
	}
	copy(page[off%ps:], p)
	return d.db.SetSync(pageKey(index), page)
}

func (d *KVDevice) Size() int64   { return d.size }
func (d *KVDevice) PageSize() int { return d.pageSize }
func (d *KVDevice) Sync() error   { return nil }
func (d *KVDevice) Close() error  { return d.db.Close() }
