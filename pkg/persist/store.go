// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package persist

import (
	"fmt"

	"github.com/gaskit/terminal/pkg/storage"
)

// Store reads and writes records on a storage device.
type Store struct {
	dev storage.Device
}

// NewStore creates a store on dev
func NewStore(dev storage.Device) *Store {
	return &Store{dev: dev}
}

// SavePrice persists the unit price.
func (s *Store) SavePrice(price uint32) error {
	if price > MaxPrice {
		return fmt.Errorf("price %d exceeds %d", price, MaxPrice)
	}
	if err := storage.WriteAt(s.dev, EncodePrice(price), PriceOffset); err != nil {
		return fmt.Errorf("save price: %w", err)
	}
	return nil
}

// LoadPrice returns the stored price and whether one is present.
func (s *Store) LoadPrice() (uint32, bool, error) {
	buf := make([]byte, PriceSize)
	if err := storage.ReadAt(s.dev, buf, PriceOffset); err != nil {
		return 0, false, fmt.Errorf("load price: %w", err)
	}
	price, ok := DecodePrice(buf)
	return price, ok, nil
}

// SaveTransaction persists a transaction snapshot as one write.
func (s *Store) SaveTransaction(r TransactionRecord) error {
	if err := storage.WriteAt(s.dev, r.Encode(), TransactionOffset); err != nil {
		return fmt.Errorf("save transaction: %w", err)
	}
	return nil
}

// LoadTransaction returns the stored snapshot and whether one is present.
func (s *Store) LoadTransaction() (TransactionRecord, bool, error) {
	buf := make([]byte, TransactionSize)
	if err := storage.ReadAt(s.dev, buf, TransactionOffset); err != nil {
		return TransactionRecord{}, false, fmt.Errorf("load transaction: %w", err)
	}
	r, ok := DecodeTransaction(buf)
	return r, ok, nil
}

// Clear erases both records.
func (s *Store) Clear() error {
	blank := make([]byte, TransactionOffset+TransactionSize)
	for i := range blank {
		blank[i] = storage.ErasedByte
	}
	if err := storage.WriteAt(s.dev, blank, PriceOffset); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	return nil
}
