// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package persist

import (
	"context"
	"errors"

	"github.com/tendermint/tendermint/libs/log"
)

// ErrWorkerStopped is returned by requests made after the worker exits.
var ErrWorkerStopped = errors.New("persistence worker stopped")

type opKind int

const (
	opSavePrice opKind = iota
	opLoadPrice
	opSaveTransaction
	opLoadTransaction
)

type request struct {
	op     opKind
	price  uint32
	record TransactionRecord
	reply  chan response
}

type response struct {
	price  uint32
	record TransactionRecord
	ok     bool
	err    error
}

// Worker executes store requests on its own goroutine. Callers block until
// their request has been carried out.
type Worker struct {
	store    *Store
	logger   log.Logger
	requests chan request
	done     chan struct{}
}

// NewWorker creates a worker for store. Call Run to start it.
func NewWorker(store *Store, logger log.Logger) *Worker {
	return &Worker{
		store:    store,
		logger:   logger,
		requests: make(chan request),
		done:     make(chan struct{}),
	}
}

// Run serves requests until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-w.requests:
			req.reply <- w.execute(req)
		}
	}
}

func (w *Worker) execute(req request) response {
	var resp response
	switch req.op {
	case opSavePrice:
		resp.err = w.store.SavePrice(req.price)
		if resp.err == nil {
			w.logger.Debug("Price saved", "price", req.price)
		}
	case opLoadPrice:
		resp.price, resp.ok, resp.err = w.store.LoadPrice()
	case opSaveTransaction:
		resp.err = w.store.SaveTransaction(req.record)
		if resp.err == nil {
			w.logger.Debug("Transaction saved", "liters", req.record.Liters,
				"amount", req.record.Amount, "state", req.record.State)
		}
	case opLoadTransaction:
		resp.record, resp.ok, resp.err = w.store.LoadTransaction()
	}
	if resp.err != nil {
		w.logger.Error("Storage request failed", "err", resp.err)
	}
	return resp
}

func (w *Worker) call(req request) response {
	req.reply = make(chan response, 1)
	select {
	case w.requests <- req:
	case <-w.done:
		return response{err: ErrWorkerStopped}
	}
	return <-req.reply
}

// SavePrice persists price.
func (w *Worker) SavePrice(price uint32) error {
	return w.call(request{op: opSavePrice, price: price}).err
}

// LoadPrice reads the stored price.
func (w *Worker) LoadPrice() (uint32, bool, error) {
	r := w.call(request{op: opLoadPrice})
	return r.price, r.ok, r.err
}

// SaveTransaction persists a snapshot.
func (w *Worker) SaveTransaction(rec TransactionRecord) error {
	return w.call(request{op: opSaveTransaction, record: rec}).err
}

// LoadTransaction reads the stored snapshot.
func (w *Worker) LoadTransaction() (TransactionRecord, bool, error) {
	r := w.call(request{op: opLoadTransaction})
	return r.record, r.ok, r.err
}
