// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package terminal runs the dispenser state machine against a pump link,
// a display and persistent storage.
package terminal

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tendermint/tendermint/libs/log"

	"github.com/gaskit/terminal/pkg/dispenser"
	"github.com/gaskit/terminal/pkg/gaskitlink"
	"github.com/gaskit/terminal/pkg/persist"
	"github.com/gaskit/terminal/pkg/transport"
)

var (
	ErrInvalidKey   = errors.New("not a keypad key")
	ErrKeyQueueFull = errors.New("key queue full")
)

// Link exchanges commands with the pump controller
type Link interface {
	Exchange(cmd gaskitlink.Command) transport.Result
}

// Display shows terminal text
type Display interface {
	Show(text string) error
}

// Store persists price and transaction records
type Store interface {
	SavePrice(price uint32) error
	LoadPrice() (uint32, bool, error)
	SaveTransaction(rec persist.TransactionRecord) error
	LoadTransaction() (persist.TransactionRecord, bool, error)
}

// Config holds driver parameters
type Config struct {
	Timing       dispenser.Timing
	TickInterval time.Duration
	KeyQueue     int
}

// DefaultConfig returns the standard driver configuration.
func DefaultConfig() Config {
	return Config{
		Timing:       dispenser.DefaultTiming(),
		TickInterval: 10 * time.Millisecond,
		KeyQueue:     16,
	}
}

// Driver owns the terminal context and feeds it ticks, keys and replies.
type Driver struct {
	cfg     Config
	machine dispenser.Machine
	link    Link
	display Display
	store   Store
	logger  log.Logger

	keys    chan byte
	jobs    chan []gaskitlink.Command
	replies chan dispenser.Reply
	busy    atomic.Bool

	// Commands without a reply that arrived while a batch was in flight.
	// Owned by the Run goroutine.
	backlog []gaskitlink.Command

	mu       sync.Mutex
	snapshot dispenser.Context
	lastText string
}

// New creates a driver. Run must be called to start it.
func New(link Link, display Display, store Store, logger log.Logger, cfg Config) *Driver {
	if cfg.KeyQueue <= 0 {
		cfg.KeyQueue = 16
	}
	return &Driver{
		cfg:     cfg,
		machine: dispenser.New(cfg.Timing),
		link:    link,
		display: display,
		store:   store,
		logger:  logger,
		keys:    make(chan byte, cfg.KeyQueue),
		jobs:    make(chan []gaskitlink.Command, 1),
		replies: make(chan dispenser.Reply, 4),
	}
}

// PressKey queues a key without blocking.
func (d *Driver) PressKey(k byte) error {
	if !dispenser.IsKey(k) {
		return ErrInvalidKey
	}
	select {
	case d.keys <- k:
		return nil
	default:
		return ErrKeyQueueFull
	}
}

// Snapshot returns a copy of the current context.
func (d *Driver) Snapshot() dispenser.Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshot
}

// Run drives the machine until ctx is cancelled.
func (d *Driver) Run(ctx context.Context) error {
	price, priceOK, err := d.store.LoadPrice()
	if err != nil {
		d.logger.Error("Failed to load price", "err", err)
		priceOK = false
	}
	rec, recOK, err := d.store.LoadTransaction()
	if err != nil {
		d.logger.Error("Failed to load transaction", "err", err)
		recOK = false
	}

	go d.transceive(ctx)

	c, effects := d.machine.Start(time.Now(), price, priceOK, rec, recOK)
	d.logger.Info("Terminal started", "state", c.State, "price", c.Price, "price_valid", c.PriceValid)
	c = d.apply(ctx, c, effects)

	ticker := time.NewTicker(d.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-d.replies:
			c = d.step(ctx, c, r)
		case now := <-ticker.C:
			select {
			case k := <-d.keys:
				c = d.step(ctx, c, dispenser.KeyPress{Key: k, At: now})
			default:
			}
			if len(d.backlog) > 0 {
				c = d.submit(ctx, c, nil)
			}
			c = d.step(ctx, c, dispenser.Tick{At: now})
		}
	}
}

func (d *Driver) step(ctx context.Context, c dispenser.Context, ev dispenser.Event) dispenser.Context {
	c, effects := d.machine.Step(c, ev)
	return d.apply(ctx, c, effects)
}

// apply carries out effects in order. Commands are collected and handed
// to the transceiver as one batch.
func (d *Driver) apply(ctx context.Context, c dispenser.Context, effects []dispenser.Effect) dispenser.Context {
	d.mu.Lock()
	d.snapshot = c
	d.mu.Unlock()

	var batch []gaskitlink.Command
	for _, e := range effects {
		switch e := e.(type) {
		case dispenser.Send:
			batch = append(batch, e.Command)
		case dispenser.Show:
			if e.Hold > 0 && len(batch) > 0 {
				c = d.submit(ctx, c, batch)
				batch = nil
			}
			d.show(e.Text)
			if e.Hold > 0 {
				select {
				case <-ctx.Done():
				case <-time.After(e.Hold):
				}
			}
		case dispenser.SavePrice:
			if err := d.store.SavePrice(e.Price); err != nil {
				d.logger.Error("Failed to save price", "price", e.Price, "err", err)
			}
		case dispenser.SaveTransaction:
			if err := d.store.SaveTransaction(e.Record); err != nil {
				d.logger.Error("Failed to save transaction", "err", err)
			}
		case dispenser.Log:
			d.log(e)
		}
	}
	if len(batch) > 0 {
		c = d.submit(ctx, c, batch)
	}
	return c
}

// submit hands batch to the transceiver. While a batch is in flight an
// awaited command is answered with Busy; commands without a reply are kept
// in the backlog and go out first with the next batch.
func (d *Driver) submit(ctx context.Context, c dispenser.Context, batch []gaskitlink.Command) dispenser.Context {
	if !d.busy.CompareAndSwap(false, true) {
		for _, cmd := range batch {
			if cmd.Reply.Awaited() {
				c = d.step(ctx, c, dispenser.Reply{Command: cmd.Code, Outcome: transport.Busy, At: time.Now()})
				continue
			}
			d.backlog = append(d.backlog, cmd)
			d.logger.Debug("Command queued behind exchange", "cmd", cmd.String(), "backlog", len(d.backlog))
		}
		return c
	}

	if len(d.backlog) > 0 {
		batch = append(d.backlog, batch...)
		d.backlog = nil
	}
	if len(batch) == 0 {
		d.busy.Store(false)
		return c
	}
	d.jobs <- batch
	return c
}

func (d *Driver) transceive(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch := <-d.jobs:
			var replies []dispenser.Reply
			for _, cmd := range batch {
				r := d.link.Exchange(cmd)
				if cmd.Reply.Awaited() {
					replies = append(replies, dispenser.Reply{
						Command: cmd.Code,
						Outcome: r.Outcome,
						Frame:   r.Frame,
						At:      time.Now(),
					})
				}
			}
			d.busy.Store(false)
			for _, r := range replies {
				select {
				case d.replies <- r:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func (d *Driver) show(text string) {
	if text == d.lastText {
		return
	}
	d.lastText = text
	if err := d.display.Show(text); err != nil {
		d.logger.Error("Display update failed", "err", err)
	}
}

func (d *Driver) log(e dispenser.Log) {
	switch e.Level {
	case dispenser.LevelError:
		d.logger.Error(e.Msg, e.KeyVals...)
	case dispenser.LevelInfo:
		d.logger.Info(e.Msg, e.KeyVals...)
	default:
		d.logger.Debug(e.Msg, e.KeyVals...)
	}
}
