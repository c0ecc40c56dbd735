// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport turns a half-duplex GasKitLink connection into bounded,
// classified command exchanges.
package transport

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tendermint/tendermint/libs/log"

	"github.com/gaskit/terminal/pkg/gaskitlink"
)

// Outcome classifies one exchange
type Outcome int

const (
	Success   Outcome = iota // valid reply received
	Timeout                  // no reply within the response window
	Malformed                // reply failed validation
	Busy                     // another exchange was in flight
	Sent                     // command needs no reply and was written
	LinkError                // connection failed
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Timeout:
		return "timeout"
	case Malformed:
		return "malformed"
	case Busy:
		return "busy"
	case Sent:
		return "sent"
	case LinkError:
		return "link_error"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Failed reports whether the outcome counts against the link.
func (o Outcome) Failed() bool {
	return o == Timeout || o == Malformed || o == LinkError
}

// Result is the classified outcome of one exchange.
type Result struct {
	Command gaskitlink.Command
	Outcome Outcome
	Frame   []byte
	Err     error
	Elapsed time.Duration
}

// ErrClosed is reported once the session has been closed.
var ErrClosed = errors.New("transport session closed")

// Config holds link parameters
type Config struct {
	Address          gaskitlink.Address
	ResponseTimeout  time.Duration
	InterByteTimeout time.Duration
}

// DefaultConfig returns the standard timing for station addr.
func DefaultConfig(addr gaskitlink.Address) Config {
	return Config{
		Address:          addr,
		ResponseTimeout:  gaskitlink.DefaultResponseTimeout,
		InterByteTimeout: gaskitlink.DefaultInterByteTimeout,
	}
}

const rxQueueDepth = 64

// Session owns a connection. Only one exchange runs at a time; a concurrent
// Exchange returns Busy without touching the link.
type Session struct {
	conn    io.ReadWriter
	cfg     Config
	logger  log.Logger
	decoder *gaskitlink.Decoder

	rx         chan []byte
	linkErr    atomic.Value
	readerDone chan struct{}
	closed     chan struct{}
	once       sync.Once

	exchange sync.Mutex

	statsMu sync.Mutex
	stats   *Statistics

	tracer *Tracer
}

// NewSession starts reading conn and returns a session for it.
func NewSession(conn io.ReadWriter, cfg Config, logger log.Logger) *Session {
	s := &Session{
		conn:       conn,
		cfg:        cfg,
		logger:     logger,
		decoder:    gaskitlink.NewDecoder(cfg.Address),
		rx:         make(chan []byte, rxQueueDepth),
		readerDone: make(chan struct{}),
		closed:     make(chan struct{}),
		stats:      NewStatistics(),
	}
	go s.readLoop()
	return s
}

// SetTracer records every frame written and received. Call before the
// first exchange.
func (s *Session) SetTracer(t *Tracer) {
	s.tracer = t
}

// Close stops the session. The connection itself is closed by its owner.
func (s *Session) Close() {
	s.once.Do(func() { close(s.closed) })
}

// Stats returns a snapshot of the exchange statistics.
func (s *Session) Stats() Statistics {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.stats.CalculateRates()
	return *s.stats
}

func (s *Session) readLoop() {
	defer close(s.readerDone)
	buf := make([]byte, 64)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case s.rx <- chunk:
			case <-s.closed:
				return
			}
		}
		if err != nil {
			s.linkErr.Store(err)
			s.logger.Error("Link read failed", "err", err)
			return
		}
	}
}

func (s *Session) failure() error {
	select {
	case <-s.closed:
		return ErrClosed
	default:
	}
	if err, ok := s.linkErr.Load().(error); ok {
		return err
	}
	return nil
}

// drain discards bytes that arrived outside an exchange.
func (s *Session) drain() int {
	dropped := 0
	for {
		select {
		case chunk := <-s.rx:
			dropped += len(chunk)
		default:
			return dropped
		}
	}
}

// Exchange writes cmd and, if it expects a reply, waits for one.
func (s *Session) Exchange(cmd gaskitlink.Command) Result {
	if !s.exchange.TryLock() {
		return s.finish(Result{Command: cmd, Outcome: Busy}, time.Now())
	}
	defer s.exchange.Unlock()

	start := time.Now()
	if err := s.failure(); err != nil {
		return s.finish(Result{Command: cmd, Outcome: LinkError, Err: err}, start)
	}

	frame, err := cmd.Frame(s.cfg.Address)
	if err != nil {
		return s.finish(Result{Command: cmd, Outcome: LinkError, Err: err}, start)
	}

	if dropped := s.drain(); dropped > 0 {
		s.logger.Debug("Dropped stale bytes", "count", dropped)
	}

	if _, err := s.conn.Write(frame); err != nil {
		return s.finish(Result{Command: cmd, Outcome: LinkError, Err: fmt.Errorf("write %s: %w", cmd, err)}, start)
	}
	s.trace(start, DirectionTx, cmd.Code, frame, "", nil)

	if !cmd.Reply.Awaited() {
		return s.finish(Result{Command: cmd, Outcome: Sent}, start)
	}

	reply, err := s.await(cmd.Reply)
	result := Result{Command: cmd, Frame: reply, Err: err}
	switch {
	case err == nil:
		result.Outcome = Success
	case errors.Is(err, errTimeout):
		result.Outcome = Timeout
	case errors.Is(err, errLink):
		result.Outcome = LinkError
	default:
		result.Outcome = Malformed
	}
	return s.finish(result, start)
}

var (
	errTimeout = errors.New("no reply within response timeout")
	errLink    = errors.New("link failed while waiting for reply")
)

func (s *Session) await(spec gaskitlink.ReplySpec) ([]byte, error) {
	s.decoder.Expect(spec)

	deadline := time.NewTimer(s.cfg.ResponseTimeout)
	defer deadline.Stop()

	idle := time.NewTimer(time.Hour)
	idle.Stop()
	defer idle.Stop()

	for {
		select {
		case chunk := <-s.rx:
			for _, b := range chunk {
				frame, err := s.decoder.DecodeByte(b)
				if err != nil || frame != nil {
					return frame, err
				}
			}
			if s.decoder.Pending() > 0 {
				idle.Reset(s.cfg.InterByteTimeout)
			}

		case <-idle.C:
			frame, err := s.decoder.Flush()
			if err != nil || frame != nil {
				return frame, err
			}

		case <-deadline.C:
			if s.decoder.Pending() > 0 {
				return s.decoder.Flush()
			}
			return nil, errTimeout

		case <-s.readerDone:
			if len(s.rx) > 0 {
				continue
			}
			return nil, fmt.Errorf("%w: %v", errLink, s.failure())
		}
	}
}

func (s *Session) finish(r Result, start time.Time) Result {
	r.Elapsed = time.Since(start)

	s.statsMu.Lock()
	s.stats.Update(r)
	s.statsMu.Unlock()

	if r.Command.Reply.Awaited() && r.Outcome != Busy {
		s.trace(time.Now(), DirectionRx, r.Command.Reply.Command, r.Frame, r.Outcome.String(), r.Err)
	}

	if r.Outcome.Failed() {
		s.logger.Debug("Exchange failed", "command", gaskitlink.FormatCommand(r.Command.Code),
			"outcome", r.Outcome.String(), "err", r.Err, "elapsed", r.Elapsed)
	}
	return r
}

func (s *Session) trace(ts time.Time, dir Direction, code byte, frame []byte, outcome string, err error) {
	if s.tracer == nil {
		return
	}
	rec := TraceRecord{Time: ts, Direction: dir, Command: code, Frame: frame, Outcome: outcome}
	if err != nil {
		rec.Error = err.Error()
	}
	if terr := s.tracer.Record(rec); terr != nil {
		s.logger.Error("Trace write failed", "err", terr)
	}
}
