// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/tendermint/tendermint/libs/log"

	"github.com/gaskit/terminal/pkg/gaskitlink"
)

var testAddr = gaskitlink.Address{0x00, 0x01}

func reply(cmd byte, body string) []byte {
	frame := append([]byte{gaskitlink.STX, testAddr[0], testAddr[1], cmd}, body...)
	return append(frame, gaskitlink.Checksum(frame))
}

// fakeController answers frames written by the session with respond.
// A nil answer means silence.
type fakeController struct {
	conn     net.Conn
	received chan []byte
}

func startController(t *testing.T, respond func(frame []byte) []byte) (*Session, *fakeController) {
	t.Helper()
	client, server := net.Pipe()
	fc := &fakeController{conn: server, received: make(chan []byte, 16)}

	go func() {
		buf := make([]byte, 64)
		for {
			n, err := server.Read(buf)
			if err != nil {
				return
			}
			frame := append([]byte(nil), buf[:n]...)
			fc.received <- frame
			if out := respond(frame); out != nil {
				server.Write(out)
			}
		}
	}()

	cfg := DefaultConfig(testAddr)
	cfg.ResponseTimeout = 100 * time.Millisecond
	cfg.InterByteTimeout = 20 * time.Millisecond
	s := NewSession(client, cfg, log.NewNopLogger())

	t.Cleanup(func() {
		s.Close()
		client.Close()
		server.Close()
	})
	return s, fc
}

func TestExchange_Success(t *testing.T) {
	want := reply('S', "61")
	s, fc := startController(t, func([]byte) []byte { return want })

	r := s.Exchange(gaskitlink.NewStatusRequest())
	if r.Outcome != Success {
		t.Fatalf("expected success, got %s (%v)", r.Outcome, r.Err)
	}
	if !bytes.Equal(r.Frame, want) {
		t.Errorf("expected % X, got % X", want, r.Frame)
	}

	sent := <-fc.received
	expected, _ := gaskitlink.NewStatusRequest().Frame(testAddr)
	if !bytes.Equal(sent, expected) {
		t.Errorf("controller received % X, want % X", sent, expected)
	}

	stats := s.Stats()
	if stats.TotalExchanges != 1 || stats.Successes != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestExchange_Timeout(t *testing.T) {
	s, _ := startController(t, func([]byte) []byte { return nil })

	r := s.Exchange(gaskitlink.NewStatusRequest())
	if r.Outcome != Timeout {
		t.Fatalf("expected timeout, got %s", r.Outcome)
	}
	if r.Elapsed < 100*time.Millisecond {
		t.Errorf("timeout returned early after %v", r.Elapsed)
	}
	if !r.Outcome.Failed() {
		t.Error("timeout should count as failure")
	}
}

func TestExchange_MalformedEndsWaitImmediately(t *testing.T) {
	bad := reply('S', "10")
	bad[len(bad)-1] ^= 0x5A
	s, _ := startController(t, func([]byte) []byte { return bad })

	r := s.Exchange(gaskitlink.NewStatusRequest())
	if r.Outcome != Malformed {
		t.Fatalf("expected malformed, got %s", r.Outcome)
	}
	var verr *gaskitlink.ValidationError
	if !errors.As(r.Err, &verr) || verr.Kind != gaskitlink.KindChecksumMismatch {
		t.Errorf("expected checksum mismatch, got %v", r.Err)
	}
	if r.Elapsed >= 100*time.Millisecond {
		t.Errorf("malformed reply should not wait for timeout (%v)", r.Elapsed)
	}
	if s.Stats().ChecksumErrors != 1 {
		t.Error("checksum error not counted")
	}
}

func TestExchange_PartialReplyIsShort(t *testing.T) {
	s, _ := startController(t, func([]byte) []byte { return reply('S', "10")[:4] })

	r := s.Exchange(gaskitlink.NewStatusRequest())
	if r.Outcome != Malformed {
		t.Fatalf("expected malformed, got %s", r.Outcome)
	}
	var verr *gaskitlink.ValidationError
	if !errors.As(r.Err, &verr) || verr.Kind != gaskitlink.KindShort {
		t.Errorf("expected short frame, got %v", r.Err)
	}
}

func TestExchange_WrongCommandIsMalformed(t *testing.T) {
	s, _ := startController(t, func([]byte) []byte { return reply('L', "1;0;000100") })

	r := s.Exchange(gaskitlink.NewStatusRequest())
	if r.Outcome != Malformed {
		t.Fatalf("expected malformed, got %s", r.Outcome)
	}
}

func TestExchange_VariableLengthTransactionReply(t *testing.T) {
	short := reply('T', "1;00001500;000750")
	s, _ := startController(t, func([]byte) []byte { return short })

	r := s.Exchange(gaskitlink.NewTransactionUpdate())
	if r.Outcome != Success {
		t.Fatalf("expected success, got %s (%v)", r.Outcome, r.Err)
	}
	if len(r.Frame) != len(short) {
		t.Errorf("expected %d bytes, got %d", len(short), len(r.Frame))
	}
}

func TestExchange_NoReplyCommand(t *testing.T) {
	s, fc := startController(t, func([]byte) []byte { return nil })

	r := s.Exchange(gaskitlink.NewNozzleOff())
	if r.Outcome != Sent {
		t.Fatalf("expected sent, got %s", r.Outcome)
	}
	if got := <-fc.received; got[3] != gaskitlink.CmdNozzleOff {
		t.Errorf("controller received % X", got)
	}
	if r.Elapsed >= 100*time.Millisecond {
		t.Errorf("no-reply command should not wait (%v)", r.Elapsed)
	}
}

func TestExchange_BusyWhileInFlight(t *testing.T) {
	s, fc := startController(t, func([]byte) []byte { return nil })

	done := make(chan Result)
	go func() { done <- s.Exchange(gaskitlink.NewStatusRequest()) }()
	<-fc.received

	r := s.Exchange(gaskitlink.NewLitersMonitor())
	if r.Outcome != Busy {
		t.Errorf("expected busy, got %s", r.Outcome)
	}
	if r.Outcome.Failed() {
		t.Error("busy should not count as failure")
	}

	if first := <-done; first.Outcome != Timeout {
		t.Errorf("first exchange should time out, got %s", first.Outcome)
	}
	select {
	case extra := <-fc.received:
		t.Errorf("busy exchange reached the link: % X", extra)
	default:
	}
}

func TestExchange_StaleBytesDiscarded(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	cfg := DefaultConfig(testAddr)
	cfg.ResponseTimeout = 100 * time.Millisecond
	s := NewSession(client, cfg, log.NewNopLogger())
	defer s.Close()

	// Unsolicited reply before any request
	server.Write(reply('S', "90"))
	time.Sleep(10 * time.Millisecond)

	go func() {
		buf := make([]byte, 64)
		server.Read(buf)
		server.Write(reply('S', "10"))
	}()

	r := s.Exchange(gaskitlink.NewStatusRequest())
	if r.Outcome != Success || gaskitlink.StatusCode(r.Frame) != gaskitlink.StatusIdle {
		t.Errorf("expected fresh status 10, got %s %q", r.Outcome, gaskitlink.StatusCode(r.Frame))
	}
}

func TestExchange_LinkError(t *testing.T) {
	client, server := net.Pipe()
	s := NewSession(client, DefaultConfig(testAddr), log.NewNopLogger())
	defer s.Close()

	server.Close()
	time.Sleep(10 * time.Millisecond)

	r := s.Exchange(gaskitlink.NewStatusRequest())
	if r.Outcome != LinkError {
		t.Errorf("expected link error, got %s", r.Outcome)
	}
	client.Close()
}

func TestTracer_RecordsExchange(t *testing.T) {
	var buf bytes.Buffer
	tracer, err := NewTracer(&buf)
	if err != nil {
		t.Fatalf("NewTracer failed: %v", err)
	}

	s, _ := startController(t, func([]byte) []byte { return reply('S', "10") })
	s.SetTracer(tracer)
	s.Exchange(gaskitlink.NewStatusRequest())

	var records []TraceRecord
	err = ReadTrace(&buf, func(rec TraceRecord) error {
		records = append(records, rec)
		return nil
	})
	if err != nil {
		t.Fatalf("ReadTrace failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Direction != DirectionTx || records[0].Command != 'S' {
		t.Errorf("unexpected tx record %+v", records[0])
	}
	if records[1].Direction != DirectionRx || records[1].Outcome != "success" {
		t.Errorf("unexpected rx record %+v", records[1])
	}
	if records[0].Time.IsZero() {
		t.Error("record time not preserved")
	}
}

func TestStatistics_String(t *testing.T) {
	stats := NewStatistics()
	stats.Update(Result{Outcome: Success})
	stats.Update(Result{Outcome: Timeout})
	stats.Update(Result{Outcome: Malformed, Err: &gaskitlink.ValidationError{Kind: gaskitlink.KindShort}})

	if stats.Errors() != 2 || stats.ShortFrames != 1 {
		t.Errorf("unexpected counters %+v", stats)
	}
	out := stats.String()
	for _, want := range []string{"Exchanges:", "Timeouts:", "Short frames:"} {
		if !bytes.Contains([]byte(out), []byte(want)) {
			t.Errorf("expected %q in summary", want)
		}
	}

	stats.Reset()
	if stats.TotalExchanges != 0 {
		t.Error("reset did not clear counters")
	}
}
