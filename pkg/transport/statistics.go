// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gaskit/terminal/pkg/gaskitlink"
)

// Statistics tracks exchange outcomes and rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalExchanges uint64
	Successes      uint64
	Sent           uint64
	Timeouts       uint64
	Malformed      uint64
	ShortFrames    uint64
	ChecksumErrors uint64
	EnvelopeErrors uint64
	Busy           uint64
	LinkErrors     uint64

	// Rates (calculated)
	ExchangeRate float64 // exchanges/sec
	ErrorRate    float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update counts one exchange result
func (s *Statistics) Update(r Result) {
	s.TotalExchanges++

	switch r.Outcome {
	case Success:
		s.Successes++
	case Sent:
		s.Sent++
	case Timeout:
		s.Timeouts++
	case Busy:
		s.Busy++
	case LinkError:
		s.LinkErrors++
	case Malformed:
		s.Malformed++
		var verr *gaskitlink.ValidationError
		if errors.As(r.Err, &verr) {
			switch verr.Kind {
			case gaskitlink.KindShort:
				s.ShortFrames++
			case gaskitlink.KindChecksumMismatch:
				s.ChecksumErrors++
			default:
				s.EnvelopeErrors++
			}
		}
	}

	s.LastUpdateTime = time.Now()
}

// Errors returns the number of failed exchanges
func (s *Statistics) Errors() uint64 {
	return s.Timeouts + s.Malformed + s.LinkErrors
}

// CalculateRates calculates exchange and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.ExchangeRate = float64(s.TotalExchanges) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

func percent(n, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) * 100.0 / float64(total)
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()
	elapsed := time.Since(s.StartTime)

	var b strings.Builder
	fmt.Fprintf(&b, "=== Link Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	fmt.Fprintf(&b, "Exchanges:       %8d\n", s.TotalExchanges)
	fmt.Fprintf(&b, "Replies OK:      %8d (%.1f%%)\n", s.Successes, percent(s.Successes, s.TotalExchanges))
	if s.Sent > 0 {
		fmt.Fprintf(&b, "Sent (no reply): %8d\n", s.Sent)
	}
	if s.Timeouts > 0 {
		fmt.Fprintf(&b, "Timeouts:        %8d (%.1f%%)\n", s.Timeouts, percent(s.Timeouts, s.TotalExchanges))
	}
	if s.Malformed > 0 {
		fmt.Fprintf(&b, "Malformed:       %8d (%.1f%%)\n", s.Malformed, percent(s.Malformed, s.TotalExchanges))
		if s.ShortFrames > 0 {
			fmt.Fprintf(&b, "  Short frames:     %5d\n", s.ShortFrames)
		}
		if s.ChecksumErrors > 0 {
			fmt.Fprintf(&b, "  Checksum errors:  %5d\n", s.ChecksumErrors)
		}
		if s.EnvelopeErrors > 0 {
			fmt.Fprintf(&b, "  Envelope errors:  %5d\n", s.EnvelopeErrors)
		}
	}
	if s.Busy > 0 {
		fmt.Fprintf(&b, "Busy:            %8d\n", s.Busy)
	}
	if s.LinkErrors > 0 {
		fmt.Fprintf(&b, "Link errors:     %8d\n", s.LinkErrors)
	}
	fmt.Fprintf(&b, "Exchange Rate:   %8.1f /sec\n", s.ExchangeRate)
	fmt.Fprintf(&b, "Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	b.WriteString("=====================================\n")
	return b.String()
}

// Reset resets all counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
