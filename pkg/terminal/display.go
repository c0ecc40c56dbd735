// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package terminal

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// WriterDisplay prints every display update as a framed block.
type WriterDisplay struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterDisplay creates a display writing to w
func NewWriterDisplay(w io.Writer) *WriterDisplay {
	return &WriterDisplay{w: w}
}

func (d *WriterDisplay) Show(text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "┌─ %s ─────────────\n", time.Now().Format("15:04:05.000"))
	for _, line := range strings.Split(text, "\n") {
		fmt.Fprintf(&b, "│ %s\n", line)
	}
	b.WriteString("└────────────────────────────\n")
	_, err := io.WriteString(d.w, b.String())
	return err
}

// DisplayFunc adapts a function to Display
type DisplayFunc func(text string) error

func (f DisplayFunc) Show(text string) error {
	return f(text)
}
