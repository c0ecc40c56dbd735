// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/gaskit/terminal/pkg/dispenser"
	"github.com/gaskit/terminal/pkg/terminal"
	"github.com/gaskit/terminal/pkg/transport"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	consoleRefresh   = 250 * time.Millisecond
	maxEventLines    = 8
	eventQueueLength = 256
)

//////////////////////////////////////////////////////////////
// Key Bindings
//////////////////////////////////////////////////////////////

type consoleKeyMap struct {
	Digits   key.Binding
	Function key.Binding
	Confirm  key.Binding
	Cancel   key.Binding
	Help     key.Binding
	Quit     key.Binding
}

func (k consoleKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Confirm, k.Cancel, k.Help, k.Quit}
}

func (k consoleKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Digits, k.Function},
		{k.Confirm, k.Cancel},
		{k.Help, k.Quit},
	}
}

func newConsoleKeyMap() consoleKeyMap {
	return consoleKeyMap{
		Digits: key.NewBinding(
			key.WithKeys("0", "1", "2", "3", "4", "5", "6", "7", "8", "9", "*"),
			key.WithHelp("0-9 *", "digits, decimal point"),
		),
		Function: key.NewBinding(
			key.WithKeys("a", "b", "c", "d", "f", "g", "h"),
			key.WithHelp("a-h", "function keys (c mode, g price, a total)"),
		),
		Confirm: key.NewBinding(
			key.WithKeys("enter", "k"),
			key.WithHelp("enter", "K confirm"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc", "backspace", "e"),
			key.WithHelp("esc", "E cancel/pause"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "more keys"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type consoleTickMsg time.Time

// displayMsg carries the full text of the terminal display.
type displayMsg string

// logLineMsg is one rendered log line.
type logLineMsg string

type attachMsg struct {
	driver   *terminal.Driver
	session  *transport.Session
	connInfo string
}

//////////////////////////////////////////////////////////////
// Log Forwarding
//////////////////////////////////////////////////////////////

// programWriter turns logger output into logLineMsg. Lines are queued so
// that logging never blocks on the program; when the queue is full lines
// are dropped.
type programWriter struct {
	p       *tea.Program
	lines   chan string
	mu      sync.Mutex
	partial []byte
}

func newProgramWriter(p *tea.Program) *programWriter {
	return &programWriter{p: p, lines: make(chan string, eventQueueLength)}
}

func (w *programWriter) Write(b []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.partial = append(w.partial, b...)
	for {
		i := bytes.IndexByte(w.partial, '\n')
		if i < 0 {
			break
		}
		line := string(w.partial[:i])
		w.partial = w.partial[i+1:]
		select {
		case w.lines <- line:
		default:
		}
	}
	return len(b), nil
}

func (w *programWriter) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case line := <-w.lines:
			w.p.Send(logLineMsg(line))
		}
	}
}

//////////////////////////////////////////////////////////////
// Model
//////////////////////////////////////////////////////////////

// consoleModel is the Bubble Tea model for the dispenser console
type consoleModel struct {
	driver   *terminal.Driver
	session  *transport.Session
	connInfo string

	display  string
	snapshot dispenser.Context
	stats    transport.Statistics
	events   []string
	notice   string

	keys consoleKeyMap
	help help.Model

	width    int
	quitting bool
}

func newConsoleModel() consoleModel {
	return consoleModel{
		connInfo: "connecting...",
		events:   make([]string, 0, maxEventLines),
		keys:     newConsoleKeyMap(),
		help:     help.New(),
		width:    80,
	}
}

func (m consoleModel) Init() tea.Cmd {
	return consoleTickCmd()
}

func consoleTickCmd() tea.Cmd {
	return tea.Tick(consoleRefresh, func(t time.Time) tea.Msg {
		return consoleTickMsg(t)
	})
}

func (m consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case consoleTickMsg:
		m.refresh()
		return m, consoleTickCmd()

	case attachMsg:
		m.driver = msg.driver
		m.session = msg.session
		m.connInfo = msg.connInfo
		m.refresh()

	case displayMsg:
		m.display = string(msg)

	case logLineMsg:
		m.events = append(m.events, string(msg))
		if len(m.events) > maxEventLines {
			m.events = m.events[len(m.events)-maxEventLines:]
		}
	}

	return m, nil
}

func (m *consoleModel) refresh() {
	if m.driver != nil {
		m.snapshot = m.driver.Snapshot()
	}
	if m.session != nil {
		m.stats = m.session.Stats()
	}
}

func (m consoleModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	}

	k, ok := keypadKey(msg.String())
	if !ok || m.driver == nil {
		return m, nil
	}
	if err := m.driver.PressKey(k); err != nil {
		m.notice = fmt.Sprintf("Key %c dropped: %v", k, err)
	} else {
		m.notice = ""
	}
	return m, nil
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	displayStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color("11")).
			Foreground(lipgloss.Color("11")).
			Width(24).
			Height(3).
			Padding(0, 1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

func (m consoleModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	s.WriteString(titleStyle.Render("GASKIT TERMINAL"))
	s.WriteString(" ")
	s.WriteString(headerStyle.Render("| " + m.connInfo))
	s.WriteString("\n\n")

	s.WriteString(displayStyle.Render(m.display))
	s.WriteString("\n")
	s.WriteString(m.renderStatus())
	s.WriteString("\n")
	s.WriteString(m.renderStats())
	s.WriteString("\n\n")

	s.WriteString(m.renderEvents())
	s.WriteString("\n")
	if m.notice != "" {
		s.WriteString(errorStyle.Render(m.notice))
		s.WriteString("\n")
	}
	s.WriteString(m.help.View(m.keys))
	s.WriteString("\n")

	return s.String()
}

func field(label, value string) string {
	return labelStyle.Render(label+":") + " " + valueStyle.Render(value) + "  "
}

func (m consoleModel) renderStatus() string {
	c := m.snapshot

	mode := "-"
	if c.ModeSelected {
		mode = c.FuelMode.String()
	}
	price := "unset"
	if c.PriceValid {
		price = fmt.Sprintf("%d", c.Price)
	}

	var s strings.Builder
	s.WriteString(field("State", c.State.String()))
	s.WriteString(field("Mode", mode))
	s.WriteString(field("Price", price))
	if c.ErrorCount > 0 {
		s.WriteString(labelStyle.Render("Errors:") + " " + errorStyle.Render(fmt.Sprintf("%d", c.ErrorCount)))
	} else {
		s.WriteString(field("Errors", "0"))
	}
	return s.String()
}

func (m consoleModel) renderStats() string {
	st := m.stats
	errs := st.Timeouts + st.Malformed + st.LinkErrors
	return headerStyle.Render(fmt.Sprintf("Exchanges %d | OK %d | Timeouts %d | Malformed %d | Busy %d | Errors %d",
		st.TotalExchanges, st.Successes, st.Timeouts, st.Malformed, st.Busy, errs))
}

func (m consoleModel) renderEvents() string {
	var s strings.Builder
	s.WriteString(labelStyle.Render("Events"))
	s.WriteString("\n")
	if len(m.events) == 0 {
		s.WriteString(headerStyle.Render("(none)"))
	}
	for i, line := range m.events {
		if w := m.width - 6; w > 0 && len(line) > w {
			line = line[:w]
		}
		s.WriteString(line)
		if i < len(m.events)-1 {
			s.WriteString("\n")
		}
	}
	return boxStyle.Render(s.String())
}
