// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/tendermint/tendermint/libs/log"
	"golang.org/x/term"

	"github.com/gaskit/terminal/pkg/config"
	"github.com/gaskit/terminal/pkg/persist"
	"github.com/gaskit/terminal/pkg/terminal"
	"github.com/gaskit/terminal/pkg/transport"
)

var runTUI bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the dispenser terminal",
	Long: `Run the operator terminal against the pump controller.

The console shows the terminal display and takes keypad input:
  0-9 and *     digits and decimal point
  a-h           function keys A-H (C cycles fuel mode, G shows price,
                A shows the total counter)
  Enter or k    K (confirm)
  Esc or e      E (cancel / pause)

With --tui=false, keys are read from stdin in raw mode and every display
update is printed as a block.

Price and the active transaction are persisted in the configured store and
restored on the next start.`,
	RunE: runTerminal,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runTUI, "tui", true, "Use the interactive console")
	runCmd.Flags().String("trace", "", "Write a CBOR exchange trace to this file")
	if err := v.BindPFlag("trace.path", runCmd.Flags().Lookup("trace")); err != nil {
		panic(err)
	}
}

// terminalStack is everything a running terminal owns.
type terminalStack struct {
	conn    Connection
	session *transport.Session
	device  io.Closer
	worker  *persist.Worker
	trace   *os.File
}

func (s *terminalStack) Close() {
	s.session.Close()
	s.conn.Close()
	s.device.Close()
	if s.trace != nil {
		s.trace.Close()
	}
}

func openStack(ctx context.Context, cfg *config.Config, logger log.Logger) (*terminalStack, string, error) {
	addr, err := cfg.Address()
	if err != nil {
		return nil, "", err
	}

	dev, err := cfg.OpenDevice()
	if err != nil {
		return nil, "", fmt.Errorf("open store: %w", err)
	}

	conn, connInfo, err := OpenConnection(cfg)
	if err != nil {
		dev.Close()
		return nil, "", err
	}

	stack := &terminalStack{
		conn:    conn,
		session: transport.NewSession(conn, cfg.TransportConfig(addr), logger.With("module", "link")),
		device:  dev,
		worker:  persist.NewWorker(persist.NewStore(dev), logger.With("module", "persist")),
	}

	if cfg.Trace.Path != "" {
		f, err := os.Create(cfg.Trace.Path)
		if err != nil {
			stack.Close()
			return nil, "", fmt.Errorf("create trace: %w", err)
		}
		stack.trace = f
		tracer, err := transport.NewTracer(f)
		if err != nil {
			stack.Close()
			return nil, "", err
		}
		stack.session.SetTracer(tracer)
	}

	go stack.worker.Run(ctx)
	return stack, fmt.Sprintf("%s | post %d", connInfo, addr.Post()), nil
}

func runTerminal(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if runTUI {
		return runConsole(ctx, cfg)
	}
	return runText(ctx, cfg)
}

func runConsole(ctx context.Context, cfg *config.Config) error {
	m := newConsoleModel()
	p := tea.NewProgram(m, tea.WithAltScreen())

	events := newProgramWriter(p)
	logger, err := newLogger(events, cfg)
	if err != nil {
		return err
	}

	stack, connInfo, err := openStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stack.Close()

	display := terminal.DisplayFunc(func(text string) error {
		p.Send(displayMsg(text))
		return nil
	})
	driver := terminal.New(stack.session, display, stack.worker, logger.With("module", "terminal"), cfg.DriverConfig())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go driver.Run(ctx)
	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	go p.Send(attachMsg{driver: driver, session: stack.session, connInfo: connInfo})
	go events.forward(ctx)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("console error: %w", err)
	}
	return nil
}

func runText(ctx context.Context, cfg *config.Config) error {
	logger, err := newLogger(os.Stderr, cfg)
	if err != nil {
		return err
	}

	stack, connInfo, err := openStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stack.Close()

	fmt.Printf("Gaskit - Dispenser Terminal\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	driver := terminal.New(stack.session, terminal.NewWriterDisplay(os.Stdout), stack.worker,
		logger.With("module", "terminal"), cfg.DriverConfig())

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		state, err := term.MakeRaw(fd)
		if err != nil {
			return fmt.Errorf("raw terminal: %w", err)
		}
		defer term.Restore(fd, state)
	}

	go readKeys(os.Stdin, driver, cancel, logger)

	err = driver.Run(ctx)
	stats := stack.session.Stats()
	fmt.Fprintf(os.Stderr, "\r\n%s", stats.String())
	return err
}

// readKeys forwards keypad keys from r until Ctrl+C or EOF.
func readKeys(r io.Reader, driver *terminal.Driver, stop context.CancelFunc, logger log.Logger) {
	buf := make([]byte, 16)
	for {
		n, err := r.Read(buf)
		if err != nil {
			stop()
			return
		}
		for _, b := range buf[:n] {
			if b == 0x03 {
				stop()
				return
			}
			k, ok := rawKey(b)
			if !ok {
				continue
			}
			if err := driver.PressKey(k); err != nil {
				logger.Debug("Key dropped", "key", string(k), "err", err)
			}
		}
	}
}
