// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gaskit/terminal/pkg/gaskitlink"
	"github.com/gaskit/terminal/pkg/transport"
)

var (
	probeCommand  string
	probeCount    int
	probeInterval time.Duration
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Send a query command and print the decoded reply",
	Long: `Send a GasKitLink query to the configured station and decode the reply.

Commands:
  S  status
  L  liters monitor
  R  revenue monitor
  T  transaction update (end totals)
  C  total counter

Exit codes:
  0 - Every probe got a valid reply
  1 - At least one probe timed out or got a malformed reply
  2 - Connection error`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().StringVarP(&probeCommand, "command", "c", "S", "Query command (S, L, R, T, C)")
	probeCmd.Flags().IntVarP(&probeCount, "count", "n", 1, "Number of probes")
	probeCmd.Flags().DurationVar(&probeInterval, "interval", time.Second, "Delay between probes")
}

func probeRequest(name string) (gaskitlink.Command, error) {
	switch strings.ToUpper(name) {
	case "S":
		return gaskitlink.NewStatusRequest(), nil
	case "L":
		return gaskitlink.NewLitersMonitor(), nil
	case "R":
		return gaskitlink.NewRevenueMonitor(), nil
	case "T":
		return gaskitlink.NewTransactionUpdate(), nil
	case "C":
		return gaskitlink.NewTotalCounter(), nil
	}
	return gaskitlink.Command{}, fmt.Errorf("unsupported probe command %q", name)
}

// describeReply renders the decoded contents of a valid reply.
func describeReply(code byte, frame []byte) string {
	switch code {
	case gaskitlink.CmdStatus:
		status := gaskitlink.StatusCode(frame)
		return fmt.Sprintf("status %s (%s)", status, gaskitlink.FormatStatus(status))
	case gaskitlink.CmdLitersMonitor, gaskitlink.CmdRevenueMonitor:
		v, err := gaskitlink.ParseMonitor(frame, code)
		if err != nil {
			return err.Error()
		}
		return fmt.Sprintf("%s %s", strings.ToLower(gaskitlink.FormatCommand(code)), gaskitlink.FormatHundredths(v))
	case gaskitlink.CmdTransactionUpdate:
		t, err := gaskitlink.ParseTransactionEnd(frame)
		if err != nil {
			return err.Error()
		}
		return fmt.Sprintf("amount %s liters %s", gaskitlink.FormatHundredths(t.Amount), gaskitlink.FormatHundredths(t.Liters))
	case gaskitlink.CmdTotalCounter:
		v, err := gaskitlink.ParseTotalCounter(frame)
		if err != nil {
			return err.Error()
		}
		return fmt.Sprintf("total %s", gaskitlink.FormatTotalCounter(v))
	}
	return fmt.Sprintf("% X", frame)
}

func runProbe(cmd *cobra.Command, args []string) error {
	request, err := probeRequest(probeCommand)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	addr, err := cfg.Address()
	if err != nil {
		return err
	}
	logger, err := newLogger(os.Stderr, cfg)
	if err != nil {
		return err
	}

	conn, connInfo, err := OpenConnection(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	session := transport.NewSession(conn, cfg.TransportConfig(addr), logger.With("module", "link"))
	defer session.Close()

	fmt.Printf("Gaskit - Probe\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Station: %s, command %s\n\n", addr, gaskitlink.FormatCommand(request.Code))

	failed := false
	for i := 0; i < probeCount; i++ {
		if i > 0 {
			time.Sleep(probeInterval)
		}

		r := session.Exchange(request)
		switch r.Outcome {
		case transport.Success:
			fmt.Print(gaskitlink.FormatFrame(time.Now(), r.Frame))
			fmt.Printf("  %s (%v)\n", describeReply(request.Code, r.Frame), r.Elapsed.Round(time.Millisecond))
		case transport.LinkError:
			fmt.Fprintf(os.Stderr, "Link error: %v\n", r.Err)
			os.Exit(2)
		default:
			failed = true
			fmt.Printf("%s: %v\n", strings.ToUpper(r.Outcome.String()), r.Err)
		}
	}

	stats := session.Stats()
	fmt.Printf("\n%s", stats.String())
	if failed {
		os.Exit(1)
	}
	return nil
}
