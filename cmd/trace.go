// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gaskit/terminal/pkg/gaskitlink"
	"github.com/gaskit/terminal/pkg/transport"
)

var traceCmd = &cobra.Command{
	Use:   "trace FILE",
	Short: "Print an exchange trace recorded by run --trace",
	Args:  cobra.ExactArgs(1),
	RunE:  runTrace,
}

func init() {
	rootCmd.AddCommand(traceCmd)
}

func formatTraceRecord(rec transport.TraceRecord) string {
	line := fmt.Sprintf("%s %s", rec.Direction, gaskitlink.FormatCommand(rec.Command))
	if rec.Outcome != "" {
		line += " " + rec.Outcome
	}
	if rec.Error != "" {
		line += ": " + rec.Error
	}
	if len(rec.Frame) > 0 {
		return line + "\n  " + gaskitlink.FormatFrame(rec.Time, rec.Frame)
	}
	return fmt.Sprintf("[%s] %s\n", rec.Time.Format("15:04:05.000"), line)
}

func runTrace(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	count := 0
	err = transport.ReadTrace(f, func(rec transport.TraceRecord) error {
		count++
		fmt.Print(formatTraceRecord(rec))
		return nil
	})
	fmt.Printf("\n%d records\n", count)
	return err
}
