// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gaskit/terminal/pkg/gaskitlink"
)

// rawLogIdleGap ends a sniffed frame when the line goes quiet.
const rawLogIdleGap = 20 * time.Millisecond

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display sniffed GasKitLink frames in human-readable format",
	Long: `Passively split the link traffic into frames and print each one with
timestamp, command name, payload and checksum status.

Frames are delimited by STX and by idle gaps on the line, so both terminal
requests and controller replies are shown. Bytes outside any frame are
counted and reported at exit.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
}

func runRawLog(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	conn, connInfo, err := OpenConnection(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Gaskit - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	chunks := make(chan []byte, 16)
	errs := make(chan error, 1)
	go func() {
		for {
			buf := make([]byte, 128)
			n, err := conn.Read(buf)
			if err != nil {
				errs <- err
				return
			}
			chunks <- buf[:n]
		}
	}()

	sniffer := gaskitlink.NewSniffer()
	idle := time.NewTimer(rawLogIdleGap)
	defer idle.Stop()

	emit := func(frame []byte) {
		if frame != nil {
			fmt.Print(gaskitlink.FormatFrame(time.Now(), frame))
		}
	}

	for {
		select {
		case chunk := <-chunks:
			for _, b := range chunk {
				emit(sniffer.Feed(b))
			}
			idle.Reset(rawLogIdleGap)

		case <-idle.C:
			emit(sniffer.Flush())

		case err := <-errs:
			emit(sniffer.Flush())
			if skipped := sniffer.Skipped(); skipped > 0 {
				fmt.Fprintf(os.Stderr, "Skipped %d bytes outside frames\n", skipped)
			}
			if errors.Is(err, ErrConnectionClosed) {
				fmt.Fprintf(os.Stderr, "Connection closed\n")
				return nil
			}
			return fmt.Errorf("read error: %w", err)
		}
	}
}
