// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tendermint/tendermint/libs/log"

	"github.com/gaskit/terminal/pkg/config"
	"github.com/gaskit/terminal/pkg/gaskitlink"
)

var (
	cfgFile string
	v       = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "gaskit",
	Short: "GasKitLink fuel dispenser terminal",
	Long: `Gaskit - A terminal controller for fuel dispensers speaking GasKitLink v1.2.

Runs the operator terminal (keypad, display, transaction state machine) against
a pump controller, and provides tools for probing and sniffing the link.

Connection modes:
  Serial: --port /dev/ttyUSB0 [--baud 9600]
  Bridge: --url ws://host/path [--username user]

Settings may also come from gaskit.yaml (in . or $HOME/.gaskit) or from
GASKIT_* environment variables, e.g. GASKIT_STATION_POST=2.

For bridge authentication, the password is read from the GASKIT_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:       "1.2.0",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Config file (default gaskit.yaml in . or $HOME/.gaskit)")

	// Serial connection flags
	flags.StringP("port", "p", "", "Serial port device")
	flags.IntP("baud", "b", gaskitlink.DefaultBaudRate, "Baud rate (serial only)")

	// Bridge connection flags
	flags.StringP("url", "u", "", "WebSocket bridge URL (ws:// or wss://)")
	flags.String("username", "", "Username for HTTP Basic auth")
	flags.Bool("no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	flags.Int("post", 1, "Station post number (1-32)")
	flags.String("log-level", "info", "Log level (debug, info, error)")
	flags.String("store", "", "Storage backend (file, leveldb, memory)")
	flags.String("store-path", "", "Storage file or database path")

	bind := map[string]string{
		"serial.port":          "port",
		"serial.baud":          "baud",
		"bridge.url":           "url",
		"bridge.username":      "username",
		"bridge.no_ssl_verify": "no-ssl-verify",
		"station.post":         "post",
		"log.level":            "log-level",
		"store.backend":        "store",
		"store.path":           "store-path",
	}
	for key, flag := range bind {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("bind %s: %v", key, err))
		}
	}
}

// loadConfig merges defaults, config file, environment and flags.
func loadConfig() (*config.Config, error) {
	config.Setup(v, cfgFile)
	return config.Load(v)
}

func newLogger(w io.Writer, cfg *config.Config) (log.Logger, error) {
	logger, err := config.NewLogger(w, cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return logger, nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
