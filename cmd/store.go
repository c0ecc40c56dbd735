// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/gaskit/terminal/pkg/dispenser"
	"github.com/gaskit/terminal/pkg/gaskitlink"
	"github.com/gaskit/terminal/pkg/persist"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Inspect or modify the persisted price and transaction",
}

var storeShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the persisted price and transaction record",
	Args:  cobra.NoArgs,
	RunE: withStore(func(s *persist.Store, args []string) error {
		price, ok, err := s.LoadPrice()
		if err != nil {
			return err
		}
		if ok {
			fmt.Printf("Price:       %d\n", price)
		} else {
			fmt.Printf("Price:       unset\n")
		}

		rec, ok, err := s.LoadTransaction()
		if err != nil {
			return err
		}
		if !ok {
			fmt.Printf("Transaction: none\n")
			return nil
		}
		fmt.Printf("Transaction: %s\n", dispenser.State(rec.State))
		mode := "-"
		if rec.ModeSelected {
			mode = dispenser.FuelMode(rec.Mode).String()
		}
		fmt.Printf("  Mode:      %s\n", mode)
		fmt.Printf("  Liters:    %s\n", gaskitlink.FormatHundredths(rec.Liters))
		fmt.Printf("  Amount:    %s\n", gaskitlink.FormatHundredths(rec.Amount))
		fmt.Printf("  Active:    %t\n", dispenser.Active(rec))
		return nil
	}),
}

var storeClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Erase the persisted price and transaction",
	Args:  cobra.NoArgs,
	RunE: withStore(func(s *persist.Store, args []string) error {
		if err := s.Clear(); err != nil {
			return err
		}
		fmt.Println("Store cleared")
		return nil
	}),
}

var storeSetPriceCmd = &cobra.Command{
	Use:   "set-price PRICE",
	Short: "Persist a unit price (0-65534)",
	Args:  cobra.ExactArgs(1),
	RunE: withStore(func(s *persist.Store, args []string) error {
		price, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil || price > persist.MaxPrice {
			return fmt.Errorf("invalid price %q (0-%d)", args[0], persist.MaxPrice)
		}
		if err := s.SavePrice(uint32(price)); err != nil {
			return err
		}
		fmt.Printf("Price set to %d\n", price)
		return nil
	}),
}

func init() {
	storeCmd.AddCommand(storeShowCmd, storeClearCmd, storeSetPriceCmd)
	rootCmd.AddCommand(storeCmd)
}

// withStore opens the configured storage device around fn.
func withStore(fn func(*persist.Store, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		dev, err := cfg.OpenDevice()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer dev.Close()
		return fn(persist.NewStore(dev), args)
	}
}
