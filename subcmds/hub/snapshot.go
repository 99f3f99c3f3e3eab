// Copyright (c) 2023 BVK Chaitanya

// Package hub implements subcommands to inspect the market data hub state.
package hub

import (
	"context"
	"flag"
	"fmt"
	"path/filepath"
	"time"

	"github.com/bvk/dexbot/cli"
	"github.com/bvk/dexbot/hub"
	"github.com/bvk/dexbot/subcmds/defaults"
)

type Snapshot struct {
	dataDir string
	market  string
}

func (c *Snapshot) Synopsis() string {
	return "Prints the market data snapshot file"
}

func (c *Snapshot) Command() (*flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("snapshot", flag.ContinueOnError)
	fset.StringVar(&c.dataDir, "data-dir", "", "path to the data directory")
	fset.StringVar(&c.market, "market", "ETH-USD", "perpetual market ticker")
	return fset, cli.CmdFunc(c.run)
}

func (c *Snapshot) run(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("command takes no arguments")
	}
	if len(c.dataDir) == 0 {
		c.dataDir = defaults.DataDir()
	}

	file := filepath.Join(c.dataDir, c.market+".snapshot")
	s, err := hub.ReadSnapshot(file)
	if err != nil {
		return fmt.Errorf("could not read snapshot file %q: %w", file, err)
	}

	fmt.Printf("Market: %s\n", s.Market)
	fmt.Printf("Owner PID: %d\n", s.OwnerPID)
	fmt.Printf("Updated At: %s (%s ago)\n", s.UpdatedAt.Format(time.RFC3339), s.Age(time.Now()).Round(time.Millisecond))
	if len(s.Bids) > 0 && len(s.Asks) > 0 {
		fmt.Printf("Best Bid/Ask: %s / %s\n", s.Bids[0].Price, s.Asks[0].Price)
	}
	if spread, ok := s.SpreadPct(); ok {
		fmt.Printf("Spread: %s%%\n", spread.StringFixed(4))
	}
	fmt.Printf("Buy/Sell Volume: %.2f / %.2f over %d trades\n", s.BuyVolume, s.SellVolume, s.TradeCount)

	fmt.Println()
	n := max(len(s.Bids), len(s.Asks))
	for i := 0; i < n; i++ {
		bid, ask := "", ""
		if i < len(s.Bids) {
			bid = fmt.Sprintf("%s x %s", s.Bids[i].Size, s.Bids[i].Price)
		}
		if i < len(s.Asks) {
			ask = fmt.Sprintf("%s x %s", s.Asks[i].Price, s.Asks[i].Size)
		}
		fmt.Printf("%25s | %-25s\n", bid, ask)
	}
	return nil
}
