// Copyright (c) 2023 BVK Chaitanya

package hub

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path"
	"text/tabwriter"
	"time"

	"github.com/bvk/dexbot/cli"
	"github.com/bvk/dexbot/gobs"
	"github.com/bvk/dexbot/hub"
	"github.com/bvk/dexbot/kvutil"
	"github.com/bvk/dexbot/subcmds/cmdutil"
	"github.com/bvkgo/kv"
)

type BigTrades struct {
	cmdutil.DBFlags

	market string
}

func (c *BigTrades) Synopsis() string {
	return "Prints the journaled large trades for a market"
}

func (c *BigTrades) Command() (*flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("big-trades", flag.ContinueOnError)
	c.DBFlags.SetFlags(fset)
	fset.StringVar(&c.market, "market", "ETH-USD", "perpetual market ticker")
	return fset, cli.CmdFunc(c.run)
}

func (c *BigTrades) run(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("command takes no arguments")
	}

	db, closer, err := c.DBFlags.GetDatabase(ctx)
	if err != nil {
		return err
	}
	defer closer()

	var trades []*gobs.BigTrade
	begin, end := kvutil.PathRange(path.Join(hub.JournalKeyspace, c.market))
	collect := func(ctx context.Context, r kv.Reader, key string, history *gobs.BigTradeHistory) error {
		trades = append(trades, history.Trades...)
		return nil
	}
	if err := kvutil.AscendDB(ctx, db, begin, end, collect); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 1, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "Time\tSide\tPrice\tSize\tNotional\t\n")
	for _, t := range trades {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t\n", t.At.Format(time.RFC3339), t.Side, t.Price, t.Size, t.Notional.StringFixed(0))
	}
	return tw.Flush()
}
