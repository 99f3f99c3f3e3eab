// Copyright (c) 2023 BVK Chaitanya

package subcmds

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
	"github.com/bvk/dexbot/kvutil"
	"github.com/bvk/dexbot/subcmds/cmdutil"
	"github.com/bvk/dexbot/trader"
	"github.com/bvkgo/kv"
)

type Trades struct {
	cmdutil.DBFlags

	market string
}

func (c *Trades) Synopsis() string {
	return "Prints the completed trade history for a market"
}

func (c *Trades) Command() (*flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("trades", flag.ContinueOnError)
	c.DBFlags.SetFlags(fset)
	fset.StringVar(&c.market, "market", "ETH-USD", "perpetual market ticker")
	return fset, cli.CmdFunc(c.run)
}

func (c *Trades) run(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("command takes no arguments")
	}

	db, closer, err := c.DBFlags.GetDatabase(ctx)
	if err != nil {
		return err
	}
	defer closer()

	var records []*gobs.TradeRecord
	begin, end := kvutil.PathRange(path.Join(trader.TradesKeyspace, c.market))
	collect := func(ctx context.Context, r kv.Reader, key string, record *gobs.TradeRecord) error {
		records = append(records, record)
		return nil
	}
	if err := kvutil.AscendDB(ctx, db, begin, end, collect); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 1, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "ExitTime\tSide\tSize\tEntry\tExit\tProfit\tProfitPct\tReason\tForced\t\n")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s%%\t%s\t%v\t\n",
			r.ExitTime.Format(time.RFC3339), r.Side, r.Size, r.EntryPrice, r.ExitPrice,
			r.Profit.StringFixed(3), r.ProfitPct.StringFixed(3), r.ExitReason, r.Forced)
	}
	return tw.Flush()
}
