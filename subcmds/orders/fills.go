// Copyright (c) 2023 BVK Chaitanya

package orders

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/bvk/dexbot/cli"
)

type Fills struct {
	Flags

	limit int
}

func (c *Fills) Synopsis() string {
	return "Prints the recent fills for the subaccount"
}

func (c *Fills) Command() (*flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("fills", flag.ContinueOnError)
	c.Flags.SetFlags(fset)
	fset.IntVar(&c.limit, "limit", 20, "max number of fills to print")
	return fset, cli.CmdFunc(c.run)
}

func (c *Fills) run(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("command takes no arguments")
	}

	exch, err := c.Flags.GetExchange(ctx)
	if err != nil {
		return err
	}
	defer exch.Close()

	fills, err := exch.Fills(ctx, c.market, c.limit)
	if err != nil {
		return fmt.Errorf("could not list fills: %w", err)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 1, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "Time\tMarket\tSide\tLiquidity\tSize\tPrice\tFee\t\n")
	for _, f := range fills {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n", f.At.Format(time.RFC3339), f.Market, f.Side, f.Liquidity, f.Size, f.Price, f.Fee)
	}
	return tw.Flush()
}
