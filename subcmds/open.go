// Copyright (c) 2023 BVK Chaitanya

package subcmds

import (
	"context"
	"flag"
	"fmt"

	"github.com/bvk/dexbot/cli"
	"github.com/bvk/dexbot/subcmds/cmdutil"
	"github.com/shopspring/decimal"
)

type Open struct {
	cmdutil.ClientFlags

	side string
	size string

	takeProfit string
	stopLoss   string
}

func (c *Open) Synopsis() string {
	return "Open asks the daemon to enter a position"
}

func (c *Open) Command() (*flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("open", flag.ContinueOnError)
	c.ClientFlags.SetFlags(fset)
	fset.StringVar(&c.side, "side", "LONG", "position side, LONG or SHORT")
	fset.StringVar(&c.size, "size", "", "position size in the base asset")
	fset.StringVar(&c.takeProfit, "take-profit", "", "take-profit trigger price (optional)")
	fset.StringVar(&c.stopLoss, "stop-loss", "", "stop-loss trigger price (optional)")
	return fset, cli.CmdFunc(c.run)
}

func (c *Open) CommandHelp() string {
	return `

Command "open" sends an open intent to the running daemon. The daemon enters
the position through its execution gateway and takes over exit management;
optional take-profit and stop-loss trigger prices place protective orders
right after the entry fills.

`
}

func (c *Open) run(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("command takes no arguments")
	}
	if len(c.size) == 0 {
		return fmt.Errorf("size flag is required")
	}

	size, err := decimal.NewFromString(c.size)
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", c.size, err)
	}
	req := &OpenRequest{
		Side: c.side,
		Size: size,
	}
	if len(c.takeProfit) != 0 {
		if req.TakeProfit, err = decimal.NewFromString(c.takeProfit); err != nil {
			return fmt.Errorf("invalid take-profit %q: %w", c.takeProfit, err)
		}
	}
	if len(c.stopLoss) != 0 {
		if req.StopLoss, err = decimal.NewFromString(c.stopLoss); err != nil {
			return fmt.Errorf("invalid stop-loss %q: %w", c.stopLoss, err)
		}
	}

	resp, err := cmdutil.Post[OpenResponse](ctx, &c.ClientFlags, "/open", req)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s %s at %s\n", resp.State.State, resp.State.Side, resp.State.Size, resp.State.EntryPrice)
	return nil
}
