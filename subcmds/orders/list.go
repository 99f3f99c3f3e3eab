// Copyright (c) 2023 BVK Chaitanya

package orders

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/bvk/dexbot/cli"
)

type List struct {
	Flags
}

func (c *List) Synopsis() string {
	return "Prints the open orders resting on the exchange"
}

func (c *List) Command() (*flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("list", flag.ContinueOnError)
	c.Flags.SetFlags(fset)
	return fset, cli.CmdFunc(c.run)
}

func (c *List) run(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("command takes no arguments")
	}

	exch, err := c.Flags.GetExchange(ctx)
	if err != nil {
		return err
	}
	defer exch.Close()

	orders, err := exch.OpenOrders(ctx, c.market)
	if err != nil {
		return fmt.Errorf("could not list open orders: %w", err)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 1, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "OrderID\tClientID\tSide\tCategory\tSize\tPrice\tTrigger\tStatus\t\n")
	for _, o := range orders {
		trigger := ""
		if !o.TriggerPrice.IsZero() {
			trigger = o.TriggerPrice.String()
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t\n", o.OrderID, o.ClientID, o.Side, o.Category, o.Size, o.Price, trigger, o.Status)
	}
	return tw.Flush()
}
