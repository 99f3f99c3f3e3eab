// Copyright (c) 2023 BVK Chaitanya

package orders

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"

	"github.com/bvk/dexbot/cli"
)

type CancelAll struct {
	Flags
}

func (c *CancelAll) Synopsis() string {
	return "Cancels all open orders for a market"
}

func (c *CancelAll) Command() (*flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("cancel-all", flag.ContinueOnError)
	c.Flags.SetFlags(fset)
	return fset, cli.CmdFunc(c.run)
}

func (c *CancelAll) run(ctx context.Context, args []string) error {
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

	var errs []error
	for _, o := range orders {
		if err := exch.CancelOrder(ctx, o); err != nil {
			errs = append(errs, fmt.Errorf("could not cancel order %s: %w", o.OrderID, err))
			continue
		}
		log.Printf("canceled %s order %s (client id %d)", o.Category, o.OrderID, o.ClientID)
	}
	log.Printf("canceled %d of %d open orders", len(orders)-len(errs), len(orders))
	return errors.Join(errs...)
}
