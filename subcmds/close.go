// Copyright (c) 2023 BVK Chaitanya

package subcmds

import (
	"context"
	"flag"
	"fmt"

	"github.com/bvk/dexbot/cli"
	"github.com/bvk/dexbot/subcmds/cmdutil"
)

type Close struct {
	cmdutil.ClientFlags

	urgent bool
}

func (c *Close) Synopsis() string {
	return "Close asks the daemon to exit the open position"
}

func (c *Close) Command() (*flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("close", flag.ContinueOnError)
	c.ClientFlags.SetFlags(fset)
	fset.BoolVar(&c.urgent, "urgent", false, "when true, crosses the spread instead of resting at the touch")
	return fset, cli.CmdFunc(c.run)
}

func (c *Close) run(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("command takes no arguments")
	}

	resp, err := cmdutil.Post[CloseResponse](ctx, &c.ClientFlags, "/close", &CloseRequest{Urgent: c.urgent})
	if err != nil {
		return err
	}
	fmt.Printf("%s\n", resp.State.State)
	return nil
}
