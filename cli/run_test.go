// Copyright (c) 2023 BVK Chaitanya

package cli

import (
	"context"
	"flag"
	"log"
	"testing"
)

type TestCmd struct {
	name  string
	flags *flag.FlagSet
	args  []string
}

func newTestCmd(name string) *TestCmd {
	return &TestCmd{
		name:  name,
		flags: flag.NewFlagSet(name, flag.ContinueOnError),
	}
}

func (t *TestCmd) Command() (*flag.FlagSet, CmdFunc) {
	return t.flags, CmdFunc(func(_ context.Context, args []string) error {
		log.Println("running", t.name, "with args", args)
		t.args = args
		return nil
	})
}

func TestRun(t *testing.T) {
	ctx := context.Background()

	run := newTestCmd("run")
	background := run.flags.Bool("background", false, "set to run in background")
	run.flags.String("market", "ETH-USD", "perpetual market ticker")

	open := newTestCmd("open")
	open.flags.String("side", "LONG", "position side")
	open.flags.String("size", "", "position size")
	closeCmd := newTestCmd("close")
	closeCmd.flags.Bool("urgent", false, "cross the spread")

	dbGet := newTestCmd("get")
	dbList := newTestCmd("list")
	dbBackup := newTestCmd("backup")
	db := CommandGroup("db", dbGet, dbList, dbBackup)

	hubSnapshot := newTestCmd("snapshot")
	hubBigTrades := newTestCmd("big-trades")
	hub := CommandGroup("hub", hubSnapshot, hubBigTrades)

	ordersList := newTestCmd("list")
	ordersList.flags.String("market", "ETH-USD", "perpetual market ticker")
	ordersCancelAll := newTestCmd("cancel-all")
	ordersFills := newTestCmd("fills")
	ordersFills.flags.Int("limit", 20, "max fills to print")
	orders := CommandGroup("orders", ordersList, ordersCancelAll, ordersFills)

	cmds := []Command{run, open, closeCmd, db, hub, orders}

	{
		args := []string{"db", "get", "/trader/state/ETH-USD"}
		if err := Run(ctx, cmds, args); err != nil {
			t.Fatal(err)
		}
		if len(dbGet.args) != 1 || dbGet.args[0] != "/trader/state/ETH-USD" {
			t.Fatalf("want `/trader/state/ETH-USD`, got %v", dbGet.args)
		}
	}

	{
		args := []string{"run", "-background", "run-argument"}
		if err := Run(ctx, cmds, args); err != nil {
			t.Fatal(err)
		}
		if len(run.args) != 1 || run.args[0] != "run-argument" {
			t.Fatalf("want `run-argument`, got %v", run.args)
		}
		if *background == false {
			t.Fatalf("want true, got false")
		}
	}

	{
		args := []string{"orders", "fills", "-limit", "5"}
		if err := Run(ctx, cmds, args); err != nil {
			t.Fatal(err)
		}
		if len(ordersFills.args) != 0 {
			t.Fatalf("want no arguments, got %v", ordersFills.args)
		}
	}
}
