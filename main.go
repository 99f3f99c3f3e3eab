// Copyright (c) 2023 BVK Chaitanya

package main

import (
	"context"
	"log"
	"os"

	"github.com/bvk/dexbot/cli"
	"github.com/bvk/dexbot/envfile"
	"github.com/bvk/dexbot/subcmds"
	"github.com/bvk/dexbot/subcmds/db"
	"github.com/bvk/dexbot/subcmds/hub"
	"github.com/bvk/dexbot/subcmds/orders"
)

func main() {
	if err := envfile.UpdateEnv(".dexbot.env", envfile.SearchCurrentDir(true)); err != nil {
		log.Printf("could not load environment overrides (ignored): %v", err)
	}

	dbCmds := []cli.Command{
		new(db.Get),
		new(db.List),
		new(db.Backup),
	}

	hubCmds := []cli.Command{
		new(hub.Snapshot),
		new(hub.BigTrades),
	}

	orderCmds := []cli.Command{
		new(orders.List),
		new(orders.CancelAll),
		new(orders.Fills),
	}

	cmds := []cli.Command{
		new(subcmds.Run),
		new(subcmds.Status),
		new(subcmds.Open),
		new(subcmds.Close),
		new(subcmds.Trades),
		new(subcmds.IDGen),
		cli.CommandGroup("db", dbCmds...),
		cli.CommandGroup("hub", hubCmds...),
		cli.CommandGroup("orders", orderCmds...),
	}
	if err := cli.Run(context.Background(), cmds, os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}
