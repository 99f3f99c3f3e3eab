// Copyright (c) 2023 BVK Chaitanya

// Package db implements subcommands to inspect and backup the database.
package db

import (
	"context"
	"encoding/gob"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/bvk/dexbot/cli"
	"github.com/bvk/dexbot/gobs"
	"github.com/bvk/dexbot/subcmds/cmdutil"
	"github.com/bvkgo/kv"
)

type Get struct {
	cmdutil.DBFlags

	valueType string
}

func (c *Get) run(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("needs one (key) argument")
	}

	db, closer, err := c.DBFlags.GetDatabase(ctx)
	if err != nil {
		return err
	}
	defer closer()

	get := func(ctx context.Context, r kv.Reader) error {
		v, err := r.Get(ctx, args[0])
		if err != nil {
			return err
		}
		if len(c.valueType) == 0 {
			data, err := io.ReadAll(v)
			if err != nil {
				return err
			}
			fmt.Printf("%x\n", data)
			return nil
		}

		value, err := gobs.NewByTypename(c.valueType)
		if err != nil {
			return fmt.Errorf("invalid value-type %q: %w", c.valueType, err)
		}
		if err := gob.NewDecoder(v).Decode(value); err != nil {
			return fmt.Errorf("could not gob-decode value at key %q: %w", args[0], err)
		}
		var sb strings.Builder
		encoder := json.NewEncoder(&sb)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(value); err != nil {
			return err
		}
		fmt.Printf("%s", sb.String())
		return nil
	}
	return kv.WithReader(ctx, db, get)
}

func (c *Get) Command() (*flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("get", flag.ContinueOnError)
	c.DBFlags.SetFlags(fset)
	fset.StringVar(&c.valueType, "value-type", "", "gob type name for the value")
	return fset, cli.CmdFunc(c.run)
}

func (c *Get) Synopsis() string {
	return "Prints the value of a key in the database"
}
