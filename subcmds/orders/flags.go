// Copyright (c) 2023 BVK Chaitanya

// Package orders implements subcommands that query and repair the resting
// orders directly on the exchange, bypassing the daemon.
package orders

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bvk/dexbot/dydx"
	"github.com/bvk/dexbot/ratelimit"
	"github.com/bvk/dexbot/subcmds/defaults"
)

type Flags struct {
	secretsPath string

	market string
}

func (f *Flags) SetFlags(fset *flag.FlagSet) {
	fset.StringVar(&f.secretsPath, "secrets-file", "", "path to credentials file")
	fset.StringVar(&f.market, "market", "ETH-USD", "perpetual market ticker")
}

func (f *Flags) GetExchange(ctx context.Context) (*dydx.Exchange, error) {
	if len(f.secretsPath) == 0 {
		f.secretsPath = filepath.Join(defaults.DataDir(), "secrets.json")
	}
	data, err := os.ReadFile(f.secretsPath)
	if err != nil {
		return nil, err
	}
	secrets := new(struct {
		Dydx *dydx.Credentials `json:"dydx"`
	})
	if err := json.Unmarshal(data, secrets); err != nil {
		return nil, err
	}
	if secrets.Dydx == nil {
		return nil, fmt.Errorf("secrets file must have a dydx section")
	}
	return dydx.New(ctx, secrets.Dydx, ratelimit.New(nil /* opts */), nil /* opts */)
}
