// Copyright (c) 2023 BVK Chaitanya

package subcmds

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/bvk/dexbot/alert"
	"github.com/bvk/dexbot/dydx"
)

type Secrets struct {
	Dydx *dydx.Credentials `json:"dydx"`

	Telegram *alert.Secrets `json:"telegram"`
}

func SecretsFromFile(fpath string) (*Secrets, error) {
	data, err := os.ReadFile(fpath)
	if err != nil {
		return nil, err
	}
	s := new(Secrets)
	if err := json.Unmarshal(data, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (v *Secrets) Check() error {
	if v.Dydx == nil {
		return fmt.Errorf("secrets file must have a dydx section")
	}
	if err := v.Dydx.Check(); err != nil {
		return err
	}
	if v.Telegram != nil {
		if err := v.Telegram.Check(); err != nil {
			return err
		}
	}
	return nil
}
