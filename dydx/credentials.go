// Copyright (c) 2023 BVK Chaitanya

package dydx

import (
	"fmt"
	"strings"
)

type Credentials struct {
	// Address is the bech32 account address of the trading wallet.
	Address string `json:"address"`

	SubaccountNumber int `json:"subaccount"`

	// PrivateKeyPEM holds the EC private key used to sign transactions.
	PrivateKeyPEM string `json:"private_key"`
}

func (v *Credentials) Check() error {
	if len(v.Address) == 0 {
		return fmt.Errorf("account address cannot be empty")
	}
	if v.SubaccountNumber < 0 {
		return fmt.Errorf("subaccount number cannot be negative")
	}
	if !strings.Contains(v.PrivateKeyPEM, "PRIVATE KEY") {
		return fmt.Errorf("private key must be in PEM format")
	}
	return nil
}
