// Copyright (c) 2023 BVK Chaitanya

package internal

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"strconv"
	"time"

	jose "gopkg.in/square/go-jose.v2"
)

// NodeClient submits signed transactions to a full node and reads account
// state that only the chain knows, like the account sequence number.
type NodeClient struct {
	opts Options

	address string

	priKey *ecdsa.PrivateKey
	signer jose.Signer

	client *http.Client
}

// OrderEnvelope is the payload of a place-order transaction. Price and size
// values are human readable strings; the node side converts them to
// quantums and subticks.
type OrderEnvelope struct {
	Address          string `json:"address"`
	SubaccountNumber int    `json:"subaccountNumber"`

	Sequence uint64 `json:"sequence"`

	ClientID uint32 `json:"clientId"`

	Market string `json:"market"`
	Side   string `json:"side"`

	Size  string `json:"size"`
	Price string `json:"price"`

	TimeInForce string `json:"timeInForce"`

	// OrderFlags selects the order category: 0 for short-term, 32 for
	// conditional and 64 for long-term orders.
	OrderFlags int `json:"orderFlags"`

	ReduceOnly bool `json:"reduceOnly"`

	GoodTilBlock     int64 `json:"goodTilBlock,omitempty"`
	GoodTilBlockTime int64 `json:"goodTilBlockTime,omitempty"`

	TriggerPrice  string `json:"triggerPrice,omitempty"`
	ConditionType string `json:"conditionType,omitempty"`
}

// CancelEnvelope is the payload of a cancel-order transaction. Expiry fields
// follow the same category rules as the original order.
type CancelEnvelope struct {
	Address          string `json:"address"`
	SubaccountNumber int    `json:"subaccountNumber"`

	Sequence uint64 `json:"sequence"`

	ClientID uint32 `json:"clientId"`

	Market string `json:"market"`

	OrderFlags int `json:"orderFlags"`

	GoodTilBlock     int64 `json:"goodTilBlock,omitempty"`
	GoodTilBlockTime int64 `json:"goodTilBlockTime,omitempty"`
}

// TxResult is the node response for a broadcast transaction. Code is a
// pointer because some node versions omit the field entirely on success.
type TxResult struct {
	Code      *int   `json:"code"`
	Codespace string `json:"codespace"`
	TxHash    string `json:"txhash"`
	RawLog    string `json:"raw_log"`
}

// Accepted reports whether the transaction was accepted into the mempool.
// A zero code or a missing code field both mean success.
func (r *TxResult) Accepted() bool {
	return r.Code == nil || *r.Code == 0
}

func (r *TxResult) String() string {
	code := "absent"
	if r.Code != nil {
		code = strconv.Itoa(*r.Code)
	}
	return fmt.Sprintf("{code %s codespace %q txhash %s log %.120q}", code, r.Codespace, r.TxHash, r.RawLog)
}

type broadcastResponse struct {
	TxResponse *TxResult `json:"tx_response"`

	TxResult
}

// NewNodeClient creates a client for a full node. The PEM text must hold the
// EC private key of the trading account.
func NewNodeClient(ctx context.Context, address, pemtext string, opts *Options) (*NodeClient, error) {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()

	block, _ := pem.Decode([]byte(pemtext))
	if block == nil {
		slog.Error("could not parse the PEM private key")
		return nil, os.ErrInvalid
	}
	priKey, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		slog.Error("could not parse the EC private key", "err", err)
		return nil, err
	}
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.ES256, Key: priKey},
		(&jose.SignerOptions{}).WithType("JWT").WithHeader("kid", address),
	)
	if err != nil {
		slog.Error("could not create go-jose.v2 pkg signer", "err", err)
		return nil, err
	}

	c := &NodeClient{
		opts:    *opts,
		address: address,
		priKey:  priKey,
		signer:  signer,
		client: &http.Client{
			Timeout: opts.HttpClientTimeout,
		},
	}
	return c, nil
}

func (c *NodeClient) signPayload(payload interface{}) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("could not marshal tx payload: %w", err)
	}
	sig, err := c.signer.Sign(data)
	if err != nil {
		return "", fmt.Errorf("could not sign tx payload: %w", err)
	}
	return sig.CompactSerialize()
}

func (c *NodeClient) broadcast(ctx context.Context, payload interface{}) (*TxResult, error) {
	signed, err := c.signPayload(payload)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]string{"tx": signed, "mode": "BROADCAST_MODE_SYNC"})
	if err != nil {
		return nil, err
	}

	url := &url.URL{
		Scheme: "https",
		Host:   c.opts.NodeHostname,
		Path:   "/cosmos/tx/v1beta1/txs",
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url.String(), bytes.NewReader(body))
	if err != nil {
		slog.Error("could not create http post request with context", "url", url, "err", err)
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	s := time.Now()
	resp, err := c.client.Do(req)
	if d := time.Since(s); d > c.opts.HttpClientTimeout {
		slog.Warn(fmt.Sprintf("broadcast request took %s which is more than the http client timeout %s", d, c.opts.HttpClientTimeout))
	}
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Error("could not perform tx broadcast request", "url", url, "err", err)
		}
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		slog.Error("tx broadcast is unsuccessful", "status", resp.StatusCode)
		return nil, fmt.Errorf("tx broadcast returned %d", resp.StatusCode)
	}

	var br broadcastResponse
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		slog.Error("could not decode broadcast response", "err", err)
		return nil, err
	}
	if br.TxResponse != nil {
		return br.TxResponse, nil
	}
	return &br.TxResult, nil
}

// BroadcastOrder submits a signed place-order transaction.
func (c *NodeClient) BroadcastOrder(ctx context.Context, env *OrderEnvelope) (*TxResult, error) {
	return c.broadcast(ctx, env)
}

// BroadcastCancel submits a signed cancel-order transaction.
func (c *NodeClient) BroadcastCancel(ctx context.Context, env *CancelEnvelope) (*TxResult, error) {
	return c.broadcast(ctx, env)
}

// GetSequence reads the current account sequence number from the chain.
func (c *NodeClient) GetSequence(ctx context.Context, address string) (uint64, error) {
	url := &url.URL{
		Scheme: "https",
		Host:   c.opts.NodeHostname,
		Path:   path.Join("/cosmos/auth/v1beta1/accounts/", address),
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url.String(), nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Error("could not get account state from the node", "address", address, "err", err)
		}
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("account state query returned %d", resp.StatusCode)
	}

	var result struct {
		Account struct {
			Sequence      string `json:"sequence"`
			AccountNumber string `json:"account_number"`
		} `json:"account"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Error("could not decode account state response", "err", err)
		return 0, err
	}
	seq, err := strconv.ParseUint(result.Account.Sequence, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("could not parse account sequence %q: %w", result.Account.Sequence, err)
	}
	return seq, nil
}
