// Copyright (c) 2023 BVK Chaitanya

package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/bvk/dexbot/ctxutil"
	"golang.org/x/time/rate"
)

type Client struct {
	cg ctxutil.CloseGroup

	opts Options

	client *http.Client

	// limiter is a per-connection courtesy limit on indexer queries. The
	// account-wide call budget is enforced by the callers.
	limiter *rate.Limiter
}

// New creates a client for the indexer REST service.
func New(ctx context.Context, opts *Options) (*Client, error) {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()

	c := &Client{
		opts: *opts,
		client: &http.Client{
			Timeout: opts.HttpClientTimeout,
		},
		limiter: rate.NewLimiter(25, 1),
	}
	return c, nil
}

// Close shuts down the indexer client.
func (c *Client) Close() error {
	c.cg.Close()
	return nil
}

func (c *Client) Go(f func(context.Context)) {
	c.cg.Go(f)
}

func (c *Client) getJSON(ctx context.Context, url *url.URL, result interface{}) error {
	return c.getJSONRetry(ctx, url, result, 0)
}

func (c *Client) getJSONRetry(ctx context.Context, url *url.URL, result interface{}, nretry int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url.String(), nil)
	if err != nil {
		slog.Error("could not create http get request with context", "url", url, "err", err)
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Error("could not do http client request", "err", err)
		}
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusBadGateway {
			// Escalating waits on throttled requests, capped at MaxRetryWait.
			wait := time.Duration(nretry+1) * time.Second
			if wait > c.opts.MaxRetryWait {
				wait = c.opts.MaxRetryWait
			}
			slog.Warn("indexer get request was throttled (retrying)", "url", url.Path, "status", resp.StatusCode, "wait", wait)
			ctxutil.Sleep(ctx, wait)
			if ctx.Err() != nil {
				return context.Cause(ctx)
			}
			return c.getJSONRetry(ctx, url, result, nretry+1)
		}
		slog.Error("http GET is unsuccessful", "status", resp.StatusCode, "url", url.String())
		return fmt.Errorf("http GET returned %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		slog.Error("could not decode response to json", "err", err)
		return err
	}
	return nil
}

func (c *Client) GetMarket(ctx context.Context, ticker string) (*MarketData, error) {
	values := make(url.Values)
	values.Set("ticker", ticker)

	url := &url.URL{
		Scheme:   "https",
		Host:     c.opts.IndexerHostname,
		Path:     "/v4/perpetualMarkets",
		RawQuery: values.Encode(),
	}
	resp := new(MarketsResponse)
	if err := c.getJSON(ctx, url, resp); err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Error("could not get market details", "market", ticker, "err", err)
		}
		return nil, err
	}
	m, ok := resp.Markets[ticker]
	if !ok {
		return nil, fmt.Errorf("market %q not found in the response", ticker)
	}
	return m, nil
}

func (c *Client) GetOrderbook(ctx context.Context, ticker string) (*OrderbookResponse, error) {
	url := &url.URL{
		Scheme: "https",
		Host:   c.opts.IndexerHostname,
		Path:   path.Join("/v4/orderbooks/perpetualMarket/", ticker),
	}
	resp := new(OrderbookResponse)
	if err := c.getJSON(ctx, url, resp); err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Error("could not get orderbook", "market", ticker, "err", err)
		}
		return nil, err
	}
	return resp, nil
}

func (c *Client) GetTrades(ctx context.Context, ticker string, limit int) (*TradesResponse, error) {
	values := make(url.Values)
	values.Set("limit", strconv.Itoa(limit))

	url := &url.URL{
		Scheme:   "https",
		Host:     c.opts.IndexerHostname,
		Path:     path.Join("/v4/trades/perpetualMarket/", ticker),
		RawQuery: values.Encode(),
	}
	resp := new(TradesResponse)
	if err := c.getJSON(ctx, url, resp); err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Error("could not get recent trades", "market", ticker, "err", err)
		}
		return nil, err
	}
	return resp, nil
}

func (c *Client) GetCandles(ctx context.Context, ticker, resolution string, limit int) (*CandlesResponse, error) {
	values := make(url.Values)
	values.Set("resolution", resolution)
	values.Set("limit", strconv.Itoa(limit))

	url := &url.URL{
		Scheme:   "https",
		Host:     c.opts.IndexerHostname,
		Path:     path.Join("/v4/candles/perpetualMarkets/", ticker),
		RawQuery: values.Encode(),
	}
	resp := new(CandlesResponse)
	if err := c.getJSON(ctx, url, resp); err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Error("could not get candles", "market", ticker, "err", err)
		}
		return nil, err
	}
	return resp, nil
}

func (c *Client) GetSubaccount(ctx context.Context, address string, subaccount int) (*SubaccountResponse, error) {
	url := &url.URL{
		Scheme: "https",
		Host:   c.opts.IndexerHostname,
		Path:   path.Join("/v4/addresses/", address, "/subaccountNumber/", strconv.Itoa(subaccount)),
	}
	resp := new(SubaccountResponse)
	if err := c.getJSON(ctx, url, resp); err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Error("could not get subaccount", "address", address, "err", err)
		}
		return nil, err
	}
	return resp, nil
}

func (c *Client) GetPositions(ctx context.Context, address string, subaccount int) (*PositionsResponse, error) {
	values := make(url.Values)
	values.Set("address", address)
	values.Set("subaccountNumber", strconv.Itoa(subaccount))
	values.Set("status", "OPEN")

	url := &url.URL{
		Scheme:   "https",
		Host:     c.opts.IndexerHostname,
		Path:     "/v4/perpetualPositions",
		RawQuery: values.Encode(),
	}
	resp := new(PositionsResponse)
	if err := c.getJSON(ctx, url, resp); err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Error("could not get positions", "address", address, "err", err)
		}
		return nil, err
	}
	return resp, nil
}

// GetOrders returns subaccount orders, optionally filtered by status values
// like OPEN, UNTRIGGERED or BEST_EFFORT_OPENED.
func (c *Client) GetOrders(ctx context.Context, address string, subaccount int, ticker string, statuses []string) ([]*OrderData, error) {
	values := make(url.Values)
	values.Set("address", address)
	values.Set("subaccountNumber", strconv.Itoa(subaccount))
	if len(ticker) != 0 {
		values.Set("ticker", ticker)
	}
	for _, status := range statuses {
		values.Add("status", status)
	}

	url := &url.URL{
		Scheme:   "https",
		Host:     c.opts.IndexerHostname,
		Path:     "/v4/orders",
		RawQuery: values.Encode(),
	}
	var resp []*OrderData
	if err := c.getJSON(ctx, url, &resp); err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Error("could not get orders", "address", address, "err", err)
		}
		return nil, err
	}
	return resp, nil
}

func (c *Client) GetFills(ctx context.Context, address string, subaccount int, ticker string, limit int) (*FillsResponse, error) {
	values := make(url.Values)
	values.Set("address", address)
	values.Set("subaccountNumber", strconv.Itoa(subaccount))
	if len(ticker) != 0 {
		values.Set("market", ticker)
		values.Set("marketType", "PERPETUAL")
	}
	values.Set("limit", strconv.Itoa(limit))

	url := &url.URL{
		Scheme:   "https",
		Host:     c.opts.IndexerHostname,
		Path:     "/v4/fills",
		RawQuery: values.Encode(),
	}
	resp := new(FillsResponse)
	if err := c.getJSON(ctx, url, resp); err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Error("could not get fills", "address", address, "err", err)
		}
		return nil, err
	}
	return resp, nil
}

func (c *Client) GetHeight(ctx context.Context) (int64, error) {
	url := &url.URL{
		Scheme: "https",
		Host:   c.opts.IndexerHostname,
		Path:   "/v4/height",
	}
	resp := new(HeightResponse)
	if err := c.getJSON(ctx, url, resp); err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Error("could not get chain height", "err", err)
		}
		return 0, err
	}
	height, err := strconv.ParseInt(resp.Height, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("could not parse chain height %q: %w", resp.Height, err)
	}
	return height, nil
}
