// Copyright (c) 2023 BVK Chaitanya

package dydx

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bvk/dexbot/dydx/internal"
	"github.com/bvk/dexbot/exchange"
	"github.com/bvk/dexbot/ratelimit"
	"github.com/shopspring/decimal"
)

// fakeNode accepts a broadcast only when its sequence matches the chain
// sequence, like the real thing.
type fakeNode struct {
	mu sync.Mutex

	chainSeq uint64

	rejectAll bool

	orders  []*internal.OrderEnvelope
	cancels []*internal.CancelEnvelope
}

func (f *fakeNode) GetSequence(ctx context.Context, address string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chainSeq, nil
}

func (f *fakeNode) bump(n uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chainSeq += n
}

func (f *fakeNode) BroadcastOrder(ctx context.Context, env *internal.OrderEnvelope) (*internal.TxResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	clone := *env
	f.orders = append(f.orders, &clone)

	if f.rejectAll || env.Sequence != f.chainSeq {
		code := 32
		return &internal.TxResult{Code: &code, Codespace: "sdk", RawLog: "account sequence mismatch"}, nil
	}
	f.chainSeq++
	return &internal.TxResult{TxHash: "ABCD"}, nil
}

func (f *fakeNode) BroadcastCancel(ctx context.Context, env *internal.CancelEnvelope) (*internal.TxResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	clone := *env
	f.cancels = append(f.cancels, &clone)

	if f.rejectAll || env.Sequence != f.chainSeq {
		code := 32
		return &internal.TxResult{Code: &code, Codespace: "sdk", RawLog: "account sequence mismatch"}, nil
	}
	f.chainSeq++
	return &internal.TxResult{TxHash: "ABCD"}, nil
}

type fakeIndexer struct {
	mu sync.Mutex

	markets int
	oracle  decimal.Decimal
}

func (f *fakeIndexer) setOracle(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.oracle = decimal.RequireFromString(s)
}

func (f *fakeIndexer) marketCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.markets
}

func (f *fakeIndexer) GetMarket(ctx context.Context, ticker string) (*internal.MarketData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markets++
	return &internal.MarketData{
		Ticker:       ticker,
		Status:       "ACTIVE",
		OraclePrice:  f.oracle,
		TickSize:     decimal.RequireFromString("0.01"),
		StepSize:     decimal.RequireFromString("0.001"),
		MinOrderSize: decimal.RequireFromString("0.001"),
	}, nil
}

func (f *fakeIndexer) GetOrderbook(ctx context.Context, ticker string) (*internal.OrderbookResponse, error) {
	return new(internal.OrderbookResponse), nil
}

func (f *fakeIndexer) GetTrades(ctx context.Context, ticker string, limit int) (*internal.TradesResponse, error) {
	return new(internal.TradesResponse), nil
}

func (f *fakeIndexer) GetCandles(ctx context.Context, ticker, resolution string, limit int) (*internal.CandlesResponse, error) {
	return new(internal.CandlesResponse), nil
}

func (f *fakeIndexer) GetSubaccount(ctx context.Context, address string, subaccount int) (*internal.SubaccountResponse, error) {
	return new(internal.SubaccountResponse), nil
}

func (f *fakeIndexer) GetPositions(ctx context.Context, address string, subaccount int) (*internal.PositionsResponse, error) {
	return new(internal.PositionsResponse), nil
}

func (f *fakeIndexer) GetOrders(ctx context.Context, address string, subaccount int, ticker string, statuses []string) ([]*internal.OrderData, error) {
	return nil, nil
}

func (f *fakeIndexer) GetFills(ctx context.Context, address string, subaccount int, ticker string, limit int) (*internal.FillsResponse, error) {
	return new(internal.FillsResponse), nil
}

func (f *fakeIndexer) GetHeight(ctx context.Context) (int64, error) {
	return 100, nil
}

func (f *fakeIndexer) GetMessages(channel string, ids []string, handler internal.MessageHandler) *internal.Websocket {
	return nil
}

func (f *fakeIndexer) Close() error {
	return nil
}

func newTestExchange(node nodeAPI, client indexerAPI) *Exchange {
	opts := new(Options)
	opts.setDefaults()
	x := &Exchange{
		opts:    *opts,
		creds:   Credentials{Address: "dydx1test"},
		client:  client,
		node:    node,
		limiter: ratelimit.New(&ratelimit.Options{MinInterval: time.Microsecond}),
		timeNow: time.Now,
	}
	x.seq = NewSequenceManager(x.creds.Address, x.fetchSequence)
	return x
}

func TestSubmitRetryAfterRejection(t *testing.T) {
	ctx := context.Background()

	node := &fakeNode{chainSeq: 7}
	x := newTestExchange(node, &fakeIndexer{})

	// The chain sequence drifts after the manager's initial fetch, so the
	// first broadcast is rejected with a mismatch.
	if err := x.seq.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	node.bump(2)

	order, err := x.CreateLimitOrder(ctx, &exchange.LimitOrderRequest{
		Market:      "ETH-USD",
		ClientID:    4242,
		Side:        exchange.Buy,
		Size:        decimal.NewFromInt(1),
		Price:       decimal.NewFromInt(100),
		TimeInForce: exchange.TifGTT,
	})
	if err != nil {
		t.Fatal(err)
	}
	if order.ClientID != 4242 {
		t.Fatalf("want client id 4242, got %d", order.ClientID)
	}

	if n := len(node.orders); n != 2 {
		t.Fatalf("want one rejected and one retried broadcast, got %d", n)
	}
	if a, b := node.orders[0].ClientID, node.orders[1].ClientID; a != b {
		t.Fatalf("the retry must reuse the client id: %d vs %d", a, b)
	}
	if a, b := node.orders[0].Sequence, node.orders[1].Sequence; a != 7 || b != 9 {
		t.Fatalf("want sequences 7 then 9, got %d and %d", a, b)
	}
	if got := x.seq.Sequence(); got != 10 {
		t.Fatalf("want local sequence 10 after the accepted retry, got %d", got)
	}
}

func TestSubmitGivesUpAfterOneRetry(t *testing.T) {
	ctx := context.Background()

	node := &fakeNode{chainSeq: 7, rejectAll: true}
	x := newTestExchange(node, &fakeIndexer{})

	_, err := x.CreateLimitOrder(ctx, &exchange.LimitOrderRequest{
		Market:      "ETH-USD",
		ClientID:    4242,
		Side:        exchange.Buy,
		Size:        decimal.NewFromInt(1),
		Price:       decimal.NewFromInt(100),
		TimeInForce: exchange.TifGTT,
	})
	if err == nil {
		t.Fatalf("want an error when every broadcast is rejected")
	}
	if n := len(node.orders); n != 2 {
		t.Fatalf("want exactly two broadcasts for one logical order, got %d", n)
	}
}

func TestOraclePriceRefreshesMarketCache(t *testing.T) {
	ctx := context.Background()

	indexer := &fakeIndexer{oracle: decimal.NewFromInt(100)}
	x := newTestExchange(&fakeNode{}, indexer)

	if _, err := x.GetMarket(ctx, "ETH-USD"); err != nil {
		t.Fatal(err)
	}
	indexer.setOracle("105")

	price, err := x.OraclePrice(ctx, "ETH-USD")
	if err != nil {
		t.Fatal(err)
	}
	if price.String() != "105" {
		t.Fatalf("want the fresh oracle price 105, got %s", price)
	}

	// The oracle query must refresh the cached market, not evict it.
	m, err := x.GetMarket(ctx, "ETH-USD")
	if err != nil {
		t.Fatal(err)
	}
	if m.OraclePrice.String() != "105" {
		t.Fatalf("want the refreshed cache entry, got oracle price %s", m.OraclePrice)
	}
	if n := indexer.marketCalls(); n != 2 {
		t.Fatalf("want the cached market served without a third indexer call, got %d calls", n)
	}
}
