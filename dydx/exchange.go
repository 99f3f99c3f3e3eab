// Copyright (c) 2023 BVK Chaitanya

package dydx

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bvk/dexbot/ctxutil"
	"github.com/bvk/dexbot/dydx/internal"
	"github.com/bvk/dexbot/exchange"
	"github.com/bvk/dexbot/gobs"
	"github.com/bvk/dexbot/ratelimit"
	"github.com/bvk/dexbot/syncmap"
	"github.com/shopspring/decimal"
)

type marketEntry struct {
	market *gobs.Market
	at     time.Time
}

type positionEntry struct {
	position *exchange.Position
	at       time.Time
}

// indexerAPI is the subset of the indexer client used by the adapter.
type indexerAPI interface {
	GetMarket(ctx context.Context, ticker string) (*internal.MarketData, error)
	GetOrderbook(ctx context.Context, ticker string) (*internal.OrderbookResponse, error)
	GetTrades(ctx context.Context, ticker string, limit int) (*internal.TradesResponse, error)
	GetCandles(ctx context.Context, ticker, resolution string, limit int) (*internal.CandlesResponse, error)
	GetSubaccount(ctx context.Context, address string, subaccount int) (*internal.SubaccountResponse, error)
	GetPositions(ctx context.Context, address string, subaccount int) (*internal.PositionsResponse, error)
	GetOrders(ctx context.Context, address string, subaccount int, ticker string, statuses []string) ([]*internal.OrderData, error)
	GetFills(ctx context.Context, address string, subaccount int, ticker string, limit int) (*internal.FillsResponse, error)
	GetHeight(ctx context.Context) (int64, error)
	GetMessages(channel string, ids []string, handler internal.MessageHandler) *internal.Websocket
	Close() error
}

// nodeAPI is the transaction submission surface of the full node client.
type nodeAPI interface {
	BroadcastOrder(ctx context.Context, env *internal.OrderEnvelope) (*internal.TxResult, error)
	BroadcastCancel(ctx context.Context, env *internal.CancelEnvelope) (*internal.TxResult, error)
	GetSequence(ctx context.Context, address string) (uint64, error)
}

type Exchange struct {
	cg ctxutil.CloseGroup

	opts Options

	creds Credentials

	client indexerAPI
	node   nodeAPI

	limiter *ratelimit.Limiter

	seq *SequenceManager

	timeNow func() time.Time

	marketCache   syncmap.Map[string, *marketEntry]
	positionCache syncmap.Map[string, *positionEntry]

	feedMu  sync.Mutex
	feedMap map[string]*marketFeed
}

var _ exchange.Exchange = (*Exchange)(nil)

// New creates the exchange adapter. All calls pass through the shared
// limiter and all transactions are serialized through one sequence manager.
func New(ctx context.Context, creds *Credentials, limiter *ratelimit.Limiter, opts *Options) (_ *Exchange, status error) {
	if err := creds.Check(); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()

	client, err := internal.New(ctx, &opts.Internal)
	if err != nil {
		return nil, err
	}
	defer func() {
		if status != nil {
			client.Close()
		}
	}()

	node, err := internal.NewNodeClient(ctx, creds.Address, creds.PrivateKeyPEM, &opts.Internal)
	if err != nil {
		return nil, err
	}

	x := &Exchange{
		opts:    *opts,
		creds:   *creds,
		client:  client,
		node:    node,
		limiter: limiter,
		timeNow: time.Now,
	}
	x.seq = NewSequenceManager(creds.Address, x.fetchSequence)
	return x, nil
}

func (x *Exchange) Close() error {
	x.cg.Close()

	x.feedMu.Lock()
	for _, feed := range x.feedMap {
		feed.ws.Close()
		feed.topic.Close()
	}
	x.feedMap = nil
	x.feedMu.Unlock()

	return x.client.Close()
}

func (x *Exchange) ExchangeName() string {
	return "dydx"
}

func (x *Exchange) SequenceManager() *SequenceManager {
	return x.seq
}

func (x *Exchange) fetchSequence(ctx context.Context, address string) (uint64, error) {
	if err := x.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	return x.node.GetSequence(ctx, address)
}

func (x *Exchange) GetMarket(ctx context.Context, market string) (*gobs.Market, error) {
	if e, ok := x.marketCache.Load(market); ok && x.timeNow().Sub(e.at) < x.opts.MarketCacheTTL {
		return e.market, nil
	}

	if err := x.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	data, err := x.client.GetMarket(ctx, market)
	if err != nil {
		return nil, err
	}
	return x.storeMarket(data), nil
}

func (x *Exchange) storeMarket(data *internal.MarketData) *gobs.Market {
	m := &gobs.Market{
		Ticker:           data.Ticker,
		Status:           data.Status,
		OraclePrice:      data.OraclePrice,
		TickSize:         data.TickSize,
		StepSize:         data.StepSize,
		MinOrderSize:     data.MinOrderSize,
		ClobPairID:       data.ClobPairID,
		AtomicResolution: data.AtomicResolution,
	}
	x.marketCache.Store(data.Ticker, &marketEntry{market: m, at: x.timeNow()})
	return m
}

func (x *Exchange) BestBidAsk(ctx context.Context, market string) (bid, ask decimal.Decimal, err error) {
	if err := x.limiter.Wait(ctx); err != nil {
		return bid, ask, err
	}
	book, err := x.client.GetOrderbook(ctx, market)
	if err != nil {
		return bid, ask, err
	}
	if len(book.Bids) == 0 || len(book.Asks) == 0 {
		return bid, ask, fmt.Errorf("order book for %q has an empty side", market)
	}
	return book.Bids[0].Price, book.Asks[0].Price, nil
}

func (x *Exchange) OraclePrice(ctx context.Context, market string) (decimal.Decimal, error) {
	// Oracle price changes every block, so the indexer is always queried. The
	// response carries the full market payload; keep the cache fresh with it
	// instead of throwing it away.
	if err := x.limiter.Wait(ctx); err != nil {
		return decimal.Zero, err
	}
	data, err := x.client.GetMarket(ctx, market)
	if err != nil {
		return decimal.Zero, err
	}
	x.storeMarket(data)
	return data.OraclePrice, nil
}

func (x *Exchange) currentHeight(ctx context.Context) (int64, error) {
	if err := x.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	return x.client.GetHeight(ctx)
}

// submit broadcasts one transaction through the sequence manager. A rejected
// transaction refreshes the sequence from the chain and retries exactly once
// with the same payload, so the client order id is never burned on transient
// sequence drift.
func (x *Exchange) submit(ctx context.Context, broadcast func(ctx context.Context, seq uint64) (*internal.TxResult, error)) (*internal.TxResult, error) {
	var result *internal.TxResult
	do := func(seq uint64) (bool, error) {
		if err := x.limiter.Wait(ctx); err != nil {
			return false, err
		}
		r, err := broadcast(ctx, seq)
		if err != nil {
			return false, err
		}
		result = r
		return r.Accepted(), nil
	}

	accepted, err := x.seq.Do(ctx, do)
	if err != nil {
		return nil, err
	}
	if accepted {
		return result, nil
	}

	slog.Warn("transaction was rejected (refreshing sequence and retrying once)", "result", result)
	if err := x.seq.Refresh(ctx); err != nil {
		return nil, err
	}
	accepted, err = x.seq.Do(ctx, do)
	if err != nil {
		return nil, err
	}
	if !accepted {
		return result, fmt.Errorf("transaction rejected: %s", result)
	}
	return result, nil
}

func (x *Exchange) CreateLimitOrder(ctx context.Context, req *exchange.LimitOrderRequest) (*exchange.Order, error) {
	env := &internal.OrderEnvelope{
		Address:          x.creds.Address,
		SubaccountNumber: x.creds.SubaccountNumber,
		ClientID:         req.ClientID,
		Market:           req.Market,
		Side:             req.Side,
		Size:             req.Size.String(),
		Price:            req.Price.String(),
		TimeInForce:      req.TimeInForce,
		ReduceOnly:       req.ReduceOnly,
	}

	order := &exchange.Order{
		ClientID:   req.ClientID,
		Market:     req.Market,
		Side:       req.Side,
		Size:       req.Size,
		Price:      req.Price,
		ReduceOnly: req.ReduceOnly,
		Status:     "PENDING",
		CreateTime: gobs.RemoteTime{Time: x.timeNow()},
	}

	switch req.TimeInForce {
	case exchange.TifPostOnly, exchange.TifIOC:
		height, err := x.currentHeight(ctx)
		if err != nil {
			return nil, err
		}
		ttl := req.GoodTilBlocks
		if ttl == 0 {
			ttl = x.opts.ShortTermTTLBlocks
		}
		env.OrderFlags = orderFlagsShortTerm
		env.GoodTilBlock = height + ttl
		order.Category = exchange.ShortTerm
		order.GoodTilBlock = env.GoodTilBlock
	default:
		gtt := x.timeNow().Add(x.opts.LongTermExpiry)
		env.OrderFlags = orderFlagsLongTerm
		env.GoodTilBlockTime = gtt.Unix()
		order.Category = exchange.LongTerm
		order.GoodTilTime = gtt
	}

	result, err := x.submit(ctx, func(ctx context.Context, seq uint64) (*internal.TxResult, error) {
		env.Sequence = seq
		return x.node.BroadcastOrder(ctx, env)
	})
	if err != nil {
		return nil, err
	}

	order.OrderID = exchange.OrderID(result.TxHash)
	return order, nil
}

func (x *Exchange) CreateConditionalOrder(ctx context.Context, req *exchange.ConditionalOrderRequest) (*exchange.Order, error) {
	gtt := req.GoodTilTime
	if gtt.IsZero() {
		gtt = x.timeNow().Add(x.opts.LongTermExpiry)
	}

	env := &internal.OrderEnvelope{
		Address:          x.creds.Address,
		SubaccountNumber: x.creds.SubaccountNumber,
		ClientID:         req.ClientID,
		Market:           req.Market,
		Side:             req.Side,
		Size:             req.Size.String(),
		Price:            req.LimitPrice.String(),
		TimeInForce:      exchange.TifGTT,
		OrderFlags:       orderFlagsConditional,
		ReduceOnly:       true,
		GoodTilBlockTime: gtt.Unix(),
		TriggerPrice:     req.TriggerPrice.String(),
		ConditionType:    req.ConditionType,
	}

	result, err := x.submit(ctx, func(ctx context.Context, seq uint64) (*internal.TxResult, error) {
		env.Sequence = seq
		return x.node.BroadcastOrder(ctx, env)
	})
	if err != nil {
		return nil, err
	}

	return &exchange.Order{
		OrderID:      exchange.OrderID(result.TxHash),
		ClientID:     req.ClientID,
		Market:       req.Market,
		Side:         req.Side,
		Category:     exchange.Conditional,
		Size:         req.Size,
		Price:        req.LimitPrice,
		TriggerPrice: req.TriggerPrice,
		ReduceOnly:   true,
		Status:       "UNTRIGGERED",
		GoodTilTime:  gtt,
		CreateTime:   gobs.RemoteTime{Time: x.timeNow()},
	}, nil
}

// CancelOrder cancels an order with expiry parameters matching its category.
// Canceling an order that is already done or unknown to the exchange is not
// an error.
func (x *Exchange) CancelOrder(ctx context.Context, order *exchange.Order) error {
	if order.Done {
		return nil
	}

	env := &internal.CancelEnvelope{
		Address:          x.creds.Address,
		SubaccountNumber: x.creds.SubaccountNumber,
		ClientID:         order.ClientID,
		Market:           order.Market,
	}

	switch order.Category {
	case exchange.ShortTerm:
		height, err := x.currentHeight(ctx)
		if err != nil {
			return err
		}
		env.OrderFlags = orderFlagsShortTerm
		env.GoodTilBlock = height + x.opts.ShortTermTTLBlocks
	case exchange.Conditional, exchange.LongTerm:
		env.OrderFlags = orderFlagsConditional
		if order.Category == exchange.LongTerm {
			env.OrderFlags = orderFlagsLongTerm
		}
		// The cancel expiry must not be earlier than the order's own
		// good-til time or the chain rejects it.
		gtt := order.GoodTilTime
		if gtt.IsZero() || gtt.Before(x.timeNow()) {
			gtt = x.timeNow().Add(x.opts.LongTermExpiry)
		}
		env.GoodTilBlockTime = gtt.Unix()
	default:
		return fmt.Errorf("order %s has unknown category %q", order.OrderID, order.Category)
	}

	result, err := x.submit(ctx, func(ctx context.Context, seq uint64) (*internal.TxResult, error) {
		env.Sequence = seq
		return x.node.BroadcastCancel(ctx, env)
	})
	if err != nil {
		if result != nil && isOrderGone(result) {
			slog.Info("cancel target is already gone", "client-id", order.ClientID, "result", result)
			return nil
		}
		return err
	}
	return nil
}

func (x *Exchange) GetOrder(ctx context.Context, market string, id exchange.OrderID) (*exchange.Order, error) {
	orders, err := x.listOrders(ctx, market, nil)
	if err != nil {
		return nil, err
	}
	for _, order := range orders {
		if order.OrderID == id {
			return order, nil
		}
	}
	return nil, fmt.Errorf("order %q not found", id)
}

func (x *Exchange) GetOrderByClientID(ctx context.Context, market string, clientID uint32) (*exchange.Order, error) {
	orders, err := x.listOrders(ctx, market, nil)
	if err != nil {
		return nil, err
	}
	for _, order := range orders {
		if order.ClientID == clientID {
			return order, nil
		}
	}
	return nil, fmt.Errorf("order with client id %d not found", clientID)
}

func (x *Exchange) OpenOrders(ctx context.Context, market string) ([]*exchange.Order, error) {
	return x.listOrders(ctx, market, []string{"OPEN", "UNTRIGGERED", "BEST_EFFORT_OPENED"})
}

func (x *Exchange) listOrders(ctx context.Context, market string, statuses []string) ([]*exchange.Order, error) {
	if err := x.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	data, err := x.client.GetOrders(ctx, x.creds.Address, x.creds.SubaccountNumber, market, statuses)
	if err != nil {
		return nil, err
	}
	orders := make([]*exchange.Order, 0, len(data))
	for _, d := range data {
		order, err := orderFromData(d)
		if err != nil {
			slog.Warn("skipping an order that could not be converted", "order", d.ID, "err", err)
			continue
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func (x *Exchange) GetPosition(ctx context.Context, market string) (*exchange.Position, error) {
	if e, ok := x.positionCache.Load(market); ok && x.timeNow().Sub(e.at) < x.opts.PositionCacheTTL {
		return e.position, nil
	}
	return x.GetPositionFresh(ctx, market)
}

// GetPositionFresh queries the exchange and updates the cache. Callers use
// it to confirm fills and reconcile local state; the exchange answer is
// authoritative.
func (x *Exchange) GetPositionFresh(ctx context.Context, market string) (*exchange.Position, error) {
	if err := x.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := x.client.GetPositions(ctx, x.creds.Address, x.creds.SubaccountNumber)
	if err != nil {
		return nil, err
	}

	var position *exchange.Position
	for _, p := range resp.Positions {
		if p.Market != market || p.Status != "OPEN" {
			continue
		}
		position = &exchange.Position{
			Market:        p.Market,
			Side:          p.Side,
			Size:          p.Size.Abs(),
			EntryPrice:    p.EntryPrice,
			UnrealizedPnl: p.UnrealizedPnl,
			UpdatedAt:     gobs.RemoteTime{Time: x.timeNow()},
		}
		break
	}
	x.positionCache.Store(market, &positionEntry{position: position, at: x.timeNow()})
	return position, nil
}

func (x *Exchange) IsDone(status string) bool {
	switch status {
	case "FILLED", "CANCELED", "BEST_EFFORT_CANCELED", "EXPIRED":
		return true
	}
	return false
}

func (x *Exchange) Go(f func(context.Context)) {
	x.cg.Go(f)
}

// Equity returns the subaccount equity and free collateral.
func (x *Exchange) Equity(ctx context.Context) (equity, free decimal.Decimal, err error) {
	if err := x.limiter.Wait(ctx); err != nil {
		return equity, free, err
	}
	resp, err := x.client.GetSubaccount(ctx, x.creds.Address, x.creds.SubaccountNumber)
	if err != nil {
		return equity, free, err
	}
	return resp.Subaccount.Equity, resp.Subaccount.FreeCollateral, nil
}

// Fill is one account fill reported by the indexer.
type Fill struct {
	Market    string
	Side      string
	Liquidity string

	Size  decimal.Decimal
	Price decimal.Decimal
	Fee   decimal.Decimal

	At time.Time
}

// Fills returns recent fills for the subaccount, newest first.
func (x *Exchange) Fills(ctx context.Context, market string, limit int) ([]*Fill, error) {
	if err := x.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := x.client.GetFills(ctx, x.creds.Address, x.creds.SubaccountNumber, market, limit)
	if err != nil {
		return nil, err
	}
	fills := make([]*Fill, 0, len(resp.Fills))
	for _, f := range resp.Fills {
		at, err := time.Parse(time.RFC3339, f.CreatedAt)
		if err != nil {
			slog.Warn("could not parse a fill timestamp", "market", market, "created-at", f.CreatedAt, "err", err)
		}
		fills = append(fills, &Fill{
			Market:    f.Market,
			Side:      f.Side,
			Liquidity: f.Liquidity,
			Size:      f.Size,
			Price:     f.Price,
			Fee:       f.Fee,
			At:        at,
		})
	}
	return fills, nil
}
