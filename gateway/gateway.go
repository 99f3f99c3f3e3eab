// Copyright (c) 2023 BVK Chaitanya

// Package gateway turns position intents into exchange orders. Entries and
// exits go maker-first with a limited number of post-only attempts, then
// fall back to an IOC taker order; urgent exits skip the maker attempts
// entirely.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/bvk/dexbot/ctxutil"
	"github.com/bvk/dexbot/exchange"
	"github.com/bvk/dexbot/gobs"
	"github.com/bvk/dexbot/idgen"
	"github.com/shopspring/decimal"
)

// BookSource supplies the top of the book without a network round trip.
// Satisfied by the market data hub.
type BookSource interface {
	BestBidAsk() (bid, ask decimal.Decimal, ok bool)
}

type Gateway struct {
	opts Options

	ex exchange.Exchange

	// book is optional; when nil or stale the exchange is queried directly.
	book BookSource

	ids *idgen.Generator

	timeNow func() time.Time
}

func New(ex exchange.Exchange, book BookSource, ids *idgen.Generator, opts *Options) *Gateway {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	return &Gateway{
		opts:    *opts,
		ex:      ex,
		book:    book,
		ids:     ids,
		timeNow: time.Now,
	}
}

// Request is one execution intent. Side is the order side, not the position
// side. TakerOnly skips the maker attempts; NoTakerFallback gives up after
// the maker attempts instead of crossing the spread.
type Request struct {
	Market string
	Side   string

	Size decimal.Decimal

	ReduceOnly bool

	TakerOnly       bool
	NoTakerFallback bool
}

// Result is the outcome of one execution. An unfilled result is not an
// error; the caller decides whether to retry, escalate or give up.
type Result struct {
	Filled bool

	Size  decimal.Decimal
	Price decimal.Decimal

	// Maker is true when the fill came from a post-only order.
	Maker bool

	Order *exchange.Order

	Reason string
}

// Execute places an order per the request policy and waits for the outcome.
func (g *Gateway) Execute(ctx context.Context, req *Request) (*Result, error) {
	m, err := g.ex.GetMarket(ctx, req.Market)
	if err != nil {
		return nil, fmt.Errorf("could not fetch market metadata: %w", err)
	}

	size := quantizeSize(req.Size, m.StepSize)
	if size.LessThan(m.MinOrderSize) {
		return nil, fmt.Errorf("size %s is below the market minimum %s", size, m.MinOrderSize)
	}

	if !req.TakerOnly {
		for attempt := 1; attempt <= g.opts.MakerAttempts; attempt++ {
			if ctx.Err() != nil {
				return nil, context.Cause(ctx)
			}
			result, err := g.makerAttempt(ctx, req, m, size, attempt)
			if err != nil {
				slog.Warn("maker attempt has failed", "market", req.Market, "attempt", attempt, "err", err)
				continue
			}
			if result.Filled {
				return result, nil
			}
		}
		if req.NoTakerFallback {
			return &Result{Reason: "maker attempts are exhausted"}, nil
		}
		log.Printf("%s: %s %s was not filled by %d maker attempts, falling back to taker", req.Market, req.Side, size, g.opts.MakerAttempts)
	}

	return g.takerExecute(ctx, req, m, size)
}

func (g *Gateway) bidAsk(ctx context.Context, market string) (bid, ask decimal.Decimal, err error) {
	if g.book != nil {
		if bid, ask, ok := g.book.BestBidAsk(); ok {
			return bid, ask, nil
		}
	}
	return g.ex.BestBidAsk(ctx, market)
}

func (g *Gateway) makerAttempt(ctx context.Context, req *Request, m *gobs.Market, size decimal.Decimal, attempt int) (*Result, error) {
	bid, ask, err := g.bidAsk(ctx, req.Market)
	if err != nil {
		return nil, err
	}
	if !bid.LessThan(ask) {
		return nil, fmt.Errorf("book is crossed (%s >= %s)", bid, ask)
	}

	step := decimal.NewFromInt(int64(attempt - 1))
	aggression := g.opts.AggressionBase.Add(g.opts.AggressionStep.Mul(step))
	price := makerLimitPrice(req.Side, bid, ask, m.TickSize, aggression, g.opts.SafetyMarginPct)

	clientID := g.ids.NextID()
	order, err := g.ex.CreateLimitOrder(ctx, &exchange.LimitOrderRequest{
		Market:        req.Market,
		ClientID:      clientID,
		Side:          req.Side,
		Size:          size,
		Price:         price,
		TimeInForce:   exchange.TifPostOnly,
		ReduceOnly:    req.ReduceOnly,
		GoodTilBlocks: g.opts.PostOnlyTTLBlocks,
	})
	if err != nil {
		return nil, err
	}
	log.Printf("%s: maker attempt %d placed %s %s at %s (client id %d)", req.Market, attempt, req.Side, size, price, clientID)

	result, err := g.pollFill(ctx, req.Market, clientID, order, g.opts.MakerAttemptTimeout)
	if err != nil {
		return nil, err
	}
	if result.Filled {
		result.Maker = true
		return result, nil
	}

	// The order may still be resting; take it off the book before the next
	// attempt reprices.
	latest := result.Order
	if latest == nil {
		latest = order
	}
	if !latest.Done {
		if err := g.ex.CancelOrder(ctx, latest); err != nil {
			slog.Warn("could not cancel a resting maker order", "client-id", clientID, "err", err)
		}
	}

	// The cancel can race a fill; one final check settles it.
	if final, err := g.ex.GetOrderByClientID(ctx, req.Market, clientID); err == nil {
		if final.FilledSize.IsPositive() {
			return fillResult(final, price, true), nil
		}
	}
	return &Result{Order: latest, Reason: "maker order was not filled"}, nil
}

// pollFill watches the order until it is done or the timeout passes. A
// timeout is not an error; the caller applies its fallback policy.
func (g *Gateway) pollFill(ctx context.Context, market string, clientID uint32, placed *exchange.Order, timeout time.Duration) (*Result, error) {
	latest := placed
	deadline := g.timeNow().Add(timeout)
	for g.timeNow().Before(deadline) {
		order, err := g.ex.GetOrderByClientID(ctx, market, clientID)
		if err != nil {
			// The indexer may lag the placement; keep polling.
			if ctx.Err() != nil {
				return nil, context.Cause(ctx)
			}
		} else {
			latest = order
			if order.Done {
				if order.FilledSize.IsPositive() {
					return fillResult(order, placed.Price, false), nil
				}
				return &Result{Order: order, Reason: "order is done without a fill"}, nil
			}
		}
		ctxutil.Sleep(ctx, g.opts.FillPollInterval)
		if ctx.Err() != nil {
			return nil, context.Cause(ctx)
		}
	}
	return &Result{Order: latest, Reason: "fill wait has timed out"}, nil
}

func fillResult(order *exchange.Order, limitPrice decimal.Decimal, maker bool) *Result {
	price := order.FilledPrice
	if price.IsZero() {
		price = limitPrice
	}
	return &Result{
		Filled: true,
		Size:   order.FilledSize,
		Price:  price,
		Maker:  maker,
		Order:  order,
	}
}

// takerExecute crosses the spread with an IOC order. When the fill poll is
// inconclusive, one authoritative position query decides the outcome.
func (g *Gateway) takerExecute(ctx context.Context, req *Request, m *gobs.Market, size decimal.Decimal) (*Result, error) {
	pre, err := g.ex.GetPositionFresh(ctx, req.Market)
	if err != nil {
		return nil, fmt.Errorf("could not read position before the taker order: %w", err)
	}

	bid, ask, err := g.bidAsk(ctx, req.Market)
	if err != nil {
		return nil, err
	}

	var price decimal.Decimal
	if req.Side == exchange.Buy {
		price = quantizePrice(ask.Mul(one.Add(g.opts.IOCSlippagePct)), m.TickSize, false)
	} else {
		price = quantizePrice(bid.Mul(one.Sub(g.opts.IOCSlippagePct)), m.TickSize, true)
	}

	clientID := g.ids.NextID()
	order, err := g.ex.CreateLimitOrder(ctx, &exchange.LimitOrderRequest{
		Market:      req.Market,
		ClientID:    clientID,
		Side:        req.Side,
		Size:        size,
		Price:       price,
		TimeInForce: exchange.TifIOC,
		ReduceOnly:  req.ReduceOnly,
	})
	if err != nil {
		return nil, err
	}
	log.Printf("%s: taker order placed %s %s at %s (client id %d)", req.Market, req.Side, size, price, clientID)

	result, err := g.pollFill(ctx, req.Market, clientID, order, g.opts.TakerPollTimeout)
	if err != nil {
		return nil, err
	}
	if result.Filled {
		return result, nil
	}

	return g.confirmFill(ctx, req, pre, result, price)
}

// confirmFill is the single authoritative check after an inconclusive taker
// order: the exchange reported position decides whether anything traded.
func (g *Gateway) confirmFill(ctx context.Context, req *Request, pre *exchange.Position, result *Result, limitPrice decimal.Decimal) (*Result, error) {
	post, err := g.ex.GetPositionFresh(ctx, req.Market)
	if err != nil {
		return nil, fmt.Errorf("could not confirm fill from position: %w", err)
	}

	delta := signedSize(post).Sub(signedSize(pre))
	if req.Side == exchange.Sell {
		delta = delta.Neg()
	}
	if delta.IsPositive() {
		price := limitPrice
		if result.Order != nil && !result.Order.FilledPrice.IsZero() {
			price = result.Order.FilledPrice
		}
		log.Printf("%s: fill of %s confirmed from the position query", req.Market, delta)
		return &Result{
			Filled: true,
			Size:   delta,
			Price:  price,
			Order:  result.Order,
		}, nil
	}
	return &Result{Order: result.Order, Reason: "taker order did not fill"}, nil
}

// CancelAll cancels every open order for the market. Orders that finish
// concurrently are not errors.
func (g *Gateway) CancelAll(ctx context.Context, market string) (int, error) {
	orders, err := g.ex.OpenOrders(ctx, market)
	if err != nil {
		return 0, err
	}
	canceled := 0
	var errs []error
	for _, order := range orders {
		if err := g.ex.CancelOrder(ctx, order); err != nil {
			errs = append(errs, err)
			continue
		}
		canceled++
	}
	return canceled, errors.Join(errs...)
}
