// Copyright (c) 2023 BVK Chaitanya

package gateway

import (
	"context"
	"testing"

	"github.com/bvk/dexbot/exchange"
	"github.com/shopspring/decimal"
)

func TestCorrectTrigger(t *testing.T) {
	ref := decimal.NewFromInt(100)
	nudge := decimal.RequireFromString("0.001")

	// A valid long take-profit above the reference is untouched.
	v := correctTrigger(exchange.Long, exchange.ConditionTakeProfit, decimal.NewFromInt(105), ref, nudge)
	if v.String() != "105" {
		t.Fatalf("want 105, got %s", v)
	}

	// A long take-profit below the reference is nudged just above it.
	v = correctTrigger(exchange.Long, exchange.ConditionTakeProfit, decimal.NewFromInt(99), ref, nudge)
	if v.String() != "100.1" {
		t.Fatalf("want 100.1, got %s", v)
	}

	// A long stop-loss above the reference is nudged just below it.
	v = correctTrigger(exchange.Long, exchange.ConditionStopLoss, decimal.NewFromInt(101), ref, nudge)
	if v.String() != "99.9" {
		t.Fatalf("want 99.9, got %s", v)
	}

	// Shorts are mirrored.
	v = correctTrigger(exchange.Short, exchange.ConditionTakeProfit, decimal.NewFromInt(101), ref, nudge)
	if v.String() != "99.9" {
		t.Fatalf("want 99.9, got %s", v)
	}
	v = correctTrigger(exchange.Short, exchange.ConditionStopLoss, decimal.NewFromInt(99), ref, nudge)
	if v.String() != "100.1" {
		t.Fatalf("want 100.1, got %s", v)
	}
}

func TestSetConditionals(t *testing.T) {
	ctx := context.Background()
	f := newFakeExchange()
	g := newTestGateway(f)

	// A leftover conditional from a previous position must be replaced.
	stale, err := f.CreateConditionalOrder(ctx, &exchange.ConditionalOrderRequest{
		Market:        "BTC-USD",
		ClientID:      999,
		Side:          exchange.Sell,
		Size:          decimal.NewFromInt(1),
		ConditionType: exchange.ConditionTakeProfit,
		TriggerPrice:  decimal.NewFromInt(120),
		LimitPrice:    decimal.NewFromInt(120),
	})
	if err != nil {
		t.Fatal(err)
	}

	// The exchange says the position is 2.5 even if the caller thinks
	// otherwise; conditional sizes must come from the exchange.
	f.position = &exchange.Position{
		Market:     "BTC-USD",
		Side:       exchange.Long,
		Size:       decimal.RequireFromString("2.5"),
		EntryPrice: decimal.NewFromInt(100),
	}

	orders, err := g.SetConditionals(ctx, &ConditionalRequest{
		Market:     "BTC-USD",
		Reference:  decimal.NewFromInt(100),
		TakeProfit: decimal.NewFromInt(99), // wrong side, must be corrected
		StopLoss:   decimal.NewFromInt(95),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(orders) != 2 {
		t.Fatalf("want 2 conditional orders, got %d", len(orders))
	}

	if o, err := f.GetOrderByClientID(ctx, "BTC-USD", stale.ClientID); err == nil && !o.Done {
		t.Fatalf("stale conditional was not canceled")
	}

	tp, sl := f.conditionals[1], f.conditionals[2]
	if tp.ConditionType != exchange.ConditionTakeProfit {
		tp, sl = sl, tp
	}

	// Long TP below the reference is corrected to reference plus 0.1%.
	if tp.TriggerPrice.String() != "100.1" {
		t.Fatalf("want corrected trigger 100.1, got %s", tp.TriggerPrice)
	}
	if !tp.Size.Equal(f.position.Size) {
		t.Fatalf("want size clamped to the position size %s, got %s", f.position.Size, tp.Size)
	}
	if tp.Side != exchange.Sell {
		t.Fatalf("a long position closes with a sell, got %q", tp.Side)
	}

	// Stop-loss limit is padded 0.15% below the trigger for a sell.
	if sl.TriggerPrice.String() != "95" {
		t.Fatalf("want trigger 95, got %s", sl.TriggerPrice)
	}
	if sl.LimitPrice.String() != "94.85" {
		t.Fatalf("want limit 94.85, got %s", sl.LimitPrice)
	}
}

func TestSetConditionalsRequiresPosition(t *testing.T) {
	ctx := context.Background()
	f := newFakeExchange()
	g := newTestGateway(f)

	_, err := g.SetConditionals(ctx, &ConditionalRequest{
		Market:     "BTC-USD",
		Reference:  decimal.NewFromInt(100),
		TakeProfit: decimal.NewFromInt(105),
	})
	if err == nil {
		t.Fatalf("want an error without an open position")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFakeExchange()
	g := newTestGateway(f)

	result, err := g.Close(ctx, "BTC-USD", false)
	if err != nil {
		t.Fatal(err)
	}
	if result.Filled {
		t.Fatalf("closing a flat position must be a no-op, got %+v", result)
	}
	if len(f.limitReqs) != 0 {
		t.Fatalf("no orders should be placed for a flat position")
	}
}

func TestCloseUrgentSkipsMaker(t *testing.T) {
	ctx := context.Background()
	f := newFakeExchange()
	f.iocFills = true
	f.position = &exchange.Position{
		Market: "BTC-USD",
		Side:   exchange.Long,
		Size:   decimal.NewFromInt(1),
	}
	g := newTestGateway(f)

	result, err := g.Close(ctx, "BTC-USD", true)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Filled {
		t.Fatalf("want an urgent close fill, got %+v", result)
	}
	if len(f.limitReqs) != 1 {
		t.Fatalf("want exactly one placement, got %d", len(f.limitReqs))
	}
	req := f.limitReqs[0]
	if req.TimeInForce != exchange.TifIOC {
		t.Fatalf("urgent closes must be taker-only, got %q", req.TimeInForce)
	}
	if !req.ReduceOnly {
		t.Fatalf("closes must be reduce-only")
	}
	if req.Side != exchange.Sell {
		t.Fatalf("a long close must sell, got %q", req.Side)
	}
}
