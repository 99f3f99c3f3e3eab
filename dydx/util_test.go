// Copyright (c) 2023 BVK Chaitanya

package dydx

import (
	"testing"

	"github.com/bvk/dexbot/dydx/internal"
	"github.com/bvk/dexbot/exchange"
	"github.com/shopspring/decimal"
)

func TestOrderFromData(t *testing.T) {
	d := &internal.OrderData{
		ID:           "ffffffff-0000",
		ClientID:     "123456",
		Ticker:       "BTC-USD",
		Side:         "BUY",
		Type:         "LIMIT",
		Size:         decimal.NewFromFloat(0.25),
		Price:        decimal.NewFromInt(65000),
		TotalFilled:  decimal.NewFromFloat(0.1),
		Status:       "OPEN",
		TimeInForce:  "POST_ONLY",
		OrderFlags:   "0",
		GoodTilBlock: "1234567",
	}
	order, err := orderFromData(d)
	if err != nil {
		t.Fatal(err)
	}
	if order.ClientID != 123456 {
		t.Fatalf("want client id 123456, got %d", order.ClientID)
	}
	if order.Category != exchange.ShortTerm {
		t.Fatalf("want short term category, got %q", order.Category)
	}
	if order.GoodTilBlock != 1234567 {
		t.Fatalf("want good-til-block 1234567, got %d", order.GoodTilBlock)
	}
	if order.Done {
		t.Fatalf("an open order must not be done")
	}
	if v := order.Remaining(); !v.Equal(decimal.NewFromFloat(0.15)) {
		t.Fatalf("want remaining size 0.15, got %s", v)
	}

	d.Status = "FILLED"
	d.TotalFilled = d.Size
	d.UpdatedAt = "2026-08-30T10:00:00Z"
	filled, err := orderFromData(d)
	if err != nil {
		t.Fatal(err)
	}
	if !filled.Done || filled.DoneReason != "FILLED" {
		t.Fatalf("want a done FILLED order, got done=%v reason=%q", filled.Done, filled.DoneReason)
	}
	if filled.FinishTime.IsZero() {
		t.Fatalf("want a finish time on a done order")
	}
}

func TestOrderFromDataConditional(t *testing.T) {
	d := &internal.OrderData{
		ID:               "cccccccc-0000",
		ClientID:         "42",
		Ticker:           "ETH-USD",
		Side:             "SELL",
		Type:             "TAKE_PROFIT",
		Size:             decimal.NewFromInt(1),
		Price:            decimal.NewFromInt(3600),
		TriggerPrice:     decimal.NewFromInt(3590),
		Status:           "UNTRIGGERED",
		OrderFlags:       "32",
		ReduceOnly:       true,
		GoodTilBlockTime: "2026-09-29T00:00:00Z",
	}
	order, err := orderFromData(d)
	if err != nil {
		t.Fatal(err)
	}
	if order.Category != exchange.Conditional {
		t.Fatalf("want conditional category, got %q", order.Category)
	}
	if order.GoodTilTime.IsZero() {
		t.Fatalf("want a good-til time on a stateful order")
	}
	if !order.ReduceOnly {
		t.Fatalf("want reduce-only")
	}

	d.OrderFlags = "13"
	if _, err := orderFromData(d); err == nil {
		t.Fatalf("want an error for unknown order flags")
	}
}
