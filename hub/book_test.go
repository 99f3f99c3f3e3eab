// Copyright (c) 2023 BVK Chaitanya

package hub

import (
	"testing"

	"github.com/bvk/dexbot/exchange"
	"github.com/shopspring/decimal"
)

func level(price, size string) exchange.BookLevel {
	return exchange.BookLevel{
		Price: decimal.RequireFromString(price),
		Size:  decimal.RequireFromString(size),
	}
}

func TestBookReconstruction(t *testing.T) {
	b := NewBook()
	b.Reset(
		[]exchange.BookLevel{level("100", "1"), level("99", "2"), level("98", "3")},
		[]exchange.BookLevel{level("101", "1"), level("102", "2")},
	)

	bid, ask, ok := b.BestBidAsk()
	if !ok {
		t.Fatalf("want a two sided book")
	}
	if bid.Price.String() != "100" || ask.Price.String() != "101" {
		t.Fatalf("want best bid/ask 100/101, got %s/%s", bid.Price, ask.Price)
	}

	// Update an existing level, add a new one and remove one.
	b.Apply(
		[]exchange.BookLevel{level("99", "5"), level("97", "1"), level("100", "0")},
		nil,
	)
	bids := b.Bids(0)
	if len(bids) != 3 {
		t.Fatalf("want 3 bid levels, got %d", len(bids))
	}
	if bids[0].Price.String() != "99" || bids[0].Size.String() != "5" {
		t.Fatalf("want best bid 99 with size 5, got %s with %s", bids[0].Price, bids[0].Size)
	}

	// Removing a price that is not in the book is a no-op.
	b.Apply([]exchange.BookLevel{level("55", "0")}, nil)
	if n := len(b.Bids(0)); n != 3 {
		t.Fatalf("delete of an absent level changed the book: %d levels", n)
	}

	// Top-N truncation keeps the best levels.
	if top := b.Bids(2); len(top) != 2 || top[0].Price.String() != "99" {
		t.Fatalf("unexpected top-2 bids: %v", top)
	}
}

func TestBookSnapshotReplaces(t *testing.T) {
	b := NewBook()
	b.Reset(
		[]exchange.BookLevel{level("100", "1")},
		[]exchange.BookLevel{level("101", "1")},
	)
	b.Reset(
		[]exchange.BookLevel{level("200", "1")},
		[]exchange.BookLevel{level("201", "1")},
	)
	if bids := b.Bids(0); len(bids) != 1 || bids[0].Price.String() != "200" {
		t.Fatalf("want only the second snapshot's levels, got %v", bids)
	}
}

func TestBookRepairCrossed(t *testing.T) {
	b := NewBook()
	b.Reset(
		[]exchange.BookLevel{level("102", "1"), level("100", "2"), level("99", "3")},
		[]exchange.BookLevel{level("100.5", "1"), level("103", "2"), level("104", "3")},
	)

	// Best bid 102 crosses best ask 100.5; midpoint is 101.25.
	removed := b.RepairCrossed()
	if removed != 2 {
		t.Fatalf("want 2 removed levels, got %d", removed)
	}

	bid, ask, ok := b.BestBidAsk()
	if !ok {
		t.Fatalf("repair must leave a two sided book")
	}
	if !bid.Price.LessThan(ask.Price) {
		t.Fatalf("book is still crossed: %s >= %s", bid.Price, ask.Price)
	}
	if bid.Price.String() != "100" || ask.Price.String() != "103" {
		t.Fatalf("want best bid/ask 100/103 after repair, got %s/%s", bid.Price, ask.Price)
	}

	// A healthy book is left alone.
	if removed := b.RepairCrossed(); removed != 0 {
		t.Fatalf("repair of a healthy book removed %d levels", removed)
	}
}
