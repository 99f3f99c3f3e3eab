// Copyright (c) 2023 BVK Chaitanya

package hub

import (
	"sort"

	"github.com/bvk/dexbot/exchange"
	"github.com/shopspring/decimal"
)

// Book is an order book reconstructed from a streaming snapshot and deltas.
// Levels are keyed by the exact price string from the feed, so price values
// that differ only in formatting never collide or duplicate.
type Book struct {
	bids map[string]decimal.Decimal
	asks map[string]decimal.Decimal
}

func NewBook() *Book {
	return &Book{
		bids: make(map[string]decimal.Decimal),
		asks: make(map[string]decimal.Decimal),
	}
}

// Reset replaces the book with a full snapshot.
func (b *Book) Reset(bids, asks []exchange.BookLevel) {
	b.bids = make(map[string]decimal.Decimal)
	b.asks = make(map[string]decimal.Decimal)
	b.Apply(bids, asks)
}

// Apply merges delta levels into the book. A level with zero size removes
// the price; removing an absent price is a no-op.
func (b *Book) Apply(bids, asks []exchange.BookLevel) {
	applySide(b.bids, bids)
	applySide(b.asks, asks)
}

func applySide(side map[string]decimal.Decimal, levels []exchange.BookLevel) {
	for _, l := range levels {
		key := l.Price.String()
		if l.Size.IsZero() {
			delete(side, key)
			continue
		}
		side[key] = l.Size
	}
}

func sortedSide(side map[string]decimal.Decimal, descending bool, n int) []exchange.BookLevel {
	levels := make([]exchange.BookLevel, 0, len(side))
	for price, size := range side {
		p, err := decimal.NewFromString(price)
		if err != nil {
			continue
		}
		levels = append(levels, exchange.BookLevel{Price: p, Size: size})
	}
	sort.Slice(levels, func(i, j int) bool {
		if descending {
			return levels[i].Price.GreaterThan(levels[j].Price)
		}
		return levels[i].Price.LessThan(levels[j].Price)
	})
	if n > 0 && len(levels) > n {
		levels = levels[:n]
	}
	return levels
}

// Bids returns up to n bid levels, best (highest) first.
func (b *Book) Bids(n int) []exchange.BookLevel {
	return sortedSide(b.bids, true, n)
}

// Asks returns up to n ask levels, best (lowest) first.
func (b *Book) Asks(n int) []exchange.BookLevel {
	return sortedSide(b.asks, false, n)
}

func (b *Book) BestBidAsk() (bid, ask exchange.BookLevel, ok bool) {
	bids, asks := b.Bids(1), b.Asks(1)
	if len(bids) == 0 || len(asks) == 0 {
		return bid, ask, false
	}
	return bids[0], asks[0], true
}

// RepairCrossed removes levels around the midpoint when the best bid is at
// or above the best ask. Deltas applied out of order can leave the book in
// this state briefly; dropping the crossing levels restores a usable book
// without waiting for a resubscribe. Returns the number of levels removed.
func (b *Book) RepairCrossed() int {
	bid, ask, ok := b.BestBidAsk()
	if !ok || bid.Price.LessThan(ask.Price) {
		return 0
	}

	mid := bid.Price.Add(ask.Price).Div(decimal.NewFromInt(2))

	removed := 0
	for price := range b.bids {
		if p, err := decimal.NewFromString(price); err == nil && p.GreaterThanOrEqual(mid) {
			delete(b.bids, price)
			removed++
		}
	}
	for price := range b.asks {
		if p, err := decimal.NewFromString(price); err == nil && p.LessThanOrEqual(mid) {
			delete(b.asks, price)
			removed++
		}
	}
	return removed
}
