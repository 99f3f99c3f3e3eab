// Copyright (c) 2023 BVK Chaitanya

package hub

import (
	"context"
	"errors"
	"os"
	"path"
	"time"

	"github.com/bvk/dexbot/gobs"
	"github.com/bvk/dexbot/kvutil"
	"github.com/bvkgo/kv"
)

const JournalKeyspace = "/hub/big-trades"

// journalKey buckets the journal by market and day so that old entries can
// be inspected and purged independently.
func journalKey(market string, day time.Time) string {
	return path.Join(JournalKeyspace, market, day.UTC().Format("2006-01-02"))
}

// recordBigTrade appends a trade to the market's big trade journal, keeping
// only the most recent entries for the day.
func (h *Hub) recordBigTrade(ctx context.Context, trade *gobs.BigTrade) error {
	if h.db == nil {
		return nil
	}
	key := journalKey(trade.Market, trade.At.Time)
	record := func(ctx context.Context, rw kv.ReadWriter) error {
		history, err := kvutil.Get[gobs.BigTradeHistory](ctx, rw, key)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return err
			}
			history = new(gobs.BigTradeHistory)
		}
		history.Trades = append(history.Trades, trade)
		if n := len(history.Trades); n > h.opts.BigTradeHistoryLimit {
			history.Trades = history.Trades[n-h.opts.BigTradeHistoryLimit:]
		}
		return kvutil.Set(ctx, rw, key, history)
	}
	return kv.WithReadWriter(ctx, h.db, record)
}

// BigTrades returns all journaled large trades for the market across days,
// oldest day first.
func (h *Hub) BigTrades(ctx context.Context) ([]*gobs.BigTrade, error) {
	if h.db == nil {
		return nil, nil
	}
	var trades []*gobs.BigTrade
	begin, end := kvutil.PathRange(path.Join(JournalKeyspace, h.market))
	collect := func(ctx context.Context, r kv.Reader, key string, history *gobs.BigTradeHistory) error {
		trades = append(trades, history.Trades...)
		return nil
	}
	if err := kvutil.AscendDB(ctx, h.db, begin, end, collect); err != nil {
		return nil, err
	}
	return trades, nil
}
