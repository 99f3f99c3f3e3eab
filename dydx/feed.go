// Copyright (c) 2023 BVK Chaitanya

package dydx

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"time"

	"github.com/bvk/dexbot/dydx/internal"
	"github.com/bvk/dexbot/exchange"
	"github.com/bvk/dexbot/gobs"
	"github.com/bvkgo/topic"
	"github.com/shopspring/decimal"
)

// FeedTrade is one public trade from the streaming feed.
type FeedTrade struct {
	Side string

	Price decimal.Decimal
	Size  decimal.Decimal

	At time.Time
}

// FeedMessage carries one streaming update for a single market. Snapshot is
// true on the first message after every (re)subscribe, in which case the
// receiver must discard its local state and rebuild from the message.
type FeedMessage struct {
	Channel string
	Market  string

	Snapshot bool

	Bids []exchange.BookLevel
	Asks []exchange.BookLevel

	Trades []*FeedTrade

	Candles []*gobs.Candle
}

type marketFeed struct {
	topic *topic.Topic[*FeedMessage]
	ws    *internal.Websocket
}

// Watch subscribes to a streaming channel for a market. Messages are fanned
// out over a topic, so multiple watchers share one websocket subscription.
// Valid channels are "orderbook", "trades" and "candles".
func (x *Exchange) Watch(channel, market string) (*topic.Receiver[*FeedMessage], <-chan *FeedMessage, error) {
	wsChannel, id := wsChannelID(channel, market)

	x.feedMu.Lock()
	defer x.feedMu.Unlock()

	key := wsChannel + "/" + id
	feed, ok := x.feedMap[key]
	if !ok {
		t := topic.New[*FeedMessage]()
		handler := func(msg *internal.WsMessage) {
			fm, err := feedMessage(channel, market, msg)
			if err != nil {
				slog.Warn("could not decode streaming message (dropped)", "channel", msg.Channel, "id", msg.ID, "err", err)
				return
			}
			t.SendCh() <- fm
		}
		feed = &marketFeed{
			topic: t,
			ws:    x.client.GetMessages(wsChannel, []string{id}, handler),
		}
		if x.feedMap == nil {
			x.feedMap = make(map[string]*marketFeed)
		}
		x.feedMap[key] = feed
	}

	return feed.topic.Subscribe(16, false /* includeRecent */)
}

func wsChannelID(channel, market string) (string, string) {
	switch channel {
	case "trades":
		return internal.ChannelTrades, market
	case "candles":
		// Candle subscriptions carry the resolution in the id.
		return internal.ChannelCandles, market + "/1MIN"
	default:
		return internal.ChannelOrderbook, market
	}
}

func feedMessage(channel, market string, msg *internal.WsMessage) (*FeedMessage, error) {
	fm := &FeedMessage{
		Channel:  channel,
		Market:   market,
		Snapshot: msg.IsSnapshot(),
	}

	switch channel {
	case "trades":
		var contents internal.TradesContents
		if err := json.Unmarshal(msg.Contents, &contents); err != nil {
			return nil, err
		}
		for _, t := range contents.Trades {
			fm.Trades = append(fm.Trades, feedTradeFromData(t))
		}

	case "candles":
		var contents internal.CandlesContents
		if err := json.Unmarshal(msg.Contents, &contents); err != nil {
			return nil, err
		}
		for _, c := range contents.Candles {
			candle, err := candleFromData(c)
			if err != nil {
				return nil, err
			}
			fm.Candles = append(fm.Candles, candle)
		}

	default:
		var contents internal.BookContents
		if err := json.Unmarshal(msg.Contents, &contents); err != nil {
			return nil, err
		}
		for _, b := range contents.Bids {
			fm.Bids = append(fm.Bids, exchange.BookLevel{Price: b.Price, Size: b.Size})
		}
		for _, a := range contents.Asks {
			fm.Asks = append(fm.Asks, exchange.BookLevel{Price: a.Price, Size: a.Size})
		}
	}
	return fm, nil
}

func feedTradeFromData(t *internal.TradeData) *FeedTrade {
	at, err := time.Parse(time.RFC3339, t.CreatedAt)
	if err != nil {
		at = time.Now()
	}
	return &FeedTrade{
		Side:  t.Side,
		Price: t.Price,
		Size:  t.Size,
		At:    at,
	}
}

func candleFromData(c *internal.CandleData) (*gobs.Candle, error) {
	start, err := time.Parse(time.RFC3339, c.StartedAt)
	if err != nil {
		return nil, err
	}
	return &gobs.Candle{
		StartTime: gobs.RemoteTime{Time: start},
		Duration:  time.Minute,
		Low:       c.Low,
		High:      c.High,
		Open:      c.Open,
		Close:     c.Close,
		Volume:    c.BaseTokenVolume,
	}, nil
}

// Candles returns up to limit recent 1-minute candles over REST, oldest
// first. Used to prime candle history before the stream catches up.
func (x *Exchange) Candles(ctx context.Context, market string, limit int) ([]*gobs.Candle, error) {
	if err := x.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := x.client.GetCandles(ctx, market, "1MIN", limit)
	if err != nil {
		return nil, err
	}
	candles := make([]*gobs.Candle, 0, len(resp.Candles))
	for _, c := range resp.Candles {
		candle, err := candleFromData(c)
		if err != nil {
			slog.Warn("skipping a candle that could not be converted", "market", market, "err", err)
			continue
		}
		candles = append(candles, candle)
	}
	// The indexer returns newest first.
	slices.Reverse(candles)
	return candles, nil
}

// RecentTrades returns up to limit recent public trades over REST, oldest
// first.
func (x *Exchange) RecentTrades(ctx context.Context, market string, limit int) ([]*FeedTrade, error) {
	if err := x.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := x.client.GetTrades(ctx, market, limit)
	if err != nil {
		return nil, err
	}
	trades := make([]*FeedTrade, 0, len(resp.Trades))
	for _, t := range resp.Trades {
		trades = append(trades, feedTradeFromData(t))
	}
	slices.Reverse(trades)
	return trades, nil
}
