// Copyright (c) 2023 BVK Chaitanya

package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bvk/dexbot/ctxutil"
	"github.com/gorilla/websocket"
)

const (
	ChannelTrades    = "v4_trades"
	ChannelOrderbook = "v4_orderbook"
	ChannelCandles   = "v4_candles"
)

// WsMessage is a single message from the indexer streaming feed. The server
// responds to a subscription with one "subscribed" message carrying a full
// snapshot, followed by "channel_data" messages carrying deltas.
type WsMessage struct {
	Type string `json:"type"`

	// Message holds description when Type is "error".
	Message string `json:"message"`

	Channel string `json:"channel"`
	ID      string `json:"id"`

	Contents json.RawMessage `json:"contents"`
}

// IsSnapshot returns true for the initial full-state message of a channel.
func (m *WsMessage) IsSnapshot() bool {
	return m.Type == "subscribed"
}

type wsRequest struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
	ID      string `json:"id,omitempty"`

	Batched bool `json:"batched,omitempty"`
}

// BookContents is the order book payload in both snapshot and delta
// messages. Delta levels with a zero size remove the price level.
type BookContents struct {
	Bids []BookLevelData `json:"bids"`
	Asks []BookLevelData `json:"asks"`
}

type TradesContents struct {
	Trades []*TradeData `json:"trades"`
}

type CandlesContents struct {
	Candles []*CandleData `json:"candles"`
}

type Websocket struct {
	client *Client

	mu sync.Mutex

	dirty      atomic.Bool
	channelIDs map[string][]string
}

func (c *Client) newWebsocket() *Websocket {
	return &Websocket{
		client:     c,
		channelIDs: make(map[string][]string),
	}
}

func (w *Websocket) Close() {
	w.mu.Lock()
	w.channelIDs = make(map[string][]string)
	w.dirty.Store(true)
	w.mu.Unlock()
}

func (w *Websocket) dial(ctx context.Context) (*websocket.Conn, error) {
	var dialer websocket.Dialer
	conn, _, err := dialer.DialContext(ctx, "wss://"+w.client.opts.WebsocketHostname, nil)
	if err != nil {
		slog.Error("could not dial to websocket feed", "err", err)
		return nil, err
	}
	return conn, nil
}

func (w *Websocket) Subscribe(channel, id string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	old := w.channelIDs[channel]
	if !slices.Contains(old, id) {
		w.channelIDs[channel] = append(slices.Clone(old), id)
		w.dirty.Store(true)
	}
}

func (w *Websocket) Unsubscribe(channel, id string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	old := w.channelIDs[channel]
	if i := slices.Index(old, id); i >= 0 {
		w.channelIDs[channel] = slices.Delete(slices.Clone(old), i, i+1)
		w.dirty.Store(true)
	}
}

func (w *Websocket) diff(oldMap map[string][]string) (newMap, subMap, unsubMap map[string][]string) {
	w.mu.Lock()
	newMap = make(map[string][]string)
	for k, v := range w.channelIDs {
		newMap[k] = slices.Clone(v)
	}
	w.dirty.Store(false)
	w.mu.Unlock()

	subSlice := func(a, b []string) []string {
		var vs []string
		for _, v := range a {
			if !slices.Contains(b, v) {
				vs = append(vs, v)
			}
		}
		return vs
	}

	subMap = make(map[string][]string)
	unsubMap = make(map[string][]string)
	for k, new := range newMap {
		if ids := subSlice(new, oldMap[k]); len(ids) > 0 {
			subMap[k] = ids
		}
	}
	for k, old := range oldMap {
		if ids := subSlice(old, newMap[k]); len(ids) > 0 {
			unsubMap[k] = ids
		}
	}
	return newMap, subMap, unsubMap
}

func readMessage(ctx context.Context, conn *websocket.Conn) (*WsMessage, error) {
	stopc := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
		close(stopc)
	})

	_, msg, err := conn.ReadMessage()
	if !stop() {
		// The AfterFunc was started. Wait for it to complete, and reset the
		// Conn's deadline.
		<-stopc
		conn.SetReadDeadline(time.Time{})
		return nil, context.Cause(ctx)
	}
	if err != nil {
		slog.Error("could not read websocket message", "err", err)
		return nil, err
	}

	m := new(WsMessage)
	if err := json.Unmarshal(msg, m); err != nil {
		slog.Error("could not unmarshal websocket message", "err", err)
		return nil, err
	}

	if m.Type == "error" {
		slog.Warn(fmt.Sprintf("received a websocket error message: %#v", *m))
		return nil, fmt.Errorf("%s", m.Message)
	}
	return m, nil
}

type MessageHandler = func(*WsMessage)

// GetMessages opens a streaming connection for the requested channel ids and
// invokes the handler for every incoming message. The connection is redialed
// with all active subscriptions whenever it breaks, so the handler sees a
// fresh "subscribed" snapshot after every reconnect.
func (c *Client) GetMessages(channel string, ids []string, handler MessageHandler) *Websocket {
	w := c.newWebsocket()
	for _, id := range ids {
		w.Subscribe(channel, id)
	}

	dispatch := func(ctx context.Context) error {
		conn, err := w.dial(ctx)
		if err != nil {
			slog.Warn(fmt.Sprintf("could not open new websocket (will retry): %v", err))
			return err
		}
		defer conn.Close()

		channelIDs := make(map[string][]string)

		for ctx.Err() == nil {
			if w.dirty.Load() {
				clone, subs, unsubs := w.diff(channelIDs)
				for ch, ids := range unsubs {
					for _, id := range ids {
						req := &wsRequest{Type: "unsubscribe", Channel: ch, ID: id}
						if err := conn.WriteJSON(req); err != nil {
							slog.Error("could not unsubscribe from channel", "channel", ch, "id", id, "err", err)
							return err
						}
					}
				}
				for ch, ids := range subs {
					for _, id := range ids {
						req := &wsRequest{Type: "subscribe", Channel: ch, ID: id, Batched: true}
						if err := conn.WriteJSON(req); err != nil {
							slog.Error("could not subscribe to channel", "channel", ch, "id", id, "err", err)
							return err
						}
					}
				}
				channelIDs = clone
				if len(clone) == 0 {
					break
				}
				log.Printf("websocket is updated to watch %v", clone)
			}

			msg, err := readMessage(ctx, conn)
			if err != nil {
				if ctx.Err() == nil {
					slog.Error("closing the websocket connection", "err", err)
				}
				return err
			}
			if msg.Type == "connected" {
				continue
			}
			handler(msg)
		}
		return context.Cause(ctx)
	}

	c.Go(func(ctx context.Context) {
		wait := c.opts.WebsocketRetryInterval
		for ctx.Err() == nil {
			w.dirty.Store(true)
			start := time.Now()
			if err := dispatch(ctx); err != nil && ctx.Err() == nil {
				if time.Since(start) > c.opts.MaxRetryWait {
					// The connection was held for a while; start over.
					wait = c.opts.WebsocketRetryInterval
				}
				ctxutil.Sleep(ctx, wait)
				wait = escalateWait(wait, c.opts.MaxRetryWait)
				continue
			}
			break
		}
	})

	return w
}

// escalateWait doubles the reconnect delay up to the cap, so a flapping feed
// cannot turn the redial loop into a hot loop.
func escalateWait(wait, max time.Duration) time.Duration {
	if wait *= 2; wait > max {
		return max
	}
	return wait
}
