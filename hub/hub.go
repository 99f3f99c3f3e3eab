// Copyright (c) 2023 BVK Chaitanya

// Package hub maintains a live market data view shared across all bot
// processes on the host. One process wins the writer lock and streams the
// order book and trades from the exchange, publishing a snapshot file that
// every other process follows. A follower promotes itself when the snapshot
// goes stale.
package hub

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/bvk/dexbot/ctxutil"
	"github.com/bvk/dexbot/dydx"
	"github.com/bvk/dexbot/gobs"
	"github.com/bvkgo/kv"
	"github.com/bvkgo/topic"
	"github.com/nightlyone/lockfile"
	"github.com/shirou/gopsutil/v4/process"
	"github.com/shopspring/decimal"
)

const (
	RoleOwner    = "OWNER"
	RoleFollower = "FOLLOWER"
)

// Feed is the streaming market data source. Satisfied by the exchange
// adapter. Candles and RecentTrades prime the owner's history over REST
// before the stream catches up.
type Feed interface {
	Watch(channel, market string) (*topic.Receiver[*dydx.FeedMessage], <-chan *dydx.FeedMessage, error)

	Candles(ctx context.Context, market string, limit int) ([]*gobs.Candle, error)
	RecentTrades(ctx context.Context, market string, limit int) ([]*dydx.FeedTrade, error)
}

type Hub struct {
	cg ctxutil.CloseGroup

	opts Options

	feed Feed
	db   kv.Database

	market string

	flock lockfile.Lockfile

	timeNow func() time.Time

	updates *topic.Topic[*Snapshot]

	mu          sync.Mutex
	role        string
	view        *Snapshot
	lastGood    time.Time
	lastPromote time.Time

	recentTrades []*dydx.FeedTrade
	bigTrades    []*gobs.BigTrade
	candles      []*gobs.Candle
}

func New(ctx context.Context, feed Feed, db kv.Database, market string, opts *Options) (*Hub, error) {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	if len(opts.SnapshotPath) == 0 || len(opts.LockPath) == 0 {
		return nil, fmt.Errorf("snapshot and lock paths are required")
	}

	flock, err := lockfile.New(opts.LockPath)
	if err != nil {
		return nil, fmt.Errorf("could not create lock file %q: %w", opts.LockPath, err)
	}

	h := &Hub{
		opts:    *opts,
		feed:    feed,
		db:      db,
		market:  market,
		flock:   flock,
		timeNow: time.Now,
		role:    RoleFollower,
		updates: topic.New[*Snapshot](),
	}
	h.cg.Go(h.run)
	return h, nil
}

func (h *Hub) Close() error {
	h.cg.Close()
	h.updates.Close()
	if h.Role() == RoleOwner {
		if err := h.flock.Unlock(); err != nil {
			slog.Warn("could not release the writer lock", "err", err)
		}
	}
	return nil
}

func (h *Hub) Role() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.role
}

func (h *Hub) setRole(role string) {
	h.mu.Lock()
	h.role = role
	h.mu.Unlock()
	log.Printf("market data hub for %s is now a %s", h.market, role)
}

// View returns the latest market data snapshot and its staleness.
func (h *Hub) View() (*Snapshot, time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.view == nil {
		return nil, 0
	}
	v := *h.view
	return &v, h.view.Age(h.timeNow())
}

// BestBidAsk returns the top of the book from the current view. Returns
// false when no fresh snapshot is available.
func (h *Hub) BestBidAsk() (bid, ask decimal.Decimal, ok bool) {
	view, age := h.View()
	if view == nil || age > h.opts.StaleThreshold {
		return bid, ask, false
	}
	if len(view.Bids) == 0 || len(view.Asks) == 0 {
		return bid, ask, false
	}
	return view.Bids[0].Price, view.Asks[0].Price, true
}

// Updates subscribes to in-process snapshot updates.
func (h *Hub) Updates() (*topic.Receiver[*Snapshot], <-chan *Snapshot, error) {
	return h.updates.Subscribe(16, true /* includeRecent */)
}

// RecentTrades returns the most recent public trades, oldest first.
func (h *Hub) RecentTrades() []*dydx.FeedTrade {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*dydx.FeedTrade{}, h.recentTrades...)
}

// RecentBigTrades returns the most recent threshold-crossing trades.
func (h *Hub) RecentBigTrades() []*gobs.BigTrade {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*gobs.BigTrade{}, h.bigTrades...)
}

// PriceChangePct reports the percent change between the candle close from
// roughly the given duration ago and the latest close. Returns false when
// not enough candles are cached.
func (h *Hub) PriceChangePct(period time.Duration) (decimal.Decimal, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.candles) < 2 {
		return decimal.Zero, false
	}
	last := h.candles[len(h.candles)-1]
	cutoff := last.StartTime.Add(-period)

	var base *gobs.Candle
	for _, c := range h.candles {
		if !c.StartTime.Before(cutoff) {
			base = c
			break
		}
	}
	if base == nil || base == last || base.Close.IsZero() {
		return decimal.Zero, false
	}
	hundred := decimal.NewFromInt(100)
	return last.Close.Sub(base.Close).Div(base.Close).Mul(hundred), true
}

// setView records the latest snapshot and reports whether it advanced past
// the previous one.
func (h *Hub) setView(s *Snapshot) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.view = s
	if s.UpdatedAt.After(h.lastGood) {
		h.lastGood = s.UpdatedAt
		return true
	}
	return false
}

func (h *Hub) run(ctx context.Context) {
	for ctx.Err() == nil {
		if err := h.flock.TryLock(); err == nil {
			h.setRole(RoleOwner)
			if err := h.runOwner(ctx); err != nil && ctx.Err() == nil {
				slog.Error("owner loop has failed (will demote)", "market", h.market, "err", err)
			}
			if err := h.flock.Unlock(); err != nil {
				slog.Warn("could not release the writer lock", "err", err)
			}
			h.setRole(RoleFollower)
			continue
		}
		h.runFollower(ctx)
	}
}

// runOwner streams the order book and trades and publishes the snapshot
// file until the context is canceled or the feed fails.
func (h *Hub) runOwner(ctx context.Context) error {
	bookRecv, bookCh, err := h.feed.Watch("orderbook", h.market)
	if err != nil {
		return fmt.Errorf("could not watch the order book: %w", err)
	}
	defer bookRecv.Unsubscribe()

	tradesRecv, tradesCh, err := h.feed.Watch("trades", h.market)
	if err != nil {
		return fmt.Errorf("could not watch trades: %w", err)
	}
	defer tradesRecv.Unsubscribe()

	candlesRecv, candlesCh, err := h.feed.Watch("candles", h.market)
	if err != nil {
		return fmt.Errorf("could not watch candles: %w", err)
	}
	defer candlesRecv.Unsubscribe()

	h.seedHistory(ctx)

	book := NewBook()
	vol := newVolumeTracker(h.opts.VolumeWindow)

	ticker := time.NewTicker(h.opts.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)

		case msg, ok := <-bookCh:
			if !ok {
				return fmt.Errorf("order book feed was closed")
			}
			if msg.Snapshot {
				book.Reset(msg.Bids, msg.Asks)
			} else {
				book.Apply(msg.Bids, msg.Asks)
			}
			if removed := book.RepairCrossed(); removed > 0 {
				slog.Warn("order book was crossed", "market", h.market, "removed-levels", removed)
			}

		case msg, ok := <-tradesCh:
			if !ok {
				return fmt.Errorf("trades feed was closed")
			}
			h.handleTrades(ctx, msg, vol)

		case msg, ok := <-candlesCh:
			if !ok {
				return fmt.Errorf("candles feed was closed")
			}
			h.handleCandles(msg)

		case <-ticker.C:
			if err := h.publish(book, vol); err != nil {
				slog.Error("could not publish market data snapshot", "err", err)
			}
		}
	}
}

const tradeRingSize = 100

// seedHistory primes the candle cache and the recent trades ring over REST
// so that price-change and trade queries have data before the streaming feed
// accumulates any. A repromoted owner keeps what it already has.
func (h *Hub) seedHistory(ctx context.Context) {
	h.mu.Lock()
	seeded := len(h.candles) > 0 || len(h.recentTrades) > 0
	h.mu.Unlock()
	if seeded {
		return
	}

	candles, err := h.feed.Candles(ctx, h.market, 120)
	if err != nil {
		slog.Warn("could not seed the candle history", "market", h.market, "err", err)
	}
	trades, err := h.feed.RecentTrades(ctx, h.market, tradeRingSize)
	if err != nil {
		slog.Warn("could not seed recent trades", "market", h.market, "err", err)
	}

	h.mu.Lock()
	if len(h.candles) == 0 {
		h.candles = candles
	}
	if len(h.recentTrades) == 0 {
		h.recentTrades = trades
	}
	h.mu.Unlock()
}

func (h *Hub) handleTrades(ctx context.Context, msg *dydx.FeedMessage, vol *volumeTracker) {
	for _, t := range msg.Trades {
		notional := t.Price.Mul(t.Size)
		vol.Add(t.Side, notional.InexactFloat64())

		h.mu.Lock()
		h.recentTrades = appendRing(h.recentTrades, t, tradeRingSize)
		h.mu.Unlock()

		if notional.GreaterThanOrEqual(h.opts.BigTradeNotional) {
			trade := &gobs.BigTrade{
				Market:   h.market,
				Side:     t.Side,
				Price:    t.Price,
				Size:     t.Size,
				Notional: notional,
				At:       gobs.RemoteTime{Time: t.At},
			}
			h.mu.Lock()
			h.bigTrades = appendRing(h.bigTrades, trade, tradeRingSize)
			h.mu.Unlock()

			if err := h.recordBigTrade(ctx, trade); err != nil {
				slog.Warn("could not journal a big trade", "err", err)
			}
		}
	}
}

func (h *Hub) handleCandles(msg *dydx.FeedMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range msg.Candles {
		// Candles arrive repeatedly while still forming; replace in place.
		if n := len(h.candles); n > 0 && h.candles[n-1].StartTime.Equal(c.StartTime.Time) {
			h.candles[n-1] = c
			continue
		}
		h.candles = appendRing(h.candles, c, 120)
	}
}

func appendRing[T any](ring []T, v T, limit int) []T {
	ring = append(ring, v)
	if len(ring) > limit {
		ring = ring[len(ring)-limit:]
	}
	return ring
}

func (h *Hub) publish(book *Book, vol *volumeTracker) error {
	buy, sell, count := vol.Totals()
	s := &Snapshot{
		Market:     h.market,
		OwnerPID:   os.Getpid(),
		UpdatedAt:  h.timeNow(),
		Bids:       book.Bids(h.opts.TopLevels),
		Asks:       book.Asks(h.opts.TopLevels),
		BuyVolume:  buy,
		SellVolume: sell,
		TradeCount: count,
	}
	if err := WriteSnapshot(h.opts.SnapshotPath, s); err != nil {
		return err
	}
	h.setView(s)
	h.updates.SendCh() <- s
	return nil
}

// runFollower polls the snapshot file until it goes stale, then returns so
// that the main loop can attempt a promotion.
func (h *Hub) runFollower(ctx context.Context) {
	for ctx.Err() == nil {
		if s, err := ReadSnapshot(h.opts.SnapshotPath); err == nil {
			if h.setView(s) {
				h.updates.SendCh() <- s
			}
		}

		h.mu.Lock()
		staleness := h.timeNow().Sub(h.lastGood)
		throttled := h.timeNow().Sub(h.lastPromote) < h.opts.PromoteThrottle
		h.mu.Unlock()

		if staleness > h.opts.StaleThreshold && !throttled {
			h.mu.Lock()
			h.lastPromote = h.timeNow()
			h.mu.Unlock()

			slog.Warn("market data snapshot is stale (attempting promotion)", "market", h.market, "staleness", staleness)
			if staleness > h.opts.ForceClearThreshold {
				h.maybeForceClear()
			}
			return
		}

		ctxutil.Sleep(ctx, h.opts.FollowerPollInterval)
	}
}

// maybeForceClear removes the writer lock file when its owner process is
// confirmed dead. A live owner is never preempted, no matter how stale the
// snapshot is.
func (h *Hub) maybeForceClear() {
	owner, err := h.flock.GetOwner()
	if err != nil {
		if errors.Is(err, lockfile.ErrDeadOwner) || errors.Is(err, lockfile.ErrInvalidPid) {
			slog.Warn("removing the lock file of a dead owner", "lock", h.opts.LockPath)
			if err := os.Remove(h.opts.LockPath); err != nil && !os.IsNotExist(err) {
				slog.Error("could not remove the stale lock file", "err", err)
			}
		}
		return
	}

	alive, err := process.PidExists(int32(owner.Pid))
	if err != nil {
		slog.Warn("could not check lock owner liveness", "pid", owner.Pid, "err", err)
		return
	}
	if alive {
		return
	}

	slog.Warn("removing the writer lock of a dead process", "pid", owner.Pid, "lock", h.opts.LockPath)
	if err := os.Remove(h.opts.LockPath); err != nil && !os.IsNotExist(err) {
		slog.Error("could not remove the stale lock file", "err", err)
	}
}
