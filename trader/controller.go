// Copyright (c) 2023 BVK Chaitanya

// Package trader runs the position lifecycle: FLAT, OPENING, OPEN, CLOSING
// and back to FLAT. Open and close intents come from outside; the controller
// owns exit rule evaluation, state persistence and reconciliation against
// the exchange.
package trader

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path"
	"sync"
	"time"

	"github.com/bvk/dexbot/ctxutil"
	"github.com/bvk/dexbot/exchange"
	"github.com/bvk/dexbot/gateway"
	"github.com/bvk/dexbot/gobs"
	"github.com/bvk/dexbot/idgen"
	"github.com/bvk/dexbot/kvutil"
	"github.com/bvkgo/kv"
	"github.com/bvkgo/topic"
	"github.com/shopspring/decimal"
)

const (
	StateFlat    = "FLAT"
	StateOpening = "OPENING"
	StateOpen    = "OPEN"
	StateClosing = "CLOSING"
)

// Notifier pushes trade results to an external channel. May be nil.
type Notifier interface {
	SendMessage(ctx context.Context, text string) error
}

const StateKeyspace = "/trader/state"
const TradesKeyspace = "/trader/trades"

func StateKey(market string) string {
	return path.Join(StateKeyspace, market)
}

// LoadState reads the persisted controller state. Returns a fresh FLAT
// state when none was saved yet, so callers can seed the client id
// generator before the controller exists.
func LoadState(ctx context.Context, db kv.Database, market string) (*gobs.ControllerState, error) {
	state, err := kvutil.GetDB[gobs.ControllerState](ctx, db, StateKey(market))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &gobs.ControllerState{State: StateFlat}, nil
		}
		return nil, err
	}
	return state, nil
}

type Controller struct {
	cg ctxutil.CloseGroup

	opts Options

	market string

	ex exchange.Exchange
	gw *gateway.Gateway

	ids *idgen.Generator

	db kv.Database

	notifier Notifier

	results *topic.Topic[*gobs.TradeRecord]

	timeNow func() time.Time

	mu    sync.Mutex
	state gobs.ControllerState
}

func New(ctx context.Context, ex exchange.Exchange, gw *gateway.Gateway, ids *idgen.Generator, db kv.Database, market string, notifier Notifier, opts *Options) (*Controller, error) {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()

	state, err := LoadState(ctx, db, market)
	if err != nil {
		return nil, fmt.Errorf("could not load controller state: %w", err)
	}

	c := &Controller{
		opts:     *opts,
		market:   market,
		ex:       ex,
		gw:       gw,
		ids:      ids,
		db:       db,
		notifier: notifier,
		results:  topic.New[*gobs.TradeRecord](),
		timeNow:  time.Now,
		state:    *state,
	}
	log.Printf("%s: controller starting in state %s", market, c.state.State)

	if err := c.Reconcile(ctx); err != nil {
		slog.Warn("initial reconciliation has failed", "market", market, "err", err)
	}

	c.cg.Go(c.run)
	return c, nil
}

func (c *Controller) Close() error {
	c.cg.Close()
	c.results.Close()
	return nil
}

// State returns a copy of the current controller state.
func (c *Controller) State() gobs.ControllerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Results subscribes to completed trade records.
func (c *Controller) Results() (*topic.Receiver[*gobs.TradeRecord], <-chan *gobs.TradeRecord, error) {
	return c.results.Subscribe(16, false)
}

func (c *Controller) saveState(ctx context.Context) error {
	c.mu.Lock()
	c.state.ClientIDOffset = c.ids.Offset()
	state := c.state
	c.mu.Unlock()
	return kvutil.SetDB(ctx, c.db, StateKey(c.market), &state)
}

func (c *Controller) setState(ctx context.Context, update func(s *gobs.ControllerState)) {
	c.mu.Lock()
	update(&c.state)
	c.mu.Unlock()
	if err := c.saveState(ctx); err != nil {
		slog.Error("could not persist controller state", "market", c.market, "err", err)
	}
}

// Open enters a position. Side is LONG or SHORT. Take-profit and stop-loss
// triggers may be zero to skip the protective orders.
func (c *Controller) Open(ctx context.Context, side string, size, takeProfit, stopLoss decimal.Decimal) error {
	c.mu.Lock()
	if c.state.State != StateFlat {
		defer c.mu.Unlock()
		return fmt.Errorf("cannot open from state %s", c.state.State)
	}
	c.state.State = StateOpening
	c.mu.Unlock()
	if err := c.saveState(ctx); err != nil {
		slog.Error("could not persist controller state", "market", c.market, "err", err)
	}

	orderSide := exchange.Buy
	if side == exchange.Short {
		orderSide = exchange.Sell
	}
	result, err := c.gw.Execute(ctx, &gateway.Request{
		Market: c.market,
		Side:   orderSide,
		Size:   size,
	})
	if err != nil || !result.Filled {
		c.setState(ctx, func(s *gobs.ControllerState) { s.State = StateFlat })
		if err != nil {
			return fmt.Errorf("could not open the position: %w", err)
		}
		return fmt.Errorf("open order was not filled: %s", result.Reason)
	}

	c.setState(ctx, func(s *gobs.ControllerState) {
		s.State = StateOpen
		s.Side = side
		s.Size = result.Size
		s.EntryPrice = result.Price
		s.EntryTime = gobs.RemoteTime{Time: c.timeNow()}
		s.PeakProfitPct = decimal.Zero
	})
	log.Printf("%s: opened %s %s at %s", c.market, side, result.Size, result.Price)
	c.notify(ctx, fmt.Sprintf("%s: opened %s %s at %s", c.market, side, result.Size, result.Price))

	if !takeProfit.IsZero() || !stopLoss.IsZero() {
		_, err := c.gw.SetConditionals(ctx, &gateway.ConditionalRequest{
			Market:     c.market,
			Reference:  result.Price,
			TakeProfit: takeProfit,
			StopLoss:   stopLoss,
		})
		if err != nil {
			slog.Error("could not place protective orders", "market", c.market, "err", err)
		}
	}
	return nil
}

// CloseNow closes the open position on an external intent.
func (c *Controller) CloseNow(ctx context.Context, urgent bool) error {
	return c.exit(ctx, ExitManual, urgent)
}

func (c *Controller) exit(ctx context.Context, reason string, urgent bool) error {
	c.mu.Lock()
	if c.state.State != StateOpen {
		defer c.mu.Unlock()
		return fmt.Errorf("cannot close from state %s", c.state.State)
	}
	c.state.State = StateClosing
	entry := c.state
	c.mu.Unlock()
	if err := c.saveState(ctx); err != nil {
		slog.Error("could not persist controller state", "market", c.market, "err", err)
	}

	if n, err := c.gw.CancelConditionals(ctx, c.market); err != nil {
		slog.Warn("could not cancel conditional orders before closing", "market", c.market, "err", err)
	} else if n > 0 {
		log.Printf("%s: canceled %d conditional orders before closing", c.market, n)
	}

	result, err := c.gw.Close(ctx, c.market, urgent)
	if err != nil {
		// Leave the position open; the next tick retries the exit.
		c.setState(ctx, func(s *gobs.ControllerState) { s.State = StateOpen })
		return fmt.Errorf("could not close the position: %w", err)
	}
	if !result.Filled {
		pos, perr := c.ex.GetPositionFresh(ctx, c.market)
		if perr == nil && pos.IsFlat() {
			// Somebody else flattened us, likely a triggered conditional.
			c.finishTrade(ctx, &entry, result.Price, reason, true)
			return nil
		}
		c.setState(ctx, func(s *gobs.ControllerState) { s.State = StateOpen })
		return fmt.Errorf("close order was not filled: %s", result.Reason)
	}

	c.finishTrade(ctx, &entry, result.Price, reason, false)
	return nil
}

func (c *Controller) finishTrade(ctx context.Context, entry *gobs.ControllerState, exitPrice decimal.Decimal, reason string, forced bool) {
	now := c.timeNow()
	record := &gobs.TradeRecord{
		Market:     c.market,
		Side:       entry.Side,
		Size:       entry.Size,
		EntryPrice: entry.EntryPrice,
		ExitPrice:  exitPrice,
		EntryTime:  entry.EntryTime,
		ExitTime:   gobs.RemoteTime{Time: now},
		ExitReason: reason,
		Forced:     forced,
	}
	if !exitPrice.IsZero() && !entry.EntryPrice.IsZero() {
		record.ProfitPct = profitPct(entry.Side, entry.EntryPrice, exitPrice)
		diff := exitPrice.Sub(entry.EntryPrice)
		if entry.Side == exchange.Short {
			diff = diff.Neg()
		}
		record.Profit = diff.Mul(entry.Size)
	}

	c.setState(ctx, func(s *gobs.ControllerState) {
		s.State = StateFlat
		s.Side = ""
		s.Size = decimal.Zero
		s.EntryPrice = decimal.Zero
		s.EntryTime = gobs.RemoteTime{}
		s.PeakProfitPct = decimal.Zero
	})

	key := path.Join(TradesKeyspace, c.market, now.UTC().Format(time.RFC3339Nano))
	if err := kvutil.SetDB(ctx, c.db, key, record); err != nil {
		slog.Error("could not journal the trade record", "market", c.market, "err", err)
	}

	c.results.SendCh() <- record
	log.Printf("%s: closed %s %s at %s (%s, profit %s%%)", c.market, record.Side, record.Size, exitPrice, reason, record.ProfitPct.StringFixed(3))
	c.notify(ctx, fmt.Sprintf("%s: closed %s %s at %s (%s, profit %s%%)", c.market, record.Side, record.Size, exitPrice, reason, record.ProfitPct.StringFixed(3)))
}

// Tick re-evaluates the exit rules against the current price.
func (c *Controller) Tick(ctx context.Context) error {
	c.mu.Lock()
	if c.state.State != StateOpen {
		c.mu.Unlock()
		return nil
	}
	side, entryPrice, entryTime, peak := c.state.Side, c.state.EntryPrice, c.state.EntryTime, c.state.PeakProfitPct
	c.mu.Unlock()

	price, err := c.ex.OraclePrice(ctx, c.market)
	if err != nil {
		return fmt.Errorf("could not fetch the oracle price: %w", err)
	}

	current := profitPct(side, entryPrice, price)
	if current.GreaterThan(peak) {
		peak = current
		c.setState(ctx, func(s *gobs.ControllerState) { s.PeakProfitPct = peak })
	}

	holding := c.timeNow().Sub(entryTime.Time)
	decision, ok := chooseExit(current, peak, holding, &c.opts)
	if !ok {
		return nil
	}
	log.Printf("%s: exit rule %s fired (profit %s%%, peak %s%%)", c.market, decision.Reason, current.StringFixed(3), peak.StringFixed(3))
	return c.exit(ctx, decision.Reason, decision.Urgent)
}

// Reconcile trues the controller state up against the exchange. The
// exchange always wins: a flat exchange position forces FLAT and sweeps any
// resting orders, an unexpected open position is adopted and a restart that
// interrupted an open or close resumes from the exchange-reported state.
func (c *Controller) Reconcile(ctx context.Context) error {
	pos, err := c.ex.GetPositionFresh(ctx, c.market)
	if err != nil {
		return fmt.Errorf("could not read the position: %w", err)
	}

	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	if pos.IsFlat() {
		switch state.State {
		case StateFlat:
			return nil
		case StateOpening:
			// A restart interrupted the open before any fill. Sweep whatever
			// the interrupted attempt left on the book and start over.
			slog.Warn("controller was interrupted while opening (forcing FLAT)", "market", c.market)
			c.sweepOrders(ctx)
			c.setState(ctx, func(s *gobs.ControllerState) {
				s.State = StateFlat
				s.Side = ""
				s.Size = decimal.Zero
				s.EntryPrice = decimal.Zero
				s.EntryTime = gobs.RemoteTime{}
				s.PeakProfitPct = decimal.Zero
			})
			return nil
		default:
			slog.Warn("exchange reports flat while the controller believes open (forcing FLAT)",
				"market", c.market, "state", state.State)
			c.sweepOrders(ctx)
			c.finishTrade(ctx, &state, decimal.Zero, ExitForced, true)
			return nil
		}
	}

	switch state.State {
	case StateFlat, StateOpening:
		slog.Warn("exchange reports an open position the controller does not track (adopting)",
			"market", c.market, "state", state.State, "side", pos.Side, "size", pos.Size)
		c.setState(ctx, func(s *gobs.ControllerState) {
			s.State = StateOpen
			s.Side = pos.Side
			s.Size = pos.Size
			s.EntryPrice = pos.EntryPrice
			s.EntryTime = gobs.RemoteTime{Time: c.timeNow()}
			s.PeakProfitPct = decimal.Zero
		})
	case StateClosing:
		// A restart interrupted the close while the position is still open.
		// Back to OPEN so the next tick re-evaluates the exits and retries.
		slog.Warn("controller was interrupted while closing (retrying the exit)", "market", c.market)
		c.setState(ctx, func(s *gobs.ControllerState) {
			s.State = StateOpen
			s.Size = pos.Size
		})
	}
	return nil
}

func (c *Controller) sweepOrders(ctx context.Context) {
	if n, err := c.gw.CancelAll(ctx, c.market); err != nil {
		slog.Warn("could not sweep resting orders", "market", c.market, "err", err)
	} else if n > 0 {
		log.Printf("%s: swept %d stale orders", c.market, n)
	}
}

func (c *Controller) run(ctx context.Context) {
	tick := time.NewTicker(c.opts.TickInterval)
	defer tick.Stop()
	reconcile := time.NewTicker(c.opts.ReconcileInterval)
	defer reconcile.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if err := c.Tick(ctx); err != nil && ctx.Err() == nil {
				slog.Warn("controller tick has failed", "market", c.market, "err", err)
			}
		case <-reconcile.C:
			if err := c.Reconcile(ctx); err != nil && ctx.Err() == nil {
				slog.Warn("reconciliation has failed", "market", c.market, "err", err)
			}
		}
	}
}

func (c *Controller) notify(ctx context.Context, text string) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.SendMessage(ctx, text); err != nil {
		slog.Warn("could not send a notification", "err", err)
	}
}

// Trades returns the journaled trade records for the market, oldest first.
func (c *Controller) Trades(ctx context.Context) ([]*gobs.TradeRecord, error) {
	var records []*gobs.TradeRecord
	begin, end := kvutil.PathRange(path.Join(TradesKeyspace, c.market))
	collect := func(ctx context.Context, r kv.Reader, key string, record *gobs.TradeRecord) error {
		records = append(records, record)
		return nil
	}
	if err := kvutil.AscendDB(ctx, c.db, begin, end, collect); err != nil {
		return nil, err
	}
	return records, nil
}
