// Copyright (c) 2023 BVK Chaitanya

package trader

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bvk/dexbot/exchange"
	"github.com/bvk/dexbot/gateway"
	"github.com/bvk/dexbot/gobs"
	"github.com/bvk/dexbot/idgen"
	"github.com/bvk/dexbot/kvutil"
	"github.com/bvkgo/kv"
	"github.com/bvkgo/kv/kvmemdb"
	"github.com/shopspring/decimal"
)

type fakeExchange struct {
	mu sync.Mutex

	market *gobs.Market

	bid, ask, oracle decimal.Decimal

	position *exchange.Position

	orders map[uint32]*exchange.Order

	conditionals []*exchange.ConditionalOrderRequest
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{
		market: &gobs.Market{
			Ticker:       "ETH-USD",
			Status:       "ACTIVE",
			TickSize:     decimal.RequireFromString("0.01"),
			StepSize:     decimal.RequireFromString("0.001"),
			MinOrderSize: decimal.RequireFromString("0.001"),
		},
		bid:    decimal.NewFromInt(104),
		ask:    decimal.NewFromInt(106),
		oracle: decimal.NewFromInt(105),
		orders: make(map[uint32]*exchange.Order),
	}
}

func (f *fakeExchange) Close() error         { return nil }
func (f *fakeExchange) ExchangeName() string { return "fake" }

func (f *fakeExchange) GetMarket(ctx context.Context, market string) (*gobs.Market, error) {
	return f.market, nil
}

func (f *fakeExchange) BestBidAsk(ctx context.Context, market string) (bid, ask decimal.Decimal, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bid, f.ask, nil
}

func (f *fakeExchange) OraclePrice(ctx context.Context, market string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.oracle, nil
}

func (f *fakeExchange) setOracle(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.oracle = decimal.RequireFromString(s)
}

func (f *fakeExchange) CreateLimitOrder(ctx context.Context, req *exchange.LimitOrderRequest) (*exchange.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Every order fills immediately at its limit price.
	order := &exchange.Order{
		OrderID:     exchange.OrderID(fmt.Sprintf("order-%d", req.ClientID)),
		ClientID:    req.ClientID,
		Market:      req.Market,
		Side:        req.Side,
		Category:    exchange.ShortTerm,
		Size:        req.Size,
		Price:       req.Price,
		Status:      "FILLED",
		Done:        true,
		FilledSize:  req.Size,
		FilledPrice: req.Price,
	}
	f.orders[req.ClientID] = order

	delta := req.Size
	if req.Side == exchange.Sell {
		delta = delta.Neg()
	}
	current := decimal.Zero
	if !f.position.IsFlat() {
		current = f.position.Size
		if f.position.Side == exchange.Short {
			current = current.Neg()
		}
	}
	total := current.Add(delta)
	if total.IsZero() {
		f.position = nil
	} else {
		side := exchange.Long
		if total.IsNegative() {
			side = exchange.Short
		}
		f.position = &exchange.Position{Market: req.Market, Side: side, Size: total.Abs(), EntryPrice: req.Price}
	}
	return order, nil
}

func (f *fakeExchange) CreateConditionalOrder(ctx context.Context, req *exchange.ConditionalOrderRequest) (*exchange.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conditionals = append(f.conditionals, req)
	order := &exchange.Order{
		OrderID:      exchange.OrderID(fmt.Sprintf("cond-%d", req.ClientID)),
		ClientID:     req.ClientID,
		Market:       req.Market,
		Side:         req.Side,
		Category:     exchange.Conditional,
		Size:         req.Size,
		Price:        req.LimitPrice,
		TriggerPrice: req.TriggerPrice,
		Status:       "UNTRIGGERED",
		ReduceOnly:   true,
	}
	f.orders[req.ClientID] = order
	return order, nil
}

func (f *fakeExchange) CancelOrder(ctx context.Context, order *exchange.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o, ok := f.orders[order.ClientID]; ok && !o.Done {
		o.Done, o.Status, o.DoneReason = true, "CANCELED", "CANCELED"
	}
	return nil
}

func (f *fakeExchange) GetOrder(ctx context.Context, market string, id exchange.OrderID) (*exchange.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.OrderID == id {
			return o, nil
		}
	}
	return nil, fmt.Errorf("order %q not found", id)
}

func (f *fakeExchange) GetOrderByClientID(ctx context.Context, market string, clientID uint32) (*exchange.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o, ok := f.orders[clientID]; ok {
		return o, nil
	}
	return nil, fmt.Errorf("order with client id %d not found", clientID)
}

func (f *fakeExchange) OpenOrders(ctx context.Context, market string) ([]*exchange.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var open []*exchange.Order
	for _, o := range f.orders {
		if !o.Done {
			open = append(open, o)
		}
	}
	return open, nil
}

func (f *fakeExchange) GetPosition(ctx context.Context, market string) (*exchange.Position, error) {
	return f.GetPositionFresh(ctx, market)
}

func (f *fakeExchange) GetPositionFresh(ctx context.Context, market string) (*exchange.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.position == nil {
		return nil, nil
	}
	p := *f.position
	return &p, nil
}

func (f *fakeExchange) flatten() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.position = nil
}

func (f *fakeExchange) IsDone(status string) bool {
	switch status {
	case "FILLED", "CANCELED", "BEST_EFFORT_CANCELED", "EXPIRED":
		return true
	}
	return false
}

func newTestController(t *testing.T, f *fakeExchange) *Controller {
	return newTestControllerDB(t, f, kvmemdb.New())
}

func newTestControllerDB(t *testing.T, f *fakeExchange, db kv.Database) *Controller {
	t.Helper()
	ctx := context.Background()

	ids := idgen.New("controller-test", 0)
	gw := gateway.New(f, nil, ids, &gateway.Options{
		FillPollInterval:    time.Millisecond,
		MakerAttemptTimeout: 5 * time.Millisecond,
		TakerPollTimeout:    5 * time.Millisecond,
	})

	// Long intervals keep the background loop quiet so tests drive Tick and
	// Reconcile directly.
	c, err := New(ctx, f, gw, ids, db, "ETH-USD", nil, &Options{
		TickInterval:      time.Hour,
		ReconcileInterval: time.Hour,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestOpenCloseLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFakeExchange()
	c := newTestController(t, f)

	recv, results, err := c.Results()
	if err != nil {
		t.Fatal(err)
	}
	defer recv.Unsubscribe()

	err = c.Open(ctx, exchange.Long, decimal.NewFromInt(1), decimal.NewFromInt(110), decimal.NewFromInt(100))
	if err != nil {
		t.Fatal(err)
	}

	state := c.State()
	if state.State != StateOpen || state.Side != exchange.Long {
		t.Fatalf("want an open long, got %+v", state)
	}
	if state.EntryPrice.String() != "105" {
		t.Fatalf("want entry at the maker price 105, got %s", state.EntryPrice)
	}
	if len(f.conditionals) != 2 {
		t.Fatalf("want protective TP and SL orders, got %d", len(f.conditionals))
	}

	// Opening twice is rejected.
	if err := c.Open(ctx, exchange.Long, decimal.NewFromInt(1), decimal.Zero, decimal.Zero); err == nil {
		t.Fatalf("want an error when opening from state OPEN")
	}

	if err := c.CloseNow(ctx, false); err != nil {
		t.Fatal(err)
	}
	if state := c.State(); state.State != StateFlat {
		t.Fatalf("want FLAT after closing, got %s", state.State)
	}
	if pos, _ := f.GetPositionFresh(ctx, "ETH-USD"); !pos.IsFlat() {
		t.Fatalf("exchange position was not closed: %+v", pos)
	}

	select {
	case record := <-results:
		if record.ExitReason != ExitManual || record.Forced {
			t.Fatalf("unexpected trade record %+v", record)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no trade record was emitted")
	}

	trades, err := c.Trades(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(trades) != 1 {
		t.Fatalf("want 1 journaled trade, got %d", len(trades))
	}
}

func TestTickTrailingStop(t *testing.T) {
	ctx := context.Background()
	f := newFakeExchange()
	c := newTestController(t, f)

	if err := c.Open(ctx, exchange.Long, decimal.NewFromInt(1), decimal.Zero, decimal.Zero); err != nil {
		t.Fatal(err)
	}

	// Entry at 105. Rally to about +2.9% records the peak.
	f.setOracle("108")
	if err := c.Tick(ctx); err != nil {
		t.Fatal(err)
	}
	if state := c.State(); state.State != StateOpen || state.PeakProfitPct.IsZero() {
		t.Fatalf("want an open position with a recorded peak, got %+v", state)
	}

	// Give back more than the trailing offset; the exit must fire.
	f.setOracle("106.3")
	if err := c.Tick(ctx); err != nil {
		t.Fatal(err)
	}
	if state := c.State(); state.State != StateFlat {
		t.Fatalf("want FLAT after the trailing stop, got %s", state.State)
	}

	trades, err := c.Trades(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(trades) != 1 || trades[0].ExitReason != ExitTrailingStop {
		t.Fatalf("want a %s trade, got %+v", ExitTrailingStop, trades)
	}
}

func TestReconcileForcesFlat(t *testing.T) {
	ctx := context.Background()
	f := newFakeExchange()
	c := newTestController(t, f)

	if err := c.Open(ctx, exchange.Long, decimal.NewFromInt(1), decimal.Zero, decimal.Zero); err != nil {
		t.Fatal(err)
	}

	// The exchange flattens us behind our back, e.g. a liquidation.
	f.flatten()

	if err := c.Reconcile(ctx); err != nil {
		t.Fatal(err)
	}
	if state := c.State(); state.State != StateFlat {
		t.Fatalf("the exchange says flat, controller must agree: %+v", state)
	}

	trades, err := c.Trades(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(trades) != 1 || !trades[0].Forced {
		t.Fatalf("want a forced trade record, got %+v", trades)
	}
}

func TestReconcileAdoptsPosition(t *testing.T) {
	ctx := context.Background()
	f := newFakeExchange()
	c := newTestController(t, f)

	f.mu.Lock()
	f.position = &exchange.Position{
		Market:     "ETH-USD",
		Side:       exchange.Short,
		Size:       decimal.NewFromInt(2),
		EntryPrice: decimal.NewFromInt(105),
	}
	f.mu.Unlock()

	if err := c.Reconcile(ctx); err != nil {
		t.Fatal(err)
	}
	state := c.State()
	if state.State != StateOpen || state.Side != exchange.Short || state.Size.String() != "2" {
		t.Fatalf("want the exchange position adopted, got %+v", state)
	}
}

func TestRestartDuringOpening(t *testing.T) {
	ctx := context.Background()
	f := newFakeExchange()

	// The previous run persisted OPENING and died before any fill.
	db := kvmemdb.New()
	seed := &gobs.ControllerState{State: StateOpening}
	if err := kvutil.SetDB(ctx, db, StateKey("ETH-USD"), seed); err != nil {
		t.Fatal(err)
	}

	c := newTestControllerDB(t, f, db)

	if state := c.State(); state.State != StateFlat {
		t.Fatalf("want FLAT after restarting an interrupted open, got %s", state.State)
	}

	// The controller must be able to trade again.
	if err := c.Open(ctx, exchange.Long, decimal.NewFromInt(1), decimal.Zero, decimal.Zero); err != nil {
		t.Fatal(err)
	}
	if state := c.State(); state.State != StateOpen {
		t.Fatalf("want OPEN after the new intent, got %s", state.State)
	}
}

func TestRestartDuringOpeningWithFill(t *testing.T) {
	ctx := context.Background()
	f := newFakeExchange()

	// The open order filled right before the crash, so the exchange has a
	// position while only OPENING was persisted.
	f.mu.Lock()
	f.position = &exchange.Position{
		Market:     "ETH-USD",
		Side:       exchange.Long,
		Size:       decimal.NewFromInt(1),
		EntryPrice: decimal.NewFromInt(105),
	}
	f.mu.Unlock()

	db := kvmemdb.New()
	seed := &gobs.ControllerState{State: StateOpening}
	if err := kvutil.SetDB(ctx, db, StateKey("ETH-USD"), seed); err != nil {
		t.Fatal(err)
	}

	c := newTestControllerDB(t, f, db)

	state := c.State()
	if state.State != StateOpen || state.Side != exchange.Long || state.Size.String() != "1" {
		t.Fatalf("want the filled open adopted as OPEN, got %+v", state)
	}
	if err := c.CloseNow(ctx, false); err != nil {
		t.Fatal(err)
	}
	if state := c.State(); state.State != StateFlat {
		t.Fatalf("want FLAT after closing, got %s", state.State)
	}
}

func TestRestartDuringClosing(t *testing.T) {
	ctx := context.Background()
	f := newFakeExchange()

	f.mu.Lock()
	f.position = &exchange.Position{
		Market:     "ETH-USD",
		Side:       exchange.Long,
		Size:       decimal.NewFromInt(1),
		EntryPrice: decimal.NewFromInt(105),
	}
	f.mu.Unlock()

	// The previous run persisted CLOSING but the close never went through.
	db := kvmemdb.New()
	seed := &gobs.ControllerState{
		State:      StateClosing,
		Side:       exchange.Long,
		Size:       decimal.NewFromInt(1),
		EntryPrice: decimal.NewFromInt(105),
		EntryTime:  gobs.RemoteTime{Time: time.Now()},
	}
	if err := kvutil.SetDB(ctx, db, StateKey("ETH-USD"), seed); err != nil {
		t.Fatal(err)
	}

	c := newTestControllerDB(t, f, db)

	if state := c.State(); state.State != StateOpen {
		t.Fatalf("want the interrupted close back in OPEN, got %s", state.State)
	}

	// The exit must be retryable.
	if err := c.CloseNow(ctx, false); err != nil {
		t.Fatal(err)
	}
	if state := c.State(); state.State != StateFlat {
		t.Fatalf("want FLAT after the retried close, got %s", state.State)
	}
	if pos, _ := f.GetPositionFresh(ctx, "ETH-USD"); !pos.IsFlat() {
		t.Fatalf("exchange position was not closed: %+v", pos)
	}
}
