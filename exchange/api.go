// Copyright (c) 2023 BVK Chaitanya

package exchange

import (
	"context"
	"io"
	"time"

	"github.com/bvk/dexbot/gobs"
	"github.com/shopspring/decimal"
)

type OrderID string

const (
	Buy  = "BUY"
	Sell = "SELL"

	Long  = "LONG"
	Short = "SHORT"
)

// Category determines the protocol level lifecycle rules for an order.
// Short-term orders expire after a few blocks, long-term and conditional
// orders are kept by the chain until their good-til time.
type Category string

const (
	ShortTerm   Category = "SHORT_TERM"
	LongTerm    Category = "LONG_TERM"
	Conditional Category = "CONDITIONAL"
)

const (
	TifGTT      = "GTT"
	TifIOC      = "IOC"
	TifPostOnly = "POST_ONLY"
)

const (
	ConditionTakeProfit = "TAKE_PROFIT"
	ConditionStopLoss   = "STOP_LOSS"
)

type Order struct {
	OrderID OrderID

	ClientID uint32

	Market string
	Side   string

	Category Category

	Size  decimal.Decimal
	Price decimal.Decimal

	TriggerPrice decimal.Decimal

	FilledSize  decimal.Decimal
	FilledPrice decimal.Decimal

	Status string

	CreateTime gobs.RemoteTime
	FinishTime gobs.RemoteTime

	// GoodTilBlock is the expiry block height for short-term orders.
	// GoodTilTime is the expiry timestamp for long-term and conditional
	// orders. Only one of the two is set.
	GoodTilBlock int64
	GoodTilTime  time.Time

	ReduceOnly bool

	// Done is true if order is complete. DoneReason below indicates if order
	// has failed or succeeded.
	Done bool

	// When Done is true, an empty DoneReason value indicates a successfull
	// execution of the order and a non-empty DoneReason indicates a failure
	// with the reason for the failure.
	DoneReason string
}

func (v *Order) IsDone() bool {
	return v.Done
}

func (v *Order) Remaining() decimal.Decimal {
	return v.Size.Sub(v.FilledSize)
}

type Position struct {
	Market string

	// Side is LONG or SHORT.
	Side string

	Size       decimal.Decimal
	EntryPrice decimal.Decimal

	UnrealizedPnl decimal.Decimal

	UpdatedAt gobs.RemoteTime
}

// IsFlat returns true when there is no open position.
func (p *Position) IsFlat() bool {
	return p == nil || p.Size.IsZero()
}

type BookLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

type LimitOrderRequest struct {
	Market string

	ClientID uint32

	Side string

	Size  decimal.Decimal
	Price decimal.Decimal

	// TimeInForce is one of TifGTT, TifIOC or TifPostOnly.
	TimeInForce string

	ReduceOnly bool

	// GoodTilBlocks is the time-to-live in blocks for short-term orders.
	GoodTilBlocks int64
}

type ConditionalOrderRequest struct {
	Market string

	ClientID uint32

	Side string

	Size decimal.Decimal

	// ConditionType is ConditionTakeProfit or ConditionStopLoss.
	ConditionType string

	TriggerPrice decimal.Decimal
	LimitPrice   decimal.Decimal

	GoodTilTime time.Time
}

type Exchange interface {
	io.Closer

	ExchangeName() string

	GetMarket(ctx context.Context, market string) (*gobs.Market, error)
	BestBidAsk(ctx context.Context, market string) (bid, ask decimal.Decimal, err error)
	OraclePrice(ctx context.Context, market string) (decimal.Decimal, error)

	CreateLimitOrder(ctx context.Context, req *LimitOrderRequest) (*Order, error)
	CreateConditionalOrder(ctx context.Context, req *ConditionalOrderRequest) (*Order, error)
	CancelOrder(ctx context.Context, order *Order) error

	GetOrder(ctx context.Context, market string, id OrderID) (*Order, error)
	GetOrderByClientID(ctx context.Context, market string, clientID uint32) (*Order, error)
	OpenOrders(ctx context.Context, market string) ([]*Order, error)

	// GetPosition may return a cached value with a short TTL while
	// GetPositionFresh always queries the exchange.
	GetPosition(ctx context.Context, market string) (*Position, error)
	GetPositionFresh(ctx context.Context, market string) (*Position, error)

	IsDone(status string) bool
}
