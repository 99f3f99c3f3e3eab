// Copyright (c) 2023 BVK Chaitanya

package gobs

import (
	"time"

	"github.com/shopspring/decimal"
)

type RemoteTime struct {
	time.Time
}

type KeyValue struct {
	Key   string
	Value []byte
}

// Market holds static metadata for a perpetual market.
type Market struct {
	Ticker string
	Status string

	OraclePrice decimal.Decimal

	TickSize     decimal.Decimal
	StepSize     decimal.Decimal
	MinOrderSize decimal.Decimal

	ClobPairID       string
	AtomicResolution int32
}

type Candle struct {
	StartTime RemoteTime
	Duration  time.Duration

	Low  decimal.Decimal
	High decimal.Decimal

	Open  decimal.Decimal
	Close decimal.Decimal

	Volume decimal.Decimal
}

type Candles struct {
	Candles []*Candle
}

// BigTrade records a single large trade observed on the market data stream.
type BigTrade struct {
	Market string
	Side   string

	Price decimal.Decimal
	Size  decimal.Decimal

	Notional decimal.Decimal

	At RemoteTime
}

type BigTradeHistory struct {
	Trades []*BigTrade
}

// TradeRecord summarizes one completed position round trip.
type TradeRecord struct {
	Market string
	Side   string

	Size decimal.Decimal

	EntryPrice decimal.Decimal
	ExitPrice  decimal.Decimal

	EntryTime RemoteTime
	ExitTime  RemoteTime

	Profit    decimal.Decimal
	ProfitPct decimal.Decimal

	ExitReason string

	// Forced is true when the exit was discovered through reconciliation
	// against the exchange instead of an order placed by us.
	Forced bool
}

// ControllerState is the persistent state of the position execution
// controller, saved across restarts.
type ControllerState struct {
	State string

	Side       string
	Size       decimal.Decimal
	EntryPrice decimal.Decimal
	EntryTime  RemoteTime

	PeakProfitPct decimal.Decimal

	ClientIDOffset uint64
}

type TelegramState struct {
	UserChatIDMap map[string]int64
}
