// Copyright (c) 2023 BVK Chaitanya

package internal

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

type MarketData struct {
	Ticker string `json:"ticker"`
	Status string `json:"status"`

	OraclePrice decimal.Decimal `json:"oraclePrice"`

	PriceChange24H decimal.Decimal `json:"priceChange24H"`
	Volume24H      decimal.Decimal `json:"volume24H"`

	TickSize     decimal.Decimal `json:"tickSize"`
	StepSize     decimal.Decimal `json:"stepSize"`
	MinOrderSize decimal.Decimal `json:"minOrderSize"`

	ClobPairID       string `json:"clobPairId"`
	AtomicResolution int32  `json:"atomicResolution"`

	NextFundingRate decimal.Decimal `json:"nextFundingRate"`
	OpenInterest    decimal.Decimal `json:"openInterest"`
}

type MarketsResponse struct {
	Markets map[string]*MarketData `json:"markets"`
}

// BookLevelData is one price level of the order book. The indexer sends
// levels either as {"price": ..., "size": ...} objects or as positional
// ["price", "size"] pairs on the streaming feed, so both encodings are
// accepted.
type BookLevelData struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

func (v *BookLevelData) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '[' {
		var pair []string
		if err := json.Unmarshal(data, &pair); err != nil {
			return err
		}
		if len(pair) != 2 {
			return fmt.Errorf("price level array must have two items, got %d", len(pair))
		}
		price, err := decimal.NewFromString(pair[0])
		if err != nil {
			return fmt.Errorf("could not parse price level price %q: %w", pair[0], err)
		}
		size, err := decimal.NewFromString(pair[1])
		if err != nil {
			return fmt.Errorf("could not parse price level size %q: %w", pair[1], err)
		}
		v.Price, v.Size = price, size
		return nil
	}

	var obj struct {
		Price decimal.Decimal `json:"price"`
		Size  decimal.Decimal `json:"size"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	v.Price, v.Size = obj.Price, obj.Size
	return nil
}

type OrderbookResponse struct {
	Bids []BookLevelData `json:"bids"`
	Asks []BookLevelData `json:"asks"`
}

type TradeData struct {
	ID        string          `json:"id"`
	Side      string          `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Size      decimal.Decimal `json:"size"`
	Type      string          `json:"type"`
	CreatedAt string          `json:"createdAt"`
}

type TradesResponse struct {
	Trades []*TradeData `json:"trades"`
}

type CandleData struct {
	StartedAt string          `json:"startedAt"`
	Ticker    string          `json:"ticker"`
	Low       decimal.Decimal `json:"low"`
	High      decimal.Decimal `json:"high"`
	Open      decimal.Decimal `json:"open"`
	Close     decimal.Decimal `json:"close"`

	BaseTokenVolume decimal.Decimal `json:"baseTokenVolume"`
}

type CandlesResponse struct {
	Candles []*CandleData `json:"candles"`
}

type SubaccountResponse struct {
	Subaccount struct {
		Address          string          `json:"address"`
		SubaccountNumber int             `json:"subaccountNumber"`
		Equity           decimal.Decimal `json:"equity"`
		FreeCollateral   decimal.Decimal `json:"freeCollateral"`
	} `json:"subaccount"`
}

type PositionData struct {
	Market     string          `json:"market"`
	Status     string          `json:"status"`
	Side       string          `json:"side"`
	Size       decimal.Decimal `json:"size"`
	EntryPrice decimal.Decimal `json:"entryPrice"`
	ExitPrice  decimal.Decimal `json:"exitPrice"`

	UnrealizedPnl decimal.Decimal `json:"unrealizedPnl"`
	RealizedPnl   decimal.Decimal `json:"realizedPnl"`

	CreatedAt string `json:"createdAt"`
}

type PositionsResponse struct {
	Positions []*PositionData `json:"positions"`
}

type OrderData struct {
	ID       string `json:"id"`
	ClientID string `json:"clientId"`

	Ticker string `json:"ticker"`
	Side   string `json:"side"`
	Type   string `json:"type"`

	Size  decimal.Decimal `json:"size"`
	Price decimal.Decimal `json:"price"`

	TriggerPrice decimal.Decimal `json:"triggerPrice"`

	TotalFilled decimal.Decimal `json:"totalFilled"`

	Status      string `json:"status"`
	TimeInForce string `json:"timeInForce"`
	ReduceOnly  bool   `json:"reduceOnly"`
	OrderFlags  string `json:"orderFlags"`

	GoodTilBlock     string `json:"goodTilBlock"`
	GoodTilBlockTime string `json:"goodTilBlockTime"`

	CreatedAtHeight string `json:"createdAtHeight"`
	UpdatedAt       string `json:"updatedAt"`
}

type FillData struct {
	ID        string          `json:"id"`
	Side      string          `json:"side"`
	Liquidity string          `json:"liquidity"`
	Market    string          `json:"market"`
	Price     decimal.Decimal `json:"price"`
	Size      decimal.Decimal `json:"size"`
	Fee       decimal.Decimal `json:"fee"`
	OrderID   string          `json:"orderId"`
	CreatedAt string          `json:"createdAt"`
}

type FillsResponse struct {
	Fills []*FillData `json:"fills"`
}

type HeightResponse struct {
	Height string `json:"height"`
	Time   string `json:"time"`
}
