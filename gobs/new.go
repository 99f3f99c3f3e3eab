// Copyright (c) 2023 BVK Chaitanya

package gobs

import (
	"fmt"
)

func NewByTypename(typename string) (any, error) {
	var v any
	switch typename {
	case "KeyValue":
		v = new(KeyValue)
	case "Market":
		v = new(Market)
	case "Candles":
		v = new(Candles)
	case "BigTradeHistory":
		v = new(BigTradeHistory)
	case "TradeRecord":
		v = new(TradeRecord)
	case "ControllerState":
		v = new(ControllerState)
	case "TelegramState":
		v = new(TelegramState)
	default:
		return nil, fmt.Errorf("unsupported type name %q", typename)
	}
	return v, nil
}
