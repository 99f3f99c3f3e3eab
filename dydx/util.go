// Copyright (c) 2023 BVK Chaitanya

package dydx

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bvk/dexbot/dydx/internal"
	"github.com/bvk/dexbot/exchange"
	"github.com/bvk/dexbot/gobs"
)

// Order flag values on the wire. Short term orders live in-memory on the
// validators and expire by block height; the other two are stateful and
// expire by block time.
const (
	orderFlagsShortTerm   = 0
	orderFlagsConditional = 32
	orderFlagsLongTerm    = 64
)

func categoryFromFlags(flags string) (exchange.Category, error) {
	switch flags {
	case "0":
		return exchange.ShortTerm, nil
	case "32":
		return exchange.Conditional, nil
	case "64":
		return exchange.LongTerm, nil
	}
	return "", fmt.Errorf("unknown order flags value %q", flags)
}

func orderFromData(d *internal.OrderData) (*exchange.Order, error) {
	clientID, err := strconv.ParseUint(d.ClientID, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("could not parse client id %q: %w", d.ClientID, err)
	}
	category, err := categoryFromFlags(d.OrderFlags)
	if err != nil {
		return nil, err
	}

	order := &exchange.Order{
		OrderID:      exchange.OrderID(d.ID),
		ClientID:     uint32(clientID),
		Market:       d.Ticker,
		Side:         d.Side,
		Category:     category,
		Size:         d.Size,
		Price:        d.Price,
		TriggerPrice: d.TriggerPrice,
		FilledSize:   d.TotalFilled,
		Status:       d.Status,
		ReduceOnly:   d.ReduceOnly,
	}
	if len(d.GoodTilBlock) != 0 {
		v, err := strconv.ParseInt(d.GoodTilBlock, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("could not parse good-til-block %q: %w", d.GoodTilBlock, err)
		}
		order.GoodTilBlock = v
	}
	if len(d.GoodTilBlockTime) != 0 {
		v, err := time.Parse(time.RFC3339, d.GoodTilBlockTime)
		if err != nil {
			return nil, fmt.Errorf("could not parse good-til-block-time %q: %w", d.GoodTilBlockTime, err)
		}
		order.GoodTilTime = v
	}

	switch d.Status {
	case "FILLED", "CANCELED", "BEST_EFFORT_CANCELED", "EXPIRED":
		order.Done = true
		order.DoneReason = d.Status
		if len(d.UpdatedAt) != 0 {
			if at, err := time.Parse(time.RFC3339, d.UpdatedAt); err == nil {
				order.FinishTime = gobs.RemoteTime{Time: at}
			}
		}
	}
	return order, nil
}

// isOrderGone recognizes cancel rejections caused by the order being already
// filled, canceled or expired on the exchange side.
func isOrderGone(r *internal.TxResult) bool {
	log := strings.ToLower(r.RawLog)
	return strings.Contains(log, "does not exist") ||
		strings.Contains(log, "not found") ||
		strings.Contains(log, "already been removed")
}
