// Copyright (c) 2023 BVK Chaitanya

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"

	"github.com/bvk/dexbot/exchange"
	"github.com/shopspring/decimal"
)

// ConditionalRequest attaches protective orders to the open position.
// Trigger prices left at zero are skipped. Reference is the price the
// triggers are validated against, normally the entry price.
type ConditionalRequest struct {
	Market string

	Reference decimal.Decimal

	TakeProfit decimal.Decimal
	StopLoss   decimal.Decimal
}

// SetConditionals replaces the position's protective orders. Existing
// conditionals are canceled first so the position is never covered twice.
// Order sizes are clamped to the exchange reported position size.
func (g *Gateway) SetConditionals(ctx context.Context, req *ConditionalRequest) ([]*exchange.Order, error) {
	pos, err := g.ex.GetPositionFresh(ctx, req.Market)
	if err != nil {
		return nil, fmt.Errorf("could not read the position: %w", err)
	}
	if pos.IsFlat() {
		return nil, fmt.Errorf("no open position in %s", req.Market)
	}

	m, err := g.ex.GetMarket(ctx, req.Market)
	if err != nil {
		return nil, err
	}

	if n, err := g.CancelConditionals(ctx, req.Market); err != nil {
		return nil, fmt.Errorf("could not cancel existing conditional orders: %w", err)
	} else if n > 0 {
		log.Printf("%s: canceled %d existing conditional orders", req.Market, n)
	}

	closeSide := exchange.Sell
	if pos.Side == exchange.Short {
		closeSide = exchange.Buy
	}
	size := quantizeSize(pos.Size, m.StepSize)

	var orders []*exchange.Order
	place := func(conditionType string, trigger decimal.Decimal) error {
		corrected := correctTrigger(pos.Side, conditionType, trigger, req.Reference, g.opts.TriggerNudgePct)
		if !corrected.Equal(trigger) {
			slog.Warn("conditional trigger was on the wrong side of the reference",
				"market", req.Market, "type", conditionType, "trigger", trigger, "reference", req.Reference, "corrected", corrected)
		}

		roundUp := closeSide == exchange.Sell
		triggerPrice := quantizePrice(corrected, m.TickSize, roundUp)
		limitPrice := triggerPrice
		if conditionType == exchange.ConditionStopLoss {
			// A stop-loss must actually execute when triggered; pad the limit
			// past the trigger in the direction of the close.
			if closeSide == exchange.Sell {
				limitPrice = quantizePrice(triggerPrice.Mul(one.Sub(g.opts.StopLimitSlippagePct)), m.TickSize, false)
			} else {
				limitPrice = quantizePrice(triggerPrice.Mul(one.Add(g.opts.StopLimitSlippagePct)), m.TickSize, true)
			}
		}

		order, err := g.ex.CreateConditionalOrder(ctx, &exchange.ConditionalOrderRequest{
			Market:        req.Market,
			ClientID:      g.ids.NextID(),
			Side:          closeSide,
			Size:          size,
			ConditionType: conditionType,
			TriggerPrice:  triggerPrice,
			LimitPrice:    limitPrice,
		})
		if err != nil {
			return err
		}
		log.Printf("%s: placed %s %s of %s triggered at %s (limit %s)", req.Market, conditionType, closeSide, size, triggerPrice, limitPrice)
		orders = append(orders, order)
		return nil
	}

	if !req.TakeProfit.IsZero() {
		if err := place(exchange.ConditionTakeProfit, req.TakeProfit); err != nil {
			return orders, err
		}
	}
	if !req.StopLoss.IsZero() {
		if err := place(exchange.ConditionStopLoss, req.StopLoss); err != nil {
			return orders, err
		}
	}
	return orders, nil
}

// CancelConditionals cancels all open conditional orders for the market.
func (g *Gateway) CancelConditionals(ctx context.Context, market string) (int, error) {
	orders, err := g.ex.OpenOrders(ctx, market)
	if err != nil {
		return 0, err
	}
	canceled := 0
	var errs []error
	for _, order := range orders {
		if order.Category != exchange.Conditional {
			continue
		}
		if err := g.ex.CancelOrder(ctx, order); err != nil {
			errs = append(errs, err)
			continue
		}
		canceled++
	}
	return canceled, errors.Join(errs...)
}

// Close exits the open position through the normal execution path. Urgent
// closes (stop-loss) go straight to the taker path.
func (g *Gateway) Close(ctx context.Context, market string, urgent bool) (*Result, error) {
	pos, err := g.ex.GetPositionFresh(ctx, market)
	if err != nil {
		return nil, fmt.Errorf("could not read the position: %w", err)
	}
	if pos.IsFlat() {
		return &Result{Reason: "position is already flat"}, nil
	}

	side := exchange.Sell
	if pos.Side == exchange.Short {
		side = exchange.Buy
	}
	return g.Execute(ctx, &Request{
		Market:     market,
		Side:       side,
		Size:       pos.Size,
		ReduceOnly: true,
		TakerOnly:  urgent,
	})
}
