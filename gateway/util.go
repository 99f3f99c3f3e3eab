// Copyright (c) 2023 BVK Chaitanya

package gateway

import (
	"github.com/bvk/dexbot/exchange"
	"github.com/shopspring/decimal"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// quantizePrice snaps a price onto the tick grid. Prices round down by
// default; roundUp is used where rounding down would defeat the price's
// purpose, like a sell limit.
func quantizePrice(price, tick decimal.Decimal, roundUp bool) decimal.Decimal {
	if tick.IsZero() {
		return price
	}
	ticks := price.Div(tick)
	if roundUp {
		return ticks.Ceil().Mul(tick)
	}
	return ticks.Floor().Mul(tick)
}

// quantizeSize rounds a size down onto the step grid.
func quantizeSize(size, step decimal.Decimal) decimal.Decimal {
	if step.IsZero() {
		return size
	}
	return size.Div(step).Floor().Mul(step)
}

// signedSize maps a position to a signed base size: positive for long,
// negative for short, zero for flat.
func signedSize(p *exchange.Position) decimal.Decimal {
	if p.IsFlat() {
		return decimal.Zero
	}
	if p.Side == exchange.Short {
		return p.Size.Neg()
	}
	return p.Size
}

// makerLimitPrice computes the post-only limit price for one attempt. The
// price sits aggression fraction of the spread away from our side of the
// book, but never closer to the opposite side than the safety margin. The
// margin is marginPct of the spread, floored at one tick.
func makerLimitPrice(side string, bid, ask, tick, aggression, marginPct decimal.Decimal) decimal.Decimal {
	spread := ask.Sub(bid)

	margin := spread.Mul(marginPct)
	if margin.LessThan(tick) {
		margin = tick
	}

	if side == exchange.Buy {
		price := bid.Add(spread.Mul(aggression))
		if limit := ask.Sub(margin); price.GreaterThan(limit) {
			price = limit
		}
		if price.LessThan(bid) {
			price = bid
		}
		return quantizePrice(price, tick, false)
	}

	price := ask.Sub(spread.Mul(aggression))
	if limit := bid.Add(margin); price.LessThan(limit) {
		price = limit
	}
	if price.GreaterThan(ask) {
		price = ask
	}
	return quantizePrice(price, tick, true)
}

// correctTrigger validates a conditional trigger price against the
// reference price and nudges it to the correct side when it is not. A long
// take-profit must be above the reference and a long stop-loss below it;
// shorts are mirrored.
func correctTrigger(positionSide, conditionType string, trigger, reference, nudgePct decimal.Decimal) decimal.Decimal {
	above := reference.Mul(one.Add(nudgePct))
	below := reference.Mul(one.Sub(nudgePct))

	wantAbove := false
	switch conditionType {
	case exchange.ConditionTakeProfit:
		wantAbove = positionSide == exchange.Long
	case exchange.ConditionStopLoss:
		wantAbove = positionSide == exchange.Short
	}

	if wantAbove {
		if trigger.GreaterThan(reference) {
			return trigger
		}
		return above
	}
	if trigger.LessThan(reference) {
		return trigger
	}
	return below
}
