// Copyright (c) 2023 BVK Chaitanya

package trader

import (
	"time"

	"github.com/bvk/dexbot/exchange"
	"github.com/shopspring/decimal"
)

const (
	ExitTrailingStop = "TRAILING_STOP"
	ExitProfitLock   = "PROFIT_LOCK"
	ExitStopLoss     = "STOP_LOSS"
	ExitTakeProfit   = "TAKE_PROFIT"
	ExitMaxHold      = "MAX_HOLD"
	ExitForced       = "FORCED"
	ExitManual       = "MANUAL"
)

type exitDecision struct {
	Reason string

	// Urgent exits skip the maker path and close taker-only.
	Urgent bool
}

// chooseExit evaluates the exit rules in fixed priority order and returns
// the first match. currentPct and peakPct are unrealized profit percents,
// positive when the position is in profit.
func chooseExit(currentPct, peakPct decimal.Decimal, holding time.Duration, opts *Options) (exitDecision, bool) {
	// Trailing stop: armed at the start threshold, fires when the give-back
	// from the peak reaches the offset.
	if peakPct.GreaterThanOrEqual(opts.TrailingStartPct) {
		if peakPct.Sub(currentPct).GreaterThanOrEqual(opts.TrailingOffsetPct) {
			return exitDecision{Reason: ExitTrailingStop}, true
		}
	}

	for _, lock := range opts.ProfitLocks {
		if peakPct.GreaterThanOrEqual(lock.TriggerPct) && currentPct.LessThanOrEqual(lock.LockPct) {
			return exitDecision{Reason: ExitProfitLock}, true
		}
	}

	if currentPct.LessThanOrEqual(opts.StopLossPct.Neg()) {
		return exitDecision{Reason: ExitStopLoss, Urgent: true}, true
	}

	if currentPct.GreaterThanOrEqual(opts.TakeProfitPct) {
		return exitDecision{Reason: ExitTakeProfit}, true
	}

	if opts.MaxHold > 0 && holding >= opts.MaxHold {
		return exitDecision{Reason: ExitMaxHold}, true
	}

	return exitDecision{}, false
}

// profitPct computes the unrealized profit percent of a position.
func profitPct(side string, entry, current decimal.Decimal) decimal.Decimal {
	if entry.IsZero() {
		return decimal.Zero
	}
	hundred := decimal.NewFromInt(100)
	change := current.Sub(entry).Div(entry).Mul(hundred)
	if side == exchange.Short {
		return change.Neg()
	}
	return change
}
