// Copyright (c) 2023 BVK Chaitanya

package trader

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProfitLock is one staged exit level: once the peak profit reaches
// TriggerPct, falling back to LockPct or below closes the position.
type ProfitLock struct {
	TriggerPct decimal.Decimal
	LockPct    decimal.Decimal
}

type Options struct {
	// TrailingStartPct arms the trailing stop once peak profit reaches it;
	// TrailingOffsetPct is the give-back from the peak that fires it.
	TrailingStartPct  decimal.Decimal
	TrailingOffsetPct decimal.Decimal

	ProfitLocks []ProfitLock

	// StopLossPct and TakeProfitPct are hard limits on the unrealized
	// profit percent. Stop-loss exits are urgent and close taker-only.
	StopLossPct   decimal.Decimal
	TakeProfitPct decimal.Decimal

	// MaxHold force-closes a position held longer than this.
	MaxHold time.Duration

	// TickInterval drives exit evaluation; ReconcileInterval drives the
	// position check against the exchange.
	TickInterval      time.Duration
	ReconcileInterval time.Duration
}

func (v *Options) setDefaults() {
	if v.TrailingStartPct.IsZero() {
		v.TrailingStartPct = decimal.NewFromInt(1)
	}
	if v.TrailingOffsetPct.IsZero() {
		v.TrailingOffsetPct = decimal.NewFromFloat(0.5)
	}
	if v.ProfitLocks == nil {
		v.ProfitLocks = []ProfitLock{
			{TriggerPct: decimal.NewFromFloat(0.5), LockPct: decimal.NewFromFloat(0.2)},
		}
	}
	if v.StopLossPct.IsZero() {
		v.StopLossPct = decimal.NewFromInt(2)
	}
	if v.TakeProfitPct.IsZero() {
		v.TakeProfitPct = decimal.NewFromInt(5)
	}
	if v.MaxHold == 0 {
		v.MaxHold = 4 * time.Hour
	}
	if v.TickInterval == 0 {
		v.TickInterval = time.Second
	}
	if v.ReconcileInterval == 0 {
		v.ReconcileInterval = 10 * time.Second
	}
}
