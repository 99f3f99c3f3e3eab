// Copyright (c) 2023 BVK Chaitanya

package gateway

import (
	"time"

	"github.com/shopspring/decimal"
)

type Options struct {
	// MakerAttempts is the number of post-only placements tried before the
	// taker fallback. Aggression starts at AggressionBase of the spread and
	// grows by AggressionStep per attempt.
	MakerAttempts  int
	AggressionBase decimal.Decimal
	AggressionStep decimal.Decimal

	// SafetyMarginPct of the spread (floored at one tick) is kept between
	// the maker limit price and the opposite side of the book, so the order
	// can never cross and get rejected for being post-only.
	SafetyMarginPct decimal.Decimal

	// PostOnlyTTLBlocks is the block TTL on maker orders.
	PostOnlyTTLBlocks int64

	// FillPollInterval and MakerAttemptTimeout control the fill wait for
	// each maker attempt.
	FillPollInterval    time.Duration
	MakerAttemptTimeout time.Duration

	// IOCSlippagePct is the price tolerance of the taker fallback past the
	// opposite side of the book. TakerPollTimeout bounds the fill wait
	// before the authoritative position check.
	IOCSlippagePct   decimal.Decimal
	TakerPollTimeout time.Duration

	// TriggerNudgePct corrects a conditional trigger that is on the wrong
	// side of the reference price. StopLimitSlippagePct pads the limit
	// price of stop-loss orders past the trigger.
	TriggerNudgePct      decimal.Decimal
	StopLimitSlippagePct decimal.Decimal
}

func (v *Options) setDefaults() {
	if v.MakerAttempts == 0 {
		v.MakerAttempts = 3
	}
	if v.AggressionBase.IsZero() {
		v.AggressionBase = decimal.NewFromFloat(0.50)
	}
	if v.AggressionStep.IsZero() {
		v.AggressionStep = decimal.NewFromFloat(0.15)
	}
	if v.SafetyMarginPct.IsZero() {
		v.SafetyMarginPct = decimal.NewFromFloat(0.20)
	}
	if v.PostOnlyTTLBlocks == 0 {
		v.PostOnlyTTLBlocks = 10
	}
	if v.FillPollInterval == 0 {
		v.FillPollInterval = 500 * time.Millisecond
	}
	if v.MakerAttemptTimeout == 0 {
		v.MakerAttemptTimeout = 10 * time.Second
	}
	if v.IOCSlippagePct.IsZero() {
		v.IOCSlippagePct = decimal.NewFromFloat(0.004)
	}
	if v.TakerPollTimeout == 0 {
		v.TakerPollTimeout = 3 * time.Second
	}
	if v.TriggerNudgePct.IsZero() {
		v.TriggerNudgePct = decimal.NewFromFloat(0.001)
	}
	if v.StopLimitSlippagePct.IsZero() {
		v.StopLimitSlippagePct = decimal.NewFromFloat(0.0015)
	}
}
