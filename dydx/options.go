// Copyright (c) 2023 BVK Chaitanya

package dydx

import (
	"time"

	"github.com/bvk/dexbot/dydx/internal"
)

type Options struct {
	Internal internal.Options

	// PositionCacheTTL bounds the staleness of position query results
	// served from the cache. Fresh queries always bypass the cache.
	PositionCacheTTL time.Duration

	// MarketCacheTTL bounds the staleness of market metadata.
	MarketCacheTTL time.Duration

	// ShortTermTTLBlocks is the good-til-block window added to the current
	// height for short-term orders and their cancels.
	ShortTermTTLBlocks int64

	// LongTermExpiry is the good-til-time window for long-term and
	// conditional orders when no explicit expiry is given.
	LongTermExpiry time.Duration
}

func (v *Options) setDefaults() {
	if v.PositionCacheTTL == 0 {
		v.PositionCacheTTL = 2 * time.Second
	}
	if v.MarketCacheTTL == 0 {
		v.MarketCacheTTL = time.Minute
	}
	if v.ShortTermTTLBlocks == 0 {
		v.ShortTermTTLBlocks = 10
	}
	if v.LongTermExpiry == 0 {
		v.LongTermExpiry = 30 * 24 * time.Hour
	}
}
