// Copyright (c) 2023 BVK Chaitanya

package hub

import (
	"time"

	"github.com/shopspring/decimal"
)

type Options struct {
	// SnapshotPath is the shared market data snapshot file. LockPath guards
	// the single-writer role. Both must be absolute paths on the same
	// filesystem.
	SnapshotPath string
	LockPath     string

	// SnapshotInterval is how often the owner publishes the snapshot.
	SnapshotInterval time.Duration

	// FollowerPollInterval is how often followers re-read the snapshot.
	FollowerPollInterval time.Duration

	// StaleThreshold marks the snapshot dead and triggers a promotion
	// attempt. PromoteThrottle bounds how often attempts are made.
	StaleThreshold  time.Duration
	PromoteThrottle time.Duration

	// ForceClearThreshold is the staleness beyond which a lock file held by
	// a dead process is removed forcibly.
	ForceClearThreshold time.Duration

	// TopLevels limits the book depth carried in the snapshot.
	TopLevels int

	// VolumeWindow is the rolling window for traded volume totals.
	VolumeWindow time.Duration

	// BigTradeNotional is the minimum notional value for a trade to be
	// journaled. BigTradeHistoryLimit caps the journal length.
	BigTradeNotional     decimal.Decimal
	BigTradeHistoryLimit int
}

func (v *Options) setDefaults() {
	if v.SnapshotInterval == 0 {
		v.SnapshotInterval = 100 * time.Millisecond
	}
	if v.FollowerPollInterval == 0 {
		v.FollowerPollInterval = 50 * time.Millisecond
	}
	if v.StaleThreshold == 0 {
		v.StaleThreshold = 5 * time.Second
	}
	if v.PromoteThrottle == 0 {
		v.PromoteThrottle = 2 * time.Second
	}
	if v.ForceClearThreshold == 0 {
		v.ForceClearThreshold = 10 * time.Second
	}
	if v.TopLevels == 0 {
		v.TopLevels = 10
	}
	if v.VolumeWindow == 0 {
		v.VolumeWindow = time.Minute
	}
	if v.BigTradeNotional.IsZero() {
		v.BigTradeNotional = decimal.NewFromInt(100000)
	}
	if v.BigTradeHistoryLimit == 0 {
		v.BigTradeHistoryLimit = 100
	}
}
