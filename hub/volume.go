// Copyright (c) 2023 BVK Chaitanya

package hub

import (
	"strings"
	"sync"
	"time"

	"github.com/c-pro/rolling"
)

// volumeTracker maintains rolling traded-notional totals per side.
type volumeTracker struct {
	mu sync.Mutex

	buys  *rolling.Window
	sells *rolling.Window
}

func newVolumeTracker(window time.Duration) *volumeTracker {
	// The size cap only bounds memory; eviction is time based.
	const maxSamples = 100000
	return &volumeTracker{
		buys:  rolling.NewWindow(maxSamples, window),
		sells: rolling.NewWindow(maxSamples, window),
	}
}

func (v *volumeTracker) Add(side string, notional float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if strings.EqualFold(side, "SELL") {
		v.sells.Add(notional)
		return
	}
	v.buys.Add(notional)
}

func (v *volumeTracker) Totals() (buy, sell float64, count int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.buys.Evict()
	v.sells.Evict()
	return v.buys.Sum(), v.sells.Sum(), v.buys.Count() + v.sells.Count()
}
