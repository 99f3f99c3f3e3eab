// Copyright (c) 2023 BVK Chaitanya

// Package ratelimit implements the exchange call budget: a hard ceiling on
// the number of calls within a sliding window combined with a minimum gap
// between consecutive calls. All REST queries and transaction submissions
// must pass through a single Limiter so that bursts from different components
// cannot add up beyond the exchange limits.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/bvk/dexbot/ctxutil"
)

type Options struct {
	// CallLimit is the max number of calls admitted within Window.
	CallLimit int

	Window time.Duration

	// MinInterval is the minimum delay between two consecutive calls.
	MinInterval time.Duration
}

func (v *Options) setDefaults() {
	if v.CallLimit == 0 {
		v.CallLimit = 50
	}
	if v.Window == 0 {
		v.Window = 10 * time.Second
	}
	if v.MinInterval == 0 {
		v.MinInterval = 250 * time.Millisecond
	}
}

type Limiter struct {
	opts Options

	mu    sync.Mutex
	calls []time.Time
	last  time.Time

	timeNow func() time.Time
	sleep   func(ctx context.Context, d time.Duration)
}

func New(opts *Options) *Limiter {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	return &Limiter{
		opts:    *opts,
		timeNow: time.Now,
		sleep:   ctxutil.Sleep,
	}
}

// Wait blocks the caller until a call slot is admitted under the budget.
// Returns early with the cause when the input context is canceled. The slot
// is consumed only on a nil return.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		d := l.tryAdmit()
		if d == 0 {
			return nil
		}
		l.sleep(ctx, d)
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
	}
}

// tryAdmit admits the caller and returns zero, or returns the duration to
// wait before the next attempt. Eviction, admission checks and bookkeeping
// happen under one lock so concurrent callers cannot both claim the last
// slot in the window.
func (l *Limiter) tryAdmit() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.timeNow()

	i := 0
	for i < len(l.calls) && now.Sub(l.calls[i]) >= l.opts.Window {
		i++
	}
	if i > 0 {
		l.calls = append(l.calls[:0:0], l.calls[i:]...)
	}

	var wait time.Duration
	if !l.last.IsZero() {
		if d := l.opts.MinInterval - now.Sub(l.last); d > wait {
			wait = d
		}
	}
	if len(l.calls) >= l.opts.CallLimit {
		if d := l.opts.Window - now.Sub(l.calls[0]); d > wait {
			wait = d
		}
	}
	if wait > 0 {
		return wait
	}

	l.calls = append(l.calls, now)
	l.last = now
	return 0
}

// InFlight returns the number of admissions counted against the current
// window. It is a diagnostic helper for the status endpoint.
func (l *Limiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.timeNow()
	n := 0
	for _, at := range l.calls {
		if now.Sub(at) < l.opts.Window {
			n++
		}
	}
	return n
}
