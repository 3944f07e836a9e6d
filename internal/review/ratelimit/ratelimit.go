// Package ratelimit implements the model-tier keyed rate limiter from
// spec.md §4.3: a per-tier sliding window over the last 60 seconds.
package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"
)

const window = 60 * time.Second

// tierState is the sliding window of recent request timestamps for one
// model tier, guarded by its own mutex so contention on one tier never
// blocks another (spec.md §5: "fine-grained to avoid cross-tier
// contention").
type tierState struct {
	mu    sync.Mutex
	rpm   int
	times []time.Time
}

// Limiter is a multi-producer-safe, per-tier sliding-window rate limiter.
type Limiter struct {
	mu    sync.RWMutex
	tiers map[string]*tierState
	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// New builds a Limiter from a tier -> requests-per-minute table (e.g.
// {"flash": 60, "flash-lite": 120, "pro": 10}). Tiers not present in the
// table pass through Acquire unthrottled.
func New(tierRPM map[string]int) *Limiter {
	l := &Limiter{
		tiers: make(map[string]*tierState, len(tierRPM)),
		now:   time.Now,
		sleep: sleepCtx,
	}
	for tier, rpm := range tierRPM {
		l.tiers[normalizeTier(tier)] = &tierState{rpm: rpm}
	}
	return l
}

func normalizeTier(tier string) string {
	return strings.ToLower(strings.TrimSpace(tier))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Acquire blocks until a request slot for tier is available, or ctx is
// canceled. Unknown tiers are admitted immediately (pass-through).
func (l *Limiter) Acquire(ctx context.Context, tier string) error {
	l.mu.RLock()
	ts, ok := l.tiers[normalizeTier(tier)]
	l.mu.RUnlock()
	if !ok {
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ts.mu.Lock()
		now := l.now()
		cutoff := now.Add(-window)
		i := 0
		for i < len(ts.times) && ts.times[i].Before(cutoff) {
			i++
		}
		if i > 0 {
			ts.times = ts.times[i:]
		}
		if len(ts.times) < ts.rpm {
			ts.times = append(ts.times, now)
			ts.mu.Unlock()
			return nil
		}
		ts.mu.Unlock()

		if err := l.sleep(ctx, 50*time.Millisecond); err != nil {
			return err
		}
	}
}

// InFlight reports the number of requests currently counted within the
// window for tier (for diagnostics/tests). Unknown tiers report 0.
func (l *Limiter) InFlight(tier string) int {
	l.mu.RLock()
	ts, ok := l.tiers[normalizeTier(tier)]
	l.mu.RUnlock()
	if !ok {
		return 0
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	now := l.now()
	cutoff := now.Add(-window)
	n := 0
	for _, t := range ts.times {
		if !t.Before(cutoff) {
			n++
		}
	}
	return n
}
