// Copyright Peton Labs, 2026. All rights reserved.

// Package ratelimit tracks request timestamps per external service in a
// sliding one-minute window and delays callers until under budget.
package ratelimit

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/petonlabs/systematic-review-data-extraction/pkg/types"
)

// Service names known to the limiter.
const (
	ServiceAPI       = "api"
	ServiceSheet     = "sheet"
	ServiceExtractor = "extractor"
)

const window = time.Minute

// ServiceStatus describes one service's window occupancy.
type ServiceStatus struct {
	Recent    int
	Limit     int
	Remaining int
	// ResetIn is the time until the oldest in-window request expires.
	// Zero when the service is under budget.
	ResetIn time.Duration
}

// Limiter admits requests per named service under a rolling per-minute
// budget. It never fails, only delays; the single batch goroutine is the
// only mutator, so no locking is used.
type Limiter struct {
	limits     map[string]int
	timestamps map[string][]time.Time
	baseDelay  time.Duration
	maxBackoff time.Duration
	w          io.Writer

	// now and sleep are swappable for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a Limiter from the configured per-service budgets.
// Progress lines are written to w.
func New(cfg types.RateLimitConfig, w io.Writer) *Limiter {
	if w == nil {
		w = io.Discard
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = time.Minute
	}
	return &Limiter{
		limits: map[string]int{
			ServiceAPI:       cfg.APIRequestsPerMinute,
			ServiceSheet:     cfg.SheetRequestsPerMinute,
			ServiceExtractor: cfg.ExtractorRequestsPerMinute,
		},
		timestamps: map[string][]time.Time{
			ServiceAPI:       nil,
			ServiceSheet:     nil,
			ServiceExtractor: nil,
		},
		baseDelay:  cfg.BaseDelay,
		maxBackoff: maxBackoff,
		w:          w,
		now:        time.Now,
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Admit blocks until a request slot is available for service, then
// records the request. Unknown services are admitted immediately with a
// warning line. The only error condition is context cancellation.
func (l *Limiter) Admit(ctx context.Context, service string) error {
	limit, ok := l.limits[service]
	if !ok {
		fmt.Fprintf(l.w, "warning: unknown rate limit service %q\n", service)
		return nil
	}

	now := l.now()
	ts := l.purge(service, now)

	if limit > 0 && len(ts) >= limit {
		wait := ts[0].Add(window).Sub(now)
		if wait > 0 {
			fmt.Fprintf(l.w, "rate limit reached for %s, waiting %.1fs\n", service, wait.Seconds())
			if err := l.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}

	if l.baseDelay > 0 {
		if err := l.sleep(ctx, l.baseDelay); err != nil {
			return err
		}
	}

	l.timestamps[service] = append(l.purge(service, l.now()), l.now())
	return nil
}

// Backoff sleeps min(base * 2^attempt, max) for explicit retry loops.
// It is independent of the window accounting.
func (l *Limiter) Backoff(ctx context.Context, attempt int) error {
	base := l.baseDelay
	if base <= 0 {
		base = time.Second
	}
	delay := base << uint(attempt)
	if delay > l.maxBackoff || delay <= 0 {
		delay = l.maxBackoff
	}
	return l.sleep(ctx, delay)
}

// Status reports window occupancy for every known service.
func (l *Limiter) Status() map[string]ServiceStatus {
	now := l.now()
	out := make(map[string]ServiceStatus, len(l.limits))
	for service, limit := range l.limits {
		ts := l.purge(service, now)
		st := ServiceStatus{
			Recent:    len(ts),
			Limit:     limit,
			Remaining: max(0, limit-len(ts)),
		}
		if limit > 0 && len(ts) >= limit {
			st.ResetIn = ts[0].Add(window).Sub(now)
		}
		out[service] = st
	}
	return out
}

// Reset clears tracking for one service.
func (l *Limiter) Reset(service string) {
	if _, ok := l.timestamps[service]; ok {
		l.timestamps[service] = nil
	}
}

// ResetAll clears tracking for every service.
func (l *Limiter) ResetAll() {
	for service := range l.timestamps {
		l.timestamps[service] = nil
	}
}

// purge drops timestamps older than the window and returns the kept slice.
func (l *Limiter) purge(service string, now time.Time) []time.Time {
	ts := l.timestamps[service]
	cutoff := now.Add(-window)
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	ts = ts[i:]
	l.timestamps[service] = ts
	return ts
}
