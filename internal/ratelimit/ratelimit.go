// Package ratelimit implements fixed-window request counting with an
// injected store, so the guard is testable with a fresh store per test
// and swappable for a distributed backend.
//
// Fixed windows permit up to 2x the limit across a window boundary.
// That imprecision is accepted: this is an abuse deterrent, not a quota.
package ratelimit

import (
	"context"
	"time"
)

// SharedIdentifier is the fallback bucket key used when no client
// identifier can be derived. Degrades to a single global limit rather
// than failing open without signal.
const SharedIdentifier = "unknown"

// Policy is a fixed-window rate limit: at most Limit requests per Window.
type Policy struct {
	Limit  int
	Window time.Duration
}

// Decision reports a single rate limit outcome.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns how long the caller should wait before retrying,
// never less than one second so a Retry-After header stays meaningful.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.ResetAt.Sub(now)
	if wait < time.Second {
		wait = time.Second
	}
	return wait
}

// Store records request counts per identifier in fixed windows.
type Store interface {
	// Incr counts one request for id within the window anchored at the
	// identifier's first request, returning the running count and the
	// window start. An elapsed window resets the count to 1.
	Incr(ctx context.Context, id string, window time.Duration) (count int, windowStart time.Time, err error)

	// Sweep drops buckets whose window elapsed before now. Stores with
	// native TTL expiry may make this a no-op.
	Sweep(ctx context.Context, now time.Time) error
}

// Limiter makes fixed-window decisions against an injected store.
type Limiter struct {
	store Store
}

func New(store Store) *Limiter {
	return &Limiter{store: store}
}

// Check records the request and decides whether it is allowed. A store
// failure fails open (allowed) with the error returned so the caller can
// log it: the guard is advisory and must never take the process down.
func (l *Limiter) Check(ctx context.Context, id string, p Policy) (Decision, error) {
	if id == "" {
		id = SharedIdentifier
	}

	count, windowStart, err := l.store.Incr(ctx, id, p.Window)
	if err != nil {
		return Decision{
			Allowed:   true,
			Limit:     p.Limit,
			Remaining: p.Limit,
			ResetAt:   time.Now().Add(p.Window),
		}, err
	}

	remaining := p.Limit - count
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:   count <= p.Limit,
		Limit:     p.Limit,
		Remaining: remaining,
		ResetAt:   windowStart.Add(p.Window),
	}, nil
}
