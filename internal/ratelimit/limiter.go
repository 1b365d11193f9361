// Package ratelimit implements the counting semaphore of §4.B: a bounded
// ceiling on concurrent outbound RPC calls and in-flight processor tasks.
//
// Grounded on the teacher's internal/services/ratelimit package (a
// sliding-window limiter over a mutex-guarded map) for the package shape,
// but the semantics here follow original_source/src/http/rate_limiter.rs's
// tokio::sync::Semaphore wrapper exactly: a fixed-capacity permit pool, not
// a sliding window. golang.org/x/sync/semaphore backs the permit pool
// rather than a hand-rolled channel-of-tokens, promoting the module from an
// indirect, never-imported dependency to the direct role §4.B describes.
package ratelimit

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Limiter is a counting semaphore with fixed capacity N.
type Limiter struct {
	sem *semaphore.Weighted
}

// New creates a Limiter with capacity n.
func New(n int) *Limiter {
	return &Limiter{sem: semaphore.NewWeighted(int64(n))}
}

// Permit is held by the caller until Release is called. Dropping it without
// calling Release leaks the slot, so callers should defer Release
// immediately after a successful Acquire.
type Permit struct {
	sem *semaphore.Weighted
}

// Release gives the permit's slot back to the limiter. Safe to call at most
// once per Permit.
func (p *Permit) Release() {
	p.sem.Release(1)
}

// Acquire blocks until a permit is available or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) (*Permit, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return &Permit{sem: l.sem}, nil
}

// TryAcquire attempts to acquire a permit without blocking, reporting
// whether it succeeded.
func (l *Limiter) TryAcquire() (*Permit, bool) {
	if !l.sem.TryAcquire(1) {
		return nil, false
	}
	return &Permit{sem: l.sem}, true
}
