// Package throttle spaces out requests to the feature service.
package throttle

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Clock abstracts time so waits can be tested without sleeping.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// Sleep waits on a timer.
func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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

// Gate admits one request at a time at a bounded rate. Wait blocks until the
// caller may start its request.
type Gate interface {
	Wait(ctx context.Context) error
}

// IntervalGate guarantees a minimum interval between the starts of
// consecutive requests. It is safe for concurrent use.
type IntervalGate struct {
	limiter  *rate.Limiter
	clock    Clock
	interval time.Duration
}

var _ Gate = (*IntervalGate)(nil)

// NewIntervalGate returns a gate with the given minimum interval. A
// non-positive interval disables throttling. A nil clock means SystemClock.
func NewIntervalGate(interval time.Duration, clock Clock) *IntervalGate {
	if clock == nil {
		clock = SystemClock{}
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &IntervalGate{
		limiter:  rate.NewLimiter(limit, 1),
		clock:    clock,
		interval: interval,
	}
}

// Interval reports the configured minimum interval.
func (g *IntervalGate) Interval() time.Duration { return g.interval }

// Wait reserves the next slot and sleeps until it opens. The first call
// returns immediately. A cancelled wait gives its slot back.
func (g *IntervalGate) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := g.clock.Now()
	r := g.limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	if delay <= 0 {
		return nil
	}
	if err := g.clock.Sleep(ctx, delay); err != nil {
		r.CancelAt(g.clock.Now())
		return err
	}
	return nil
}

// Unlimited is a Gate that never blocks.
type Unlimited struct{}

// Wait returns ctx.Err().
func (Unlimited) Wait(ctx context.Context) error { return ctx.Err() }
