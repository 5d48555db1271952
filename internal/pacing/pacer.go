// Package pacing spaces out successive provider calls.
package pacing

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer lets one call through per interval. A zero interval never waits.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer creates a Pacer with the given spacing between calls.
func NewPacer(interval time.Duration) *Pacer {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Pacer{limiter: rate.NewLimiter(limit, 1)}
}

// Wait blocks until the next call may proceed, or ctx is done.
// Exactly one token is consumed per call.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return nil
	}
	r := p.limiter.Reserve()
	delay := r.Delay()
	if delay <= 0 {
		return nil
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}
