// Package retry provides the bounded retry policy shared by provider clients
// and the pool resolver.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy describes a bounded retry schedule.
// Multiplier <= 1 means a fixed Delay between attempts, grown by Step per
// retry when Step is set.
type Policy struct {
	MaxRetries int
	Delay      time.Duration
	Multiplier float64
	MaxDelay   time.Duration
	Step       time.Duration
}

// Fixed returns a policy with a constant delay between attempts.
func Fixed(maxRetries int, delay time.Duration) Policy {
	return Policy{MaxRetries: maxRetries, Delay: delay, Multiplier: 1}
}

// Exponential returns a policy whose delay grows by mult up to maxDelay.
func Exponential(maxRetries int, initial time.Duration, mult float64, maxDelay time.Duration) Policy {
	return Policy{MaxRetries: maxRetries, Delay: initial, Multiplier: mult, MaxDelay: maxDelay}
}

// Linear returns a policy waiting first, then first+step, first+2*step, ...
func Linear(maxRetries int, first, step time.Duration) Policy {
	return Policy{MaxRetries: maxRetries, Delay: first, Multiplier: 1, Step: step}
}

// Attempts returns the total number of attempts the policy allows.
func (p Policy) Attempts() int {
	if p.MaxRetries < 0 {
		return 1
	}
	return p.MaxRetries + 1
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff
	switch {
	case p.Multiplier <= 1 && p.Step > 0:
		b = &linearBackOff{first: p.Delay, step: p.Step, max: p.MaxDelay}
	case p.Multiplier <= 1:
		b = backoff.NewConstantBackOff(p.Delay)
	default:
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = p.Delay
		eb.Multiplier = p.Multiplier
		eb.RandomizationFactor = 0
		eb.MaxElapsedTime = 0
		if p.MaxDelay > 0 {
			eb.MaxInterval = p.MaxDelay
		}
		eb.Reset()
		b = eb
	}
	retries := p.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// Do runs op until it returns nil, returns an error wrapped with Permanent,
// or the policy is exhausted. The last error is returned; if ctx ends first,
// ctx.Err() is returned.
func Do(ctx context.Context, p Policy, op func() error) error {
	return backoff.Retry(op, p.backOff(ctx))
}

// DoNotify is Do with a callback invoked before each sleep.
func DoNotify(ctx context.Context, p Policy, op func() error, notify func(err error, next time.Duration)) error {
	return backoff.RetryNotify(op, p.backOff(ctx), notify)
}

// Permanent marks err as not retryable. Do returns the unwrapped err.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// linearBackOff grows the delay by a fixed step per retry.
type linearBackOff struct {
	first, step, max time.Duration
	n                int
}

func (l *linearBackOff) NextBackOff() time.Duration {
	d := l.first + time.Duration(l.n)*l.step
	l.n++
	if l.max > 0 && d > l.max {
		d = l.max
	}
	return d
}

func (l *linearBackOff) Reset() { l.n = 0 }
