// Package retry wraps cenkalti/backoff with the attempt accounting the
// pipeline needs.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy describes a bounded exponential retry.
//
// MaxAttempts counts every call, including the first. The delay before
// attempt n (n >= 2) is InitialInterval * Multiplier^(n-2).
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DefaultPolicy mirrors the classification defaults: three attempts, 1s base, x1.8.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: time.Second,
		MaxInterval:     time.Hour,
		Multiplier:      1.8,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = time.Second
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = time.Hour
	}
	return p
}

// NewBackOff returns a deterministic (no jitter) exponential backoff.
func NewBackOff(p Policy) backoff.BackOff {
	p = p.normalized()
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	exp.MaxInterval = p.MaxInterval
	exp.Multiplier = p.Multiplier
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0
	exp.Reset()
	return exp
}

// Delay is the wait before the given attempt (1-based). The first attempt has none.
func Delay(p Policy, attempt int) time.Duration {
	if attempt < 2 {
		return 0
	}
	b := NewBackOff(p)
	var d time.Duration
	for i := 2; i <= attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}

// Permanent marks an error that must not be retried.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs fn until it succeeds, returns a permanent error, the context ends,
// or the attempt budget is spent. A nil timer uses real time.
// It returns the number of attempts made together with the final error.
func Do(ctx context.Context, p Policy, timer backoff.Timer, fn func(attempt int) error, notify backoff.Notify) (int, error) {
	p = p.normalized()

	b := backoff.WithContext(
		backoff.WithMaxRetries(NewBackOff(p), uint64(p.MaxAttempts-1)),
		ctx,
	)

	attempts := 0
	op := func() error {
		attempts++
		return fn(attempts)
	}

	err := backoff.RetryNotifyWithTimer(op, b, notify, timer)
	return attempts, err
}
