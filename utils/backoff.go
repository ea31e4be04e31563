package utils

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// BackoffConfig describes an exponential back-off schedule.
type BackoffConfig struct {
	Initial time.Duration
	Max     time.Duration
	// MaxRetries of zero retries forever.
	MaxRetries uint64
}

// NewBackoff builds the schedule. The returned back-off stops when ctx is done.
func (c BackoffConfig) NewBackoff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.Initial
	exp.MaxInterval = c.Max
	exp.MaxElapsedTime = 0
	exp.Reset()

	var b backoff.BackOff = exp
	if c.MaxRetries > 0 {
		b = backoff.WithMaxRetries(b, c.MaxRetries)
	}
	return backoff.WithContext(b, ctx)
}

// Retry runs op until it succeeds, returns a permanent error, or the schedule
// is exhausted. notify is called before every sleep and may be nil.
func (c BackoffConfig) Retry(ctx context.Context, op func() error, notify func(err error, next time.Duration)) error {
	return backoff.RetryNotify(op, c.NewBackoff(ctx), notify)
}

// Permanent marks err so that Retry stops immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
