// Package poll is the single bounded wait primitive used by every component.
package poll

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultInterval is used when a caller passes a non-positive interval.
const DefaultInterval = 250 * time.Millisecond

var errPending = errors.New("condition not met")

// Until evaluates cond every interval until it returns true or timeout
// elapses. A non-positive timeout evaluates cond exactly once. The returned
// error is non-nil only when ctx ends the wait.
func Until(ctx context.Context, interval, timeout time.Duration, cond func() bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if timeout <= 0 {
		return cond(), nil
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if interval > timeout {
		interval = timeout
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = interval
	b.MaxInterval = interval
	b.Multiplier = 1
	b.RandomizationFactor = 0
	b.MaxElapsedTime = timeout
	b.Reset()

	err := backoff.Retry(func() error {
		if cond() {
			return nil
		}
		return errPending
	}, backoff.WithContext(b, ctx))

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errPending):
		return false, nil
	default:
		return false, err
	}
}

// Settle sleeps for d unless ctx is done first.
func Settle(ctx context.Context, d time.Duration) error {
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
