// Package backoff implements bounded retries with exponential backoff and
// full jitter. Callers classify which errors are worth retrying; everything
// else fails fast.
package backoff

import (
	"context"
	"math/rand"
	"time"
)

// DefaultCap bounds a single delay so exponential growth cannot stall a
// request past its deadline budget.
const DefaultCap = 30 * time.Second

// Policy describes one retry schedule. The zero value retries nothing.
type Policy struct {
	// Attempts is the total number of tries including the first call.
	Attempts int
	// Base is the delay before the first retry; subsequent delays double.
	Base time.Duration
	// Cap bounds any single delay. Zero means DefaultCap.
	Cap time.Duration
}

// Delay returns the jittered sleep before retry number attempt (0-based).
// Full jitter: a random duration in [0, min(Cap, Base<<attempt)].
func (p Policy) Delay(attempt int) time.Duration {
	if p.Base <= 0 {
		return 0
	}
	cap := p.Cap
	if cap <= 0 {
		cap = DefaultCap
	}
	d := p.Base << uint(attempt)
	if d <= 0 || d > cap {
		d = cap
	}
	return time.Duration(rand.Int63n(int64(d) + 1))
}

// Retry runs fn up to p.Attempts times, sleeping a jittered exponential
// delay between tries. retryable decides whether an error is transient; a
// nil retryable retries every error. Context cancellation aborts the wait
// and returns ctx.Err().
func Retry[T any](ctx context.Context, p Policy, retryable func(error) bool, fn func() (T, error)) (T, error) {
	var zero T
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		lastErr = err

		if retryable != nil && !retryable(err) {
			return zero, err
		}
		if i == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(p.Delay(i)):
		}
	}
	return zero, lastErr
}
