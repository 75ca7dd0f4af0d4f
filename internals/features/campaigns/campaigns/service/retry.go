package service

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"kvtogether_backend/internals/features/campaigns/funding"
	"kvtogether_backend/internals/metrics"
)

const retryBaseDelay = 5 * time.Millisecond

// RetryOnConflict re-runs fn while it reports funding.ErrConcurrencyConflict,
// at most maxAttempts times, with a short jittered backoff.
func RetryOnConflict(ctx context.Context, maxAttempts int, fn func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn()
		if !errors.Is(err, funding.ErrConcurrencyConflict) || attempt == maxAttempts {
			return err
		}
		metrics.ReconcileRetries.Inc()

		delay := time.Duration(attempt)*retryBaseDelay + time.Duration(rand.Int64N(int64(retryBaseDelay)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
