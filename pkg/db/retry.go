package db

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	retryInitialInterval = 50 * time.Millisecond
	retryMaxInterval     = time.Second
	retryMaxElapsed      = 5 * time.Second
)

// Retry runs fn until it succeeds, returns a non-transient error, or the
// retry window closes. Only errors classified by IsTransient are retried.
func Retry(ctx context.Context, fn func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryInitialInterval
	policy.MaxInterval = retryMaxInterval
	policy.MaxElapsedTime = retryMaxElapsed

	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(policy, ctx))
}
