package backup

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultRetryAttempts bounds how often a transient failure is retried
// before it is surfaced.
const DefaultRetryAttempts = 4

// withRetry runs op with exponential backoff, retrying only transient
// network failures. Auth, not-found and identifier errors abort
// immediately.
func withRetry(ctx context.Context, attempts int, op func() error) error {
	if attempts <= 0 {
		attempts = DefaultRetryAttempts
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(newExponential(), uint64(attempts-1)), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrNetwork) {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
}

func newExponential() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	return b
}
