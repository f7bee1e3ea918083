package resilience

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy defines retry behavior for transient failures.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
	// Retryable decides whether an error is worth another attempt. Nil retries
	// everything except context cancellation.
	Retryable func(error) bool
}

func NewRetryPolicy(maxRetries int, backoff time.Duration) RetryPolicy {
	if maxRetries <= 0 {
		maxRetries = 2
	}
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	return RetryPolicy{MaxRetries: maxRetries, Backoff: backoff}
}

// Do runs fn until it succeeds, the retries are used up or ctx is done.
// Backoff grows linearly with the attempt number.
func (r RetryPolicy) Do(ctx context.Context, fn func(context.Context) error) error {
	var err error
	for i := 0; i <= r.MaxRetries; i++ {
		if cerr := ctx.Err(); cerr != nil {
			if err != nil {
				return err
			}
			return cerr
		}
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if i == r.MaxRetries || !r.retryable(err) {
			return err
		}
		timer := time.NewTimer(r.Backoff * time.Duration(i+1))
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}

func (r RetryPolicy) retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if r.Retryable == nil {
		return true
	}
	return r.Retryable(err)
}
