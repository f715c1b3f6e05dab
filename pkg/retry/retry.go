// Package retry bounds idempotent upstream reads with a per-attempt timeout
// and a capped exponential backoff between attempts.
package retry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"google.golang.org/api/googleapi"
)

type Policy struct {
	// Retries is the number of attempts after the first one.
	Retries   int
	Timeout   time.Duration
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

func DefaultPolicy(timeout time.Duration, retries int) Policy {
	return Policy{
		Retries:   retries,
		Timeout:   timeout,
		BaseDelay: 500 * time.Millisecond,
		MaxDelay:  5 * time.Second,
	}
}

func (p Policy) delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Do calls fn until it succeeds, returns a permanent error, or the attempts
// run out. The last error is returned.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= p.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(p.delay(attempt)):
			}
		}

		v, err := call(ctx, p.Timeout, fn)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if IsPermanent(err) || ctx.Err() != nil {
			break
		}
	}
	return zero, lastErr
}

func call[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx)
}

// IsPermanent reports client errors that a retry cannot fix. Rate limiting is
// not permanent.
func IsPermanent(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != http.StatusTooManyRequests
	}
	return false
}
