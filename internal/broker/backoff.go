package broker

import (
	"context"
	"time"
)

// BackoffPolicy retries an operation a bounded number of times with a fixed
// delay between attempts.
type BackoffPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// Retry runs fn until it succeeds, the attempt bound is exhausted, or ctx is
// canceled. The last error is returned on exhaustion.
func (p BackoffPolicy) Retry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == p.MaxAttempts {
			break
		}
		select {
		case <-time.After(p.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
