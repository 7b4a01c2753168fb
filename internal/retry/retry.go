// Package retry re-runs operations against flaky remote endpoints.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"amo-signer/internal/logging"
)

// PermanentError marks a failure that another attempt cannot fix
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so Do gives up immediately. A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err, or anything it wraps, is permanent
func IsPermanent(err error) bool {
	var permanent *PermanentError
	return errors.As(err, &permanent)
}

// Policy controls how often and how patiently an operation is retried
type Policy struct {
	Attempts  int           // total attempts including the first one
	Delay     time.Duration // grows linearly: Delay, 2*Delay, ...
	Operation string        // used in log lines and the final error
}

// DefaultPolicy suits registry pushes
func DefaultPolicy(operation string) Policy {
	return Policy{Attempts: 3, Delay: 2 * time.Second, Operation: operation}
}

// Do calls fn until it succeeds, returns a permanent error, the policy runs
// out of attempts or ctx is done.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	if p.Attempts < 1 {
		p.Attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if attempt > 1 {
			delay := time.Duration(attempt-1) * p.Delay
			logging.Debugf(ctx, "%s: attempt %d/%d in %s", p.Operation, attempt, p.Attempts, delay)
			if err := sleep(ctx, delay); err != nil {
				return fmt.Errorf("%s cancelled: %w", p.Operation, err)
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			if attempt > 1 {
				logging.Debugf(ctx, "%s succeeded on attempt %d", p.Operation, attempt)
			}
			return nil
		}

		if IsPermanent(lastErr) {
			return lastErr
		}
		if attempt < p.Attempts {
			logging.Warnf(ctx, "%s attempt %d failed: %v - will retry", p.Operation, attempt, lastErr)
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", p.Operation, p.Attempts, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
