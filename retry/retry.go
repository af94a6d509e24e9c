// Package retry implements bounded exponential backoff around any unit of
// work that calls an external service (model inference, search, geolocation).
// A Policy classifies which failures are transient; the Executor re-runs the
// work with strictly increasing delays until success, a terminal failure, or
// attempt exhaustion.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/citysense-ai/citysense/logging"
)

// Policy is the immutable retry configuration attached to every
// externally-calling step.
type Policy struct {
	// MaxAttempts is the total number of attempts including the first.
	MaxAttempts int
	// InitialDelay is the delay before the second attempt.
	InitialDelay time.Duration
	// BackoffBase multiplies the delay between consecutive attempts:
	// delay(n) = InitialDelay * BackoffBase^(n-1).
	BackoffBase float64
	// RetryableStatusCodes lists HTTP status codes treated as transient.
	RetryableStatusCodes map[int]bool
}

// DefaultPolicy mirrors the service-wide defaults: five attempts, one second
// initial delay, base seven, retrying on 429 and the 5xx overload statuses.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:          5,
		InitialDelay:         time.Second,
		BackoffBase:          7,
		RetryableStatusCodes: map[int]bool{429: true, 500: true, 503: true, 504: true},
	}
}

// Delay returns the backoff delay preceding the given attempt (attempt >= 2).
func (p Policy) Delay(attempt int) time.Duration {
	exp := math.Pow(p.BackoffBase, float64(attempt-2))
	return time.Duration(float64(p.InitialDelay) * exp)
}

// Retryable reports whether the error is a transient failure under this
// policy: a StatusError with a listed code, or a transport timeout.
func (p Policy) Retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return p.RetryableStatusCodes[se.StatusCode]
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return false
}

// StatusError carries an HTTP status from a failed external call so the
// policy can classify it.
type StatusError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("status %d", e.StatusCode)
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
}

// NewStatusError constructs a StatusError for the given code.
func NewStatusError(code int, msg string) *StatusError {
	return &StatusError{StatusCode: code, Message: msg}
}

// Options configures an Executor.
type Options struct {
	Logger logging.Logger
}

// Executor wraps invocation of external-calling steps with the bounded
// retry/backoff of its Policy. It is stateless across calls and safe for
// concurrent use.
type Executor struct {
	policy Policy
	logger logging.Logger

	// sleep is swapped out by tests to observe delays without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// New constructs an Executor with the given policy.
func New(policy Policy, optFns ...func(o *Options)) *Executor {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Executor{policy: policy, logger: opts.Logger, sleep: sleepContext}
}

// Policy returns the executor's policy.
func (e *Executor) Policy() Policy { return e.policy }

// Do runs fn up to MaxAttempts times. Non-retryable failures propagate after
// the first attempt; exhaustion surfaces the last error wrapped. The executor
// does not decide whether a terminal failure is fatal to the overall turn.
func (e *Executor) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := e.policy.Delay(attempt)
			e.logger.Debug("retry.backoff", "op", op, "attempt", attempt, "delay", delay)
			if err := e.sleep(ctx, delay); err != nil {
				return err
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !e.policy.Retryable(lastErr) {
			return lastErr
		}

		e.logger.Warn("retry.transient_failure", "op", op, "attempt", attempt, "error", lastErr.Error())
	}

	return fmt.Errorf("%s: exhausted %d attempts: %w", op, e.policy.MaxAttempts, lastErr)
}

// Do runs a value-returning fn under the executor's policy. The zero value of
// T accompanies a non-nil error.
func Do[T any](ctx context.Context, e *Executor, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := e.Do(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
