// Package retry provides the bounded retry policy shared by every remote call
// in the intake pipeline. Exhaustion is reported as "no result", never as an
// error, so callers can apply their own fallback deterministically.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrEmptyResult marks an attempt that completed but produced no usable payload.
// It is retried like any other failure.
var ErrEmptyResult = errors.New("retry: empty result")

// Policy configures the number of attempts and the backoff between them.
type Policy struct {
	// Attempts is the total number of tries, including the first one.
	Attempts int
	// Backoff is the delay before the second attempt. It doubles afterwards.
	Backoff time.Duration
	// MaxBackoff caps the doubled delay. Zero means no cap.
	MaxBackoff time.Duration
	// Logger receives one warning per failed attempt. Nil uses slog.Default().
	Logger *slog.Logger
}

// DefaultPolicy returns three attempts with a short exponential backoff.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:   3,
		Backoff:    500 * time.Millisecond,
		MaxBackoff: 4 * time.Second,
	}
}

// WithLogger returns a copy of the policy that logs through logger.
func (p Policy) WithLogger(logger *slog.Logger) Policy {
	p.Logger = logger
	return p
}

// permanentError stops the retry loop immediately.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

// Permanent wraps err so that Do gives up without spending the remaining attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Do runs fn until it succeeds or the policy is exhausted.
// The boolean result is false when no attempt produced a value; the returned
// T is then the zero value. Context cancellation ends the loop early.
func Do[T any](ctx context.Context, p Policy, op string, fn func(ctx context.Context) (T, error)) (T, bool) {
	var zero T

	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := p.Backoff

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 && backoff > 0 {
			select {
			case <-ctx.Done():
				logger.Warn("retry aborted",
					slog.String("op", op),
					slog.Int("attempt", attempt),
					slog.String("error", ctx.Err().Error()),
				)
				return zero, false
			case <-time.After(backoff):
			}
			backoff *= 2
			if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
				backoff = p.MaxBackoff
			}
		}
		if ctx.Err() != nil {
			return zero, false
		}

		result, err := fn(ctx)
		if err == nil {
			return result, true
		}

		logger.Warn("attempt failed",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
			slog.String("error", err.Error()),
		)

		if IsPermanent(err) {
			return zero, false
		}
	}

	logger.Error("retries exhausted",
		slog.String("op", op),
		slog.Int("attempts", attempts),
	)
	return zero, false
}
