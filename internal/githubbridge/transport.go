package githubbridge

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/njfio/tau-agent/internal/backoff"
)

// StatusError carries an HTTP status code from a GitHub API response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return "github: status " + strconv.Itoa(e.Code) + ": " + e.Body
}

// IsRetryableGithubStatus reports whether code is one of the transient
// statuses the shared request pipeline retries (spec §4.8 "HTTP
// transport"): 408/425/429 or any 5xx.
func IsRetryableGithubStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return true
	}
	return code >= 500 && code <= 599
}

// IsRetryableTransportError reports whether err is a transient
// transport-level failure (network/DNS/TLS) rather than an application
// error the caller should surface immediately.
func IsRetryableTransportError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// IsRetryable classifies err per the shared pipeline: a *StatusError
// with a retryable code, or a retryable transport error.
func IsRetryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return IsRetryableGithubStatus(statusErr.Code)
	}
	return IsRetryableTransportError(err)
}

// ParseRetryAfter parses a Retry-After header value in either delta-
// seconds or HTTP-date form (spec §4.8 "respecting Retry-After when
// present (seconds or HTTP-date)"). Returns ok=false for an empty or
// unparseable value.
func ParseRetryAfter(header string, now time.Time) (time.Duration, bool) {
	if header == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(header); err == nil {
		if secs < 0 {
			secs = 0
		}
		return time.Duration(secs) * time.Second, true
	}
	if when, err := http.ParseTime(header); err == nil {
		d := when.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

// backoffPolicy realizes spec §4.8's `delay = base * 2^(attempt-1)`
// exponential schedule with no jitter, reusing the teacher's
// internal/backoff policy math (Factor 2, Jitter 0) rather than
// hand-rolling the same exponent arithmetic again.
func backoffPolicy(baseDelayMs int64, maxDelay time.Duration) backoff.BackoffPolicy {
	return backoff.BackoffPolicy{
		InitialMs: float64(baseDelayMs),
		MaxMs:     float64(maxDelay / time.Millisecond),
		Factor:    2,
		Jitter:    0,
	}
}

// WithRetry runs fn up to maxAttempts times (1-indexed), retrying only
// on IsRetryable errors, sleeping delay = base*2^(attempt-1) unless the
// error carries a Retry-After hint (a *RetryAfterError, read by
// retryAfterFrom), which takes priority over the computed delay.
func WithRetry(ctx context.Context, maxAttempts int, baseDelayMs int64, maxDelay time.Duration, fn func(attempt int) error) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	policy := backoffPolicy(baseDelayMs, maxDelay)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsRetryable(err) || attempt == maxAttempts {
			return err
		}

		delay := backoff.ComputeBackoff(policy, attempt)
		if ra, ok := retryAfterFrom(err); ok {
			delay = ra
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

// RetryAfterError optionally wraps a transport error with a
// server-provided Retry-After duration.
type RetryAfterError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *RetryAfterError) Error() string { return e.Err.Error() }
func (e *RetryAfterError) Unwrap() error { return e.Err }

func retryAfterFrom(err error) (time.Duration, bool) {
	var ra *RetryAfterError
	if errors.As(err, &ra) {
		return ra.RetryAfter, true
	}
	return 0, false
}
