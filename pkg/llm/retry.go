package llm

import (
	"context"
	"errors"
	"net"
)

// RequestTimeoutError marks a per-attempt request timeout (spec §7
// RequestTimeout: counts as an attempt, exhausts to surface).
type RequestTimeoutError struct {
	Cause error
}

func (e *RequestTimeoutError) Error() string {
	if e.Cause != nil {
		return "request timed out: " + e.Cause.Error()
	}
	return "request timed out"
}

func (e *RequestTimeoutError) Unwrap() error { return e.Cause }

// Retryable reports whether err is a transport error, a retryable HTTP
// status (408/425/429/5xx), or a request timeout, per spec §4.5 step 3 /
// §7. Non-retryable errors (4xx other than 408/425/429, structured
// validation errors, etc.) return false so callers surface them
// immediately instead of burning a retry budget.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return retryableStatus(statusErr.Code)
	}
	var timeoutErr *RequestTimeoutError
	if errors.As(err, &timeoutErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

func retryableStatus(code int) bool {
	switch code {
	case 408, 425, 429:
		return true
	}
	return code >= 500 && code <= 599
}
