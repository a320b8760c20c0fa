package githubbridge

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestIsRetryableGithubStatus(t *testing.T) {
	retryable := []int{408, 425, 429, 500, 502, 503, 599}
	for _, code := range retryable {
		if !IsRetryableGithubStatus(code) {
			t.Errorf("expected %d to be retryable", code)
		}
	}
	notRetryable := []int{200, 201, 400, 401, 403, 404, 422}
	for _, code := range notRetryable {
		if IsRetryableGithubStatus(code) {
			t.Errorf("expected %d to not be retryable", code)
		}
	}
}

func TestIsRetryableTransportError(t *testing.T) {
	if !IsRetryableTransportError(context.DeadlineExceeded) {
		t.Error("expected context.DeadlineExceeded to be retryable")
	}
	if IsRetryableTransportError(nil) {
		t.Error("expected nil error to not be retryable")
	}
	if IsRetryableTransportError(errors.New("boom")) {
		t.Error("expected a plain error to not be retryable")
	}
}

func TestIsRetryableStatusError(t *testing.T) {
	if !IsRetryable(&StatusError{Code: 503}) {
		t.Error("expected 503 StatusError to be retryable")
	}
	if IsRetryable(&StatusError{Code: 404}) {
		t.Error("expected 404 StatusError to not be retryable")
	}
}

func TestParseRetryAfterSeconds(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	d, ok := ParseRetryAfter("30", now)
	if !ok || d != 30*time.Second {
		t.Fatalf("expected 30s, got %v (ok=%v)", d, ok)
	}
}

func TestParseRetryAfterHTTPDate(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	future := now.Add(90 * time.Second)
	d, ok := ParseRetryAfter(future.Format(http.TimeFormat), now)
	if !ok {
		t.Fatal("expected ok=true for a valid HTTP-date")
	}
	if d < 89*time.Second || d > 91*time.Second {
		t.Fatalf("expected ~90s, got %v", d)
	}
}

func TestParseRetryAfterEmptyOrInvalid(t *testing.T) {
	now := time.Now()
	if _, ok := ParseRetryAfter("", now); ok {
		t.Error("expected ok=false for empty header")
	}
	if _, ok := ParseRetryAfter("not-a-date-or-number", now); ok {
		t.Error("expected ok=false for garbage header")
	}
}

func TestWithRetrySucceedsAfterRetryableFailures(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), 3, 1, time.Second, func(attempt int) error {
		attempts++
		if attempt < 3 {
			return &StatusError{Code: 503}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestWithRetryStopsOnNonRetryableError(t *testing.T) {
	attempts := 0
	wantErr := &StatusError{Code: 422}
	err := WithRetry(context.Background(), 5, 1, time.Second, func(attempt int) error {
		attempts++
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("expected the non-retryable error to surface immediately, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected exactly 1 attempt, got %d", attempts)
	}
}

func TestWithRetryExhaustsMaxAttempts(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), 2, 1, time.Second, func(attempt int) error {
		attempts++
		return &StatusError{Code: 500}
	})
	if err == nil {
		t.Fatal("expected an error after exhausting retries")
	}
	if attempts != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", attempts)
	}
}

func TestWithRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	attempts := 0
	err := WithRetry(ctx, 3, 1, time.Second, func(attempt int) error {
		attempts++
		return &StatusError{Code: 500}
	})
	if err == nil {
		t.Fatal("expected an error when context is already cancelled")
	}
	if attempts != 0 {
		t.Fatalf("expected no attempts once context is cancelled, got %d", attempts)
	}
}

func TestWithRetryRetryAfterTakesPriority(t *testing.T) {
	attempts := 0
	started := time.Now()
	err := WithRetry(context.Background(), 2, 50_000, time.Minute, func(attempt int) error {
		attempts++
		if attempt == 1 {
			return &RetryAfterError{Err: &StatusError{Code: 429}, RetryAfter: 5 * time.Millisecond}
		}
		return nil
	})
	elapsed := time.Since(started)
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if elapsed > 2*time.Second {
		t.Fatalf("expected the short Retry-After delay to override the large base delay, took %v", elapsed)
	}
}
