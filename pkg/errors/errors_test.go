package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppErrorUnwrapsToSentinel(t *testing.T) {
	err := Newf(ErrQueueFull, http.StatusTooManyRequests, "queue at capacity (%d)", 100)
	if !errors.Is(err, ErrQueueFull) {
		t.Error("AppError must unwrap to its sentinel")
	}
	wrapped := fmt.Errorf("enqueueing: %w", err)
	if !errors.Is(wrapped, ErrQueueFull) {
		t.Error("sentinel must survive further wrapping")
	}

	var appErr *AppError
	if !errors.As(wrapped, &appErr) {
		t.Fatal("errors.As must find the AppError")
	}
	if appErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("StatusCode = %d", appErr.StatusCode)
	}
}

func TestHTTPStatusCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{New(ErrInvalidInput, 400, "bad"), 400},
		{fmt.Errorf("wrapped: %w", ErrArticleNotFound), http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", ErrQueueFull), http.StatusTooManyRequests},
		{fmt.Errorf("wrapped: %w", ErrRateLimited), http.StatusTooManyRequests},
		{fmt.Errorf("wrapped: %w", ErrFetchTimeout), http.StatusServiceUnavailable},
		{fmt.Errorf("wrapped: %w", ErrRetryExhausted), http.StatusServiceUnavailable},
		{errors.New("anything else"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatusCode(tc.err); got != tc.want {
			t.Errorf("HTTPStatusCode(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
