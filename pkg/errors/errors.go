package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrArticleNotFound     = errors.New("article not found")
	ErrQueueFull           = errors.New("fetch queue full")
	ErrFetchTimeout        = errors.New("fetch timed out")
	ErrRetryExhausted      = errors.New("retry budget exhausted")
	ErrInsufficientContent = errors.New("insufficient content extracted")
	ErrInvalidInput        = errors.New("invalid input")
	ErrRateLimited         = errors.New("rate limit exceeded")
	ErrInternal            = errors.New("internal error")
)

// AppError attaches a human-readable message and an HTTP status to a
// sentinel error.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// HTTPStatusCode maps an error to the HTTP status a host API should return.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrArticleNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrQueueFull), errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrFetchTimeout), errors.Is(err, ErrRetryExhausted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
