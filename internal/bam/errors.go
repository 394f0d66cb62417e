package bam

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors mapped from API status codes. Handlers and the executor
// branch on these with errors.Is / errors.As.
var (
	ErrAlreadyExists = errors.New("resource already exists")
	ErrNotFound      = errors.New("resource not found")
	ErrUnauthorized  = errors.New("authentication failed")
)

// RateLimitError carries the server-provided backoff hint from a 429.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// ServerError is any 5xx response.
type ServerError struct {
	StatusCode int
	Body       string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: %s (status %d)", e.Body, e.StatusCode)
}

// AsRateLimit extracts the retry hint when err is a rate-limit error.
func AsRateLimit(err error) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}
