package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

var (
	// ErrUnavailable covers connection failures and 5xx responses.
	ErrUnavailable = errors.New("model service unavailable")
	// ErrRateLimited is returned for HTTP 429 responses.
	ErrRateLimited = errors.New("model service rate limited")
	// ErrMalformedResponse is returned when a 200 response cannot be used.
	ErrMalformedResponse = errors.New("malformed model service response")
)

// StatusError is a non-200 response from the model service.
type StatusError struct {
	Code       int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bad status %d: %s", e.Code, e.Body)
}

// Unwrap classifies the status so callers can use errors.Is with the sentinels above.
func (e *StatusError) Unwrap() error {
	switch {
	case e.Code == http.StatusTooManyRequests:
		return ErrRateLimited
	case e.Code >= 500:
		return ErrUnavailable
	default:
		return nil
	}
}

// IsRetryable reports whether a later attempt may succeed where err failed.
// Cancellation and 4xx responses other than 408 and 429 are permanent.
// Unclassified errors, such as a vector store connection failure, are transient.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests || se.Code == http.StatusRequestTimeout
	}
	return true
}

// RetryAfter returns the server-suggested delay carried by err, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var se *StatusError
	if errors.As(err, &se) && se.RetryAfter > 0 {
		return se.RetryAfter, true
	}
	return 0, false
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
