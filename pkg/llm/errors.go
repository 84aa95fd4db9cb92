package llm

import (
	"errors"
	"fmt"
	"strings"
)

// RateLimitError indicates the provider refused the request because of
// rate or quota limits. The fallback client reacts to this kind only.
type RateLimitError struct {
	Message string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %s", e.Message)
}

// TransientError indicates a failure that may succeed on retry (timeouts,
// 5xx responses, connection resets).
type TransientError struct {
	Message string
	Err     error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient llm error: %s", e.Message)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// EmptyResponseError indicates the model returned no usable content.
type EmptyResponseError struct {
	Message string
}

func (e *EmptyResponseError) Error() string {
	return fmt.Sprintf("empty llm response: %s", e.Message)
}

var rateLimitMarkers = []string{"429", "rate", "quota", "limit"}

// IsRateLimitError reports whether err is a rate limit failure, either a
// typed *RateLimitError or a provider error whose text carries the usual
// rate limit markers.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range rateLimitMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// IsTransientError reports whether err is worth retrying.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	if IsRateLimitError(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"timeout", "connection", "reset", "unavailable", "502", "503", "504"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
