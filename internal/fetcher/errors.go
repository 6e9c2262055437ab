package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/javainthinking/skillspick/internal/retry"
)

// FetchError is returned when an upstream answers with a non-2xx status.
type FetchError struct {
	StatusCode int
	Status     string
	URL        string
	Body       string
}

func (e *FetchError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("fetch %s: HTTP %d: %s", e.URL, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
}

// StatusCode extracts the HTTP status from a FetchError anywhere in the chain.
func StatusCode(err error) (int, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.StatusCode, true
	}
	return 0, false
}

// IsNotFound reports whether err is a 404 FetchError.
func IsNotFound(err error) bool {
	code, ok := StatusCode(err)
	return ok && code == http.StatusNotFound
}

// Retryable reports whether a failed fetch is worth another attempt.
// Cancellation, auth failures and missing resources are permanent.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if code, ok := StatusCode(err); ok {
		switch code {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return false
		}
	}
	return true
}

// LinearPolicy retries with a fixed step: step, 2*step, 3*step, ...
func LinearPolicy(attempts int, step time.Duration) retry.Config {
	return retry.Config{
		MaxAttempts:  attempts,
		InitialDelay: step,
		MaxDelay:     step * time.Duration(attempts),
		Backoff:      retry.Linear,
		IsRetryable:  Retryable,
	}
}

// ExponentialPolicy doubles the delay from initial up to ceiling.
func ExponentialPolicy(attempts int, initial, ceiling time.Duration) retry.Config {
	return retry.Config{
		MaxAttempts:  attempts,
		InitialDelay: initial,
		MaxDelay:     ceiling,
		Multiplier:   2,
		Backoff:      retry.Exponential,
		IsRetryable:  Retryable,
	}
}
