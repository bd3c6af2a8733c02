package twitch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const (
	maxAttempts  = 3
	firstBackoff = 500 * time.Millisecond
	maxBackoff   = 5 * time.Second
)

// APIError is a non-2xx response from the platform.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("twitch: status %d: %s", e.StatusCode, e.Body)
}

// retryable reports whether an error warrants another attempt: network
// failures, 5xx, and 429. Other 4xx are permanent.
func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 || apiErr.StatusCode == http.StatusTooManyRequests
	}
	return true
}

// doWithRetry runs f up to maxAttempts times with exponential backoff
// starting at firstBackoff and capped at maxBackoff.
func doWithRetry(ctx context.Context, f func() error) error {
	backoff := firstBackoff
	var err error
	for attempt := 1; ; attempt++ {
		err = f()
		if err == nil || !retryable(err) || attempt == maxAttempts {
			return err
		}
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
