package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"ytaccess/internal/retry"
)

// ErrRequestFailed wraps transport failures: DNS, refused or reset
// connections and client timeouts.
var ErrRequestFailed = errors.New("http request failed")

// RateLimitError is a 429, 503 or 403 answer. YouTube answers 403 with its
// "unusual traffic" page when it suspects automation.
type RateLimitError struct {
	Host       string
	StatusCode int
	// RetryAfter is the larger of the server's Retry-After and the host's
	// current backoff.
	RetryAfter time.Duration
	// BotCheck is set for 403 answers.
	BotCheck bool
}

func (e *RateLimitError) Error() string {
	what := "rate limited"
	if e.BotCheck {
		what = "bot check"
	}
	if e.RetryAfter <= 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Host, what, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s (status %d), retry after %v", e.Host, what, e.StatusCode, e.RetryAfter)
}

// HTTPError is any other non-2xx answer.
type HTTPError struct {
	Host       string
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: status %d", e.Host, e.StatusCode)
}

// Temporary reports whether asking again may get a different answer.
func (e *HTTPError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusRequestTimeout || e.StatusCode == http.StatusTooManyRequests
}

// IsNotFound reports whether err is an HTTP 404 or 410.
func IsNotFound(err error) bool {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		return false
	}
	return httpErr.StatusCode == http.StatusNotFound || httpErr.StatusCode == http.StatusGone
}

// IsTransientHTTPError reports whether err says something about the host's
// health. Rate limits, temporary statuses and transport failures do; a 404
// for one page does not.
func IsTransientHTTPError(err error) bool {
	if err == nil {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Temporary()
	}
	return true
}

// shouldRetry is the retry classifier of Client.Do.
func shouldRetry(err error) bool {
	if !retry.IsRetryable(err) {
		return false
	}
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return true
	}
	return IsTransientHTTPError(err)
}

// retryAfter reads Retry-After in either of its forms, seconds or an HTTP
// date. Zero means absent or already past.
func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(max(secs, 0)) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		return max(time.Until(at), 0)
	}
	return 0
}
