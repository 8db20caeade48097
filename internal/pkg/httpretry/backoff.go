// Package httpretry holds the retry policy for calls to the inference
// oracle: exponential backoff with full jitter, Retry-After parsing and the
// set of transient HTTP statuses. The attempt loop itself lives with the
// caller, so every attempt can pass through the caller's rate limiter.
package httpretry

import (
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// HTTPDoer is the interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Backoff computes the wait before a retry attempt.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
	Min  time.Duration
}

// DefaultBackoff starts at one second and caps at thirty.
func DefaultBackoff() Backoff {
	return Backoff{Base: time.Second, Max: 30 * time.Second, Min: 100 * time.Millisecond}
}

// Delay returns random(0, min(Max, Base * 2^(attempt-1))), floored at Min.
// A server-provided retryAfter wins when it is longer and still within Max.
func (b Backoff) Delay(attempt int, retryAfter time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	expDelay := float64(b.Base) * math.Pow(2, float64(attempt-1))
	if b.Max > 0 && expDelay > float64(b.Max) {
		expDelay = float64(b.Max)
	}
	delay := time.Duration(rand.Float64() * expDelay)
	if delay < b.Min {
		delay = b.Min
	}
	if retryAfter > delay && (b.Max <= 0 || retryAfter <= b.Max) {
		delay = retryAfter
	}
	return delay
}

// ParseRetryAfter understands the delta-seconds form of Retry-After.
func ParseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// IsRetryableStatus reports whether the status code is a transient failure:
// 429, 500, 502, 503 or 504.
func IsRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
