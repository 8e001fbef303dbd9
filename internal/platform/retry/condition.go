package retry

import (
	"errors"
	"net"
	"net/http"
	"syscall"
)

// Condition decides, for a given error and the response it may carry,
// whether a failed attempt should be retried. Mirrors
// original_source/core/retry_utils.py's RetryCondition hierarchy
type Condition interface {
	ShouldRetry(err error, resp *http.Response, attempt int) bool
}

// NetworkCondition retries on connection-level failures: timeouts, refused
// connections, DNS errors, and anything satisfying net.Error.Timeout
type NetworkCondition struct{}

// ShouldRetry implements Condition
func (NetworkCondition) ShouldRetry(err error, _ *http.Response, _ int) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

// HTTPStatusCondition retries when the response status is in RetryableStatus
type HTTPStatusCondition struct {
	RetryableStatus []int
}

// NewHTTPStatusCondition returns a condition defaulting to the teacher's
// transient status set when none is given
func NewHTTPStatusCondition(statuses ...int) HTTPStatusCondition {
	if len(statuses) == 0 {
		statuses = []int{http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout}
	}
	return HTTPStatusCondition{RetryableStatus: statuses}
}

// ShouldRetry implements Condition
func (c HTTPStatusCondition) ShouldRetry(_ error, resp *http.Response, _ int) bool {
	if resp == nil {
		return false
	}
	for _, s := range c.RetryableStatus {
		if resp.StatusCode == s {
			return true
		}
	}
	return false
}

// RateLimitCondition specializes rate-limit detection: HTTP 429 qualifies
// unless its Retry-After exceeds MaxRateLimitDelaySeconds;
// 502/503 with X-RateLimit-Remaining: 0 also qualifies
type RateLimitCondition struct {
	MaxRateLimitDelaySeconds int
}

// NewRateLimitCondition returns a condition with the teacher's 300s ceiling
// when maxDelaySeconds is zero
func NewRateLimitCondition(maxDelaySeconds int) RateLimitCondition {
	if maxDelaySeconds <= 0 {
		maxDelaySeconds = 300
	}
	return RateLimitCondition{MaxRateLimitDelaySeconds: maxDelaySeconds}
}

// ShouldRetry implements Condition
func (c RateLimitCondition) ShouldRetry(_ error, resp *http.Response, _ int) bool {
	if resp == nil {
		return false
	}
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		if d, ok := ParseRetryAfter(resp); ok {
			return int(d.Seconds()) <= c.MaxRateLimitDelaySeconds
		}
		return true
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return resp.Header.Get("X-RateLimit-Remaining") == "0"
	default:
		return false
	}
}

// CompositeCondition OR-composes any number of Conditions
type CompositeCondition struct {
	Conditions []Condition
}

// NewCompositeCondition builds a CompositeCondition from the given conditions
func NewCompositeCondition(conditions ...Condition) CompositeCondition {
	return CompositeCondition{Conditions: conditions}
}

// ShouldRetry implements Condition, true if any child condition is true
func (c CompositeCondition) ShouldRetry(err error, resp *http.Response, attempt int) bool {
	for _, cond := range c.Conditions {
		if cond.ShouldRetry(err, resp, attempt) {
			return true
		}
	}
	return false
}

// DefaultCondition composes network, standard transient statuses, and rate
// limiting, matching the conditions the teacher's GitHub client checks
// inline. Its rate-limit ceiling is the package default (300s) since no
// Config is available here; callers that have a Config should use
// DefaultConditionForConfig instead so the ceiling matches
// Config.RateLimitMaxDelay
func DefaultCondition() Condition {
	return NewCompositeCondition(
		NetworkCondition{},
		NewHTTPStatusCondition(),
		NewRateLimitCondition(0),
	)
}

// DefaultConditionForConfig is DefaultCondition with the rate-limit ceiling
// derived from cfg.RateLimitMaxDelay instead of the 300s package default,
// so a Retry-After above what this Config would ever wait for is correctly
// treated as not retryable (spec: "Accept the retry only if the advised
// delay <= rate_limit_max_delay")
func DefaultConditionForConfig(cfg Config) Condition {
	cfg = cfg.withDefaults()
	return NewCompositeCondition(
		NetworkCondition{},
		NewHTTPStatusCondition(),
		NewRateLimitCondition(int(cfg.RateLimitMaxDelay.Seconds())),
	)
}
