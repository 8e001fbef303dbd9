// Package retry implements the resilient HTTP execution policy shared by
// every source adapter: backoff strategies, composable retry conditions,
// and rate-limit-aware pacing. Grounded on the teacher's GitHub client
// (internal/adapters/ingest/github/client.go) and generalized to match
// the original Python retry_utils.py feature set.
package retry

import "time"

// BackoffStrategy selects how Executor spaces out retry attempts
type BackoffStrategy int

const (
	// Fixed retries after the same delay every time
	Fixed BackoffStrategy = iota

	// Linear grows the delay linearly with the attempt number
	Linear

	// Exponential doubles the delay each attempt, capped at MaxDelay
	Exponential

	// CustomExponential grows by Config.ExponentialBase each attempt
	CustomExponential

	// RateLimit doubles RateLimitBaseDelay each attempt, capped at
	// RateLimitMaxDelay; as with every strategy, a Retry-After header takes
	// precedence when RespectRetryAfter is set
	RateLimit
)

// Config mirrors original_source/core/retry_utils.py's RetryConfig dataclass
type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	BackoffStrategy BackoffStrategy
	ExponentialBase float64

	RateLimitBaseDelay time.Duration
	RateLimitMaxDelay  time.Duration
	RespectRetryAfter  bool

	Jitter  bool
	Timeout time.Duration
}

// DefaultConfig returns sane defaults for a well-behaved external API client
func DefaultConfig() Config {
	return Config{
		MaxRetries:         5,
		BaseDelay:          500 * time.Millisecond,
		MaxDelay:           30 * time.Second,
		BackoffStrategy:    Exponential,
		ExponentialBase:    2.0,
		RateLimitBaseDelay: 1 * time.Second,
		RateLimitMaxDelay:  60 * time.Second,
		RespectRetryAfter:  true,
		Jitter:             true,
		Timeout:            10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 500 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.ExponentialBase <= 0 {
		c.ExponentialBase = 2.0
	}
	if c.RateLimitBaseDelay <= 0 {
		c.RateLimitBaseDelay = 1 * time.Second
	}
	if c.RateLimitMaxDelay <= 0 {
		c.RateLimitMaxDelay = 60 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	return c
}
