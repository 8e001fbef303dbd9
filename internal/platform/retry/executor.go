package retry

import (
	"context"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	perr "daylog/internal/platform/errors"
	"daylog/internal/platform/logger"
)

// Result describes how an Executor.Do call finished
type Result struct {
	Attempts  int
	TotalTime time.Duration
}

// Executor runs an HTTP-issuing function under a Config and Condition,
// retrying transient failures with the configured backoff strategy.
// Grounded on the teacher's GitHub client retry loop (internal/adapters/
// ingest/github/client.go Do) and original_source/core/retry_utils.py
type Executor struct {
	Config    Config
	Condition Condition

	// Limiter self-paces outgoing attempts ahead of the provider's own
	// rate limit, generalizing the teacher's GitHub client token-bucket
	// idea (internal/adapters/ingest/github/client.go) to any HTTP source.
	// Nil means unpaced.
	Limiter *rate.Limiter

	// sleep and now are overridable for deterministic tests
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewExecutor builds an Executor with the given config and condition. A nil
// condition defaults to DefaultConditionForConfig(cfg), so the rate-limit
// acceptance ceiling always tracks this Executor's own RateLimitMaxDelay
// rather than a fixed constant
func NewExecutor(cfg Config, cond Condition) *Executor {
	cfg = cfg.withDefaults()
	if cond == nil {
		cond = DefaultConditionForConfig(cfg)
	}
	return &Executor{
		Config:    cfg,
		Condition: cond,
		sleep:     ctxSleep,
		now:       time.Now,
	}
}

// WithLimiter attaches a self-imposed rate limit, consulted before every
// attempt (including the first)
func (e *Executor) WithLimiter(l *rate.Limiter) *Executor {
	e.Limiter = l
	return e
}

// Do runs fn, retrying per Config/Condition until success, exhaustion, or
// ctx cancellation. fn receives a per-attempt context bounded by
// Config.Timeout when set
func (e *Executor) Do(ctx context.Context, fn func(ctx context.Context) (*http.Response, error)) (*http.Response, *Result, error) {
	start := e.now()
	var lastErr error

	for attempt := 0; attempt <= e.Config.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, &Result{Attempts: attempt, TotalTime: e.now().Sub(start)}, ctx.Err()
		default:
		}

		if e.Limiter != nil {
			if err := e.Limiter.Wait(ctx); err != nil {
				return nil, &Result{Attempts: attempt, TotalTime: e.now().Sub(start)}, err
			}
		}

		attemptCtx := ctx
		var cancel context.CancelFunc
		if e.Config.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, e.Config.Timeout)
		}
		resp, err := fn(attemptCtx)
		if cancel != nil {
			cancel()
		}
		lastErr = err

		if err == nil && resp != nil && !isErrorStatus(resp.StatusCode) {
			return resp, &Result{Attempts: attempt + 1, TotalTime: e.now().Sub(start)}, nil
		}

		retryable := e.Condition.ShouldRetry(err, resp, attempt)
		if !retryable || attempt >= e.Config.MaxRetries {
			logger.C(ctx).Error().
				Err(err).
				Int("attempt", attempt+1).
				Bool("retryable", retryable).
				Msg("retry exhausted or non-retryable error")
			if err == nil {
				err = perr.Newf(perr.ErrorCodeUnavailable, "unretryable response status %d", resp.StatusCode)
			}
			return resp, &Result{Attempts: attempt + 1, TotalTime: e.now().Sub(start)}, err
		}

		delay := e.calculateDelay(attempt, resp)
		logger.C(ctx).Warn().
			Dur("retry_in", delay).
			Int("attempt", attempt+1).
			Str("reason", perr.CodeOf(err).String()).
			Msg("retrying request")

		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}

		if serr := e.sleep(ctx, delay); serr != nil {
			return nil, &Result{Attempts: attempt + 1, TotalTime: e.now().Sub(start)}, serr
		}
	}

	return nil, &Result{Attempts: e.Config.MaxRetries + 1, TotalTime: e.now().Sub(start)}, lastErr
}

func isErrorStatus(status int) bool {
	return status >= 400
}

// calculateDelay mirrors RetryExecutor._calculate_delay
func (e *Executor) calculateDelay(attempt int, resp *http.Response) time.Duration {
	if e.Config.RespectRetryAfter && resp != nil {
		if d, ok := ParseRetryAfter(resp); ok {
			return clampDelay(d, e.Config.RateLimitMaxDelay)
		}
	}

	var delay, maxDelay time.Duration
	switch e.Config.BackoffStrategy {
	case RateLimit:
		delay = e.Config.RateLimitBaseDelay * time.Duration(math.Pow(2, float64(attempt)))
		maxDelay = e.Config.RateLimitMaxDelay
	case Fixed:
		delay = e.Config.BaseDelay
		maxDelay = e.Config.MaxDelay
	case Linear:
		delay = e.Config.BaseDelay * time.Duration(attempt+1)
		maxDelay = e.Config.MaxDelay
	case CustomExponential:
		delay = time.Duration(float64(e.Config.BaseDelay) * math.Pow(e.Config.ExponentialBase, float64(attempt)))
		maxDelay = e.Config.MaxDelay
	case Exponential:
		fallthrough
	default:
		delay = e.Config.BaseDelay * time.Duration(math.Pow(2, float64(attempt)))
		maxDelay = e.Config.MaxDelay
	}

	delay = clampDelay(delay, maxDelay)

	if e.Config.Jitter {
		jitter := 0.9 + rand.Float64()*0.2
		delay = time.Duration(float64(delay) * jitter)
	}

	return delay
}

func clampDelay(delay, max time.Duration) time.Duration {
	if max > 0 && delay > max {
		return max
	}
	return delay
}

// ParseRetryAfter reads the Retry-After header, supporting both the
// integer-seconds and HTTP-date forms. Returns false when absent or
// unparseable. Negative results are clamped to zero
func ParseRetryAfter(resp *http.Response) (time.Duration, bool) {
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs < 0 {
			secs = 0
		}
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(raw); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

// ctxSleep sleeps for d or returns ctx.Err() if ctx is cancelled first,
// matching the teacher's cancellation-aware retry loop
func ctxSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
