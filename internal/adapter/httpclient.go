package adapter

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"daylog/internal/platform/retry"
)

// HTTPClientConfig configures the lazily-built client an adapter instance
// shares across calls. Mirrors the config dict original_source/core/
// http_client_mixin.py's _create_client_config returns
type HTTPClientConfig struct {
	BaseURL string
	Headers map[string]string
	Timeout time.Duration
	Retry   retry.Config

	// RateLimitPerSecond and RateLimitBurst self-pace outgoing requests
	// ahead of the provider's own limit; zero means unpaced
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// HTTPClientLifecycle lazily constructs and tears down a single *http.Client
// and retry.Executor per adapter instance, grounded on the teacher's GitHub
// client (one *http.Client built once in NewClient) generalized to the
// Python mixin's lazy/thread-safe _ensure_client pattern
type HTTPClientLifecycle struct {
	cfg HTTPClientConfig

	mu       sync.Mutex
	client   *http.Client
	executor *retry.Executor
}

// NewHTTPClientLifecycle returns a lifecycle that builds nothing until the
// first call to Client/Executor
func NewHTTPClientLifecycle(cfg HTTPClientConfig) *HTTPClientLifecycle {
	return &HTTPClientLifecycle{cfg: cfg}
}

// Client returns the shared *http.Client, constructing it on first use
func (l *HTTPClientLifecycle) Client() *http.Client {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.client == nil {
		timeout := l.cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		l.client = &http.Client{Timeout: timeout}
	}
	return l.client
}

// Executor returns the shared retry.Executor wrapping this adapter's
// retry policy, constructing it on first use
func (l *HTTPClientLifecycle) Executor() *retry.Executor {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.executor == nil {
		l.executor = retry.NewExecutor(l.cfg.Retry, retry.DefaultConditionForConfig(l.cfg.Retry))
		if l.cfg.RateLimitPerSecond > 0 {
			burst := l.cfg.RateLimitBurst
			if burst <= 0 {
				burst = 1
			}
			l.executor.WithLimiter(rate.NewLimiter(rate.Limit(l.cfg.RateLimitPerSecond), burst))
		}
	}
	return l.executor
}

// Close releases the underlying transport's idle connections. Safe to call
// even if the client was never constructed
func (l *HTTPClientLifecycle) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.client != nil {
		l.client.CloseIdleConnections()
	}
	return nil
}

// ApplyHeaders sets the lifecycle's configured static headers on req
func (l *HTTPClientLifecycle) ApplyHeaders(req *http.Request) {
	for k, v := range l.cfg.Headers {
		req.Header.Set(k, v)
	}
}
