package adapter

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"daylog/internal/platform/retry"
)

func TestExecutorDerivesRateLimitCeilingFromRetryConfig(t *testing.T) {
	lc := NewHTTPClientLifecycle(HTTPClientConfig{
		Retry: retry.Config{RateLimitMaxDelay: 60 * time.Second},
	})
	e := lc.Executor()

	withinCeiling := &http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{}}
	withinCeiling.Header.Set("Retry-After", "30")
	assert.True(t, e.Condition.ShouldRetry(nil, withinCeiling, 0))

	// 120s exceeds the 60s RateLimitMaxDelay configured above, even though
	// it is well under the package's 300s hardcoded fallback ceiling
	aboveConfiguredCeiling := &http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{}}
	aboveConfiguredCeiling.Header.Set("Retry-After", "120")
	assert.False(t, e.Condition.ShouldRetry(nil, aboveConfiguredCeiling, 0))
}

func TestExecutorIsCachedAcrossCalls(t *testing.T) {
	lc := NewHTTPClientLifecycle(HTTPClientConfig{Retry: retry.Config{}})
	assert.Same(t, lc.Executor(), lc.Executor())
}
