package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"daylog/internal/adapter"
	perr "daylog/internal/platform/errors"
)

// HTTPEmbedderConfig configures the HTTP-backed Embedder
type HTTPEmbedderConfig struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// HTTPEmbedder calls an OpenAI-embeddings-compatible HTTP endpoint,
// reusing the same lazily-built HTTPClientLifecycle every Source Adapter
// uses rather than introducing a dedicated SDK
type HTTPEmbedder struct {
	cfg  HTTPEmbedderConfig
	http *adapter.HTTPClientLifecycle
}

// NewHTTPEmbedder builds an Embedder against cfg
func NewHTTPEmbedder(cfg HTTPEmbedderConfig) *HTTPEmbedder {
	return &HTTPEmbedder{
		cfg: cfg,
		http: adapter.NewHTTPClientLifecycle(adapter.HTTPClientConfig{
			BaseURL: cfg.Endpoint,
			Headers: map[string]string{
				"Authorization": "Bearer " + cfg.APIKey,
				"Content-Type":  "application/json",
			},
			Timeout: cfg.Timeout,
		}),
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed implements Embedder
func (e *HTTPEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(embedRequest{Model: e.cfg.Model, Input: texts})
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeJSON, "embedder: marshal request")
	}

	resp, _, err := e.http.Executor().Do(ctx, func(attemptCtx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, e.cfg.Endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		e.http.ApplyHeaders(req)
		return e.http.Client().Do(req)
	})
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "embedder: request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "embedder: read response")
	}

	var payload embedResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeParse, "embedder: decode response")
	}

	vectors := make([][]float32, len(texts))
	for _, d := range payload.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			continue
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

// Close releases the underlying HTTP client's idle connections
func (e *HTTPEmbedder) Close() error { return e.http.Close() }
