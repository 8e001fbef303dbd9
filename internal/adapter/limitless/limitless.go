// Package limitless implements the LifelogAdapter: a cursor-paginated
// source over the Limitless API, grounded on original_source/sources/
// limitless.py and the shared adapter/httpclient lifecycle.
package limitless

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"daylog/internal/adapter"
	perr "daylog/internal/platform/errors"
	"daylog/internal/platform/logger"
	"daylog/internal/platform/retry"
	"daylog/internal/record"
)

const namespace = "limitless"

// pageSize is the Limitless API's hard per-request cap
const pageSize = 10

// Config configures a LifelogAdapter instance
type Config struct {
	BaseURL    string
	APIKey     string
	Timezone   string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// Adapter implements adapter.Adapter for Limitless lifelogs
type Adapter struct {
	cfg   Config
	http  *adapter.HTTPClientLifecycle
	clock func() time.Time
}

// New constructs a LifelogAdapter
func New(cfg Config) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.limitless.ai"
	}
	retryCfg := retry.DefaultConfig()
	if cfg.MaxRetries > 0 {
		retryCfg.MaxRetries = cfg.MaxRetries
	}
	if cfg.RetryDelay > 0 {
		retryCfg.BaseDelay = cfg.RetryDelay
	}
	retryCfg.MaxDelay = 60 * time.Second

	return &Adapter{
		cfg: cfg,
		http: adapter.NewHTTPClientLifecycle(adapter.HTTPClientConfig{
			BaseURL: cfg.BaseURL,
			Headers: map[string]string{"X-API-Key": cfg.APIKey},
			Timeout: cfg.Timeout,
			Retry:   retryCfg,
		}),
		clock: time.Now,
	}
}

// apiKeyConfigured reports whether the adapter has credentials to call out
func (a *Adapter) apiKeyConfigured() bool { return strings.TrimSpace(a.cfg.APIKey) != "" }

// TestConnection implements adapter.Adapter
func (a *Adapter) TestConnection(ctx context.Context) bool {
	if !a.apiKeyConfigured() {
		logger.C(ctx).Warn().Msg("limitless api key not configured, connection test skipped")
		return false
	}
	resp, err := a.get(ctx, "/v1/lifelogs", url.Values{"limit": {"1"}})
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 400
}

// Close implements adapter.Adapter
func (a *Adapter) Close() error { return a.http.Close() }

type lifelogsResponse struct {
	Data struct {
		Lifelogs []lifelog `json:"lifelogs"`
	} `json:"data"`
	Meta struct {
		Lifelogs struct {
			NextCursor string `json:"nextCursor"`
		} `json:"lifelogs"`
	} `json:"meta"`
}

type lifelog struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Markdown  string         `json:"markdown"`
	StartTime string         `json:"startTime"`
	EndTime   string         `json:"endTime"`
	UpdatedAt string         `json:"updatedAt"`
	IsStarred bool           `json:"isStarred"`
	Contents  []contentNode  `json:"contents"`
	Raw       map[string]any `json:"-"`
}

type contentNode struct {
	Type              string        `json:"type"`
	Content           string        `json:"content"`
	SpeakerName       string        `json:"speakerName"`
	SpeakerIdentifier string        `json:"speakerIdentifier"`
	Children          []contentNode `json:"children"`
}

// stream implements adapter.RecordStream for the cursor-paginated lifelog feed
type stream struct {
	a       *Adapter
	ctx     context.Context
	since   *time.Time
	limit   int
	fetched int
	cursor  string
	buf     []record.Record
	bufPos  int
	done    bool
}

// FetchItems implements adapter.Adapter
func (a *Adapter) FetchItems(ctx context.Context, since *time.Time, limit int) (adapter.RecordStream, error) {
	if !a.apiKeyConfigured() {
		logger.C(ctx).Warn().Msg("limitless api key not configured, skipping fetch")
		return adapter.NewSliceStream(nil), nil
	}
	return &stream{a: a, ctx: ctx, since: since, limit: limit}, nil
}

// Next implements adapter.RecordStream, fetching pages on demand
func (s *stream) Next() (record.Record, bool, error) {
	if s.fetched >= s.limit {
		return record.Record{}, false, nil
	}
	for s.bufPos >= len(s.buf) {
		if s.done || s.fetched >= s.limit {
			return record.Record{}, false, nil
		}
		if err := s.fillPage(); err != nil {
			return record.Record{}, false, err
		}
		if len(s.buf) == 0 {
			return record.Record{}, false, nil
		}
	}
	item := s.buf[s.bufPos]
	s.bufPos++
	s.fetched++
	return item, true, nil
}

// Close implements adapter.RecordStream
func (s *stream) Close() error { return nil }

func (s *stream) fillPage() error {
	remaining := pageSize
	if left := s.limit - s.fetched; left < remaining {
		remaining = left
	}

	params := url.Values{
		"limit":           {strconv.Itoa(remaining)},
		"includeMarkdown": {"true"},
		"includeHeadings": {"true"},
	}
	if s.a.cfg.Timezone != "" {
		params.Set("timezone", s.a.cfg.Timezone)
	}
	if s.cursor != "" {
		params.Set("cursor", s.cursor)
	}
	if s.since != nil {
		params.Set("start", s.since.UTC().Format("2006-01-02 15:04:05"))
	}

	resp, err := s.a.get(s.ctx, "/v1/lifelogs", params)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var payload lifelogsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeParse, "limitless: decode lifelogs page")
	}

	s.buf = s.buf[:0]
	s.bufPos = 0
	for _, lg := range payload.Data.Lifelogs {
		s.buf = append(s.buf, transformLifelog(lg))
	}

	if payload.Meta.Lifelogs.NextCursor == "" || len(payload.Data.Lifelogs) == 0 {
		s.done = true
	} else {
		s.cursor = payload.Meta.Lifelogs.NextCursor
	}
	return nil
}

func (a *Adapter) get(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	reqURL := a.cfg.BaseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	resp, _, err := a.http.Executor().Do(ctx, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}
		a.http.ApplyHeaders(req)
		return a.http.Client().Do(req)
	})
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "limitless: request %s", path)
	}
	return resp, nil
}

// transformLifelog mirrors _transform_lifelog: title + depth-first content
// flatten, full payload retained in metadata
func transformLifelog(lg lifelog) record.Record {
	var parts []string
	if lg.Title != "" {
		parts = append(parts, lg.Title)
	}
	parts = append(parts, flattenContent(lg.Contents)...)
	if len(parts) == 0 && lg.Markdown != "" {
		parts = append(parts, lg.Markdown)
	}
	content := strings.Join(parts, "\n\n")

	metadata := map[string]any{
		"title":         lg.Title,
		"start_time":    lg.StartTime,
		"end_time":      lg.EndTime,
		"is_starred":    lg.IsStarred,
		"updated_at":    lg.UpdatedAt,
		"speakers":      extractSpeakers(lg.Contents),
		"content_types": extractContentTypes(lg.Contents),
		"has_markdown":  lg.Markdown != "",
		"node_count":    len(lg.Contents),
	}
	metadata["original_lifelog"] = lg

	createdAt := parseLifelogTime(lg.StartTime)
	updatedAt := parseLifelogTime(lg.UpdatedAt)
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	r := record.New(namespace, lg.ID, content, metadata, createdAt)
	r.UpdatedAt = updatedAt
	return r
}

func parseLifelogTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}

// flattenContent walks the content tree depth-first, prefixing blockquote
// nodes with "{speaker}: ", tagging the owner's speaker identifier "(You)"
func flattenContent(nodes []contentNode) []string {
	var parts []string
	for _, n := range nodes {
		if n.Content != "" {
			if n.Type == "blockquote" && n.SpeakerName != "" {
				speaker := n.SpeakerName
				if n.SpeakerIdentifier == "user" {
					speaker = fmt.Sprintf("%s (You)", speaker)
				}
				parts = append(parts, fmt.Sprintf("%s: %s", speaker, n.Content))
			} else {
				parts = append(parts, n.Content)
			}
		}
		if len(n.Children) > 0 {
			parts = append(parts, flattenContent(n.Children)...)
		}
	}
	return parts
}

func extractSpeakers(nodes []contentNode) []string {
	seen := map[string]struct{}{}
	var out []string
	var walk func([]contentNode)
	walk = func(ns []contentNode) {
		for _, n := range ns {
			if n.SpeakerName != "" {
				if _, ok := seen[n.SpeakerName]; !ok {
					seen[n.SpeakerName] = struct{}{}
					out = append(out, n.SpeakerName)
				}
			}
			walk(n.Children)
		}
	}
	walk(nodes)
	return out
}

func extractContentTypes(nodes []contentNode) []string {
	seen := map[string]struct{}{}
	var out []string
	var walk func([]contentNode)
	walk = func(ns []contentNode) {
		for _, n := range ns {
			if n.Type != "" {
				if _, ok := seen[n.Type]; !ok {
					seen[n.Type] = struct{}{}
					out = append(out, n.Type)
				}
			}
			walk(n.Children)
		}
	}
	walk(nodes)
	return out
}
