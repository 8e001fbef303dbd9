package news

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cfg(endpoint string) Config {
	return Config{
		Endpoint:          endpoint,
		APIKey:            "key",
		Country:           "us",
		Language:          "en",
		ItemsToRetrieve:   10,
		UniqueItemsPerDay: 2,
	}
}

func TestFetchItemsSelectsFirstNUniqueAndHashesLink(t *testing.T) {
	resp := topHeadlinesResponse{Data: []article{
		{Title: "A", Link: "https://example.com/a", Snippet: "a snippet"},
		{Title: "B", Link: "https://example.com/b"},
		{Title: "C", Link: "https://example.com/c"},
		{Title: "", Link: "https://example.com/missing-title"},
		{Title: "Missing link"},
	}}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	a := New(cfg(srv.Listener.Addr().String()), nil)
	a.baseURL = srv.URL

	stream, err := a.FetchItems(context.Background(), nil, 100)
	require.NoError(t, err)

	var got []string
	for {
		r, ok, err := stream.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, r.ID)
	}

	require.Len(t, got, 2)
	assert.Equal(t, "news:"+SourceID("https://example.com/a"), got[0])
	assert.Equal(t, "news:"+SourceID("https://example.com/b"), got[1])
}

func TestFetchItemsShortCircuitsWhenAlreadyIngestedToday(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(topHeadlinesResponse{})
	}))
	defer srv.Close()

	a := New(cfg(srv.Listener.Addr().String()), func(ctx context.Context, date string) bool { return true })
	a.baseURL = srv.URL

	stream, err := a.FetchItems(context.Background(), nil, 10)
	require.NoError(t, err)
	_, ok, err := stream.Next()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, calls)
}

func TestFetchItemsSkippedWhenUnconfigured(t *testing.T) {
	a := New(Config{}, nil)
	stream, err := a.FetchItems(context.Background(), nil, 10)
	require.NoError(t, err)
	_, ok, err := stream.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSourceIDIsStableForSameLink(t *testing.T) {
	assert.Equal(t, SourceID("https://example.com/a"), SourceID("https://example.com/a"))
	assert.NotEqual(t, SourceID("https://example.com/a"), SourceID("https://example.com/b"))
}
