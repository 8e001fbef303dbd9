package syncmanager

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daylog/internal/adapter"
	"daylog/internal/ingestion"
	"daylog/internal/processor"
	"daylog/internal/record"
	"daylog/internal/scheduler"
	"daylog/internal/store"
)

type fakeStream struct {
	items []record.Record
	pos   int
}

func (f *fakeStream) Next() (record.Record, bool, error) {
	if f.pos >= len(f.items) {
		return record.Record{}, false, nil
	}
	item := f.items[f.pos]
	f.pos++
	return item, true, nil
}

func (f *fakeStream) Close() error { return nil }

type fakeAdapter struct{ items []record.Record }

func (a *fakeAdapter) FetchItems(ctx context.Context, since *time.Time, limit int) (adapter.RecordStream, error) {
	return &fakeStream{items: a.items}, nil
}
func (a *fakeAdapter) TestConnection(ctx context.Context) bool { return true }
func (a *fakeAdapter) Close() error                            { return nil }

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{0, 0, 0}
	}
	return out, nil
}

func newTestManager(t *testing.T, sources []SourceConfig) (*Manager, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(context.Background(), store.Config{
		Path:      filepath.Join(dir, "data.db"),
		VectorDir: dir,
		VectorDim: 3,
	})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	registry := processor.NewRegistry(st.FingerprintLookupFunc(context.Background()))
	svc := ingestion.New(st, registry, fakeEmbedder{}, nil, time.UTC)
	sched := scheduler.New(5 * time.Millisecond)
	mgr := New(st, svc, sched, sources)
	return mgr, st
}

func TestStartSkipsInvalidSources(t *testing.T) {
	mgr, _ := newTestManager(t, []SourceConfig{
		{Namespace: "news", Valid: false},
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, mgr.Start(ctx))

	health := mgr.CheckServiceHealth()
	assert.Empty(t, health)
}

func TestStartTriggersCadencedSourceWithNoPriorSync(t *testing.T) {
	mgr, st := newTestManager(t, []SourceConfig{
		{
			Namespace:  "news",
			Valid:      true,
			Adapter:    &fakeAdapter{items: []record.Record{record.New("news", "a", "x", nil, time.Now())}},
			SourceType: "news",
			Interval:   time.Hour,
			Cadenced:   true,
		},
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, mgr.Start(ctx))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, ok, _ := st.LastSync(context.Background(), "news"); ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("startup trigger never ran ingest_from_source")
}

func TestStartDoesNotTriggerUncadencedSource(t *testing.T) {
	mgr, _ := newTestManager(t, []SourceConfig{
		{
			Namespace:  "twitter_archive",
			Valid:      true,
			Adapter:    &fakeAdapter{items: []record.Record{record.New("twitter_archive", "a", "x", nil, time.Now())}},
			SourceType: "archive",
			Interval:   0,
			Cadenced:   false,
		},
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, mgr.Start(ctx))

	time.Sleep(80 * time.Millisecond)
	snap, ok := mgr.scheduler.Snapshot("twitter_archive")
	require.True(t, ok)
	assert.True(t, snap.LastRun.IsZero(), "uncadenced sources must not auto-trigger on startup")
}

func TestCheckServiceHealthClassifiesCritical(t *testing.T) {
	mgr, _ := newTestManager(t, []SourceConfig{
		{
			Namespace: "news",
			Valid:     true,
			Adapter:   &failingAdapter{},
			Interval:  time.Hour,
			Cadenced:  false,
		},
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, mgr.Start(ctx))
	require.True(t, mgr.scheduler.TriggerNow("news"))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		h := mgr.CheckServiceHealth()
		if h["news"].ErrorCount >= criticalErrorCount {
			assert.Equal(t, HealthCritical, h["news"].Status)
			return
		}
		mgr.scheduler.TriggerNow("news")
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("news namespace never reached critical")
}

type failingAdapter struct{}

func (failingAdapter) FetchItems(ctx context.Context, since *time.Time, limit int) (adapter.RecordStream, error) {
	return nil, assertError{}
}
func (failingAdapter) TestConnection(ctx context.Context) bool { return false }
func (failingAdapter) Close() error                            { return nil }

type assertError struct{}

func (assertError) Error() string { return "fetch failed" }
