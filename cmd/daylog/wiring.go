package main

import (
	"context"
	"time"

	"daylog/internal/adapter/limitless"
	"daylog/internal/adapter/news"
	"daylog/internal/adapter/twitterarchive"
	"daylog/internal/adapter/weather"
	"daylog/internal/ingestion"
	"daylog/internal/metrics"
	"daylog/internal/platform/config"
	"daylog/internal/platform/logger"
	"daylog/internal/processor"
	"daylog/internal/scheduler"
	"daylog/internal/store"
	"daylog/internal/syncmanager"
	"daylog/internal/tuning"
)

// app bundles every long-lived component wiring builds, handed to the run/sync/health subcommands
type app struct {
	store   *store.Store
	ingest  *ingestion.Service
	sched   *scheduler.Scheduler
	sync    *syncmanager.Manager
	metrics *metrics.Metrics
	sources []syncmanager.SourceConfig

	// archive is non-nil only when TWITTER_ARCHIVE_ENABLED is set, letting
	// import-archive fail fast with a clear message rather than a nil dereference
	archive *twitterarchive.Adapter
}

// Close releases every adapter's resources (lazily-built HTTP clients) and
// then the Store. Adapter close errors are logged, not fatal: the process
// is exiting regardless
func (a *app) Close() {
	l := logger.Get()
	for _, src := range a.sources {
		if src.Adapter == nil {
			continue
		}
		if err := src.Adapter.Close(); err != nil {
			l.Warn().Str("namespace", src.Namespace).Err(err).Msg("daylog: adapter close failed")
		}
	}
	if err := a.store.Close(); err != nil {
		l.Warn().Err(err).Msg("daylog: store close failed")
	}
}

// buildApp wires the Store, every configured Source Adapter, the Ingestion
// Service, Scheduler, and Sync Manager from environment variables layered
// over the tuning table, mirroring the teacher's single-constructor main
func buildApp(ctx context.Context, tuningPath string) (*app, error) {
	root := config.New()
	m := metrics.New()

	table, err := tuning.Load(tuningPath)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, store.Config{
		Path:      root.MayString("DAYLOG_DB_PATH", "./daylog.db"),
		VectorDir: root.MayString("DAYLOG_VECTOR_DIR", ""),
		VectorDim: root.MayInt("DAYLOG_VECTOR_DIM", 1536),
		LogSQL:    root.MayBool("DAYLOG_LOG_SQL", false),
	}, store.WithLockMetrics(m.StoreLockWaits.Observe))
	if err != nil {
		return nil, err
	}

	registry := processor.NewRegistry(st.FingerprintLookupFunc(ctx))

	embedder := ingestion.NewHTTPEmbedder(ingestion.HTTPEmbedderConfig{
		Endpoint: root.MayString("DAYLOG_EMBED_ENDPOINT", "https://api.openai.com/v1"),
		APIKey:   root.MayString("DAYLOG_EMBED_API_KEY", ""),
		Model:    root.MayString("DAYLOG_EMBED_MODEL", "text-embedding-3-small"),
		Timeout:  root.MayDuration("DAYLOG_EMBED_TIMEOUT", 30*time.Second),
	})

	svc := ingestion.New(st, registry, embedder, nil, time.UTC)
	sched := scheduler.New(root.MayDuration("DAYLOG_SCHEDULER_TICK", time.Second))
	sched.OnRun(m.RecordJobRun)

	sources := buildSources(root, table, st)
	mgr := syncmanager.New(st, svc, sched, sources)

	a := &app{store: st, ingest: svc, sched: sched, sync: mgr, metrics: m, sources: sources}
	for _, src := range sources {
		if arc, ok := src.Adapter.(*twitterarchive.Adapter); ok {
			a.archive = arc
		}
	}
	return a, nil
}

// buildSources constructs one SourceConfig per configured namespace. A
// source is included only when its required API key (or, for the twitter
// archive, its enable flag) is set; unconfigured sources are omitted, so
// every returned entry is Valid
func buildSources(root config.Conf, table tuning.Table, st *store.Store) []syncmanager.SourceConfig {
	var out []syncmanager.SourceConfig

	if key := root.MayString("LIMITLESS_API_KEY", ""); key != "" {
		cfg := limitless.Config{
			BaseURL:    root.MayString("LIMITLESS_BASE_URL", ""),
			APIKey:     key,
			Timezone:   root.MayString("DAYLOG_TIMEZONE", "UTC"),
			Timeout:    table.Timeout("limitless", 30*time.Second),
			MaxRetries: table.MaxRetries("limitless", 5),
			RetryDelay: table.RetryDelay("limitless", 500*time.Millisecond),
		}
		out = append(out, syncmanager.SourceConfig{
			Namespace:  "limitless",
			Valid:      true,
			Adapter:    limitless.New(cfg),
			SourceType: "limitless",
			Interval:   table.Interval("limitless", 15*time.Minute),
			Timeout:    cfg.Timeout,
			Cadenced:   true,
		})
	}

	if key := root.MayString("NEWS_API_KEY", ""); key != "" {
		cfg := news.Config{
			Endpoint:          root.MayString("NEWS_ENDPOINT", "real-time-news-data.p.rapidapi.com"),
			APIKey:            key,
			Country:           root.MayString("NEWS_COUNTRY", "US"),
			Language:          root.MayString("NEWS_LANGUAGE", "en"),
			ItemsToRetrieve:   root.MayInt("NEWS_ITEMS_TO_RETRIEVE", 20),
			UniqueItemsPerDay: root.MayInt("NEWS_UNIQUE_ITEMS_PER_DAY", 5),
			Timeout:           table.Timeout("news", 30*time.Second),
			MaxRetries:        table.MaxRetries("news", 5),
			RetryDelay:        table.RetryDelay("news", 500*time.Millisecond),
		}
		hasNewsToday := func(ctx context.Context, date string) bool {
			items, err := st.GetItemsByDate(ctx, date, []string{"news"})
			if err != nil {
				return false
			}
			return len(items) > 0
		}
		out = append(out, syncmanager.SourceConfig{
			Namespace:  "news",
			Valid:      true,
			Adapter:    news.New(cfg, hasNewsToday),
			SourceType: "news",
			Interval:   table.Interval("news", 6*time.Hour),
			Timeout:    cfg.Timeout,
			Cadenced:   true,
		})
	}

	if key := root.MayString("WEATHER_API_KEY", ""); key != "" {
		cfg := weather.Config{
			Endpoint:   root.MayString("WEATHER_ENDPOINT", "weatherapi-com.p.rapidapi.com"),
			APIKey:     key,
			Latitude:   root.MayFloat64("WEATHER_LATITUDE", 0),
			Longitude:  root.MayFloat64("WEATHER_LONGITUDE", 0),
			Units:      root.MayString("WEATHER_UNITS", "standard"),
			Timeout:    table.Timeout("weather", 30*time.Second),
			MaxRetries: table.MaxRetries("weather", 5),
			RetryDelay: table.RetryDelay("weather", 500*time.Millisecond),
		}
		out = append(out, syncmanager.SourceConfig{
			Namespace:  "weather",
			Valid:      true,
			Adapter:    weather.New(cfg),
			SourceType: "weather",
			Interval:   table.Interval("weather", 6*time.Hour),
			Timeout:    cfg.Timeout,
			Cadenced:   true,
		})
	}

	if root.MayBool("TWITTER_ARCHIVE_ENABLED", false) {
		hasTweet := func(ctx context.Context, sourceID string) bool {
			return st.HasItem(ctx, "twitter", sourceID)
		}
		out = append(out, syncmanager.SourceConfig{
			Namespace:  "twitter",
			Valid:      true,
			Adapter:    twitterarchive.New(twitterarchive.Config{Enabled: true}, hasTweet),
			SourceType: "twitter_archive",
			Interval:   0,
			Timeout:    0,
			Cadenced:   false,
		})
	}

	return out
}

func setupLogging() {
	opt := logger.FromEnv()
	opt.Service = "daylog"
	logger.Init(opt)
}
