// Package ingestion is the integration point: it pulls records from a
// registered Source Adapter, runs them through a Processor Chain,
// derives days_date, stores them, and drains the pending-embedding
// queue. Grounded on original_source/services/ingestion.py's
// IngestionService, restructured around Go's adapter/RecordStream and
// processor.Chain contracts.
package ingestion

import (
	"context"
	"fmt"
	"time"

	"daylog/internal/adapter"
	perr "daylog/internal/platform/errors"
	"daylog/internal/platform/logger"
	"daylog/internal/processor"
	"daylog/internal/record"
	"daylog/internal/store"
)

// overlapWindow guards against cross-boundary drops between syncs
const overlapWindow = time.Hour

// defaultIngestBatchSize matches processor stages against the Store in
// small groups rather than materializing an entire sync in memory
const defaultIngestBatchSize = 20

// Embedder turns record content into vectors. The concrete
// implementation (an external embedding API) and an in-memory fake for
// tests both satisfy this
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// IngestOptions configures one IngestFromSource call
type IngestOptions struct {
	ForceFull bool
	Limit     int
}

// Summary reports one sync's outcome
type Summary struct {
	Namespace      string
	ItemsProcessed int
	ItemsStored    int
	ItemsSkipped   int
	Errors         []string
	Start          time.Time
	End            time.Time
	Duration       time.Duration
	Success        bool
}

// EmbedSummary reports one embedding-drain batch's outcome
type EmbedSummary struct {
	Processed  int
	Successful int
	Failed     int
	Errors     []string
}

// Service is the Ingestion Service: adapters + processor registry +
// store + embedder, wired together at startup by the Sync Manager
type Service struct {
	store      *store.Store
	processors *processor.Registry
	embedder   Embedder

	adapters   map[string]adapter.Adapter
	locations  map[string]*time.Location
	defaultLoc *time.Location

	now func() time.Time
}

// New builds a Service. defaultLoc is used for any namespace without an
// explicit entry in locations; both may be nil, in which case UTC applies
func New(st *store.Store, processors *processor.Registry, embedder Embedder, locations map[string]*time.Location, defaultLoc *time.Location) *Service {
	if defaultLoc == nil {
		defaultLoc = time.UTC
	}
	return &Service{
		store:      st,
		processors: processors,
		embedder:   embedder,
		adapters:   map[string]adapter.Adapter{},
		locations:  locations,
		defaultLoc: defaultLoc,
		now:        time.Now,
	}
}

// RegisterAdapter makes namespace's adapter available to IngestFromSource
func (s *Service) RegisterAdapter(namespace string, a adapter.Adapter) {
	s.adapters[namespace] = a
}

func (s *Service) locationFor(namespace string) *time.Location {
	if loc, ok := s.locations[namespace]; ok && loc != nil {
		return loc
	}
	return s.defaultLoc
}

// IngestFromSource implements spec §4.E's five steps. Per-item and
// per-sync failures are collected into Summary.Errors rather than
// returned as a Go error; a non-nil error return means ctx was
// cancelled mid-sync (last_sync_timestamp is deliberately not advanced
// in that case)
func (s *Service) IngestFromSource(ctx context.Context, namespace string, opts IngestOptions) (Summary, error) {
	start := s.now()
	summary := Summary{Namespace: namespace, Start: start}

	a, ok := s.adapters[namespace]
	if !ok {
		summary.Errors = append(summary.Errors, fmt.Sprintf("no adapter registered for namespace %q", namespace))
		return s.finalize(summary), nil
	}

	since, err := s.resolveSince(ctx, namespace, opts.ForceFull)
	if err != nil {
		summary.Errors = append(summary.Errors, err.Error())
		return s.finalize(summary), nil
	}

	stream, err := a.FetchItems(ctx, since, opts.Limit)
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("fetch_items: %v", err))
		return s.finalize(summary), nil
	}
	defer stream.Close()

	chain := s.processors.ChainFor(namespace)
	loc := s.locationFor(namespace)

	var batch []record.Record
	var lastProcessedID string

	flush := func() {
		if len(batch) == 0 {
			return
		}
		stored, skipped, errs, lastID := s.runChainAndStore(ctx, chain, loc, batch)
		summary.Errors = append(summary.Errors, errs...)
		summary.ItemsStored += stored
		summary.ItemsSkipped += skipped
		summary.ItemsProcessed += len(batch)
		if lastID != "" {
			lastProcessedID = lastID
		}
		batch = batch[:0]
	}

readLoop:
	for {
		select {
		case <-ctx.Done():
			flush()
			summary.Errors = append(summary.Errors, ctx.Err().Error())
			return s.finalize(summary), ctx.Err()
		default:
		}

		r, ok, err := stream.Next()
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("stream: %v", err))
			break readLoop
		}
		if !ok {
			break readLoop
		}
		batch = append(batch, r)
		if len(batch) >= defaultIngestBatchSize {
			flush()
		}
	}
	flush()

	summary = s.finalize(summary)
	if summary.Success {
		s.recordSyncState(ctx, namespace, summary, lastProcessedID)
	}
	return summary, nil
}

// runChainAndStore runs one batch through chain and persists the survivors,
// shared by IngestFromSource's streaming flush and ImportRecords' one-shot
// batch from an offline importer
func (s *Service) runChainAndStore(ctx context.Context, chain *processor.Chain, loc *time.Location, batch []record.Record) (stored, skipped int, errs []string, lastID string) {
	processed, itemErrs := chain.Run(batch)
	for _, ie := range itemErrs {
		errs = append(errs, fmt.Sprintf("%s: %v", ie.RecordID, ie.Err))
	}
	for _, r := range processed {
		r.DaysDate = record.DeriveDaysDate(r.Metadata, r.CreatedAt, loc, s.now())
		if err := s.store.StoreItem(ctx, r); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", r.ID, err))
			skipped++
			continue
		}
		stored++
		lastID = r.SourceID
	}
	return stored, skipped, errs, lastID
}

// ImportRecords runs already-fetched records (e.g. from an offline
// importer like twitterarchive.Adapter.ImportZip) through namespace's
// processor chain and stores them, then records sync state the same way
// IngestFromSource does. Unlike IngestFromSource it never calls an
// Adapter's FetchItems -- the caller has already produced the records
func (s *Service) ImportRecords(ctx context.Context, namespace string, records []record.Record) (Summary, error) {
	start := s.now()
	summary := Summary{Namespace: namespace, Start: start}

	chain := s.processors.ChainFor(namespace)
	loc := s.locationFor(namespace)

	stored, skipped, errs, lastID := s.runChainAndStore(ctx, chain, loc, records)
	summary.Errors = append(summary.Errors, errs...)
	summary.ItemsStored = stored
	summary.ItemsSkipped = skipped
	summary.ItemsProcessed = len(records)

	summary = s.finalize(summary)
	if summary.Success {
		s.recordSyncState(ctx, namespace, summary, lastID)
	}
	return summary, nil
}

func (s *Service) finalize(summary Summary) Summary {
	summary.End = s.now()
	summary.Duration = summary.End.Sub(summary.Start)
	summary.Success = len(summary.Errors) == 0
	return summary
}

// resolveSince implements spec §4.E step 1: force_full skips straight to
// a full sync; otherwise the last sync timestamp minus the overlap
// window is used, falling back to a full sync on any missing/invalid value
func (s *Service) resolveSince(ctx context.Context, namespace string, forceFull bool) (*time.Time, error) {
	if forceFull {
		return nil, nil
	}
	raw, ok, err := s.store.GetSetting(ctx, namespace+"_last_sync")
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeStore, "ingestion: read last sync for %s", namespace)
	}
	if !ok {
		return nil, nil
	}
	var iso string
	if err := jsonUnquote(raw, &iso); err != nil {
		logger.C(ctx).Warn().Str("namespace", namespace).Str("value", raw).Msg("ingestion: malformed last_sync setting, falling back to full sync")
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		logger.C(ctx).Warn().Str("namespace", namespace).Str("value", iso).Msg("ingestion: unparseable last_sync timestamp, falling back to full sync")
		return nil, nil
	}
	since := t.Add(-overlapWindow)
	return &since, nil
}

func (s *Service) recordSyncState(ctx context.Context, namespace string, summary Summary, lastProcessedID string) {
	if err := s.store.SetSetting(ctx, namespace+"_last_sync", jsonQuote(summary.End.UTC().Format(time.RFC3339))); err != nil {
		logger.C(ctx).Error().Err(err).Str("namespace", namespace).Msg("ingestion: failed to persist last_sync")
	}
	if lastProcessedID != "" {
		if err := s.store.SetSetting(ctx, namespace+"_last_processed_id", jsonQuote(lastProcessedID)); err != nil {
			logger.C(ctx).Error().Err(err).Str("namespace", namespace).Msg("ingestion: failed to persist last_processed_id")
		}
	}
	if err := s.store.MarkSynced(ctx, namespace, summary.End); err != nil {
		logger.C(ctx).Error().Err(err).Str("namespace", namespace).Msg("ingestion: failed to mark synced")
	}
}

// ProcessPendingEmbeddings implements the embedding drain: read up to
// batchSize pending records, embed them in one batch call, and persist
// the resulting vectors. A batch-level embedder failure marks every item
// in the batch failed rather than retrying individually
func (s *Service) ProcessPendingEmbeddings(ctx context.Context, batchSize int) (EmbedSummary, error) {
	items, err := s.store.PendingEmbeddings(ctx, batchSize)
	if err != nil {
		return EmbedSummary{}, err
	}
	if len(items) == 0 {
		return EmbedSummary{}, nil
	}

	texts := make([]string, len(items))
	for i, it := range items {
		texts[i] = it.Content
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil || len(vectors) != len(items) {
		reason := "embedder returned a mismatched vector count"
		if err != nil {
			reason = err.Error()
		}
		for _, it := range items {
			s.failEmbedding(ctx, it)
		}
		return EmbedSummary{Processed: len(items), Failed: len(items), Errors: []string{reason}}, nil
	}

	summary := EmbedSummary{Processed: len(items)}
	for i, it := range items {
		if err := s.store.AddVector(it.ID, vectors[i]); err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", it.ID, err))
			s.failEmbedding(ctx, it)
			continue
		}
		if err := s.store.UpdateEmbeddingStatus(ctx, it.ID, record.EmbeddingCompleted); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", it.ID, err))
		}
		summary.Successful++
	}
	return summary, nil
}

// failEmbedding marks it failed and, once MaxEmbeddingAttempts is
// reached, exhausted — the bounded retry counter spec §9 leaves open
func (s *Service) failEmbedding(ctx context.Context, it record.Record) {
	if err := s.store.UpdateEmbeddingStatus(ctx, it.ID, record.EmbeddingFailed); err != nil {
		logger.C(ctx).Error().Err(err).Str("id", it.ID).Msg("ingestion: failed to mark embedding failed")
		return
	}
	attempts, err := s.store.EmbeddingAttempts(ctx, it.ID)
	if err != nil {
		logger.C(ctx).Warn().Err(err).Str("id", it.ID).Msg("ingestion: failed to read embedding attempts")
		return
	}
	if attempts >= record.MaxEmbeddingAttempts {
		if err := s.store.UpdateEmbeddingStatus(ctx, it.ID, record.EmbeddingExhausted); err != nil {
			logger.C(ctx).Error().Err(err).Str("id", it.ID).Msg("ingestion: failed to mark embedding exhausted")
		}
	}
}

// ReprocessFailedEmbeddings flips every failed item back to pending in
// one transaction and immediately drains them
func (s *Service) ReprocessFailedEmbeddings(ctx context.Context) (EmbedSummary, error) {
	n, err := s.store.FlipFailedToPending(ctx)
	if err != nil {
		return EmbedSummary{}, err
	}
	if n == 0 {
		return EmbedSummary{}, nil
	}
	return s.ProcessPendingEmbeddings(ctx, n)
}
