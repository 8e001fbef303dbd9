// Package store implements the relational + vector persistence façade:
// one local SQLite file for rows, one append-only vector index for
// embeddings, grounded on the RowQuerier/TxRunner seam shape of
// ryansgi-swearjar/backend/internal/platform/store generalized from
// Postgres/pgx to database/sql + mattn/go-sqlite3.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	perr "daylog/internal/platform/errors"
	"daylog/internal/platform/logger"
	"daylog/internal/record"
	"daylog/internal/store/vectorindex"
)

// Store is the façade over the relational layer and the vector index
type Store struct {
	db     *sql.DB
	tracer QueryTracer
	slowMs int

	vectors *vectorindex.Index

	// lockObserve, if set, receives each statement's wall time in seconds,
	// approximating contention on the single-writer connection
	lockObserve func(seconds float64)
}

// Option configures optional Store behavior beyond Config
type Option func(*Store)

// WithLockMetrics observes every exec/query/queryRow's wait-plus-execute
// latency on the given histogram, approximating write-lock contention on
// the single-writer SQLite handle
func WithLockMetrics(observe func(seconds float64)) Option {
	return func(s *Store) { s.lockObserve = observe }
}

// Open opens (creating if absent) the SQLite file at cfg.Path, applies
// the schema, and loads the vector index from cfg.VectorDir
func Open(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.Path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeStore, "store: open sqlite %s", cfg.Path)
	}
	db.SetMaxOpenConns(1) // SQLite tolerates exactly one writer; route all access through this handle

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, perr.Wrapf(err, perr.ErrorCodeStore, "store: apply schema")
	}

	vecDir := cfg.VectorDir
	if vecDir == "" {
		vecDir = filepath.Dir(cfg.Path)
	}
	vi, err := vectorindex.Open(vecDir, cfg.VectorDim)
	if err != nil {
		db.Close()
		return nil, perr.Wrapf(err, perr.ErrorCodeStore, "store: open vector index")
	}

	s := &Store{
		db:      db,
		tracer:  newTracer(cfg.LogSQL),
		slowMs:  cfg.SlowQueryMs,
		vectors: vi,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the sqlite handle; the vector index holds no open file handles between calls
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := s.db.ExecContext(ctx, q, args...)
	s.observeLock(start)
	s.emit(ctx, q, args, start, err)
	return res, err
}

func (s *Store) query(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, q, args...)
	s.observeLock(start)
	s.emit(ctx, q, args, start, err)
	return rows, err
}

func (s *Store) queryRow(ctx context.Context, q string, args ...any) *sql.Row {
	start := time.Now()
	row := s.db.QueryRowContext(ctx, q, args...)
	s.observeLock(start)
	s.emit(ctx, q, args, start, nil)
	return row
}

func (s *Store) observeLock(start time.Time) {
	if s.lockObserve != nil {
		s.lockObserve(time.Since(start).Seconds())
	}
}

func (s *Store) emit(ctx context.Context, q string, args []any, start time.Time, err error) {
	if z, ok := s.tracer.(*zlTracer); ok {
		z.emit(ctx, q, args, start, s.slowMs, err)
		return
	}
	s.tracer.OnQuery(ctx, QueryEvent{SQL: q, Args: args, ElapsedUS: time.Since(start).Microseconds(), Err: err})
}

// StoreItem upserts r. Content changes reset embedding_status to pending
// in the same transaction as the content update, per spec §4.D
func (s *Store) StoreItem(ctx context.Context, r record.Record) error {
	metaJSON, err := json.Marshal(r.Metadata)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeStore, "store: marshal metadata for %s", r.ID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeStore, "store: begin tx for %s", r.ID)
	}
	defer tx.Rollback()

	var existingContent string
	var existingStatus string
	switch err := tx.QueryRowContext(ctx,
		`SELECT content, embedding_status FROM data_items WHERE id = ?`, r.ID,
	).Scan(&existingContent, &existingStatus); {
	case err == sql.ErrNoRows:
		status := string(record.EmbeddingPending)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO data_items (id, namespace, source_id, content, metadata_json, created_at, updated_at, days_date, embedding_status, embedding_attempts)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
			r.ID, r.Namespace, r.SourceID, r.Content, string(metaJSON),
			r.CreatedAt.UTC().Format(time.RFC3339), r.UpdatedAt.UTC().Format(time.RFC3339), r.DaysDate, status)
		if err != nil {
			return perr.Wrapf(err, perr.ErrorCodeStore, "store: insert %s", r.ID)
		}
	case err != nil:
		return perr.Wrapf(err, perr.ErrorCodeStore, "store: lookup %s", r.ID)
	default:
		status := existingStatus
		contentChanged := existingContent != r.Content
		if contentChanged {
			status = string(record.EmbeddingPending)
		}
		q := `UPDATE data_items SET namespace = ?, source_id = ?, content = ?, metadata_json = ?,
				updated_at = ?, days_date = ?, embedding_status = ? WHERE id = ?`
		if contentChanged {
			// a changed record starts a fresh failure-counting window, per
			// the "consecutive since last success or content change" semantics
			q = `UPDATE data_items SET namespace = ?, source_id = ?, content = ?, metadata_json = ?,
				updated_at = ?, days_date = ?, embedding_status = ?, embedding_attempts = 0 WHERE id = ?`
		}
		_, err := tx.ExecContext(ctx, q,
			r.Namespace, r.SourceID, r.Content, string(metaJSON),
			r.UpdatedAt.UTC().Format(time.RFC3339), r.DaysDate, status, r.ID)
		if err != nil {
			return perr.Wrapf(err, perr.ErrorCodeStore, "store: update %s", r.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeStore, "store: commit %s", r.ID)
	}
	return nil
}

// PendingEmbeddings returns up to limit records with embedding_status =
// pending, ordered by updated_at ascending
func (s *Store) PendingEmbeddings(ctx context.Context, limit int) ([]record.Record, error) {
	rows, err := s.query(ctx, `
		SELECT id, namespace, source_id, content, metadata_json, created_at, updated_at, days_date, embedding_status, embedding_attempts
		FROM data_items WHERE embedding_status = ? ORDER BY updated_at ASC LIMIT ?`,
		string(record.EmbeddingPending), limit)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeStore, "store: query pending embeddings")
	}
	defer rows.Close()
	return scanItems(rows)
}

// PendingEmbeddingCount returns the total number of rows awaiting
// embedding, backing the Sync Manager's backlog-warning health signal
func (s *Store) PendingEmbeddingCount(ctx context.Context) (int, error) {
	var n int
	err := s.queryRow(ctx, `SELECT COUNT(*) FROM data_items WHERE embedding_status = ?`, string(record.EmbeddingPending)).Scan(&n)
	if err != nil {
		return 0, perr.Wrapf(err, perr.ErrorCodeStore, "store: count pending embeddings")
	}
	return n, nil
}

// UpdateEmbeddingStatus sets status on a single row; failed bumps
// embedding_attempts, completed resets it back to zero (a fresh
// success restarts the consecutive-failure count), idempotent
func (s *Store) UpdateEmbeddingStatus(ctx context.Context, id string, status record.EmbeddingStatus) error {
	q := `UPDATE data_items SET embedding_status = ? WHERE id = ?`
	switch status {
	case record.EmbeddingFailed:
		q = `UPDATE data_items SET embedding_status = ?, embedding_attempts = embedding_attempts + 1 WHERE id = ?`
	case record.EmbeddingCompleted:
		q = `UPDATE data_items SET embedding_status = ?, embedding_attempts = 0 WHERE id = ?`
	}
	if _, err := s.exec(ctx, q, string(status), id); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeStore, "store: update embedding status %s", id)
	}
	return nil
}

// AddVector writes id's embedding into the vector index
func (s *Store) AddVector(id string, vec []float32) error {
	if err := s.vectors.Add(id, vec); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeVectorCorrupt, "store: add vector for %s", id)
	}
	return nil
}

// FlipFailedToPending resets every failed item to pending in one
// transaction, returning how many rows changed, backing
// ReprocessFailedEmbeddings
func (s *Store) FlipFailedToPending(ctx context.Context) (int, error) {
	res, err := s.exec(ctx, `UPDATE data_items SET embedding_status = ? WHERE embedding_status = ?`,
		string(record.EmbeddingPending), string(record.EmbeddingFailed))
	if err != nil {
		return 0, perr.Wrapf(err, perr.ErrorCodeStore, "store: flip failed to pending")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, perr.Wrapf(err, perr.ErrorCodeStore, "store: rows affected")
	}
	return int(n), nil
}

// EmbeddingAttempts returns the current failure count for id, used by the
// Ingestion Service to decide when to flip a record to exhausted
func (s *Store) EmbeddingAttempts(ctx context.Context, id string) (int, error) {
	var attempts int
	err := s.queryRow(ctx, `SELECT embedding_attempts FROM data_items WHERE id = ?`, id).Scan(&attempts)
	if err == sql.ErrNoRows {
		return 0, perr.NotFoundf("store: item %s not found", id)
	}
	if err != nil {
		return 0, perr.Wrapf(err, perr.ErrorCodeStore, "store: read embedding attempts %s", id)
	}
	return attempts, nil
}

// DeleteItem removes both the vector and the row. The row is never
// removed if vector removal fails, per spec §4.D (vector orphans are
// recoverable, row orphans corrupt queries)
func (s *Store) DeleteItem(ctx context.Context, id string) error {
	if err := s.vectors.Remove(id); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeVectorCorrupt, "store: remove vector for %s", id)
	}
	if _, err := s.exec(ctx, `DELETE FROM data_items WHERE id = ?`, id); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeStore, "store: delete row %s", id)
	}
	return nil
}

// ClearNamespace deletes all rows and vectors for namespace and removes
// its data_sources entry
func (s *Store) ClearNamespace(ctx context.Context, namespace string) error {
	if _, err := s.vectors.RemoveNamespace(namespace); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeVectorCorrupt, "store: remove vectors for namespace %s", namespace)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeStore, "store: begin tx for clear %s", namespace)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM data_items WHERE namespace = ?`, namespace); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeStore, "store: delete items for %s", namespace)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM data_sources WHERE namespace = ?`, namespace); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeStore, "store: delete source %s", namespace)
	}
	if err := tx.Commit(); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeStore, "store: commit clear %s", namespace)
	}
	return nil
}

// GetItemsByDate returns items whose days_date matches date, optionally
// filtered to namespaces
func (s *Store) GetItemsByDate(ctx context.Context, date string, namespaces []string) ([]record.Record, error) {
	q := `SELECT id, namespace, source_id, content, metadata_json, created_at, updated_at, days_date, embedding_status, embedding_attempts
		FROM data_items WHERE days_date = ?`
	args := []any{date}
	if len(namespaces) > 0 {
		q += ` AND namespace IN (` + placeholders(len(namespaces)) + `)`
		for _, ns := range namespaces {
			args = append(args, ns)
		}
	}
	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeStore, "store: query items by date %s", date)
	}
	defer rows.Close()
	return scanItems(rows)
}

// HasItem reports whether a row already exists for namespace/sourceID,
// letting an adapter's import-side dedup skip re-yielding records the
// Ingestion Service has already stored (e.g. twitterarchive.HasTweet)
func (s *Store) HasItem(ctx context.Context, namespace, sourceID string) bool {
	var exists int
	err := s.queryRow(ctx,
		`SELECT 1 FROM data_items WHERE id = ? LIMIT 1`, record.MakeID(namespace, sourceID),
	).Scan(&exists)
	return err == nil
}

func placeholders(n int) string {
	out := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, '?')
	}
	return string(out)
}

// GetSetting returns the raw JSON value stored under key
func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.queryRow(ctx, `SELECT value_json FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, perr.Wrapf(err, perr.ErrorCodeStore, "store: get setting %s", key)
	}
	return value, true, nil
}

// SetSetting upserts key to valueJSON
func (s *Store) SetSetting(ctx context.Context, key, valueJSON string) error {
	_, err := s.exec(ctx, `
		INSERT INTO settings (key, value_json) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value_json = excluded.value_json`, key, valueJSON)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeStore, "store: set setting %s", key)
	}
	return nil
}

// UpsertDataSource registers or updates a namespace's source_type/config,
// backing the Sync Manager's startup registration pass
func (s *Store) UpsertDataSource(ctx context.Context, namespace, sourceType, configJSON string) error {
	_, err := s.exec(ctx, `
		INSERT INTO data_sources (namespace, source_type, config_json, active, item_count, last_sync)
		VALUES (?, ?, ?, 1, 0, NULL)
		ON CONFLICT(namespace) DO UPDATE SET source_type = excluded.source_type, config_json = excluded.config_json`,
		namespace, sourceType, configJSON)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeStore, "store: upsert data source %s", namespace)
	}
	return nil
}

// MarkSynced stamps last_sync and refreshes item_count for namespace,
// called after a successful IngestFromSource run
func (s *Store) MarkSynced(ctx context.Context, namespace string, at time.Time) error {
	var count int
	if err := s.queryRow(ctx, `SELECT COUNT(*) FROM data_items WHERE namespace = ?`, namespace).Scan(&count); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeStore, "store: count items for %s", namespace)
	}
	_, err := s.exec(ctx, `UPDATE data_sources SET last_sync = ?, item_count = ? WHERE namespace = ?`,
		at.UTC().Format(time.RFC3339), count, namespace)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeStore, "store: mark synced %s", namespace)
	}
	return nil
}

// LastSync returns the namespace's last_sync timestamp, if any
func (s *Store) LastSync(ctx context.Context, namespace string) (time.Time, bool, error) {
	var raw sql.NullString
	err := s.queryRow(ctx, `SELECT last_sync FROM data_sources WHERE namespace = ?`, namespace).Scan(&raw)
	if err == sql.ErrNoRows || !raw.Valid {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, perr.Wrapf(err, perr.ErrorCodeStore, "store: read last_sync %s", namespace)
	}
	t, err := time.Parse(time.RFC3339, raw.String)
	if err != nil {
		return time.Time{}, false, perr.Wrapf(err, perr.ErrorCodeParse, "store: parse last_sync %s", namespace)
	}
	return t, true, nil
}

// FingerprintLookup implements processor.FingerprintLookup against the
// metadata.fingerprint field persisted by the Dedup processor stage
func (s *Store) FingerprintLookup(ctx context.Context, namespace, fingerprint string) (time.Time, bool) {
	rows, err := s.query(ctx, `SELECT updated_at, metadata_json FROM data_items WHERE namespace = ?`, namespace)
	if err != nil {
		logger.C(ctx).Warn().Err(err).Msg("store: fingerprint lookup query failed")
		return time.Time{}, false
	}
	defer rows.Close()

	var latest time.Time
	found := false
	for rows.Next() {
		var updatedAtRaw, metaRaw string
		if err := rows.Scan(&updatedAtRaw, &metaRaw); err != nil {
			continue
		}
		var meta map[string]any
		if err := json.Unmarshal([]byte(metaRaw), &meta); err != nil {
			continue
		}
		if fp, _ := meta["fingerprint"].(string); fp != fingerprint {
			continue
		}
		updatedAt, err := time.Parse(time.RFC3339, updatedAtRaw)
		if err != nil {
			continue
		}
		if !found || updatedAt.After(latest) {
			latest = updatedAt
			found = true
		}
	}
	return latest, found
}

// FingerprintLookupFunc adapts FingerprintLookup to processor.FingerprintLookup's
// ctx-free signature, binding it to ctx for the lifetime of a Registry
func (s *Store) FingerprintLookupFunc(ctx context.Context) func(namespace, fingerprint string) (time.Time, bool) {
	return func(namespace, fingerprint string) (time.Time, bool) {
		return s.FingerprintLookup(ctx, namespace, fingerprint)
	}
}

func scanItems(rows *sql.Rows) ([]record.Record, error) {
	var out []record.Record
	for rows.Next() {
		var r record.Record
		var metaRaw, createdAtRaw, updatedAtRaw, status string
		if err := rows.Scan(&r.ID, &r.Namespace, &r.SourceID, &r.Content, &metaRaw,
			&createdAtRaw, &updatedAtRaw, &r.DaysDate, &status, &r.EmbeddingAttempts); err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeStore, "store: scan item row")
		}
		r.EmbeddingStatus = record.EmbeddingStatus(status)
		if err := json.Unmarshal([]byte(metaRaw), &r.Metadata); err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeStore, "store: unmarshal metadata for %s", r.ID)
		}
		if t, err := time.Parse(time.RFC3339, createdAtRaw); err == nil {
			r.CreatedAt = t
		}
		if t, err := time.Parse(time.RFC3339, updatedAtRaw); err == nil {
			r.UpdatedAt = t
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeStore, "store: iterate item rows")
	}
	return out, nil
}
