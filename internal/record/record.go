// Package record defines the Record type: the universal unit of ingested
// data shared by every adapter, processor, and store operation.
package record

import (
	"fmt"
	"time"
)

// EmbeddingStatus tracks where a Record sits in the embedding pipeline.
type EmbeddingStatus string

const (
	// EmbeddingPending means the record has not yet been embedded
	EmbeddingPending EmbeddingStatus = "pending"

	// EmbeddingCompleted means a vector exists in the vector store keyed by the record id
	EmbeddingCompleted EmbeddingStatus = "completed"

	// EmbeddingFailed means embedding was attempted and did not succeed; eligible for retry
	EmbeddingFailed EmbeddingStatus = "failed"

	// EmbeddingExhausted means embedding failed repeatedly and will not be retried automatically
	EmbeddingExhausted EmbeddingStatus = "exhausted"
)

// Record is the universal ingested-data unit. id is always "{namespace}:{source_id}"
type Record struct {
	ID              string
	Namespace       string
	SourceID        string
	Content         string
	Metadata        map[string]any
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DaysDate        string // YYYY-MM-DD, derived; see DeriveDaysDate
	EmbeddingStatus EmbeddingStatus
	// EmbeddingAttempts counts consecutive embedding failures since the last
	// success or content change; capped at MaxEmbeddingAttempts before the
	// status moves to EmbeddingExhausted
	EmbeddingAttempts int
}

// MaxEmbeddingAttempts bounds how many times the ingestion service retries
// embedding a record before giving up on it permanently
const MaxEmbeddingAttempts = 5

// MakeID builds the canonical "{namespace}:{source_id}" record id
func MakeID(namespace, sourceID string) string {
	return fmt.Sprintf("%s:%s", namespace, sourceID)
}

// New constructs a Record with a freshly derived id and pending embedding status
func New(namespace, sourceID, content string, metadata map[string]any, createdAt time.Time) Record {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return Record{
		ID:              MakeID(namespace, sourceID),
		Namespace:       namespace,
		SourceID:        sourceID,
		Content:         content,
		Metadata:        metadata,
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
		EmbeddingStatus: EmbeddingPending,
	}
}

// metadataTimestampKeys lists the metadata fields days_date derivation
// inspects, in priority order, before falling back to CreatedAt
var metadataTimestampKeys = []string{
	"start_time",
	"forecast_start",
	"published_datetime_utc",
	"original_created_at",
}

// DeriveDaysDate computes the calendar-day bucket for a record: the most
// specific available timestamp (a metadata timestamp field, then CreatedAt,
// then now) converted into loc and formatted YYYY-MM-DD. Deterministic for
// the same metadata/CreatedAt/loc triple
func DeriveDaysDate(metadata map[string]any, createdAt time.Time, loc *time.Location, now time.Time) string {
	if loc == nil {
		loc = time.UTC
	}

	for _, key := range metadataTimestampKeys {
		raw, ok := metadata[key]
		if !ok {
			continue
		}
		if ts, ok := parseTimestampValue(raw); ok {
			return ts.In(loc).Format("2006-01-02")
		}
	}

	if !createdAt.IsZero() {
		return createdAt.In(loc).Format("2006-01-02")
	}

	return now.In(loc).Format("2006-01-02")
}

// parseTimestampValue accepts a time.Time, a Unix-epoch number, or a string
// in RFC3339 form, reflecting the loosely-typed JSON metadata values adapters
// may have stashed here
func parseTimestampValue(raw any) (time.Time, bool) {
	switch v := raw.(type) {
	case time.Time:
		return v, true
	case string:
		if v == "" {
			return time.Time{}, false
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t, true
		}
		if t, err := time.Parse("2006-01-02T15:04:05", v); err == nil {
			return t, true
		}
		return time.Time{}, false
	case float64:
		return time.Unix(int64(v), 0), true
	case int64:
		return time.Unix(v, 0), true
	case int:
		return time.Unix(int64(v), 0), true
	default:
		return time.Time{}, false
	}
}

// ContentChanged reports whether updating a stored record with next would
// change its content, the trigger for resetting embedding_status to pending
func ContentChanged(stored, next *Record) bool {
	if stored == nil {
		return true
	}
	return stored.Content != next.Content
}
