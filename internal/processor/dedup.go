package processor

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"daylog/internal/record"
)

// FingerprintLookup answers whether a prior record with the given
// namespace+fingerprint already exists, and if so its updated_at. The
// Ingestion Service backs this with a Store query; tests can supply an
// in-memory fake
type FingerprintLookup func(namespace, fingerprint string) (updatedAt time.Time, found bool)

// Fingerprint computes the SHA-256 hex digest of content after
// normalizing, lowercasing, and collapsing whitespace, per spec
func Fingerprint(content string) string {
	norm := collapseWhitespace(strings.ToLower(content))
	sum := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:])
}

// Dedup returns a Processor that fingerprints content and drops the
// current record when a prior record with the same namespace+fingerprint
// has an updated_at at or after the current record's. The fingerprint is
// always recorded in metadata, even when the record survives
func Dedup(lookup FingerprintLookup) Processor {
	return func(r record.Record) (record.Record, error) {
		fp := Fingerprint(r.Content)
		r.Metadata["fingerprint"] = fp

		if lookup == nil {
			return r, nil
		}
		priorUpdatedAt, found := lookup(r.Namespace, fp)
		if found && !priorUpdatedAt.Before(r.UpdatedAt) {
			return record.Record{}, errDuplicate{id: r.ID}
		}
		return r, nil
	}
}

// errDuplicate signals a dedup drop; Chain.Run records it as the record's
// ItemError, which is the correct way to remove it from the batch without
// treating it as a processing failure
type errDuplicate struct{ id string }

func (e errDuplicate) Error() string { return "duplicate content: " + e.id }

// IsDuplicate reports whether err was produced by a Dedup drop
func IsDuplicate(err error) bool {
	_, ok := err.(errDuplicate)
	return ok
}
