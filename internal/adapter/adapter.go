// Package adapter defines the capability contract every source adapter
// implements (limitless, news, weather, twitterarchive) plus the shared
// lazily-constructed HTTP client lifecycle they all build on.
package adapter

import (
	"context"
	"time"

	"daylog/internal/record"
)

// Adapter is the capability set every source variant implements:
// fetch items since a cursor, and a lightweight reachability probe
type Adapter interface {
	FetchItems(ctx context.Context, since *time.Time, limit int) (RecordStream, error)
	TestConnection(ctx context.Context) bool
	Close() error
}

// RecordStream is a pull-based iterator over Records, so large pages
// (lifelogs, archive imports) never need to be materialized in memory
// at once. Next returns (zero, false, nil) when exhausted
type RecordStream interface {
	Next() (record.Record, bool, error)
	Close() error
}

// sliceStream adapts an already-materialized []record.Record into a
// RecordStream, the common case for adapters whose source payload is a
// single bounded response (news, weather, twitter archive)
type sliceStream struct {
	items []record.Record
	pos   int
}

// NewSliceStream wraps items as a RecordStream
func NewSliceStream(items []record.Record) RecordStream {
	return &sliceStream{items: items}
}

// Next implements RecordStream
func (s *sliceStream) Next() (record.Record, bool, error) {
	if s.pos >= len(s.items) {
		return record.Record{}, false, nil
	}
	item := s.items[s.pos]
	s.pos++
	return item, true, nil
}

// Close implements RecordStream; slice streams hold no resources
func (s *sliceStream) Close() error { return nil }
