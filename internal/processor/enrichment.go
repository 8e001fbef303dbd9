package processor

import (
	"time"

	"daylog/internal/record"
)

// processingHistoryEntry is one stamp in a record's processing_history:
// a processor name and the time it ran
type processingHistoryEntry struct {
	Processor string `json:"processor"`
	At        string `json:"at"`
}

// MetadataEnrichment appends a processing_history entry, computes
// duration_seconds from start_time/end_time metadata when both are present,
// and sets source_type if the adapter left it unset. speakers and
// content_types are left as the adapter wrote them
func MetadataEnrichment(r record.Record) (record.Record, error) {
	appendProcessingHistory(r.Metadata, "MetadataEnrichment", time.Now())
	materializeDuration(r.Metadata)

	if _, ok := r.Metadata["source_type"]; !ok {
		r.Metadata["source_type"] = r.Namespace
	}
	return r, nil
}

func appendProcessingHistory(metadata map[string]any, name string, at time.Time) {
	entry := processingHistoryEntry{Processor: name, At: at.UTC().Format(time.RFC3339)}
	existing, _ := metadata["processing_history"].([]processingHistoryEntry)
	metadata["processing_history"] = append(existing, entry)
}

// materializeDuration computes a duration in seconds from start_time/
// end_time metadata when both are present and parseable as RFC3339,
// matching the fields transformLifelog populates
func materializeDuration(metadata map[string]any) {
	start, startOK := metadata["start_time"].(string)
	end, endOK := metadata["end_time"].(string)
	if !startOK || !endOK || start == "" || end == "" {
		return
	}
	st, err1 := time.Parse(time.RFC3339, start)
	et, err2 := time.Parse(time.RFC3339, end)
	if err1 != nil || err2 != nil {
		return
	}
	metadata["duration_seconds"] = et.Sub(st).Seconds()
}
