package processor

import (
	"regexp"
	"strings"

	"daylog/internal/record"
)

// segmentLengthThreshold and segmentSpeakerTurnThreshold gate when
// Segmentation splits content: long transcripts with enough distinct
// speaker turns benefit from segment boundaries, short ones don't
const (
	segmentLengthThreshold      = 2000
	segmentSpeakerTurnThreshold = 4
)

// speakerLine matches a line beginning with a "Speaker: " prefix, the
// shape transformLifelog's flattenContent emits for blockquote nodes
var speakerLine = regexp.MustCompile(`(?m)^([^:\n]{1,80}):\s`)

// Segmentation splits long, multi-speaker content into an ordered
// "segments" metadata list along speaker-turn boundaries. content itself
// is left untouched so full-text search still sees the complete document
func Segmentation(r record.Record) (record.Record, error) {
	turns := speakerLine.FindAllStringIndex(r.Content, -1)
	if len(r.Content) < segmentLengthThreshold || len(turns) < segmentSpeakerTurnThreshold {
		return r, nil
	}

	segments := make([]string, 0, len(turns))
	for i, start := range turns {
		end := len(r.Content)
		if i+1 < len(turns) {
			end = turns[i+1][0]
		}
		seg := strings.TrimSpace(r.Content[start[0]:end])
		if seg != "" {
			segments = append(segments, seg)
		}
	}

	r.Metadata["segments"] = segments
	return r, nil
}
