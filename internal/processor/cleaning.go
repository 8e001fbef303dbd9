package processor

import (
	"strings"
	"unicode"

	"daylog/internal/record"
)

// BasicCleaning normalizes whitespace, strips zero-width/format (Cf) runes,
// and guarantees non-empty content, mirroring the sanitize/collapse-
// whitespace steps of ryansgi-swearjar/backend/internal/core/normalize
// generalized from detector text to arbitrary ingested content
func BasicCleaning(r record.Record) (record.Record, error) {
	r.Content = cleanContent(r.Content)
	return r, nil
}

func cleanContent(s string) string {
	s = strings.ToValidUTF8(s, "")
	s = stripZeroWidth(s)
	s = collapseWhitespace(s)
	if s == "" {
		return "(empty)"
	}
	return s
}

// stripZeroWidth drops zero-width and other invisible format runes
// (category Cf) that slip in from copy-pasted or exported text
func stripZeroWidth(s string) string {
	if s == "" {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.Is(unicode.Cf, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// collapseWhitespace converts runs of whitespace to a single space,
// preserving paragraph breaks as a single newline, and trims the result
func collapseWhitespace(s string) string {
	if s == "" {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	inWS := false
	sawNL := false
	flush := func() {
		if !inWS {
			return
		}
		if sawNL {
			b.WriteByte('\n')
		} else {
			b.WriteByte(' ')
		}
		inWS = false
		sawNL = false
	}
	for _, r := range s {
		if unicode.IsSpace(r) {
			inWS = true
			if r == '\n' || r == '\r' {
				sawNL = true
			}
			continue
		}
		flush()
		b.WriteRune(r)
	}
	flush()
	return strings.Trim(b.String(), " \n\t\r")
}
