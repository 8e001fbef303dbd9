// Package twitterarchive implements the ArchiveAdapter: an offline import
// of a Twitter/X data export zip, grounded on original_source/sources/
// twitter.py's import_from_zip and _parse_tweets.
package twitterarchive

import (
	"archive/zip"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"daylog/internal/adapter"
	perr "daylog/internal/platform/errors"
	"daylog/internal/platform/logger"
	"daylog/internal/record"
)

const namespace = "twitter"

// twitterTimeLayout is the fixed layout the export embeds in created_at,
// e.g. "Wed Oct 10 20:19:24 +0000 2018"
const twitterTimeLayout = "Mon Jan 2 15:04:05 -0700 2006"

// HasTweet reports whether a tweet with this source id already exists in
// the Store, letting the adapter skip re-yielding already-ingested tweets
// on repeat imports of the same or overlapping archives
type HasTweet func(ctx context.Context, sourceID string) bool

// Config configures an ArchiveAdapter instance
type Config struct {
	// Enabled gates import the way TwitterConfig.is_configured() does in
	// the original; there is no API key here, only an operator toggle
	Enabled bool
}

// Adapter implements import-side tweet ingestion. It does not implement
// adapter.Adapter's FetchItems in the polling sense -- archives are
// imported on demand via ImportZip, matching the original's empty
// fetch_items (a no-op async generator)
type Adapter struct {
	cfg      Config
	hasTweet HasTweet
}

// New constructs an ArchiveAdapter. hasTweet may be nil, in which case no
// pre-yield dedup against the Store happens and the Ingestion Service's own
// upsert-by-id logic is solely responsible for idempotency
func New(cfg Config, hasTweet HasTweet) *Adapter {
	return &Adapter{cfg: cfg, hasTweet: hasTweet}
}

// TestConnection reports whether the archive source is enabled; there is
// no network to probe
func (a *Adapter) TestConnection(ctx context.Context) bool { return a.cfg.Enabled }

// Close implements adapter.Adapter; there are no held resources between imports
func (a *Adapter) Close() error { return nil }

// FetchItems implements adapter.Adapter as a permanent no-op: tweets only
// ever enter the system through ImportZip, mirroring the original
func (a *Adapter) FetchItems(ctx context.Context, since *time.Time, limit int) (adapter.RecordStream, error) {
	return adapter.NewSliceStream(nil), nil
}

type rawTweetEnvelope struct {
	Tweet rawTweet `json:"tweet"`
}

type rawTweet struct {
	IDStr     string `json:"id_str"`
	CreatedAt string `json:"created_at"`
	FullText  string `json:"full_text"`
	Entities  struct {
		Media []struct {
			MediaURLHTTPS string `json:"media_url_https"`
		} `json:"media"`
	} `json:"entities"`
}

// ImportZip extracts zipPath to a scratch directory, locates tweets.js,
// parses it into Records, and returns those not already present in the
// Store (per hasTweet). The scratch directory is always removed before
// return
func (a *Adapter) ImportZip(ctx context.Context, zipPath string) ([]record.Record, error) {
	if !a.cfg.Enabled {
		logger.C(ctx).Warn().Msg("twitter archive source not enabled, skipping import")
		return nil, nil
	}

	scratch, err := os.MkdirTemp("", "twitter-archive-*")
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "twitterarchive: create scratch dir")
	}
	defer os.RemoveAll(scratch)

	if err := extractZip(zipPath, scratch); err != nil {
		return nil, err
	}

	tweetsPath, err := findTweetsJS(scratch)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(tweetsPath)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "twitterarchive: read tweets.js")
	}

	tweets, err := parseTweetsJS(string(raw))
	if err != nil {
		return nil, err
	}
	logger.C(ctx).Info().Int("count", len(tweets)).Msg("parsed tweets from archive")

	now := time.Now()
	out := make([]record.Record, 0, len(tweets))
	for i, env := range tweets {
		r, ok := transformTweet(ctx, env.Tweet, i, now)
		if !ok {
			continue
		}
		if a.hasTweet != nil && a.hasTweet(ctx, r.SourceID) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func extractZip(zipPath, destDir string) error {
	rc, err := zip.OpenReader(zipPath)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeParse, "twitterarchive: open zip %s", zipPath)
	}
	defer rc.Close()

	for _, f := range rc.File {
		targetPath := filepath.Join(destDir, f.Name)
		if !strings.HasPrefix(targetPath, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return perr.Newf(perr.ErrorCodeParse, "twitterarchive: zip entry escapes destination: %s", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(targetPath, 0o755); err != nil {
				return perr.Wrapf(err, perr.ErrorCodeUnknown, "twitterarchive: mkdir %s", targetPath)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
			return perr.Wrapf(err, perr.ErrorCodeUnknown, "twitterarchive: mkdir parent of %s", targetPath)
		}
		if err := extractZipFile(f, targetPath); err != nil {
			return err
		}
	}
	return nil
}

func extractZipFile(f *zip.File, targetPath string) error {
	src, err := f.Open()
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeParse, "twitterarchive: open zip entry %s", f.Name)
	}
	defer src.Close()

	dst, err := os.OpenFile(targetPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnknown, "twitterarchive: create %s", targetPath)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnknown, "twitterarchive: write %s", targetPath)
	}
	return nil
}

// findTweetsJS walks the extracted tree looking for a file whose basename
// is exactly "tweets.js", case-sensitive -- "tweet.js" (the legacy export
// name the original also checks for inside the file content, not the
// filename) does not match
func findTweetsJS(root string) (string, error) {
	var found string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Base(path) == "tweets.js" {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", perr.Wrapf(err, perr.ErrorCodeUnknown, "twitterarchive: walk extracted archive")
	}
	if found == "" {
		return "", perr.New(perr.ErrorCodeNotFound, "twitterarchive: tweets.js not found in archive")
	}
	return found, nil
}

// parseTweetsJS strips the "window.YTD.tweets.part0 = [...]" (or the
// legacy "window.YTD.tweet.part0 = [...]") wrapper and parses the
// remaining JSON array. If neither wrapper is present the content is
// parsed as-is, matching the original's permissive fallback
func parseTweetsJS(content string) ([]rawTweetEnvelope, error) {
	const wrapperNew = "window.YTD.tweets.part0 = ["
	const wrapperLegacy = "window.YTD.tweet.part0 = ["

	body := content
	switch {
	case strings.Contains(content, wrapperNew):
		body = "[" + stripWrapper(content, wrapperNew) + "]"
	case strings.Contains(content, wrapperLegacy):
		body = "[" + stripWrapper(content, wrapperLegacy) + "]"
	}

	var tweets []rawTweetEnvelope
	if err := json.Unmarshal([]byte(body), &tweets); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeParse, "twitterarchive: parse tweets.js")
	}
	return tweets, nil
}

func stripWrapper(content, prefix string) string {
	idx := strings.Index(content, prefix)
	body := content[idx+len(prefix):]
	if last := strings.LastIndex(body, "]"); last >= 0 {
		body = body[:last]
	}
	return body
}

func transformTweet(ctx context.Context, t rawTweet, index int, now time.Time) (record.Record, bool) {
	if t.IDStr == "" {
		logger.C(ctx).Warn().Int("index", index).Msg("tweet missing id_str, skipping")
		return record.Record{}, false
	}
	if t.CreatedAt == "" {
		logger.C(ctx).Warn().Str("tweet_id", t.IDStr).Msg("tweet missing created_at, skipping")
		return record.Record{}, false
	}

	createdAt, err := time.Parse(twitterTimeLayout, t.CreatedAt)
	if err != nil {
		logger.C(ctx).Warn().Str("tweet_id", t.IDStr).Str("created_at", t.CreatedAt).Msg("failed to parse tweet timestamp, skipping")
		return record.Record{}, false
	}

	mediaURLs := make([]string, 0, len(t.Entities.Media))
	for _, m := range t.Entities.Media {
		if m.MediaURLHTTPS != "" {
			mediaURLs = append(mediaURLs, m.MediaURLHTTPS)
		}
	}

	metadata := map[string]any{
		"tweet_id":    t.IDStr,
		"media_urls":  mediaURLs,
		"source_type": "twitter_archive",
	}

	r := record.New(namespace, t.IDStr, t.FullText, metadata, createdAt)
	r.UpdatedAt = now
	return r, true
}
