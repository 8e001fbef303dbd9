package twitterarchive

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeZip(t *testing.T, entries map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "archive.zip")

	f, err := os.Create(zipPath)
	require.NoError(t, err)
	defer f.Close()

	w := zip.NewWriter(f)
	for name, content := range entries {
		entry, err := w.Create(name)
		require.NoError(t, err)
		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return zipPath
}

const sampleTweetsJS = `window.YTD.tweets.part0 = [
{"tweet":{"id_str":"1001","created_at":"Wed Oct 10 20:19:24 +0000 2018","full_text":"hello world","entities":{"media":[{"media_url_https":"https://pbs.twimg.com/a.jpg"}]}}},
{"tweet":{"id_str":"1002","created_at":"Thu Oct 11 08:00:00 +0000 2018","full_text":"second tweet","entities":{}}}
]`

func TestImportZipParsesWrappedTweets(t *testing.T) {
	zipPath := writeZip(t, map[string]string{
		"twitter-2024-01-01/data/tweets.js": sampleTweetsJS,
	})

	a := New(Config{Enabled: true}, nil)
	records, err := a.ImportZip(context.Background(), zipPath)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "twitter:1001", records[0].ID)
	assert.Equal(t, "hello world", records[0].Content)
	assert.Equal(t, []string{"https://pbs.twimg.com/a.jpg"}, records[0].Metadata["media_urls"])
	assert.Equal(t, "twitter:1002", records[1].ID)
}

func TestImportZipRejectsTweetDotJSFilename(t *testing.T) {
	zipPath := writeZip(t, map[string]string{
		"data/tweet.js": sampleTweetsJS,
	})

	a := New(Config{Enabled: true}, nil)
	_, err := a.ImportZip(context.Background(), zipPath)
	require.Error(t, err)
}

func TestImportZipSkipsEntriesWithBadTimestampOrMissingID(t *testing.T) {
	content := `window.YTD.tweets.part0 = [
{"tweet":{"id_str":"1001","created_at":"not a real date","full_text":"bad date"}},
{"tweet":{"id_str":"","created_at":"Wed Oct 10 20:19:24 +0000 2018","full_text":"missing id"}},
{"tweet":{"id_str":"1003","created_at":"Wed Oct 10 20:19:24 +0000 2018","full_text":"good tweet"}}
]`
	zipPath := writeZip(t, map[string]string{"tweets.js": content})

	a := New(Config{Enabled: true}, nil)
	records, err := a.ImportZip(context.Background(), zipPath)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "twitter:1003", records[0].ID)
}

func TestImportZipAppliesHasTweetDedup(t *testing.T) {
	zipPath := writeZip(t, map[string]string{"tweets.js": sampleTweetsJS})

	seen := map[string]bool{"1001": true}
	a := New(Config{Enabled: true}, func(ctx context.Context, sourceID string) bool { return seen[sourceID] })

	records, err := a.ImportZip(context.Background(), zipPath)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "twitter:1002", records[0].ID)
}

func TestImportZipSkippedWhenDisabled(t *testing.T) {
	zipPath := writeZip(t, map[string]string{"tweets.js": sampleTweetsJS})

	a := New(Config{Enabled: false}, nil)
	records, err := a.ImportZip(context.Background(), zipPath)
	require.NoError(t, err)
	assert.Nil(t, records)
}

func TestFetchItemsIsAlwaysEmpty(t *testing.T) {
	a := New(Config{Enabled: true}, nil)
	stream, err := a.FetchItems(context.Background(), nil, 10)
	require.NoError(t, err)
	_, ok, err := stream.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}
