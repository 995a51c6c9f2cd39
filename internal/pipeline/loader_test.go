package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/ccmeter/internal/model"
	"github.com/theirongolddev/ccmeter/internal/source"
	"github.com/theirongolddev/ccmeter/internal/store"
)

func jsonlLine(ts, sessionID, msgID, reqID string, input int64) string {
	return fmt.Sprintf(`{"type":"assistant","timestamp":%q,"sessionId":%q,"requestId":%q,"message":{"id":%q,"model":"claude-sonnet-4-5","usage":{"input_tokens":%d,"output_tokens":0}}}`,
		ts, sessionID, reqID, msgID, input)
}

func collect(t *testing.T, l *Loader) ([]model.UsageEntry, model.Diagnostics) {
	t.Helper()
	var entries []model.UsageEntry
	diag, err := l.Each(context.Background(), func(e model.UsageEntry) error {
		entries = append(entries, e)
		return nil
	})
	require.NoError(t, err)
	return entries, diag
}

func TestLoaderDedupAcrossSources(t *testing.T) {
	a := strings.Join([]string{
		jsonlLine("2025-06-01T10:00:00Z", "s1", "msg-1", "req-1", 100),
		jsonlLine("2025-06-01T10:05:00Z", "s1", "msg-2", "req-2", 200),
	}, "\n")
	// Overlapping export: msg-1/req-1 again, plus a new entry and junk.
	b := strings.Join([]string{
		jsonlLine("2025-06-01T10:00:00Z", "s1", "msg-1", "req-1", 100),
		jsonlLine("2025-06-01T10:10:00Z", "s1", "msg-3", "req-3", 300),
		"not json",
	}, "\n")

	l := &Loader{Sources: []source.Source{
		source.ReaderSource("a.jsonl", strings.NewReader(a)),
		source.ReaderSource("b.jsonl", strings.NewReader(b)),
	}}

	entries, diag := collect(t, l)
	assert.Len(t, entries, 3)
	assert.Equal(t, int64(3), diag.ParsedEntries)
	assert.Equal(t, int64(1), diag.DeduplicatedEntries)
	assert.Equal(t, int64(1), diag.SkippedLines)
	assert.Equal(t, int64(5), diag.LinesRead())
	assert.Equal(t, 2, diag.FilesRead)
}

func TestLoaderSameMessageNewRequestKept(t *testing.T) {
	// A retry reuses the message id under a new request id; both count.
	data := strings.Join([]string{
		jsonlLine("2025-06-01T10:00:00Z", "s1", "msg-1", "req-1", 100),
		jsonlLine("2025-06-01T10:01:00Z", "s1", "msg-1", "req-2", 100),
	}, "\n")

	l := &Loader{Sources: []source.Source{source.ReaderSource("a.jsonl", strings.NewReader(data))}}
	entries, diag := collect(t, l)
	assert.Len(t, entries, 2)
	assert.Zero(t, diag.DeduplicatedEntries)
}

func TestLoaderOpenErrorIsolated(t *testing.T) {
	bad := source.Source{
		Name: "broken",
		Open: func() (io.ReadCloser, error) { return nil, errors.New("boom") },
	}
	good := source.ReaderSource("good.jsonl",
		strings.NewReader(jsonlLine("2025-06-01T10:00:00Z", "s1", "msg-1", "req-1", 100)))

	l := &Loader{Sources: []source.Source{bad, good}}
	entries, diag := collect(t, l)
	assert.Len(t, entries, 1)
	assert.Equal(t, 1, diag.FileErrors)
	assert.Equal(t, 1, diag.FilesRead)
}

func TestLoaderCallbackErrorAborts(t *testing.T) {
	data := strings.Join([]string{
		jsonlLine("2025-06-01T10:00:00Z", "s1", "msg-1", "req-1", 100),
		jsonlLine("2025-06-01T10:01:00Z", "s1", "msg-2", "req-2", 100),
	}, "\n")

	l := &Loader{Sources: []source.Source{source.ReaderSource("a.jsonl", strings.NewReader(data))}}
	sentinel := errors.New("stop")
	_, err := l.Each(context.Background(), func(model.UsageEntry) error { return sentinel })
	assert.ErrorIs(t, err, sentinel)
}

func TestLoaderCacheReplay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	data := strings.Join([]string{
		jsonlLine("2025-06-01T10:00:00Z", "s1", "msg-1", "req-1", 100),
		"garbage line",
		jsonlLine("2025-06-01T10:05:00Z", "s1", "msg-2", "req-2", 200),
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cache, err := store.Open(filepath.Join(dir, "cache.db"))
	require.NoError(t, err)
	defer cache.Close()

	l := &Loader{
		Sources: []source.Source{source.FileSource(path, "inst")},
		Cache:   cache,
	}

	first, diag1 := collect(t, l)
	assert.Equal(t, 1, diag1.Reparsed)
	assert.Zero(t, diag1.CacheHits)

	second, diag2 := collect(t, l)
	assert.Equal(t, 1, diag2.CacheHits)
	assert.Zero(t, diag2.Reparsed)

	// Cached replay reproduces entries and line accounting exactly.
	assert.Equal(t, first, second)
	assert.Equal(t, diag1.ParsedEntries, diag2.ParsedEntries)
	assert.Equal(t, diag1.SkippedLines, diag2.SkippedLines)
	assert.Equal(t, diag1.LinesRead(), diag2.LinesRead())
}
