package browse

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinedex/cinedex/internal/config"
	"github.com/cinedex/cinedex/internal/dircache"
	apperr "github.com/cinedex/cinedex/internal/errors"
	"github.com/cinedex/cinedex/internal/logger"
	"github.com/cinedex/cinedex/internal/paths"
)

func newTestAggregator(t *testing.T) (*Aggregator, *dircache.Cache) {
	translator := paths.New(config.LibraryConfig{
		VideoExtensions: []string{".mp4", ".mkv"},
	})
	cache := dircache.New(128, time.Minute)
	return NewAggregator(translator, cache, logger.NewNop()), cache
}

// writeFile creates a file with content of the given size and mtime
func writeFile(t *testing.T, path string, size int, mtime time.Time) {
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestAggregateRecursiveSizeAndMtime(t *testing.T) {
	agg, _ := newTestAggregator(t)
	dir := t.TempDir()

	older := time.Unix(1700000000, 0)
	newest := time.Unix(1700009999, 0)
	writeFile(t, filepath.Join(dir, "a.mp4"), 100, older)
	writeFile(t, filepath.Join(dir, "sub", "b.mkv"), 250, newest)
	writeFile(t, filepath.Join(dir, "sub", "deep", "c.mp4"), 50, older)
	writeFile(t, filepath.Join(dir, "sub", "notes.txt"), 9999, newest)

	entry, err := agg.Aggregate(dir, false)
	require.NoError(t, err)
	assert.False(t, entry.Failed)
	assert.Equal(t, 400.0, entry.Size, "non-video files are not counted")
	assert.InDelta(t, float64(newest.Unix()), entry.MTime, 1.0)
}

func TestAggregateNoVideosFallsBackToDirMtime(t *testing.T) {
	agg, _ := newTestAggregator(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "readme.txt"), 10, time.Unix(1700000000, 0))

	entry, err := agg.Aggregate(dir, false)
	require.NoError(t, err)
	assert.Equal(t, 0.0, entry.Size)
	assert.Greater(t, entry.MTime, 0.0, "directory's own mtime is the fallback")
}

func TestAggregateRootAccessError(t *testing.T) {
	agg, _ := newTestAggregator(t)

	_, err := agg.Aggregate("/nonexistent/path/for/test", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, &apperr.AppError{Code: apperr.CodeFileBrowse})
}

func TestFailedChildSubtreeDoesNotAbortParent(t *testing.T) {
	agg, cache := newTestAggregator(t)
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "ok.mp4"), 100, time.Unix(1700000000, 0))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "broken"), 0o755))

	// Simulate an access failure deeper in the tree: the child's cached
	// result is a failure sentinel.
	cache.Put(paths.Normalize(filepath.Join(dir, "broken")), dircache.Entry{Failed: true})

	entry, err := agg.Aggregate(dir, false)
	require.NoError(t, err, "a failed child must not raise past the top-level call")
	assert.False(t, entry.Failed)
	assert.Equal(t, 100.0, entry.Size, "the failed subtree contributes nothing")
}

func TestAggregateRecomputesStaleFailedEntry(t *testing.T) {
	agg, cache := newTestAggregator(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.mp4"), 100, time.Unix(1700000000, 0))

	// A failure was cached while the directory was unreadable; it is
	// readable again now, so the failure must not be served.
	cache.Put(paths.Normalize(dir), dircache.Entry{Failed: true})

	entry, err := agg.Aggregate(dir, false)
	require.NoError(t, err)
	assert.False(t, entry.Failed)
	assert.Equal(t, 100.0, entry.Size)
}

func TestAggregateCachingAndForceRefresh(t *testing.T) {
	agg, _ := newTestAggregator(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.mp4"), 100, time.Unix(1700000000, 0))

	entry, err := agg.Aggregate(dir, false)
	require.NoError(t, err)
	assert.Equal(t, 100.0, entry.Size)

	// A new file appears; within the TTL the stale value is served.
	writeFile(t, filepath.Join(dir, "b.mp4"), 900, time.Unix(1700000001, 0))
	entry, err = agg.Aggregate(dir, false)
	require.NoError(t, err)
	assert.Equal(t, 100.0, entry.Size, "cached value is returned unchanged inside the TTL")

	// forceRefresh bypasses and overwrites the cache entry.
	entry, err = agg.Aggregate(dir, true)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, entry.Size)
	assert.InDelta(t, 1700000001.0, entry.MTime, 1.0)

	// The refreshed value replaced the stale entry.
	entry, err = agg.Aggregate(dir, false)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, entry.Size)
}

func TestAggregateConsultsCachePerChild(t *testing.T) {
	agg, cache := newTestAggregator(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "sub", "a.mp4"), 100, time.Unix(1700000000, 0))

	// Pre-seed the child with a fabricated value; the parent must use it
	// instead of rescanning the child.
	cache.Put(paths.Normalize(filepath.Join(dir, "sub")), dircache.Entry{Size: 5000, MTime: 42})

	entry, err := agg.Aggregate(dir, false)
	require.NoError(t, err)
	assert.Equal(t, 5000.0, entry.Size)
	assert.Equal(t, 42.0, entry.MTime)
}

func TestCollectVideoEntries(t *testing.T) {
	agg, _ := newTestAggregator(t)
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "a.mp4"), 10, time.Unix(1700000000, 0))
	writeFile(t, filepath.Join(dir, "sub", "b.mkv"), 20, time.Unix(1700000000, 0))
	writeFile(t, filepath.Join(dir, "sub", "skip.txt"), 30, time.Unix(1700000000, 0))

	entries := agg.CollectVideoEntries(dir)
	require.Len(t, entries, 2)

	names := []string{entries[0].Name, entries[1].Name}
	assert.ElementsMatch(t, []string{"a.mp4", "b.mkv"}, names)
}

func TestCollectVideoEntriesUnreadableDir(t *testing.T) {
	agg, _ := newTestAggregator(t)

	entries := agg.CollectVideoEntries("/nonexistent/path/for/test")
	assert.Empty(t, entries)
}
