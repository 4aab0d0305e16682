// Package browse implements directory listing and recursive video
// aggregation over the library roots.
package browse

import (
	"os"

	"github.com/hashicorp/go-hclog"

	"github.com/cinedex/cinedex/internal/dircache"
	apperr "github.com/cinedex/cinedex/internal/errors"
	"github.com/cinedex/cinedex/internal/paths"
)

// Aggregator computes the total video byte size and most recent video
// modification time under a directory, with a TTL + LRU cache keyed by
// normalized path. Concurrent callers racing on the same uncached path may
// compute the value twice; the last cache write wins.
type Aggregator struct {
	translator *paths.Translator
	cache      *dircache.Cache
	log        hclog.Logger
}

// NewAggregator creates an aggregator over the given cache
func NewAggregator(translator *paths.Translator, cache *dircache.Cache, log hclog.Logger) *Aggregator {
	return &Aggregator{
		translator: translator,
		cache:      cache,
		log:        log.Named("aggregator"),
	}
}

// Aggregate computes the (size, mtime) pair for dir, recursing over the
// whole subtree and consulting the cache per directory. forceRefresh
// bypasses and overwrites cache entries at every level.
//
// An access failure on dir itself surfaces as a FileBrowseError. Failures
// deeper in the tree mark that subtree as failed (logged, skipped) without
// aborting the parent computation.
func (a *Aggregator) Aggregate(dir string, forceRefresh bool) (dircache.Entry, error) {
	dir = paths.Normalize(dir)
	if _, err := os.ReadDir(dir); err != nil {
		a.log.Error("cannot access directory for aggregation", "path", dir, "error", err)
		return dircache.Entry{}, apperr.NewFileBrowse(dir, err)
	}
	entry := a.lookup(dir, forceRefresh)
	if entry.Failed {
		// the directory just read fine, so a cached failure is stale
		entry = a.lookup(dir, true)
	}
	return entry, nil
}

// lookup serves dir from the cache or computes and stores it
func (a *Aggregator) lookup(dir string, forceRefresh bool) dircache.Entry {
	if !forceRefresh {
		if entry, ok := a.cache.Get(dir); ok {
			return entry
		}
	}
	entry := a.compute(dir, forceRefresh)
	a.cache.Put(dir, entry)
	return entry
}

func (a *Aggregator) compute(dir string, forceRefresh bool) dircache.Entry {
	entries, err := os.ReadDir(dir)
	if err != nil {
		a.log.Error("error accessing directory during aggregation", "path", dir, "error", err)
		return dircache.Entry{Failed: true}
	}

	var totalSize, lastModified float64
	for _, entry := range entries {
		childPath := paths.Normalize(dir + "/" + entry.Name())
		if entry.IsDir() {
			child := a.lookup(childPath, forceRefresh)
			if child.Failed {
				continue
			}
			totalSize += child.Size
			if child.MTime > lastModified {
				lastModified = child.MTime
			}
		} else if entry.Type().IsRegular() && a.translator.IsVideoFile(entry.Name()) {
			info, err := entry.Info()
			if err != nil {
				a.log.Error("error reading file info during aggregation", "path", childPath, "error", err)
				continue
			}
			totalSize += float64(info.Size())
			mtime := float64(info.ModTime().UnixNano()) / 1e9
			if mtime > lastModified {
				lastModified = mtime
			}
		}
	}

	// A subtree without any video still reports the directory's own mtime.
	if totalSize == 0 && lastModified == 0 {
		if info, err := os.Stat(dir); err == nil {
			lastModified = float64(info.ModTime().UnixNano()) / 1e9
		}
	}

	return dircache.Entry{Size: totalSize, MTime: lastModified}
}

// FileEntry is a video file discovered by a recursive directory walk
type FileEntry struct {
	Path  string
	Name  string
	Size  float64
	MTime float64
}

// CollectVideoEntries gathers every video file under dir recursively.
// Subtrees that cannot be read are logged and skipped.
func (a *Aggregator) CollectVideoEntries(dir string) []FileEntry {
	dir = paths.Normalize(dir)
	var out []FileEntry

	entries, err := os.ReadDir(dir)
	if err != nil {
		a.log.Error("error accessing directory while collecting video entries", "path", dir, "error", err)
		return out
	}

	for _, entry := range entries {
		childPath := paths.Normalize(dir + "/" + entry.Name())
		if entry.IsDir() {
			out = append(out, a.CollectVideoEntries(childPath)...)
		} else if entry.Type().IsRegular() && a.translator.IsVideoFile(entry.Name()) {
			info, err := entry.Info()
			if err != nil {
				a.log.Error("error reading file info while collecting video entries", "path", childPath, "error", err)
				continue
			}
			out = append(out, FileEntry{
				Path:  childPath,
				Name:  entry.Name(),
				Size:  float64(info.Size()),
				MTime: float64(info.ModTime().UnixNano()) / 1e9,
			})
		}
	}
	return out
}
