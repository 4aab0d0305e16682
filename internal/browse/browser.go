package browse

import (
	"os"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/cinedex/cinedex/internal/database"
	apperr "github.com/cinedex/cinedex/internal/errors"
	"github.com/cinedex/cinedex/internal/paths"
)

// ScanCatalog is the catalog surface the browser needs
type ScanCatalog interface {
	UpsertOnScan(path, name string, mtime float64, size float64) (*database.Video, error)
}

// Node is one entry of a directory listing. Directory nodes are synthetic:
// they carry a transient identity and are never persisted.
type Node struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	IsDir          bool            `json:"isDir"`
	Size           float64         `json:"size"`
	LastModifyTime float64         `json:"lastModifyTime"`
	Video          *database.Video `json:"video,omitempty"`
}

// Browser lists directories, aggregating subdirectories and upserting video
// files into the catalog as they are observed.
type Browser struct {
	translator *paths.Translator
	aggregator *Aggregator
	catalog    ScanCatalog
	log        hclog.Logger
}

// NewBrowser wires a browser from its collaborators
func NewBrowser(translator *paths.Translator, aggregator *Aggregator, catalog ScanCatalog, log hclog.Logger) *Browser {
	return &Browser{
		translator: translator,
		aggregator: aggregator,
		catalog:    catalog,
		log:        log.Named("browser"),
	}
}

// ListRoots lists the configured pseudo-roots as directory nodes. Roots
// whose subtree holds no videos, or cannot be read, are omitted.
func (b *Browser) ListRoots(forceRefresh bool) ([]Node, error) {
	nodes := []Node{}
	for _, name := range b.translator.RootNames() {
		root, err := b.translator.ResolveRoot(name)
		if err != nil {
			return nil, err
		}
		if node, ok := b.directoryNode(root, name, forceRefresh); ok {
			nodes = append(nodes, node)
		}
	}
	return nodes, nil
}

// ListDirectory lists the directory at rel below the named pseudo-root.
// Subdirectories become synthetic aggregate nodes; video files are upserted
// into the catalog and returned with their stored metadata. Entries that
// fail to stat are logged and skipped; an unreadable target directory
// surfaces as a FileBrowseError.
func (b *Browser) ListDirectory(pseudoName, rel string, forceRefresh bool) ([]Node, error) {
	dir, err := b.translator.ResolveRelative(pseudoName, rel)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		b.log.Error("error accessing directory", "path", dir, "error", err)
		return nil, apperr.NewFileBrowse(dir, err)
	}

	nodes := []Node{}
	for _, entry := range entries {
		childPath := paths.Normalize(dir + "/" + entry.Name())
		if entry.IsDir() {
			if node, ok := b.directoryNode(childPath, entry.Name(), forceRefresh); ok {
				nodes = append(nodes, node)
			}
			continue
		}
		if !entry.Type().IsRegular() || !b.translator.IsVideoFile(entry.Name()) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			b.log.Error("error processing file", "path", childPath, "error", err)
			continue
		}
		video, err := b.catalog.UpsertOnScan(
			b.translator.ToHostPath(childPath),
			entry.Name(),
			float64(info.ModTime().UnixNano())/1e9,
			float64(info.Size()),
		)
		if err != nil {
			b.log.Error("error upserting scanned file", "path", childPath, "error", err)
			continue
		}
		nodes = append(nodes, Node{
			ID:             video.ID,
			Name:           video.Name,
			Size:           video.Size,
			LastModifyTime: video.LastModifyTime,
			Video:          video,
		})
	}

	b.log.Debug("directory listed", "path", dir, "nodes", len(nodes))
	return nodes, nil
}

// directoryNode aggregates one subdirectory into a synthetic node. The
// second return is false when the node should be omitted from the listing.
func (b *Browser) directoryNode(dir, name string, forceRefresh bool) (Node, bool) {
	entry := b.aggregator.lookup(paths.Normalize(dir), forceRefresh)
	if entry.Failed || entry.Size == 0 {
		return Node{}, false
	}
	return Node{
		ID:             uuid.New().String(),
		Name:           name,
		IsDir:          true,
		Size:           entry.Size,
		LastModifyTime: entry.MTime,
	}, true
}
