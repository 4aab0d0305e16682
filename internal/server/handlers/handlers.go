// Package handlers contains HTTP request handlers organized by functionality.
package handlers

import (
	"context"

	"github.com/hashicorp/go-hclog"

	"github.com/cinedex/cinedex/internal/browse"
	"github.com/cinedex/cinedex/internal/catalog"
	"github.com/cinedex/cinedex/internal/config"
	"github.com/cinedex/cinedex/internal/database"
	"github.com/cinedex/cinedex/internal/media"
	"github.com/cinedex/cinedex/internal/paths"
	"github.com/cinedex/cinedex/internal/reconcile"
)

// MediaTools is the external-tool surface the thumbnail path needs.
type MediaTools interface {
	Thumbnail(ctx context.Context, path string) ([]byte, error)
	EnsureDuration(ctx context.Context, store media.DurationStore, video *database.Video, execPath string) float64
}

// Handlers bundles everything the HTTP layer talks to.
type Handlers struct {
	cfg        *config.Config
	catalog    *catalog.Catalog
	browser    *browse.Browser
	aggregator *browse.Aggregator
	translator *paths.Translator
	tools      MediaTools
	reconciler *reconcile.Reconciler
	log        hclog.Logger
}

func New(
	cfg *config.Config,
	cat *catalog.Catalog,
	browser *browse.Browser,
	aggregator *browse.Aggregator,
	translator *paths.Translator,
	tools MediaTools,
	reconciler *reconcile.Reconciler,
	log hclog.Logger,
) *Handlers {
	return &Handlers{
		cfg:        cfg,
		catalog:    cat,
		browser:    browser,
		aggregator: aggregator,
		translator: translator,
		tools:      tools,
		reconciler: reconciler,
		log:        log.Named("http"),
	}
}
