package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cinedex/cinedex/internal/browse"
	"github.com/cinedex/cinedex/internal/catalog"
	"github.com/cinedex/cinedex/internal/config"
	"github.com/cinedex/cinedex/internal/database"
	"github.com/cinedex/cinedex/internal/dircache"
	"github.com/cinedex/cinedex/internal/logger"
	"github.com/cinedex/cinedex/internal/media"
	"github.com/cinedex/cinedex/internal/paths"
	"github.com/cinedex/cinedex/internal/reconcile"
	"github.com/cinedex/cinedex/internal/server"
	"github.com/cinedex/cinedex/internal/server/handlers"
	"github.com/cinedex/cinedex/internal/watcher"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "cinedex",
	Short: "Video library index and streaming server",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	rootCmd.AddCommand(serveCmd)
}

func serve() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.New(cfg.Logging)

	db, err := database.Open(cfg.Database, log)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	translator := paths.New(cfg.Library)
	cache := dircache.New(cfg.DirCache.MaxEntries, cfg.DirCache.TTL)
	aggregator := browse.NewAggregator(translator, cache, log)
	cat := catalog.New(db, log)
	browser := browse.NewBrowser(translator, aggregator, cat, log)
	tools := media.NewTools(cfg.FFmpeg, log)
	reconciler := reconcile.New(db, cat, translator, tools, cfg.FFmpeg.MaxProcs, log)

	h := handlers.New(cfg, cat, browser, aggregator, translator, tools, reconciler, log)
	srv := server.New(cfg, h, log)

	if cfg.Library.WatchEnabled {
		w, err := watcher.New(translator, cat, log)
		if err != nil {
			return fmt.Errorf("failed to create library watcher: %w", err)
		}
		if err := w.Start(); err != nil {
			return fmt.Errorf("failed to start library watcher: %w", err)
		}
		defer w.Stop()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown did not complete cleanly", "error", err)
	}
	return <-errCh
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
