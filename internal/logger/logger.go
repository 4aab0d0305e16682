package logger

import (
	"os"

	"github.com/hashicorp/go-hclog"

	"github.com/cinedex/cinedex/internal/config"
)

// New creates the root application logger from logging configuration.
// Components receive named sub-loggers via hclog.Logger.Named.
func New(cfg config.LoggingConfig) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:       "cinedex",
		Level:      hclog.LevelFromString(cfg.Level),
		Output:     os.Stdout,
		JSONFormat: cfg.Format == "json",
	})
}

// NewNop returns a logger that discards everything, for tests.
func NewNop() hclog.Logger {
	return hclog.NewNullLogger()
}
