// Package app provides application-level wiring for the audit engine.
package app

import (
	"log/slog"

	"github.com/chrispiasecki/pptb-auditing-manager/internal/config"
	"github.com/chrispiasecki/pptb-auditing-manager/internal/domain"
	"github.com/chrispiasecki/pptb-auditing-manager/internal/fetch"
	"github.com/chrispiasecki/pptb-auditing-manager/internal/service/export"
	"github.com/chrispiasecki/pptb-auditing-manager/internal/service/trail"
)

// Deps holds the external dependencies that main() must provide: config,
// logger, and the remote service client.
type Deps struct {
	Cfg    *config.Config
	Client domain.DataClient
	Logger *slog.Logger
}

// App holds the fully-wired services the API handler and CLI need.
type App struct {
	Trail  *trail.Service
	Export *export.Service
}

// New wires the browsing session and the export path over one shared client.
// The export walker gets its own fetcher so a failed sweep never pollutes
// the session's error state, but shares the session's detail cache.
func New(deps Deps) *App {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	trailSvc := trail.New(deps.Client, deps.Cfg.PageSize, logger)

	exportFetcher := fetch.NewFetcher(deps.Client, logger.With("component", "export"), nil)
	walker := fetch.NewWalker(exportFetcher, fetch.ExportPageSize, logger)
	exportSvc := export.New(walker, trailSvc.Details(), deps.Cfg.ExportMax, logger)

	return &App{Trail: trailSvc, Export: exportSvc}
}
