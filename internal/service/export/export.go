// Package export assembles full result sets for bulk extraction, independent
// of the interactive browsing session.
package export

import (
	"context"
	"log/slog"

	"github.com/chrispiasecki/pptb-auditing-manager/internal/domain"
	"github.com/chrispiasecki/pptb-auditing-manager/internal/fetch"
	"github.com/chrispiasecki/pptb-auditing-manager/internal/resolve"
)

// DefaultMaxRecords caps an export when the service is built without an
// explicit ceiling.
const DefaultMaxRecords = 100000

// Request describes one export run.
type Request struct {
	Filter      domain.FilterState
	MaxRecords  int  // 0 selects the service ceiling; larger values are clamped to it
	WithDetails bool // pre-resolve detail variants for every exported entry
}

// Result is a finished export. Capped means the record cap cut the sweep
// short; the export itself still succeeded.
type Result struct {
	Entries []domain.AuditLogEntry
	Details map[string][]domain.AuditDetail // by entry id, nil unless requested
	Total   int
	Capped  bool
}

// Service walks the full trail for a filter and optionally resolves details
// for every exported entry.
type Service struct {
	walker     *fetch.Walker
	details    *resolve.DetailCache
	maxRecords int
	logger     *slog.Logger
}

// New creates an export service over a dedicated walker. The detail cache is
// shared with the browsing session so exports reuse what the UI already
// resolved. maxRecords is the operator's hard ceiling for a single export;
// <= 0 selects DefaultMaxRecords. Request caps cannot exceed it.
func New(walker *fetch.Walker, details *resolve.DetailCache, maxRecords int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if maxRecords <= 0 {
		maxRecords = DefaultMaxRecords
	}
	return &Service{
		walker:     walker,
		details:    details,
		maxRecords: maxRecords,
		logger:     logger.With("component", "export"),
	}
}

// Run executes one export. onProgress (may be nil) receives (fetched, total)
// after every page of the sweep.
func (s *Service) Run(ctx context.Context, req Request, onProgress fetch.ProgressFunc) (Result, error) {
	if err := req.Filter.Validate(); err != nil {
		return Result{}, err
	}
	maxRecords := req.MaxRecords
	if maxRecords <= 0 || maxRecords > s.maxRecords {
		if maxRecords > s.maxRecords {
			s.logger.Warn("clamping export record cap",
				"requested", maxRecords, "ceiling", s.maxRecords)
		}
		maxRecords = s.maxRecords
	}

	sweep := s.walker.QueryAll(ctx, req.Filter, maxRecords, onProgress)
	result := Result{
		Entries: sweep.Entries,
		Total:   sweep.Total,
		Capped:  sweep.Capped,
	}
	s.logger.Info("export sweep finished",
		"entries", len(result.Entries), "capped", result.Capped)

	if !req.WithDetails {
		return result, nil
	}
	if err := s.details.LoadBatch(ctx, result.Entries); err != nil {
		return Result{}, err
	}
	result.Details = make(map[string][]domain.AuditDetail, len(result.Entries))
	for _, entry := range result.Entries {
		if details, ok := s.details.Peek(entry.ID); ok {
			result.Details[entry.ID] = details
		}
	}
	return result, nil
}
