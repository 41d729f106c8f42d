package fetch

import (
	"context"
	"log/slog"

	"github.com/chrispiasecki/pptb-auditing-manager/internal/domain"
	"github.com/chrispiasecki/pptb-auditing-manager/internal/query"
)

// ExportPageSize is the page size used for bulk export sweeps. It is larger
// than the UI page size to cut round-trips and is independent of it.
const ExportPageSize = 500

// ProgressFunc receives (fetched, total) after every page of a bulk walk.
type ProgressFunc func(fetched, total int)

// ExportResult is the outcome of a full-trail walk. Capped is a normal,
// non-error termination signal: the caller may surface it, the walk itself
// still succeeded.
type ExportResult struct {
	Entries []domain.AuditLogEntry
	Total   int // last reported or estimated total at termination
	Capped  bool
}

// Walker drives the Fetcher page by page to assemble a full result set. It
// is a one-shot linear sweep: it tracks a single current cursor rather than
// the page-indexed cursor cache the interactive pager uses.
type Walker struct {
	fetcher  *Fetcher
	pageSize int
	logger   *slog.Logger
}

// NewWalker creates a Walker over the given fetcher. pageSize <= 0 selects
// ExportPageSize.
func NewWalker(fetcher *Fetcher, pageSize int, logger *slog.Logger) *Walker {
	if pageSize <= 0 {
		pageSize = ExportPageSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Walker{fetcher: fetcher, pageSize: pageSize, logger: logger}
}

// QueryAll fetches every page matching the filter, stopping at maxRecords
// (0 = unlimited), on an empty page, or when the service reports no more
// records. onProgress (may be nil) is called after every page.
func (w *Walker) QueryAll(ctx context.Context, filter domain.FilterState, maxRecords int, onProgress ProgressFunc) ExportResult {
	if onProgress == nil {
		onProgress = func(int, int) {}
	}

	var result ExportResult
	cursor := ""
	for pageNumber := 1; ; pageNumber++ {
		if ctx.Err() != nil {
			w.logger.Warn("bulk walk canceled", "fetched", len(result.Entries))
			return result
		}

		page := w.fetcher.FetchPage(ctx, filter, query.PageRequest{
			PageSize:   w.pageSize,
			PageNumber: pageNumber,
			Cursor:     cursor,
		})
		result.Total = page.TotalCount

		take := len(page.Entries)
		if maxRecords > 0 {
			if remaining := maxRecords - len(result.Entries); take > remaining {
				take = remaining
			}
		}
		result.Entries = append(result.Entries, page.Entries[:take]...)
		onProgress(len(result.Entries), page.TotalCount)

		if maxRecords > 0 && len(result.Entries) >= maxRecords {
			result.Capped = true
			return result
		}
		if len(page.Entries) == 0 || !page.HasMoreRecords {
			return result
		}
		cursor = page.Cursor
	}
}
