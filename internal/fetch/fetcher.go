package fetch

import (
	"context"
	"log/slog"

	"github.com/chrispiasecki/pptb-auditing-manager/internal/domain"
	"github.com/chrispiasecki/pptb-auditing-manager/internal/query"
)

// Fetcher issues one paginated query at a time and normalizes the result.
// Transport failures never escape it: they degrade to an empty page so the
// UI renders "no results" instead of crashing, and are reported through the
// error handler for the error-state channel.
type Fetcher struct {
	client  domain.DataClient
	logger  *slog.Logger
	onError func(error)
}

// NewFetcher creates a Fetcher. onError may be nil.
func NewFetcher(client domain.DataClient, logger *slog.Logger, onError func(error)) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if onError == nil {
		onError = func(error) {}
	}
	return &Fetcher{client: client, logger: logger, onError: onError}
}

// FetchPage builds and runs one page query, returning a canonical page
// result. It never returns an error: a failed query yields an empty page
// and reports through the error channel.
func (f *Fetcher) FetchPage(ctx context.Context, filter domain.FilterState, page query.PageRequest) domain.PageResult {
	fetchXML, err := query.BuildAuditQuery(filter, page)
	if err != nil {
		f.logger.Warn("invalid audit query", "error", err)
		f.onError(err)
		return domain.PageResult{Entries: []domain.AuditLogEntry{}}
	}

	doc, err := f.client.RunQuery(ctx, fetchXML)
	if err != nil {
		terr := domain.ErrTransport("run audit query", err)
		f.logger.Warn("audit query failed", "page", page.PageNumber, "error", err)
		f.onError(terr)
		return domain.PageResult{Entries: []domain.AuditLogEntry{}}
	}

	return f.normalize(doc, page)
}

// normalize converts the raw envelope into a PageResult, dropping malformed
// rows individually and filling in the optional side-channel fields.
func (f *Fetcher) normalize(doc domain.RawDocument, page query.PageRequest) domain.PageResult {
	env := parseEnvelope(doc)

	entries := make([]domain.AuditLogEntry, 0, len(env.rows))
	for _, row := range env.rows {
		entry, err := convertEntry(row)
		if err != nil {
			f.logger.Warn("dropping malformed audit row", "error", err)
			continue
		}
		entries = append(entries, entry)
	}

	hasMore := env.more
	if !env.moreKnown {
		// The service omitted the flag; a full page implies more records.
		hasMore = len(entries) >= page.PageSize
	}

	total := env.count
	if !env.countKnow {
		total = estimateTotal(len(entries), page.PageNumber, page.PageSize, hasMore)
	}

	return domain.PageResult{
		Entries:        entries,
		TotalCount:     total,
		HasMoreRecords: hasMore,
		Cursor:         env.cursor,
	}
}

// estimateTotal is the documented fallback when the service omits the total
// count. It is explicitly approximate and can disagree with eventual totals
// once more pages are fetched; the estimate is not reconciled retroactively.
func estimateTotal(rowCount, pageNumber, pageSize int, hasMore bool) int {
	if hasMore {
		return rowCount * (pageNumber + 1)
	}
	return rowCount + (pageNumber-1)*pageSize
}
