package fetch

import (
	"context"

	"github.com/tidwall/gjson"

	"github.com/chrispiasecki/pptb-auditing-manager/internal/domain"
	"github.com/chrispiasecki/pptb-auditing-manager/internal/query"
)

// retrieveRecordChangeHistory is the remote operation behind the
// single-table, single-record specialization.
const retrieveRecordChangeHistory = "RetrieveRecordChangeHistory"

// HistoryResult is a page of one record's change history. Details carries
// the raw detail envelope bundled with each returned entry, keyed by audit
// id — callers merge these into the detail cache directly and skip the
// per-entry detail fetch.
type HistoryResult struct {
	Page    domain.PageResult
	Details map[string]domain.RawDocument
}

// FetchRecordHistory runs a record-scoped history query. It uses the same
// cursor mechanism as the generic page query and degrades to an empty page
// on transport failure.
func (f *Fetcher) FetchRecordHistory(ctx context.Context, table, recordID string, page query.PageRequest) HistoryResult {
	params := map[string]any{
		"Target": map[string]any{
			"LogicalName": table,
			"Id":          recordID,
		},
		"PageSize":   page.PageSize,
		"PageNumber": page.PageNumber,
	}
	if page.Cursor != "" {
		params["PagingCookie"] = page.Cursor
	}

	doc, err := f.client.InvokeFunction(ctx, retrieveRecordChangeHistory, params)
	if err != nil {
		terr := domain.ErrTransport("retrieve record change history", err)
		f.logger.Warn("record history query failed",
			"table", table, "record_id", recordID, "error", err)
		f.onError(terr)
		return HistoryResult{Page: domain.PageResult{Entries: []domain.AuditLogEntry{}}}
	}

	return f.normalizeHistory(doc, page)
}

func (f *Fetcher) normalizeHistory(doc domain.RawDocument, page query.PageRequest) HistoryResult {
	root := parseHistoryRoot(doc)
	env := parseEnvelope(root)

	entries := make([]domain.AuditLogEntry, 0, len(env.rows))
	details := make(map[string]domain.RawDocument, len(env.rows))
	for _, item := range env.rows {
		record := item.Get("AuditRecord")
		if !record.Exists() {
			record = item
		}
		entry, err := convertEntry(record)
		if err != nil {
			f.logger.Warn("dropping malformed history item", "error", err)
			continue
		}
		entries = append(entries, entry)
		// The item itself is the detail envelope for the entry.
		details[entry.ID] = domain.RawDocument(item.Raw)
	}

	hasMore := env.more
	if !env.moreKnown {
		hasMore = len(entries) >= page.PageSize
	}
	total := env.count
	if !env.countKnow {
		total = estimateTotal(len(entries), page.PageNumber, page.PageSize, hasMore)
	}

	return HistoryResult{
		Page: domain.PageResult{
			Entries:        entries,
			TotalCount:     total,
			HasMoreRecords: hasMore,
			Cursor:         env.cursor,
		},
		Details: details,
	}
}

// parseHistoryRoot unwraps the AuditDetailCollection wrapper when present.
func parseHistoryRoot(doc domain.RawDocument) domain.RawDocument {
	if v := gjson.GetBytes(doc, "AuditDetailCollection"); v.Exists() {
		return domain.RawDocument(v.Raw)
	}
	return doc
}
