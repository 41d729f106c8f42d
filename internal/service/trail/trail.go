// Package trail orchestrates the interactive audit browsing session: one
// filter state, one pager, and the resolution caches, kept consistent across
// filter changes and concurrent fetches.
package trail

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/chrispiasecki/pptb-auditing-manager/internal/domain"
	"github.com/chrispiasecki/pptb-auditing-manager/internal/fetch"
	"github.com/chrispiasecki/pptb-auditing-manager/internal/query"
	"github.com/chrispiasecki/pptb-auditing-manager/internal/resolve"
)

// Service owns the browsing session state. Mutating calls follow a strict
// order on any filter change: pagination resets first, caches clear second,
// the refetch runs last. Responses belonging to a superseded filter
// generation are discarded instead of committed.
type Service struct {
	fetcher    *fetch.Fetcher
	pager      *fetch.Pager
	details    *resolve.DetailCache
	principals *resolve.PrincipalCache
	privileges *resolve.PrivilegeCache
	attributes *resolve.AttributeCache
	logger     *slog.Logger

	mu         sync.Mutex
	filter     domain.FilterState
	entries    []domain.AuditLogEntry
	generation uuid.UUID
	lastErr    error
}

// New wires a Service over the given client. pageSize <= 0 selects the
// default page size.
func New(client domain.DataClient, pageSize int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "trail")

	s := &Service{
		pager:      fetch.NewPager(pageSize, logger),
		principals: resolve.NewPrincipalCache(client, logger),
		privileges: resolve.NewPrivilegeCache(client, logger),
		attributes: resolve.NewAttributeCache(client, logger),
		logger:     logger,
		generation: uuid.New(),
	}
	s.fetcher = fetch.NewFetcher(client, logger, s.recordError)
	dispatcher := resolve.NewDispatcher(client, s.principals, s.privileges, s.attributes, logger)
	s.details = resolve.NewDetailCache(client, dispatcher, logger)
	return s
}

// SetFilters replaces the filter state and reloads page 1. Stale cursors and
// cached names from the previous filter must never leak into the new view,
// so the reset and cache clears happen before the fetch starts.
func (s *Service) SetFilters(ctx context.Context, f domain.FilterState) error {
	if err := f.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	s.pager.Reset()
	s.clearCachesLocked()
	s.filter = f
	s.generation = uuid.New()
	gen := s.generation
	s.mu.Unlock()

	s.refetch(ctx, gen)
	return nil
}

// SetPageSize changes the page size, which invalidates every cached cursor,
// and reloads page 1.
func (s *Service) SetPageSize(ctx context.Context, n int) {
	gen := s.resize(n)
	s.refetch(ctx, gen)
}

// ResizePage changes the page size without reloading. Callers that follow up
// with SetFilters use this to keep a combined change down to one fetch.
func (s *Service) ResizePage(n int) {
	s.resize(n)
}

func (s *Service) resize(n int) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pager.SetPageSize(n)
	s.generation = uuid.New()
	return s.generation
}

// GoToPage navigates to a page and loads it. An unreachable page is a no-op
// and the current view stays as is.
func (s *Service) GoToPage(ctx context.Context, page int) {
	s.mu.Lock()
	if !s.pager.CanNavigateTo(page) {
		s.logger.Warn("ignoring jump to unreachable page", "page", page)
		s.mu.Unlock()
		return
	}
	s.pager.GoTo(page)
	gen := s.generation
	s.mu.Unlock()

	s.refetch(ctx, gen)
}

// Refresh reloads the current page under the current filter.
func (s *Service) Refresh(ctx context.Context) {
	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()
	s.refetch(ctx, gen)
}

// refetch runs the page fetch outside the lock and commits the result only
// when the session generation is unchanged, discarding responses that a
// concurrent filter change made stale.
func (s *Service) refetch(ctx context.Context, gen uuid.UUID) {
	s.mu.Lock()
	filter := s.filter
	request := s.pager.Request()
	s.mu.Unlock()

	var page domain.PageResult
	if filter.SingleRecord() {
		history := s.fetcher.FetchRecordHistory(ctx, filter.Tables[0], filter.RecordID, request)
		page = history.Page
		s.seedDetails(ctx, gen, history)
	} else {
		page = s.fetcher.FetchPage(ctx, filter, request)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		s.logger.Debug("discarding stale page response", "page", request.PageNumber)
		return
	}
	s.entries = page.Entries
	s.pager.Record(request.PageNumber, page.Cursor, page.TotalCount, page.HasMoreRecords)
}

// seedDetails merges the detail envelopes bundled with a history response
// into the detail cache, saving a per-entry fetch later.
func (s *Service) seedDetails(ctx context.Context, gen uuid.UUID, history fetch.HistoryResult) {
	s.mu.Lock()
	stale := s.generation != gen
	s.mu.Unlock()
	if stale {
		return
	}
	for _, entry := range history.Page.Entries {
		if raw, ok := history.Details[entry.ID]; ok {
			s.details.Put(ctx, entry, raw)
		}
	}
}

// EntryDetails resolves the detail variants for one entry on the current
// page.
func (s *Service) EntryDetails(ctx context.Context, entryID string) ([]domain.AuditDetail, error) {
	s.mu.Lock()
	var entry domain.AuditLogEntry
	found := false
	for _, e := range s.entries {
		if e.ID == entryID {
			entry = e
			found = true
			break
		}
	}
	s.mu.Unlock()

	if !found {
		return nil, domain.ErrNotFound("entry %s is not on the current page", entryID)
	}
	return s.details.Get(ctx, entry)
}

// PreloadDetails resolves details for every entry on the current page in the
// background batch path.
func (s *Service) PreloadDetails(ctx context.Context) error {
	s.mu.Lock()
	entries := append([]domain.AuditLogEntry(nil), s.entries...)
	s.mu.Unlock()
	return s.details.LoadBatch(ctx, entries)
}

// RecordHistory fetches one page of a record's change history without
// touching the session's own filter or pager state. Bundled details are
// still merged into the shared cache.
func (s *Service) RecordHistory(ctx context.Context, table, recordID string, pageNumber, pageSize int) (domain.PageResult, error) {
	if table == "" || recordID == "" {
		return domain.PageResult{}, domain.ErrValidation("record history requires a table and a record id")
	}
	if pageSize <= 0 {
		pageSize = fetch.DefaultPageSize
	}
	if pageNumber <= 0 {
		pageNumber = 1
	}

	history := s.fetcher.FetchRecordHistory(ctx, table, recordID, query.PageRequest{
		PageSize:   pageSize,
		PageNumber: pageNumber,
	})
	for _, entry := range history.Page.Entries {
		if raw, ok := history.Details[entry.ID]; ok {
			s.details.Put(ctx, entry, raw)
		}
	}
	return history.Page, nil
}

// Details exposes the session's detail cache so other components, like the
// export path, reuse what the session already resolved.
func (s *Service) Details() *resolve.DetailCache { return s.details }

// Entries returns the current page's entries.
func (s *Service) Entries() []domain.AuditLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.AuditLogEntry(nil), s.entries...)
}

// Filter returns the active filter state.
func (s *Service) Filter() domain.FilterState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// PageNumber returns the current page position.
func (s *Service) PageNumber() int { return s.pager.PageNumber() }

// PageSize returns the active page size.
func (s *Service) PageSize() int { return s.pager.PageSize() }

// TotalCount returns the last reported or estimated total.
func (s *Service) TotalCount() int { return s.pager.TotalCount() }

// HasMoreRecords reports whether the service indicated further records.
func (s *Service) HasMoreRecords() bool { return s.pager.HasMoreRecords() }

// CanNavigateTo reports whether a page is currently reachable.
func (s *Service) CanNavigateTo(page int) bool { return s.pager.CanNavigateTo(page) }

// LastError returns and clears the most recent degraded-fetch error. The
// error state is a consumable signal, not a latch.
func (s *Service) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.lastErr
	s.lastErr = nil
	return err
}

func (s *Service) recordError(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

func (s *Service) clearCachesLocked() {
	s.details.Clear()
	s.principals.Clear()
	s.privileges.Clear()
	s.attributes.Clear()
}
