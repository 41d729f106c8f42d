// Package fetch executes paginated audit queries against the remote service
// and normalizes its heterogeneous response envelopes.
package fetch

import (
	"log/slog"
	"sync"

	"github.com/chrispiasecki/pptb-auditing-manager/internal/query"
)

// DefaultPageSize is the UI page size when none is configured.
const DefaultPageSize = 50

// Pager models "page index → capability to reach it" over a strictly
// forward-cursor protocol. The cookie for page N+1 becomes known only after
// page N has been fetched, so arbitrary forward jumps are rejected rather
// than simulated by refetching from page 1 — a silent refetch would change
// result semantics under concurrent writers.
type Pager struct {
	mu         sync.Mutex
	pageSize   int
	pageNumber int
	totalCount int
	hasMore    bool
	// cookies maps a page number to the cursor required to fetch it,
	// recorded when the preceding page completes. Page 1 never needs one.
	cookies map[int]string
	logger  *slog.Logger
}

// NewPager creates a pager positioned on page 1.
func NewPager(pageSize int, logger *slog.Logger) *Pager {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pager{
		pageSize:   pageSize,
		pageNumber: 1,
		cookies:    make(map[int]string),
		logger:     logger,
	}
}

// Request returns the page request for the current position, including the
// cursor captured for it (empty for page 1).
func (p *Pager) Request() query.PageRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return query.PageRequest{
		PageSize:   p.pageSize,
		PageNumber: p.pageNumber,
		Cursor:     p.cookies[p.pageNumber],
	}
}

// CanNavigateTo reports whether the pager can reach the given page: page 1
// is always reachable, any other page only when its cursor was captured by
// a prior fetch.
func (p *Pager) CanNavigateTo(page int) bool {
	if page == 1 {
		return true
	}
	if page < 1 {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.cookies[page]
	return ok
}

// GoTo moves the current position. An unreachable page is a deliberate
// silent no-op (warned, not errored): the UI must keep showing the current
// page rather than render a blank one for an impossible jump.
func (p *Pager) GoTo(page int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if page == 1 {
		p.pageNumber = 1
		return
	}
	if _, ok := p.cookies[page]; !ok {
		p.logger.Warn("no cursor cached for page, staying put",
			"requested_page", page, "current_page", p.pageNumber)
		return
	}
	p.pageNumber = page
}

// SetPageSize resets to page 1 and discards every cached cursor: cursors
// are bound to the page size they were issued under.
func (p *Pager) SetPageSize(n int) {
	if n <= 0 {
		n = DefaultPageSize
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pageSize = n
	p.pageNumber = 1
	p.cookies = make(map[int]string)
}

// Reset returns to page 1 and clears the cursor cache. Called on any filter
// change, before re-fetching — a stale cursor is protocol-invalid once the
// filter changes.
func (p *Pager) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pageNumber = 1
	p.totalCount = 0
	p.hasMore = false
	p.cookies = make(map[int]string)
}

// Record stores the outcome of fetching fetchedPage. The returned cursor is
// keyed under fetchedPage+1 and never overwrites a cursor already captured
// for that page by a different path.
func (p *Pager) Record(fetchedPage int, cursor string, totalCount int, hasMore bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.totalCount = totalCount
	p.hasMore = hasMore
	if cursor == "" {
		return
	}
	if _, ok := p.cookies[fetchedPage+1]; !ok {
		p.cookies[fetchedPage+1] = cursor
	}
}

// PageNumber returns the current page position (1-based).
func (p *Pager) PageNumber() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pageNumber
}

// PageSize returns the configured page size.
func (p *Pager) PageSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pageSize
}

// TotalCount returns the last reported or estimated total.
func (p *Pager) TotalCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalCount
}

// HasMoreRecords returns the more-records flag from the last fetch.
func (p *Pager) HasMoreRecords() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasMore
}
