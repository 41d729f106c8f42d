package resolve

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/chrispiasecki/pptb-auditing-manager/internal/domain"
)

// retrieveAuditDetails is the remote function resolving the detail envelope
// for one audit record.
const retrieveAuditDetails = "RetrieveAuditDetails"

// batchChunkSize bounds the number of concurrent detail fetches per chunk
// when pre-loading a page's details.
const batchChunkSize = 50

// DetailCache memoizes parsed detail variants per audit entry id. Concurrent
// requests for the same entry share one remote fetch. Entries whose details
// arrived bundled with a history response are seeded with Put and never hit
// the network.
type DetailCache struct {
	client     domain.DataClient
	dispatcher *Dispatcher
	logger     *slog.Logger

	mu     sync.RWMutex
	byID   map[string][]domain.AuditDetail
	flight singleflight.Group
}

// NewDetailCache creates the cache over the given client and dispatcher.
func NewDetailCache(client domain.DataClient, dispatcher *Dispatcher, logger *slog.Logger) *DetailCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &DetailCache{
		client:     client,
		dispatcher: dispatcher,
		logger:     logger,
		byID:       make(map[string][]domain.AuditDetail),
	}
}

// Get returns the parsed details for one entry, fetching and parsing on the
// first request. Failed fetches are not cached, so a later call retries.
func (c *DetailCache) Get(ctx context.Context, entry domain.AuditLogEntry) ([]domain.AuditDetail, error) {
	c.mu.RLock()
	if details, ok := c.byID[entry.ID]; ok {
		c.mu.RUnlock()
		return details, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.flight.Do(entry.ID, func() (any, error) {
		c.mu.RLock()
		if details, ok := c.byID[entry.ID]; ok {
			c.mu.RUnlock()
			return details, nil
		}
		c.mu.RUnlock()

		doc, err := c.client.InvokeFunction(ctx, retrieveAuditDetails, map[string]any{
			"AuditId": entry.ID,
		})
		if err != nil {
			return nil, domain.ErrTransport("retrieve audit details", err)
		}
		details := c.dispatcher.Resolve(ctx, entry, unwrapDetail(doc))

		c.mu.Lock()
		c.byID[entry.ID] = details
		c.mu.Unlock()
		return details, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.AuditDetail), nil
}

// Put parses and stores a detail envelope that arrived out of band, such as
// inside a change-history response.
func (c *DetailCache) Put(ctx context.Context, entry domain.AuditLogEntry, raw domain.RawDocument) {
	details := c.dispatcher.Resolve(ctx, entry, unwrapDetail(raw))
	c.mu.Lock()
	c.byID[entry.ID] = details
	c.mu.Unlock()
}

// Peek returns the cached details without fetching.
func (c *DetailCache) Peek(entryID string) ([]domain.AuditDetail, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	details, ok := c.byID[entryID]
	return details, ok
}

// LoadBatch pre-resolves details for a slice of entries in chunks, with the
// fetches inside a chunk running concurrently. A failed entry is recorded as
// having no details and logged; the batch itself only fails on context
// cancellation.
func (c *DetailCache) LoadBatch(ctx context.Context, entries []domain.AuditLogEntry) error {
	for start := 0; start < len(entries); start += batchChunkSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + batchChunkSize
		if end > len(entries) {
			end = len(entries)
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, entry := range entries[start:end] {
			entry := entry
			g.Go(func() error {
				if _, err := c.Get(gctx, entry); err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					c.logger.Warn("detail resolution failed, recording empty details",
						"entry_id", entry.ID, "error", err)
					c.mu.Lock()
					c.byID[entry.ID] = nil
					c.mu.Unlock()
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}

// Clear drops every cached detail list.
func (c *DetailCache) Clear() {
	c.mu.Lock()
	c.byID = make(map[string][]domain.AuditDetail)
	c.mu.Unlock()
}

// unwrapDetail strips the AuditDetail wrapper object some responses carry.
func unwrapDetail(doc domain.RawDocument) domain.RawDocument {
	if inner := gjson.GetBytes(doc, "AuditDetail"); inner.Exists() && inner.IsObject() {
		return domain.RawDocument(inner.Raw)
	}
	return doc
}
