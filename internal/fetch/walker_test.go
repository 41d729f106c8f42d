package fetch

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrispiasecki/pptb-auditing-manager/internal/domain"
	"github.com/chrispiasecki/pptb-auditing-manager/internal/testutil"
)

// pagedClient serves n sequential pages of the given size, issuing a cursor
// for every page but the last.
func pagedClient(t *testing.T, pages, rowsPerPage int) *testutil.DataClient {
	t.Helper()
	page := 0
	return &testutil.DataClient{
		RunQueryFunc: func(ctx context.Context, q string) (domain.RawDocument, error) {
			page++
			if page > 1 {
				assert.Contains(t, q, fmt.Sprintf(`paging-cookie="cursor-%d"`, page))
			}

			var rows []string
			for i := 0; i < rowsPerPage; i++ {
				rows = append(rows, fmt.Sprintf(`{"auditid": "p%d-r%d"}`, page, i))
			}
			more := page < pages
			body := fmt.Sprintf(`{"value": [%s], "@Microsoft.Dynamics.CRM.morerecords": %t`,
				strings.Join(rows, ","), more)
			if more {
				body += fmt.Sprintf(`, "@Microsoft.Dynamics.CRM.fetchxmlpagingcookie": "cursor-%d"`, page+1)
			}
			return domain.RawDocument(body + "}"), nil
		},
	}
}

func TestWalker_QueryAll(t *testing.T) {
	t.Run("walks_every_page_threading_the_cursor", func(t *testing.T) {
		client := pagedClient(t, 3, 2)
		w := NewWalker(NewFetcher(client, nil, nil), 2, nil)

		var progress [][2]int
		result := w.QueryAll(context.Background(), domain.FilterState{}, 0, func(fetched, total int) {
			progress = append(progress, [2]int{fetched, total})
		})

		assert.Len(t, result.Entries, 6)
		assert.False(t, result.Capped)
		assert.Equal(t, "p1-r0", result.Entries[0].ID)
		assert.Equal(t, "p3-r1", result.Entries[5].ID)
		// Totals are estimates until the final page confirms them.
		require.Len(t, progress, 3)
		assert.Equal(t, [2]int{2, 4}, progress[0])
		assert.Equal(t, [2]int{4, 6}, progress[1])
		assert.Equal(t, [2]int{6, 6}, progress[2])
	})

	t.Run("cap_truncates_mid_page", func(t *testing.T) {
		client := pagedClient(t, 10, 4)
		w := NewWalker(NewFetcher(client, nil, nil), 4, nil)

		result := w.QueryAll(context.Background(), domain.FilterState{}, 6, nil)

		assert.Len(t, result.Entries, 6)
		assert.True(t, result.Capped)
		assert.Len(t, client.RunQueryCalls(), 2)
	})

	t.Run("empty_first_page_terminates", func(t *testing.T) {
		client := &testutil.DataClient{
			RunQueryFunc: func(ctx context.Context, q string) (domain.RawDocument, error) {
				return domain.RawDocument(`{"value": []}`), nil
			},
		}
		w := NewWalker(NewFetcher(client, nil, nil), 50, nil)

		result := w.QueryAll(context.Background(), domain.FilterState{}, 0, nil)
		assert.Empty(t, result.Entries)
		assert.False(t, result.Capped)
		assert.Len(t, client.RunQueryCalls(), 1)
	})

	t.Run("cancellation_stops_between_pages", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		client := &testutil.DataClient{
			RunQueryFunc: func(ctx context.Context, q string) (domain.RawDocument, error) {
				cancel()
				return domain.RawDocument(`{"value": [{"auditid": "a"}], "@Microsoft.Dynamics.CRM.morerecords": true, "@Microsoft.Dynamics.CRM.fetchxmlpagingcookie": "c"}`), nil
			},
		}
		w := NewWalker(NewFetcher(client, nil, nil), 1, nil)

		result := w.QueryAll(ctx, domain.FilterState{}, 0, nil)
		assert.Len(t, result.Entries, 1)
		assert.Len(t, client.RunQueryCalls(), 1)
	})

	t.Run("transport_failure_mid_walk_returns_partial_results", func(t *testing.T) {
		calls := 0
		client := &testutil.DataClient{
			RunQueryFunc: func(ctx context.Context, q string) (domain.RawDocument, error) {
				calls++
				if calls == 2 {
					return nil, fmt.Errorf("boom")
				}
				return domain.RawDocument(`{"value": [{"auditid": "a"}], "@Microsoft.Dynamics.CRM.morerecords": true, "@Microsoft.Dynamics.CRM.fetchxmlpagingcookie": "c"}`), nil
			},
		}
		var reported error
		w := NewWalker(NewFetcher(client, nil, func(err error) { reported = err }), 1, nil)

		result := w.QueryAll(context.Background(), domain.FilterState{}, 0, nil)
		assert.Len(t, result.Entries, 1)
		require.Error(t, reported)
	})
}
