package fetch

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrispiasecki/pptb-auditing-manager/internal/domain"
	"github.com/chrispiasecki/pptb-auditing-manager/internal/query"
	"github.com/chrispiasecki/pptb-auditing-manager/internal/testutil"
)

func TestFetcher_FetchPage(t *testing.T) {
	page := query.PageRequest{PageSize: 2, PageNumber: 1}

	t.Run("normalizes_rows_and_side_channels", func(t *testing.T) {
		client := &testutil.DataClient{
			RunQueryFunc: func(ctx context.Context, q string) (domain.RawDocument, error) {
				assert.Contains(t, q, `<entity name="audit">`)
				return domain.RawDocument(`{
					"value": [
						{
							"auditid": "a1",
							"createdon": "2026-05-01T10:30:00Z",
							"operation": 2,
							"action": 2,
							"objecttypecode": "account",
							"_objectid_value": "o1",
							"_objectid_value@OData.Community.Display.V1.FormattedValue": "Contoso",
							"_userid_value": "u1",
							"_userid_value@OData.Community.Display.V1.FormattedValue": "Jane Smith",
							"attributemask": "2,7",
							"changedata": ""
						},
						{"auditid": "a2", "operation": 1, "action": 1}
					],
					"@Microsoft.Dynamics.CRM.fetchxmlpagingcookie": "next-cursor",
					"@Microsoft.Dynamics.CRM.morerecords": true,
					"@odata.count": 40
				}`), nil
			},
		}
		f := NewFetcher(client, nil, nil)

		result := f.FetchPage(context.Background(), domain.FilterState{}, page)

		require.Len(t, result.Entries, 2)
		first := result.Entries[0]
		assert.Equal(t, "a1", first.ID)
		assert.Equal(t, time.Date(2026, 5, 1, 10, 30, 0, 0, time.UTC), first.CreatedOn)
		assert.Equal(t, domain.OperationUpdate, first.Operation)
		assert.Equal(t, "Contoso", first.ObjectName)
		assert.Equal(t, "Jane Smith", first.UserName)
		assert.Equal(t, "2,7", first.AttributeMask)

		assert.Equal(t, "next-cursor", result.Cursor)
		assert.True(t, result.HasMoreRecords)
		assert.Equal(t, 40, result.TotalCount)
	})

	t.Run("malformed_rows_are_dropped_individually", func(t *testing.T) {
		client := &testutil.DataClient{
			RunQueryFunc: func(ctx context.Context, q string) (domain.RawDocument, error) {
				return domain.RawDocument(`[
					{"auditid": "good"},
					{"operation": 2},
					{"auditid": "also-good"}
				]`), nil
			},
		}
		f := NewFetcher(client, nil, nil)

		result := f.FetchPage(context.Background(), domain.FilterState{}, page)
		require.Len(t, result.Entries, 2)
		assert.Equal(t, "good", result.Entries[0].ID)
		assert.Equal(t, "also-good", result.Entries[1].ID)
	})

	t.Run("transport_failure_degrades_to_empty_page", func(t *testing.T) {
		client := &testutil.DataClient{
			RunQueryFunc: func(ctx context.Context, q string) (domain.RawDocument, error) {
				return nil, fmt.Errorf("dial tcp: connection refused")
			},
		}
		var reported error
		f := NewFetcher(client, nil, func(err error) { reported = err })

		result := f.FetchPage(context.Background(), domain.FilterState{}, page)

		assert.NotNil(t, result.Entries)
		assert.Empty(t, result.Entries)
		assert.Zero(t, result.TotalCount)
		var terr *domain.TransportError
		require.ErrorAs(t, reported, &terr)
	})

	t.Run("invalid_filter_degrades_without_touching_the_wire", func(t *testing.T) {
		client := &testutil.DataClient{}
		var reported error
		f := NewFetcher(client, nil, func(err error) { reported = err })

		result := f.FetchPage(context.Background(), domain.FilterState{RecordID: "r"}, page)

		assert.Empty(t, result.Entries)
		var verr *domain.ValidationError
		require.ErrorAs(t, reported, &verr)
		assert.Empty(t, client.RunQueryCalls())
	})

	t.Run("missing_more_flag_is_inferred_from_a_full_page", func(t *testing.T) {
		client := &testutil.DataClient{
			RunQueryFunc: func(ctx context.Context, q string) (domain.RawDocument, error) {
				return domain.RawDocument(`[{"auditid": "a"}, {"auditid": "b"}]`), nil
			},
		}
		f := NewFetcher(client, nil, nil)

		result := f.FetchPage(context.Background(), domain.FilterState{}, page)
		assert.True(t, result.HasMoreRecords)
		// Estimate: two rows on page 1 of size 2 with more expected.
		assert.Equal(t, 4, result.TotalCount)
	})

	t.Run("missing_count_on_a_short_page_sums_prior_pages", func(t *testing.T) {
		client := &testutil.DataClient{
			RunQueryFunc: func(ctx context.Context, q string) (domain.RawDocument, error) {
				return domain.RawDocument(`{"value": [{"auditid": "a"}], "@Microsoft.Dynamics.CRM.morerecords": false}`), nil
			},
		}
		f := NewFetcher(client, nil, nil)

		result := f.FetchPage(context.Background(), domain.FilterState{}, query.PageRequest{PageSize: 2, PageNumber: 3})
		assert.False(t, result.HasMoreRecords)
		assert.Equal(t, 5, result.TotalCount)
	})
}
