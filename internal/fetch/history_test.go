package fetch

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrispiasecki/pptb-auditing-manager/internal/domain"
	"github.com/chrispiasecki/pptb-auditing-manager/internal/query"
	"github.com/chrispiasecki/pptb-auditing-manager/internal/testutil"
)

func TestFetcher_FetchRecordHistory(t *testing.T) {
	page := query.PageRequest{PageSize: 10, PageNumber: 1}

	t.Run("bundles_detail_envelopes_per_entry", func(t *testing.T) {
		client := &testutil.DataClient{
			InvokeFunctionFunc: func(ctx context.Context, name string, params map[string]any) (domain.RawDocument, error) {
				require.Equal(t, retrieveRecordChangeHistory, name)
				target := params["Target"].(map[string]any)
				assert.Equal(t, "account", target["LogicalName"])
				assert.Equal(t, "rec-1", target["Id"])
				assert.NotContains(t, params, "PagingCookie")

				return domain.RawDocument(`{
					"AuditDetailCollection": {
						"AuditDetails": [
							{
								"AuditRecord": {"auditid": "a1", "operation": 2, "action": 2},
								"OldValue": {"name": "Old"},
								"NewValue": {"name": "New"}
							},
							{
								"AuditRecord": {"auditid": "a2", "operation": 1, "action": 1}
							}
						],
						"MoreRecords": false,
						"TotalRecordCount": 2
					}
				}`), nil
			},
		}
		f := NewFetcher(client, nil, nil)

		result := f.FetchRecordHistory(context.Background(), "account", "rec-1", page)

		require.Len(t, result.Page.Entries, 2)
		assert.Equal(t, "a1", result.Page.Entries[0].ID)
		assert.Equal(t, 2, result.Page.TotalCount)
		assert.False(t, result.Page.HasMoreRecords)

		require.Contains(t, result.Details, "a1")
		assert.Contains(t, string(result.Details["a1"]), `"OldValue"`)
		require.Contains(t, result.Details, "a2")
	})

	t.Run("cursor_is_forwarded_when_present", func(t *testing.T) {
		client := &testutil.DataClient{
			InvokeFunctionFunc: func(ctx context.Context, name string, params map[string]any) (domain.RawDocument, error) {
				assert.Equal(t, "cursor-2", params["PagingCookie"])
				return domain.RawDocument(`{"AuditDetails": []}`), nil
			},
		}
		f := NewFetcher(client, nil, nil)

		f.FetchRecordHistory(context.Background(), "account", "rec-1", query.PageRequest{
			PageSize: 10, PageNumber: 2, Cursor: "cursor-2",
		})
	})

	t.Run("transport_failure_degrades_to_empty_history", func(t *testing.T) {
		client := &testutil.DataClient{
			InvokeFunctionFunc: func(ctx context.Context, name string, params map[string]any) (domain.RawDocument, error) {
				return nil, fmt.Errorf("service unavailable")
			},
		}
		var reported error
		f := NewFetcher(client, nil, func(err error) { reported = err })

		result := f.FetchRecordHistory(context.Background(), "account", "rec-1", page)
		assert.Empty(t, result.Page.Entries)
		assert.Nil(t, result.Details)
		var terr *domain.TransportError
		require.ErrorAs(t, reported, &terr)
	})

	t.Run("items_without_an_audit_record_wrapper_parse_directly", func(t *testing.T) {
		client := &testutil.DataClient{
			InvokeFunctionFunc: func(ctx context.Context, name string, params map[string]any) (domain.RawDocument, error) {
				return domain.RawDocument(`{"AuditDetails": [{"auditid": "flat-1", "operation": 4}]}`), nil
			},
		}
		f := NewFetcher(client, nil, nil)

		result := f.FetchRecordHistory(context.Background(), "account", "rec-1", page)
		require.Len(t, result.Page.Entries, 1)
		assert.Equal(t, "flat-1", result.Page.Entries[0].ID)
	})
}
