package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrispiasecki/pptb-auditing-manager/internal/domain"
	"github.com/chrispiasecki/pptb-auditing-manager/internal/fetch"
	"github.com/chrispiasecki/pptb-auditing-manager/internal/resolve"
	"github.com/chrispiasecki/pptb-auditing-manager/internal/service/export"
	"github.com/chrispiasecki/pptb-auditing-manager/internal/service/trail"
	"github.com/chrispiasecki/pptb-auditing-manager/internal/testutil"
)

func newTestServer(t *testing.T, client *testutil.DataClient) *httptest.Server {
	t.Helper()
	trailSvc := trail.New(client, 50, nil)
	fetcher := fetch.NewFetcher(client, nil, nil)
	dispatcher := resolve.NewDispatcher(client,
		resolve.NewPrincipalCache(client, nil),
		resolve.NewPrivilegeCache(client, nil),
		resolve.NewAttributeCache(client, nil),
		nil)
	exportSvc := export.New(
		fetch.NewWalker(fetcher, 100, nil),
		resolve.NewDetailCache(client, dispatcher, nil),
		0,
		nil)

	h := NewHandler(trailSvc, exportSvc, nil)
	srv := httptest.NewServer(NewRouter(h, RouterConfig{CORSAllowedOrigins: []string{"*"}}))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHandler_Query(t *testing.T) {
	client := &testutil.DataClient{
		RunQueryFunc: func(ctx context.Context, q string) (domain.RawDocument, error) {
			assert.Contains(t, q, `value="account"`)
			return domain.RawDocument(`{
				"value": [{"auditid": "a1", "operation": 2, "action": 2, "objecttypecode": "account"}],
				"@Microsoft.Dynamics.CRM.morerecords": false,
				"@odata.count": 1
			}`), nil
		},
	}
	srv := newTestServer(t, client)

	resp := postJSON(t, srv.URL+"/v1/audits/query", `{"filter": {"tables": ["account"]}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	body := decode[map[string]any](t, resp)
	entries := body["entries"].([]any)
	require.Len(t, entries, 1)
	first := entries[0].(map[string]any)
	assert.Equal(t, "a1", first["id"])
	assert.Equal(t, "Update", first["operation"])
	assert.Equal(t, "Update", first["action"])
	assert.Equal(t, float64(1), body["total_count"])
	assert.NotContains(t, body, "degraded")
}

func TestHandler_QueryWithPageSizeFetchesOnce(t *testing.T) {
	client := &testutil.DataClient{
		RunQueryFunc: func(ctx context.Context, q string) (domain.RawDocument, error) {
			return domain.RawDocument(`{"value": [], "@Microsoft.Dynamics.CRM.morerecords": false}`), nil
		},
	}
	srv := newTestServer(t, client)

	resp := postJSON(t, srv.URL+"/v1/audits/query", `{"filter": {}, "page_size": 25}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	calls := client.RunQueryCalls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0], `count="25"`)
}

func TestHandler_QueryValidation(t *testing.T) {
	srv := newTestServer(t, &testutil.DataClient{})

	t.Run("bad_json", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/v1/audits/query", `{`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("bad_date", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/v1/audits/query", `{"filter": {"from": "not-a-date"}}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("record_without_single_table", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/v1/audits/query", `{"filter": {"record_id": "r1"}}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		body := decode[map[string]any](t, resp)
		assert.Contains(t, body["message"], "exactly one")
	})
}

func TestHandler_QueryReportsDegradedFetch(t *testing.T) {
	client := &testutil.DataClient{
		RunQueryFunc: func(ctx context.Context, q string) (domain.RawDocument, error) {
			return nil, assert.AnError
		},
	}
	srv := newTestServer(t, client)

	resp := postJSON(t, srv.URL+"/v1/audits/query", `{"filter": {}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[map[string]any](t, resp)
	assert.Empty(t, body["entries"])
	assert.Contains(t, body["degraded"], "run audit query")
}

func TestHandler_GoToPage(t *testing.T) {
	client := &testutil.DataClient{
		RunQueryFunc: func(ctx context.Context, q string) (domain.RawDocument, error) {
			return domain.RawDocument(`{
				"value": [{"auditid": "a1"}],
				"@Microsoft.Dynamics.CRM.morerecords": true,
				"@Microsoft.Dynamics.CRM.fetchxmlpagingcookie": "c2",
				"@odata.count": 100
			}`), nil
		},
	}
	srv := newTestServer(t, client)
	postJSON(t, srv.URL+"/v1/audits/query", `{"filter": {}}`).Body.Close()

	t.Run("reachable_page", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/v1/audits/page/2")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decode[map[string]any](t, resp)
		assert.Equal(t, float64(2), body["page_number"])
	})

	t.Run("unreachable_page_is_rejected", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/v1/audits/page/9")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestHandler_EntryDetails(t *testing.T) {
	client := &testutil.DataClient{
		RunQueryFunc: func(ctx context.Context, q string) (domain.RawDocument, error) {
			return domain.RawDocument(`{"value": [{"auditid": "a1", "operation": 4, "action": 64}], "@Microsoft.Dynamics.CRM.morerecords": false}`), nil
		},
		InvokeFunctionFunc: func(ctx context.Context, name string, params map[string]any) (domain.RawDocument, error) {
			return domain.RawDocument(`{"AuditDetail": {"@odata.type": "#Microsoft.Dynamics.CRM.UserAccessAuditDetail", "AccessTime": "2026-02-01T00:00:00Z", "Interval": 30}}`), nil
		},
	}
	srv := newTestServer(t, client)
	postJSON(t, srv.URL+"/v1/audits/query", `{"filter": {}}`).Body.Close()

	t.Run("resolves_details", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/v1/audits/a1/details")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		details := decode[[]map[string]any](t, resp)
		require.Len(t, details, 1)
		assert.Equal(t, "userAccess", details[0]["kind"])
	})

	t.Run("unknown_entry_is_404", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/v1/audits/ghost/details")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestHandler_RecordHistory(t *testing.T) {
	client := &testutil.DataClient{
		InvokeFunctionFunc: func(ctx context.Context, name string, params map[string]any) (domain.RawDocument, error) {
			require.Equal(t, "RetrieveRecordChangeHistory", name)
			return domain.RawDocument(`{
				"AuditDetailCollection": {
					"AuditDetails": [{"AuditRecord": {"auditid": "h1", "operation": 1, "action": 1}}],
					"MoreRecords": false,
					"TotalRecordCount": 1
				}
			}`), nil
		},
	}
	srv := newTestServer(t, client)

	resp, err := http.Get(srv.URL + "/v1/records/account/rec-1/history?page=1&page_size=25")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[map[string]any](t, resp)
	entries := body["entries"].([]any)
	require.Len(t, entries, 1)
	assert.Equal(t, float64(1), body["total_count"])
}

func TestHandler_Export(t *testing.T) {
	client := &testutil.DataClient{
		RunQueryFunc: func(ctx context.Context, q string) (domain.RawDocument, error) {
			return domain.RawDocument(`{"value": [{"auditid": "a1"}, {"auditid": "a2"}], "@Microsoft.Dynamics.CRM.morerecords": false}`), nil
		},
	}
	srv := newTestServer(t, client)

	resp := postJSON(t, srv.URL+"/v1/exports", `{"filter": {}, "max_records": 10}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[exportResponse](t, resp)
	assert.Len(t, body.Entries, 2)
	assert.False(t, body.Capped)
}

func TestHandler_Health(t *testing.T) {
	srv := newTestServer(t, &testutil.DataClient{})
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
