package query

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrispiasecki/pptb-auditing-manager/internal/domain"
)

func TestBuildAuditQuery(t *testing.T) {
	page := PageRequest{PageSize: 50, PageNumber: 1}

	t.Run("empty_filter_emits_no_filter_block", func(t *testing.T) {
		q, err := BuildAuditQuery(domain.FilterState{}, page)
		require.NoError(t, err)

		assert.Contains(t, q, `<entity name="audit">`)
		assert.Contains(t, q, `count="50" page="1"`)
		assert.NotContains(t, q, `<filter`)
		assert.NotContains(t, q, `paging-cookie`)
	})

	t.Run("sort_order_is_fixed", func(t *testing.T) {
		q, err := BuildAuditQuery(domain.FilterState{}, page)
		require.NoError(t, err)

		created := strings.Index(q, `<order attribute="createdon" descending="true"/>`)
		auditid := strings.Index(q, `<order attribute="auditid" descending="true"/>`)
		require.GreaterOrEqual(t, created, 0)
		require.GreaterOrEqual(t, auditid, 0)
		assert.Less(t, created, auditid)
	})

	t.Run("multi_valued_fields_become_or_groups", func(t *testing.T) {
		q, err := BuildAuditQuery(domain.FilterState{
			Tables:     []string{"account", "contact"},
			Operations: []domain.Operation{domain.OperationCreate, domain.OperationDelete},
		}, page)
		require.NoError(t, err)

		assert.Contains(t, q, `<filter type="and">`)
		assert.Contains(t, q, `<filter type="or"><condition attribute="objecttypecode" operator="eq" value="account"/><condition attribute="objecttypecode" operator="eq" value="contact"/></filter>`)
		assert.Contains(t, q, `<filter type="or"><condition attribute="operation" operator="eq" value="1"/><condition attribute="operation" operator="eq" value="3"/></filter>`)
	})

	t.Run("single_value_skips_the_or_wrapper", func(t *testing.T) {
		q, err := BuildAuditQuery(domain.FilterState{Tables: []string{"account"}}, page)
		require.NoError(t, err)

		assert.Contains(t, q, `<condition attribute="objecttypecode" operator="eq" value="account"/>`)
		assert.NotContains(t, q, `<filter type="or">`)
	})

	t.Run("end_date_is_inclusive_via_next_day", func(t *testing.T) {
		q, err := BuildAuditQuery(domain.FilterState{
			From: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			To:   time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		}, page)
		require.NoError(t, err)

		assert.Contains(t, q, `<condition attribute="createdon" operator="ge" value="2026-03-01"/>`)
		assert.Contains(t, q, `<condition attribute="createdon" operator="lt" value="2026-04-01"/>`)
	})

	t.Run("role_filter_reuses_the_object_id_attribute", func(t *testing.T) {
		q, err := BuildAuditQuery(domain.FilterState{RoleIDs: []string{"r1"}}, page)
		require.NoError(t, err)
		assert.Contains(t, q, `<condition attribute="objectid" operator="eq" value="r1"/>`)
	})

	t.Run("user_values_are_escaped", func(t *testing.T) {
		q, err := BuildAuditQuery(domain.FilterState{
			Tables:   []string{"account"},
			RecordID: `x"<&>'y`,
		}, page)
		require.NoError(t, err)

		assert.Contains(t, q, `value="x&quot;&lt;&amp;&gt;&apos;y"`)
		assert.NotContains(t, q, `value="x"<&>'y"`)
	})

	t.Run("cursor_is_embedded_escaped", func(t *testing.T) {
		q, err := BuildAuditQuery(domain.FilterState{}, PageRequest{
			PageSize:   50,
			PageNumber: 2,
			Cursor:     `<cookie page="1"/>`,
		})
		require.NoError(t, err)
		assert.Contains(t, q, `paging-cookie="&lt;cookie page=&quot;1&quot;/&gt;"`)
	})

	t.Run("record_filter_requires_one_table", func(t *testing.T) {
		_, err := BuildAuditQuery(domain.FilterState{RecordID: "abc"}, page)
		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
	})

	t.Run("rejects_non_positive_paging", func(t *testing.T) {
		_, err := BuildAuditQuery(domain.FilterState{}, PageRequest{PageSize: 0, PageNumber: 1})
		require.Error(t, err)
		_, err = BuildAuditQuery(domain.FilterState{}, PageRequest{PageSize: 50, PageNumber: 0})
		require.Error(t, err)
	})
}

func TestEscape(t *testing.T) {
	assert.Equal(t, "a&amp;b&lt;c&gt;d&quot;e&apos;f", Escape(`a&b<c>d"e'f`))
	assert.Equal(t, "plain", Escape("plain"))
}

func TestEntityName(t *testing.T) {
	q, err := BuildAuditQuery(domain.FilterState{}, PageRequest{PageSize: 10, PageNumber: 1})
	require.NoError(t, err)
	assert.Equal(t, "audit", EntityName(q))
	assert.Empty(t, EntityName("<fetch/>"))
}
