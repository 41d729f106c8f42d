// Package query renders filter and page state into the remote service's
// FetchXML query language.
package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chrispiasecki/pptb-auditing-manager/internal/domain"
)

// PageRequest carries the paging parameters of one query.
type PageRequest struct {
	PageSize   int
	PageNumber int
	Cursor     string // opaque paging cookie from a prior fetch, empty for page 1
}

// entryAttributes is the projection every audit page query requests.
var entryAttributes = []string{
	"auditid",
	"createdon",
	"operation",
	"action",
	"objecttypecode",
	"objectid",
	"userid",
	"attributemask",
	"changedata",
}

// BuildAuditQuery renders the filter plus page request as one FetchXML
// document. Sort order is fixed at createdon desc, auditid desc: the paging
// cursor contract requires a stable total order with a unique-id tiebreaker,
// so the order is not caller-configurable.
func BuildAuditQuery(f domain.FilterState, page PageRequest) (string, error) {
	if err := f.Validate(); err != nil {
		return "", err
	}
	if page.PageSize <= 0 {
		return "", domain.ErrValidation("page size must be positive, got %d", page.PageSize)
	}
	if page.PageNumber <= 0 {
		return "", domain.ErrValidation("page number must be positive, got %d", page.PageNumber)
	}

	var b strings.Builder
	b.WriteString(`<fetch version="1.0" output-format="xml-platform" mapping="logical" returntotalrecordcount="true"`)
	fmt.Fprintf(&b, ` count="%d" page="%d"`, page.PageSize, page.PageNumber)
	if page.Cursor != "" {
		fmt.Fprintf(&b, ` paging-cookie="%s"`, Escape(page.Cursor))
	}
	b.WriteString(`><entity name="audit">`)
	for _, attr := range entryAttributes {
		fmt.Fprintf(&b, `<attribute name="%s"/>`, attr)
	}
	b.WriteString(`<order attribute="createdon" descending="true"/>`)
	b.WriteString(`<order attribute="auditid" descending="true"/>`)
	writeFilter(&b, f)
	b.WriteString(`</entity></fetch>`)
	return b.String(), nil
}

// writeFilter emits the ANDed condition block. Multi-valued fields become
// OR groups of equality conditions nested inside the AND.
func writeFilter(b *strings.Builder, f domain.FilterState) {
	var parts []string

	if len(f.Tables) > 0 {
		parts = append(parts, orGroup("objecttypecode", f.Tables))
	}
	if f.RecordID != "" {
		parts = append(parts, condition("objectid", "eq", f.RecordID))
	}
	if len(f.Operations) > 0 {
		vals := make([]string, len(f.Operations))
		for i, op := range f.Operations {
			vals[i] = strconv.Itoa(int(op))
		}
		parts = append(parts, orGroup("operation", vals))
	}
	if len(f.Actions) > 0 {
		vals := make([]string, len(f.Actions))
		for i, a := range f.Actions {
			vals[i] = strconv.Itoa(int(a))
		}
		parts = append(parts, orGroup("action", vals))
	}
	if !f.From.IsZero() {
		parts = append(parts, condition("createdon", "ge", f.From.Format("2006-01-02")))
	}
	if !f.To.IsZero() {
		// End date is inclusive: query strictly below the following day.
		parts = append(parts, condition("createdon", "lt", f.To.AddDate(0, 0, 1).Format("2006-01-02")))
	}
	if len(f.UserIDs) > 0 {
		parts = append(parts, orGroup("userid", f.UserIDs))
	}
	if len(f.RoleIDs) > 0 {
		// Role-privilege change records store the role id in the generic
		// object id field. The Role Changes view restricts action codes to
		// the role-privilege range, which is the only reason this reuse is
		// sound; do not generalize it to other filters.
		parts = append(parts, orGroup("objectid", f.RoleIDs))
	}

	if len(parts) == 0 {
		return
	}
	b.WriteString(`<filter type="and">`)
	for _, p := range parts {
		b.WriteString(p)
	}
	b.WriteString(`</filter>`)
}

func condition(attribute, operator, value string) string {
	return fmt.Sprintf(`<condition attribute="%s" operator="%s" value="%s"/>`, attribute, operator, Escape(value))
}

func orGroup(attribute string, values []string) string {
	if len(values) == 1 {
		return condition(attribute, "eq", values[0])
	}
	var b strings.Builder
	b.WriteString(`<filter type="or">`)
	for _, v := range values {
		b.WriteString(condition(attribute, "eq", v))
	}
	b.WriteString(`</filter>`)
	return b.String()
}

// queryEscaper covers the five characters with special meaning in the query
// language. User-supplied values must never reach the wire unescaped.
var queryEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// Escape sanitizes a user-supplied value for embedding in a query document.
func Escape(value string) string {
	return queryEscaper.Replace(value)
}

// EntityName extracts the primary entity name from a rendered query, used by
// the transport to choose the collection endpoint.
func EntityName(fetchXML string) string {
	const marker = `<entity name="`
	i := strings.Index(fetchXML, marker)
	if i < 0 {
		return ""
	}
	rest := fetchXML[i+len(marker):]
	j := strings.IndexByte(rest, '"')
	if j < 0 {
		return ""
	}
	return rest[:j]
}
