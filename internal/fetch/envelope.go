package fetch

import (
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/chrispiasecki/pptb-auditing-manager/internal/domain"
)

// envelope is the normalized view over the three response shapes the remote
// service produces: a bare row array, {"value":[...]}, or an object whose
// annotation fields carry the paging cookie, more-records flag, and total
// count.
type envelope struct {
	rows      []gjson.Result
	cursor    string // decoded paging cookie, "" when absent
	moreKnown bool
	more      bool
	countKnow bool
	count     int
}

// Side-channel field names, in lookup order. Exact names are a protocol
// detail; all of them are optional.
var (
	cookieFields = []string{`\@Microsoft\.Dynamics\.CRM\.fetchxmlpagingcookie`, "PagingCookie", "pagingcookie"}
	moreFields   = []string{`\@Microsoft\.Dynamics\.CRM\.morerecords`, "MoreRecords", "morerecords"}
	countFields  = []string{`\@odata\.count`, "TotalRecordCount", "totalrecordcount"}
	rowFields    = []string{"value", "AuditDetails", "entities"}
)

// parseEnvelope normalizes one raw response body.
func parseEnvelope(doc domain.RawDocument) envelope {
	root := gjson.ParseBytes(doc)

	var env envelope
	if root.IsArray() {
		env.rows = root.Array()
		return env
	}

	for _, field := range rowFields {
		if v := root.Get(field); v.IsArray() {
			env.rows = v.Array()
			break
		}
	}
	for _, field := range cookieFields {
		if v := root.Get(field); v.Exists() && v.String() != "" {
			env.cursor = extractCursor(v.String())
			break
		}
	}
	for _, field := range moreFields {
		if v := root.Get(field); v.Exists() {
			env.moreKnown = true
			env.more = v.Bool()
			break
		}
	}
	for _, field := range countFields {
		if v := root.Get(field); v.Exists() && v.Int() >= 0 {
			env.countKnow = true
			env.count = int(v.Int())
			break
		}
	}
	return env
}

// extractCursor pulls the raw cursor out of the side-channel value and
// percent-decodes it twice. The service wraps the cursor in an XML-ish
// fragment (`<cookie ... pagingcookie="..." .../>`) whose attribute value is
// double-encoded; when the attribute pattern is absent the whole value is
// double-decoded instead. Both the targeted extraction and the double
// decode are protocol quirks that must be preserved exactly.
func extractCursor(raw string) string {
	value := raw
	const marker = `pagingcookie="`
	if i := strings.Index(raw, marker); i >= 0 {
		rest := raw[i+len(marker):]
		if j := strings.IndexByte(rest, '"'); j >= 0 {
			value = rest[:j]
		}
	}
	return percentDecode(percentDecode(value))
}

// percentDecode decodes one layer of percent-encoding, returning the input
// unchanged when it is not valid percent-encoding.
func percentDecode(s string) string {
	decoded, err := url.PathUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}
