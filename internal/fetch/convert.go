package fetch

import (
	"time"

	"github.com/tidwall/gjson"

	"github.com/chrispiasecki/pptb-auditing-manager/internal/domain"
)

// formattedValueSuffix is the annotation the service attaches next to a raw
// field when a display string is available.
const formattedValueSuffix = `\@OData\.Community\.Display\.V1\.FormattedValue`

// convertEntry turns one raw row into an AuditLogEntry. Rows without an
// audit id cannot be keyed and are rejected as malformed.
func convertEntry(row gjson.Result) (domain.AuditLogEntry, error) {
	id := firstString(row, "auditid", "id")
	if id == "" {
		return domain.AuditLogEntry{}, domain.ErrMalformedRecord("audit row has no id: %s", row.Raw)
	}

	entry := domain.AuditLogEntry{
		ID:             id,
		Operation:      domain.Operation(row.Get("operation").Int()),
		Action:         domain.Action(row.Get("action").Int()),
		ObjectTypeCode: row.Get("objecttypecode").String(),
		ObjectID:       firstString(row, "_objectid_value", "objectid"),
		ObjectName:     firstString(row, "_objectid_value"+formattedValueSuffix, "objectname"),
		UserID:         firstString(row, "_userid_value", "userid"),
		UserName:       firstString(row, "_userid_value"+formattedValueSuffix, "username"),
		AttributeMask:  row.Get("attributemask").String(),
		ChangeData:     row.Get("changedata").String(),
	}
	if created := row.Get("createdon").String(); created != "" {
		entry.CreatedOn = parseTimestamp(created)
	}
	return entry, nil
}

func firstString(row gjson.Result, fields ...string) string {
	for _, f := range fields {
		if v := row.Get(f); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

// timestampLayouts covers the formats the service has been observed to emit.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
}

func parseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
