package resolve

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/chrispiasecki/pptb-auditing-manager/internal/domain"
)

// Dispatcher classifies raw detail envelopes and parses them into typed
// variants, consulting the name-resolution caches as needed.
type Dispatcher struct {
	client     domain.DataClient
	logger     *slog.Logger
	principals *PrincipalCache
	privileges *PrivilegeCache
	attributes *AttributeCache
	now        func() time.Time
}

// NewDispatcher wires a Dispatcher over the client and caches.
func NewDispatcher(client domain.DataClient, principals *PrincipalCache, privileges *PrivilegeCache, attributes *AttributeCache, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		client:     client,
		logger:     logger,
		principals: principals,
		privileges: privileges,
		attributes: attributes,
		now:        time.Now,
	}
}

// typeFields are the discriminant locations checked on an envelope.
var typeFields = []string{`\@odata\.type`, `\@type`, "TypeName"}

// classify matches the discriminant by substring against the known variant
// type names, first match wins. Attribute is the documented catch-all for
// envelopes that carry old/new value containers but no matching
// discriminant; anything else is empty.
func classify(raw gjson.Result) domain.DetailKind {
	var discriminant string
	for _, field := range typeFields {
		if v := raw.Get(field); v.Exists() && v.String() != "" {
			discriminant = strings.ToLower(v.String())
			break
		}
	}

	switch {
	case strings.Contains(discriminant, "share"):
		return domain.DetailKindShare
	case strings.Contains(discriminant, "roleprivilege"):
		return domain.DetailKindRolePrivilege
	case strings.Contains(discriminant, "useraccess"):
		return domain.DetailKindUserAccess
	case strings.Contains(discriminant, "relationship"):
		return domain.DetailKindRelationship
	}

	if raw.Get("OldValue").Exists() || raw.Get("NewValue").Exists() {
		return domain.DetailKindAttribute
	}
	return domain.DetailKindEmpty
}

// Resolve parses one raw detail envelope for an entry into its typed
// variants. A parse failure is logged and yields whatever was successfully
// parsed (possibly nothing); it never aborts sibling resolution.
func (d *Dispatcher) Resolve(ctx context.Context, entry domain.AuditLogEntry, raw domain.RawDocument) []domain.AuditDetail {
	// Metadata-level records are recognized by action code, not by the
	// envelope discriminant: codes 100–104 may arrive with no envelope at
	// all.
	if entry.Action.IsMetadataChange() {
		return []domain.AuditDetail{d.parseMetadata(ctx, entry)}
	}

	root := gjson.ParseBytes(raw)
	switch classify(root) {
	case domain.DetailKindShare:
		return []domain.AuditDetail{d.parseShare(ctx, root)}
	case domain.DetailKindRolePrivilege:
		return []domain.AuditDetail{d.parseRolePrivilege(ctx, root)}
	case domain.DetailKindUserAccess:
		return []domain.AuditDetail{d.parseUserAccess(root)}
	case domain.DetailKindRelationship:
		return []domain.AuditDetail{d.parseRelationship(ctx, root)}
	case domain.DetailKindAttribute:
		return []domain.AuditDetail{d.parseAttribute(ctx, entry, root)}
	default:
		return nil
	}
}

// --- attribute ---

// formattedValueSuffix mirrors the annotation the service attaches next to
// a raw field when a pre-formatted display string exists.
const formattedValueSuffix = "@OData.Community.Display.V1.FormattedValue"

func (d *Dispatcher) parseAttribute(ctx context.Context, entry domain.AuditLogEntry, raw gjson.Result) domain.AuditDetail {
	oldValues := mergeContainer(raw.Get("OldValue"))
	newValues := mergeContainer(raw.Get("NewValue"))

	displayNames, err := d.attributes.DisplayNames(ctx, entry.ObjectTypeCode)
	if err != nil {
		d.logger.Warn("attribute display names unavailable, using raw field names",
			"table", entry.ObjectTypeCode, "error", err)
	}

	keys := make(map[string]struct{}, len(oldValues)+len(newValues))
	for k := range oldValues {
		keys[k] = struct{}{}
	}
	for k := range newValues {
		keys[k] = struct{}{}
	}

	sorted := make([]string, 0, len(keys))
	for k := range keys {
		// Keys starting with @ or _ are envelope metadata; keys holding a
		// formatted-value annotation are side channels of another key.
		if strings.HasPrefix(k, "@") || strings.HasPrefix(k, "_") || strings.ContainsRune(k, '@') {
			continue
		}
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	var rows []domain.AttributeChange
	for _, key := range sorted {
		oldVal := stringifyValue(oldValues[key])
		newVal := stringifyValue(newValues[key])
		if oldVal == newVal {
			continue
		}
		row := domain.AttributeChange{
			FieldName:   key,
			DisplayName: key,
			OldValue:    oldVal,
			NewValue:    newVal,
			// The formatted side channel takes precedence for display.
			OldDisplay: displayValue(oldValues, key, oldVal),
			NewDisplay: displayValue(newValues, key, newVal),
		}
		if name := displayNames[key]; name != "" {
			row.DisplayName = name
		}
		rows = append(rows, row)
	}
	return domain.AttributeDetail{Rows: rows}
}

// mergeContainer flattens a value container into key → value, supporting
// both the flat object shape and the Attributes: [{key,value}] array shape.
func mergeContainer(container gjson.Result) map[string]gjson.Result {
	values := make(map[string]gjson.Result)
	if !container.Exists() {
		return values
	}
	container.ForEach(func(key, value gjson.Result) bool {
		if key.String() != "Attributes" {
			values[key.String()] = value
		}
		return true
	})
	container.Get("Attributes").ForEach(func(_, item gjson.Result) bool {
		if k := item.Get("key").String(); k != "" {
			values[k] = item.Get("value")
		}
		return true
	})
	return values
}

// stringifyValue renders a raw value for comparison and fallback display.
// Objects prefer their Name field, then their JSON text.
func stringifyValue(v gjson.Result) string {
	if !v.Exists() || v.Type == gjson.Null {
		return ""
	}
	if v.IsObject() {
		if name := v.Get("Name"); name.Exists() && name.String() != "" {
			return name.String()
		}
		return v.Raw
	}
	return v.String()
}

func displayValue(values map[string]gjson.Result, key, fallback string) string {
	if formatted, ok := values[key+formattedValueSuffix]; ok && formatted.String() != "" {
		return formatted.String()
	}
	return fallback
}

// --- share ---

var principalIDFields = []string{"ownerid", "systemuserid", "teamid", "Id", "id"}
var principalNameFields = []string{"fullname", "FullName", "name", "Name"}

func (d *Dispatcher) parseShare(ctx context.Context, raw gjson.Result) domain.AuditDetail {
	principal := raw.Get("Principal")

	principalType := "user"
	for _, field := range typeFields {
		if v := principal.Get(field); v.Exists() {
			if strings.Contains(strings.ToLower(v.String()), "team") {
				principalType = "team"
			}
			break
		}
	}

	id := firstField(principal, principalIDFields)
	name := firstField(principal, principalNameFields)
	if name == "" && id != "" {
		resolved, err := d.principals.Get(ctx, principalType, id)
		if err != nil {
			d.logger.Warn("principal name unresolved, using id placeholder",
				"type", principalType, "id", id, "error", err)
			name = shortID(id)
		} else {
			name = resolved
		}
	}

	oldMask := domain.AccessRight(raw.Get("OldPrivileges").Int())
	newMask := domain.AccessRight(raw.Get("NewPrivileges").Int())
	return domain.ShareDetail{
		PrincipalID:   id,
		PrincipalName: name,
		PrincipalType: principalType,
		OldMask:       oldMask,
		NewMask:       newMask,
		OldPrivileges: oldMask.Labels(),
		NewPrivileges: newMask.Labels(),
	}
}

// --- role privilege ---

func (d *Dispatcher) parseRolePrivilege(ctx context.Context, raw gjson.Result) domain.AuditDetail {
	detail := domain.RolePrivilegeDetail{
		Old: d.parsePrivilegeList(ctx, raw.Get("OldRolePrivileges")),
		New: d.parsePrivilegeList(ctx, raw.Get("NewRolePrivileges")),
	}
	raw.Get("InvalidNewPrivileges").ForEach(func(_, item gjson.Result) bool {
		id := item.String()
		if id == "" {
			id = item.Get("PrivilegeId").String()
		}
		if id == "" {
			return true
		}
		detail.Invalid = append(detail.Invalid, domain.RolePrivilege{
			ID: id,
			// Rejected entries carry no embedded name; resolution starts
			// at the cache.
			Name: d.resolvePrivilegeName(ctx, id, ""),
		})
		return true
	})
	return detail
}

func (d *Dispatcher) parsePrivilegeList(ctx context.Context, list gjson.Result) []domain.RolePrivilege {
	var out []domain.RolePrivilege
	list.ForEach(func(_, item gjson.Result) bool {
		id := firstField(item, []string{"PrivilegeId", "privilegeid", "Id"})
		if id == "" {
			return true
		}
		depth := domain.PrivilegeDepth(item.Get("Depth").Int())
		out = append(out, domain.RolePrivilege{
			ID:         id,
			Name:       d.resolvePrivilegeName(ctx, id, firstField(item, []string{"Name", "name"})),
			Depth:      depth,
			DepthLabel: depth.Label(),
		})
		return true
	})
	return out
}

// resolvePrivilegeName applies the documented resolution order: the name
// embedded in the entry, the cached friendly display name, the cached raw
// name, and finally the raw id.
func (d *Dispatcher) resolvePrivilegeName(ctx context.Context, id, embedded string) string {
	if embedded != "" {
		return embedded
	}
	p, ok, err := d.privileges.Resolve(ctx, id)
	if err != nil {
		d.logger.Warn("privilege cache unavailable", "id", id, "error", err)
		return id
	}
	if !ok {
		return id
	}
	if p.DisplayName != "" {
		return p.DisplayName
	}
	if p.Name != "" {
		return p.Name
	}
	return id
}

// --- user access ---

func (d *Dispatcher) parseUserAccess(raw gjson.Result) domain.AuditDetail {
	detail := domain.UserAccessDetail{
		AccessTime: d.now(),
		Interval:   int(raw.Get("Interval").Int()),
	}
	if v := raw.Get("AccessTime"); v.Exists() {
		if t := parseTime(v.String()); !t.IsZero() {
			detail.AccessTime = t
		}
	}
	return detail
}

// --- relationship ---

func (d *Dispatcher) parseRelationship(ctx context.Context, raw gjson.Result) domain.AuditDetail {
	detail := domain.RelationshipDetail{
		Name: firstField(raw, []string{"RelationshipName", "relationshipname"}),
	}
	// Lookups run sequentially: result sets are small and simplicity wins
	// over latency here.
	raw.Get("TargetRecords").ForEach(func(_, item gjson.Result) bool {
		record := domain.RelatedRecord{
			ID:          firstField(item, []string{"Id", "id"}),
			Name:        firstField(item, []string{"Name", "name"}),
			LogicalName: firstField(item, []string{"LogicalName", "logicalname"}),
		}
		if record.Name == "" && record.ID != "" && record.LogicalName != "" {
			record.Name = d.lookupRecordName(ctx, record.LogicalName, record.ID)
		}
		detail.Targets = append(detail.Targets, record)
		return true
	})
	return detail
}

// lookupRecordName is best-effort: failures fall back to the raw id.
func (d *Dispatcher) lookupRecordName(ctx context.Context, table, id string) string {
	doc, err := d.client.LookupByID(ctx, table, id, []string{"name", "fullname"})
	if err != nil {
		d.logger.Warn("related record name lookup failed", "table", table, "id", id, "error", err)
		return id
	}
	for _, field := range []string{"name", "fullname"} {
		if v := gjson.GetBytes(doc, field); v.String() != "" {
			return v.String()
		}
	}
	return id
}

// --- metadata ---

func (d *Dispatcher) parseMetadata(ctx context.Context, entry domain.AuditLogEntry) domain.AuditDetail {
	detail := domain.MetadataDetail{
		ActionCode: entry.Action,
		RawPayload: entry.ChangeData,
	}

	// Codes 102–104 carry a literal lowercase "true"/"false" payload.
	if entry.Action >= domain.ActionAuditChangeAtEntity && entry.Action <= domain.ActionAuditChangeAtOrg {
		switch entry.ChangeData {
		case "true":
			enabled := true
			detail.AuditEnabled = &enabled
		case "false":
			enabled := false
			detail.AuditEnabled = &enabled
		}
	}

	// For action 103 the attribute mask is a column number, not a bitmask.
	if entry.Action == domain.ActionAuditChangeAtAttribute && entry.AttributeMask != "" {
		if column, err := strconv.Atoi(entry.AttributeMask); err == nil {
			byColumn, err := d.attributes.Get(ctx, entry.ObjectTypeCode)
			if err != nil {
				d.logger.Warn("attribute-by-column resolution failed",
					"table", entry.ObjectTypeCode, "column", column, "error", err)
			} else if meta, ok := byColumn[column]; ok {
				detail.AttributeLogicalName = meta.LogicalName
				detail.AttributeDisplayName = meta.DisplayName
			}
		}
	}

	// Opportunistic JSON parse for generic display; the raw string remains
	// the fallback on any parse failure.
	if entry.ChangeData != "" {
		var payload any
		if err := json.Unmarshal([]byte(entry.ChangeData), &payload); err == nil {
			detail.Payload = payload
		}
	}
	return detail
}

// --- shared helpers ---

func firstField(v gjson.Result, fields []string) string {
	for _, f := range fields {
		if r := v.Get(f); r.Exists() && r.String() != "" {
			return r.String()
		}
	}
	return ""
}

// shortID is the truncated-id placeholder used when a principal name cannot
// be resolved at all.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "…"
}

var timeLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"}

func parseTime(s string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
