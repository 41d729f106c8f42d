package domain

import "time"

// DetailKind discriminates the six audit detail variants.
type DetailKind string

// Detail variant tags. Empty marks an envelope that matched no variant and
// carried no old/new value containers.
const (
	DetailKindEmpty         DetailKind = ""
	DetailKindAttribute     DetailKind = "attribute"
	DetailKindShare         DetailKind = "share"
	DetailKindRolePrivilege DetailKind = "rolePrivilege"
	DetailKindUserAccess    DetailKind = "userAccess"
	DetailKindRelationship  DetailKind = "relationship"
	DetailKindMetadata      DetailKind = "metadata"
)

// AuditDetail is a closed sum over the six detail variants. Exactly one
// shape applies per detail item; classification is driven by the envelope's
// type discriminant with a documented fallback to attribute when old/new
// value maps are present.
type AuditDetail interface {
	Kind() DetailKind
}

// AttributeChange is one changed field inside an AttributeDetail.
type AttributeChange struct {
	FieldName   string // logical field name
	DisplayName string // resolved display name, falls back to FieldName
	OldValue    string
	NewValue    string
	OldDisplay  string // pre-formatted display string when the service provided one
	NewDisplay  string
}

// AttributeDetail lists per-field old/new values for a data change.
type AttributeDetail struct {
	Rows []AttributeChange
}

// Kind implements AuditDetail.
func (AttributeDetail) Kind() DetailKind { return DetailKindAttribute }

// ShareDetail describes a share/unshare/modify-share of one record with a
// principal.
type ShareDetail struct {
	PrincipalID   string
	PrincipalName string
	PrincipalType string // "user" or "team"
	OldMask       AccessRight
	NewMask       AccessRight
	OldPrivileges string // rendered label list, "None" when the mask is zero
	NewPrivileges string
}

// Kind implements AuditDetail.
func (ShareDetail) Kind() DetailKind { return DetailKindShare }

// RolePrivilege is one privilege entry inside a role change.
type RolePrivilege struct {
	ID         string
	Name       string // resolved per the name-resolution order, raw id as last resort
	Depth      PrivilegeDepth
	DepthLabel string
}

// RolePrivilegeDetail describes a change to a security role's privileges.
// Invalid holds privileges the service rejected when the change was applied.
type RolePrivilegeDetail struct {
	Old     []RolePrivilege
	New     []RolePrivilege
	Invalid []RolePrivilege
}

// Kind implements AuditDetail.
func (RolePrivilegeDetail) Kind() DetailKind { return DetailKindRolePrivilege }

// UserAccessDetail records one user access event.
type UserAccessDetail struct {
	AccessTime time.Time
	Interval   int // minutes, 0 when absent
}

// Kind implements AuditDetail.
func (UserAccessDetail) Kind() DetailKind { return DetailKindUserAccess }

// RelatedRecord identifies one record on the far side of a relationship
// change. Name may have required a secondary lookup; it falls back to the
// raw id when the lookup fails.
type RelatedRecord struct {
	ID          string
	Name        string
	LogicalName string
}

// RelationshipDetail describes an associate/disassociate change.
type RelationshipDetail struct {
	Name    string
	Targets []RelatedRecord
}

// Kind implements AuditDetail.
func (RelationshipDetail) Kind() DetailKind { return DetailKindRelationship }

// MetadataDetail describes an audit-configuration metadata change
// (action codes 100–104).
type MetadataDetail struct {
	ActionCode Action
	// AuditEnabled is derived from a literal "true"/"false" payload string
	// for codes 102–104; nil when the payload carried neither literal.
	AuditEnabled *bool
	// Attribute identity resolved from the column number in attributeMask,
	// populated for action 103 only.
	AttributeDisplayName string
	AttributeLogicalName string
	// Payload is the opportunistically JSON-parsed changeData; nil when the
	// payload did not parse. RawPayload always carries the original string.
	Payload    any
	RawPayload string
}

// Kind implements AuditDetail.
func (MetadataDetail) Kind() DetailKind { return DetailKindMetadata }
