package domain

import (
	_ "embed"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Operation is the coarse category of an audit record.
type Operation int

// Operation values as reported by the remote service.
const (
	OperationCreate Operation = 1
	OperationUpdate Operation = 2
	OperationDelete Operation = 3
	OperationAccess Operation = 4
)

// String returns the display label for the operation.
func (o Operation) String() string {
	switch o {
	case OperationCreate:
		return "Create"
	case OperationUpdate:
		return "Update"
	case OperationDelete:
		return "Delete"
	case OperationAccess:
		return "Access"
	default:
		return fmt.Sprintf("Operation(%d)", int(o))
	}
}

// Action is the wide audit action code (0–113). Many unrelated change kinds
// share this one numeric code-space; interpretation of attributeMask and
// changeData depends on its value.
type Action int

// Action codes referenced by the engine itself. The full label table lives
// in actions.yaml.
const (
	ActionAddRolePrivileges     Action = 57
	ActionRemoveRolePrivileges  Action = 58
	ActionReplaceRolePrivileges Action = 59
	ActionUserAccessViaWeb      Action = 64
	ActionUserAccessViaServices Action = 65

	ActionDeleteEntity           Action = 100
	ActionDeleteAttribute        Action = 101
	ActionAuditChangeAtEntity    Action = 102
	ActionAuditChangeAtAttribute Action = 103
	ActionAuditChangeAtOrg       Action = 104
)

//go:embed actions.yaml
var actionLabelsYAML []byte

var actionLabels = mustLoadActionLabels()

func mustLoadActionLabels() map[int]string {
	var doc struct {
		Actions map[int]string `yaml:"actions"`
	}
	if err := yaml.Unmarshal(actionLabelsYAML, &doc); err != nil {
		panic(fmt.Sprintf("domain: parse embedded actions.yaml: %v", err))
	}
	return doc.Actions
}

// Label returns the human-readable name for the action code, or a numeric
// placeholder for codes missing from the table.
func (a Action) Label() string {
	if label, ok := actionLabels[int(a)]; ok {
		return label
	}
	return fmt.Sprintf("Action %d", int(a))
}

// IsRolePrivilegeChange reports whether the action is one of the
// role-privilege change codes. The role filter in the query builder is only
// valid for these codes (the role id is stored in the generic object id
// field for them).
func (a Action) IsRolePrivilegeChange() bool {
	return a == ActionAddRolePrivileges || a == ActionRemoveRolePrivileges || a == ActionReplaceRolePrivileges
}

// IsMetadataChange reports whether the action is a metadata-level audit
// configuration change (codes 100–104).
func (a Action) IsMetadataChange() bool {
	return a >= ActionDeleteEntity && a <= ActionAuditChangeAtOrg
}

// AuditLogEntry is one immutable audit record as retrieved from the remote
// trail. It is created by deserializing one row of a page result and never
// mutated afterwards, except for the UI-only IsExpanded toggle. A re-query
// replaces entries wholesale.
type AuditLogEntry struct {
	ID             string    // opaque unique audit id
	CreatedOn      time.Time // server-side creation timestamp
	Operation      Operation
	Action         Action
	ObjectTypeCode string // logical name of the audited table; empty for org-level events
	ObjectID       string // id of the affected row
	ObjectName     string // display label of the affected row
	UserID         string // actor id
	UserName       string // actor display name
	AttributeMask  string // numeric bitmap serialized as string; meaning depends on Action
	ChangeData     string // free-form; table name, tilde-delimited list, or opaque JSON

	// IsExpanded is a UI-only transient flag and takes no part in equality
	// or caching decisions.
	IsExpanded bool
}
