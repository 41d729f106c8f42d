package api

import (
	"time"

	"github.com/chrispiasecki/pptb-auditing-manager/internal/domain"
)

// filterDTO is the wire form of a filter state.
type filterDTO struct {
	Tables     []string `json:"tables,omitempty"`
	RecordID   string   `json:"record_id,omitempty"`
	Operations []int    `json:"operations,omitempty"`
	Actions    []int    `json:"actions,omitempty"`
	From       string   `json:"from,omitempty"` // YYYY-MM-DD
	To         string   `json:"to,omitempty"`   // YYYY-MM-DD
	UserIDs    []string `json:"user_ids,omitempty"`
	RoleIDs    []string `json:"role_ids,omitempty"`
}

const dateLayout = "2006-01-02"

func (f filterDTO) toDomain() (domain.FilterState, error) {
	out := domain.FilterState{
		Tables:   f.Tables,
		RecordID: f.RecordID,
		UserIDs:  f.UserIDs,
		RoleIDs:  f.RoleIDs,
	}
	for _, op := range f.Operations {
		out.Operations = append(out.Operations, domain.Operation(op))
	}
	for _, a := range f.Actions {
		out.Actions = append(out.Actions, domain.Action(a))
	}
	if f.From != "" {
		t, err := time.Parse(dateLayout, f.From)
		if err != nil {
			return domain.FilterState{}, domain.ErrValidation("invalid from date %q", f.From)
		}
		out.From = t
	}
	if f.To != "" {
		t, err := time.Parse(dateLayout, f.To)
		if err != nil {
			return domain.FilterState{}, domain.ErrValidation("invalid to date %q", f.To)
		}
		out.To = t
	}
	return out, nil
}

// entryDTO is the wire form of one audit log entry.
type entryDTO struct {
	ID            string `json:"id"`
	CreatedOn     string `json:"created_on,omitempty"`
	Operation     string `json:"operation"`
	ActionCode    int    `json:"action_code"`
	Action        string `json:"action"`
	Table         string `json:"table,omitempty"`
	ObjectID      string `json:"object_id,omitempty"`
	ObjectName    string `json:"object_name,omitempty"`
	UserID        string `json:"user_id,omitempty"`
	UserName      string `json:"user_name,omitempty"`
	AttributeMask string `json:"attribute_mask,omitempty"`
}

func toEntryDTO(e domain.AuditLogEntry) entryDTO {
	dto := entryDTO{
		ID:            e.ID,
		Operation:     e.Operation.String(),
		ActionCode:    int(e.Action),
		Action:        e.Action.Label(),
		Table:         e.ObjectTypeCode,
		ObjectID:      e.ObjectID,
		ObjectName:    e.ObjectName,
		UserID:        e.UserID,
		UserName:      e.UserName,
		AttributeMask: e.AttributeMask,
	}
	if !e.CreatedOn.IsZero() {
		dto.CreatedOn = e.CreatedOn.UTC().Format(time.RFC3339)
	}
	return dto
}

func toEntryDTOs(entries []domain.AuditLogEntry) []entryDTO {
	out := make([]entryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryDTO(e))
	}
	return out
}

// pageDTO is the wire form of one page view.
type pageDTO struct {
	Entries        []entryDTO `json:"entries"`
	PageNumber     int        `json:"page_number"`
	PageSize       int        `json:"page_size"`
	TotalCount     int        `json:"total_count"`
	HasMoreRecords bool       `json:"has_more_records"`
}

// detailDTO wraps one detail variant with its discriminator.
type detailDTO struct {
	Kind string `json:"kind"`
	Data any    `json:"data"`
}

func toDetailDTOs(details []domain.AuditDetail) []detailDTO {
	out := make([]detailDTO, 0, len(details))
	for _, d := range details {
		out = append(out, detailDTO{Kind: string(d.Kind()), Data: d})
	}
	return out
}
