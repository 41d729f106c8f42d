package domain

import "time"

// FilterState describes what the operator is currently browsing. The zero
// value means "everything": all tables, all operations, all actions, all
// users, the full date range.
type FilterState struct {
	Tables     []string // logical table names; empty means all tables
	RecordID   string   // optional single record id; requires exactly one table
	Operations []Operation
	Actions    []Action
	From       time.Time // inclusive lower bound on createdOn
	To         time.Time // inclusive upper bound (whole day)
	UserIDs    []string
	RoleIDs    []string // security role ids; reuses the object id condition
}

// Validate checks the invariants the query builder relies on. A record id is
// only meaningful within one table's id-space, so selecting a record
// requires exactly one table.
func (f FilterState) Validate() error {
	if f.RecordID != "" && len(f.Tables) != 1 {
		return ErrValidation("a record filter requires exactly one selected table, got %d", len(f.Tables))
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return ErrValidation("date range end %s is before start %s", f.To.Format("2006-01-02"), f.From.Format("2006-01-02"))
	}
	return nil
}

// SingleRecord reports whether the filter targets one record in one table,
// which routes fetching through the record-scoped history query.
func (f FilterState) SingleRecord() bool {
	return f.RecordID != "" && len(f.Tables) == 1
}
