package domain

import "context"

// RawDocument is an undecoded JSON response body from the remote service.
// The fetch and resolve layers decode it tolerantly; exact field names are a
// protocol detail that may vary between shapes.
type RawDocument []byte

// DataClient is the single collaborator contract the engine depends on.
// Concrete transport (authentication, base URLs, retries) is out of scope;
// tests substitute a function-field mock.
type DataClient interface {
	// RunQuery executes one paginated query written in the remote query
	// language and returns the raw envelope: rows plus cursor, count, and
	// more-records side-channel metadata, any of which may be absent.
	RunQuery(ctx context.Context, query string) (RawDocument, error)

	// InvokeFunction invokes a named remote operation, used for detail
	// retrieval and record change history.
	InvokeFunction(ctx context.Context, name string, params map[string]any) (RawDocument, error)

	// LookupByID retrieves selected fields of one record, used for name
	// resolution.
	LookupByID(ctx context.Context, table, id string, fields []string) (RawDocument, error)
}

// PageResult is the canonical, normalized result of fetching one page.
type PageResult struct {
	Entries        []AuditLogEntry
	TotalCount     int    // service-reported, or estimated when omitted
	HasMoreRecords bool   // service-reported, or inferred from row count
	Cursor         string // decoded paging cursor for the next page, empty when exhausted
}

// Privilege is one entry of the privilege name-resolution cache.
type Privilege struct {
	ID          string
	Name        string // raw internal name, e.g. prvWriteAccount
	DisplayName string // friendly label when the label table has one
	AccessRight int
}

// AttributeMeta is one entry of the attribute-by-column cache.
type AttributeMeta struct {
	LogicalName  string
	DisplayName  string
	ColumnNumber int
}
