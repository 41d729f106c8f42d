package resolve

import (
	"context"
	"log/slog"

	"github.com/tidwall/gjson"

	"github.com/chrispiasecki/pptb-auditing-manager/internal/domain"
)

// PrincipalKey identifies a user or team in the principal-name cache.
type PrincipalKey struct {
	Type string // "user" or "team"
	ID   string
}

// principalTables maps the principal type discriminant to the remote table
// and its name field.
var principalTables = map[string]struct {
	table string
	field string
}{
	"user": {table: "systemuser", field: "fullname"},
	"team": {table: "team", field: "name"},
}

// PrincipalCache resolves principal display names by type and id, sharing
// in-flight lookups between concurrent callers.
type PrincipalCache struct {
	loader *Loader[PrincipalKey, string]
}

// NewPrincipalCache creates the cache over the given client.
func NewPrincipalCache(client domain.DataClient, logger *slog.Logger) *PrincipalCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &PrincipalCache{
		loader: NewLoader(func(ctx context.Context, key PrincipalKey) (string, error) {
			target, ok := principalTables[key.Type]
			if !ok {
				return "", domain.ErrValidation("unknown principal type %q", key.Type)
			}
			doc, err := client.LookupByID(ctx, target.table, key.ID, []string{target.field})
			if err != nil {
				logger.Warn("principal name lookup failed",
					"type", key.Type, "id", key.ID, "error", err)
				return "", domain.ErrTransport("lookup principal name", err)
			}
			name := gjson.GetBytes(doc, target.field).String()
			if name == "" {
				return "", domain.ErrNotFound("principal %s %s has no name", key.Type, key.ID)
			}
			return name, nil
		}),
	}
}

// Get resolves the display name for one principal.
func (c *PrincipalCache) Get(ctx context.Context, principalType, id string) (string, error) {
	return c.loader.Get(ctx, PrincipalKey{Type: principalType, ID: id})
}

// Clear drops every cached name.
func (c *PrincipalCache) Clear() { c.loader.Clear() }
