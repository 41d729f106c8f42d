package resolve

import (
	"context"
	"log/slog"

	"github.com/tidwall/gjson"

	"github.com/chrispiasecki/pptb-auditing-manager/internal/domain"
)

// retrieveEntityMetadata is the remote operation returning a table's
// attribute metadata, including column numbers.
const retrieveEntityMetadata = "RetrieveEntity"

// AttributeCache resolves attribute metadata per table, keyed by column
// number. Metadata-level audit records (action 103) carry a column number
// where data records carry a bitmask, which is why this cache indexes by
// column rather than by logical name.
type AttributeCache struct {
	loader *Loader[string, map[int]domain.AttributeMeta]
}

// NewAttributeCache creates the cache over the given client.
func NewAttributeCache(client domain.DataClient, logger *slog.Logger) *AttributeCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &AttributeCache{
		loader: NewLoader(func(ctx context.Context, table string) (map[int]domain.AttributeMeta, error) {
			doc, err := client.InvokeFunction(ctx, retrieveEntityMetadata, map[string]any{
				"LogicalName":   table,
				"EntityFilters": "Attributes",
			})
			if err != nil {
				logger.Warn("attribute metadata fetch failed", "table", table, "error", err)
				return nil, domain.ErrTransport("retrieve entity metadata", err)
			}
			return parseAttributeMetadata(doc), nil
		}),
	}
}

// parseAttributeMetadata tolerates both the wrapped EntityMetadata shape and
// a bare Attributes array, and both string and nested-label display names.
func parseAttributeMetadata(doc domain.RawDocument) map[int]domain.AttributeMeta {
	attrs := gjson.GetBytes(doc, "EntityMetadata.Attributes")
	if !attrs.Exists() {
		attrs = gjson.GetBytes(doc, "Attributes")
	}

	byColumn := make(map[int]domain.AttributeMeta)
	attrs.ForEach(func(_, item gjson.Result) bool {
		column := int(item.Get("ColumnNumber").Int())
		if column == 0 {
			return true
		}
		meta := domain.AttributeMeta{
			LogicalName:  item.Get("LogicalName").String(),
			ColumnNumber: column,
		}
		if label := item.Get("DisplayName.UserLocalizedLabel.Label"); label.Exists() {
			meta.DisplayName = label.String()
		} else {
			meta.DisplayName = item.Get("DisplayName").String()
		}
		byColumn[column] = meta
		return true
	})
	return byColumn
}

// Get returns the column-indexed attribute metadata for one table.
func (c *AttributeCache) Get(ctx context.Context, table string) (map[int]domain.AttributeMeta, error) {
	return c.loader.Get(ctx, table)
}

// DisplayNames returns a logical-name → display-name map for one table,
// used when resolving attribute diff rows.
func (c *AttributeCache) DisplayNames(ctx context.Context, table string) (map[string]string, error) {
	byColumn, err := c.loader.Get(ctx, table)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(byColumn))
	for _, meta := range byColumn {
		if meta.LogicalName != "" {
			names[meta.LogicalName] = meta.DisplayName
		}
	}
	return names, nil
}

// Clear drops every table's metadata.
func (c *AttributeCache) Clear() { c.loader.Clear() }
