package resolve

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/chrispiasecki/pptb-auditing-manager/internal/domain"
)

// privilegeQuery retrieves the full privilege table in one sweep; the set is
// small and stable for the lifetime of the process.
const privilegeQuery = `<fetch version="1.0" output-format="xml-platform" mapping="logical"><entity name="privilege"><attribute name="privilegeid"/><attribute name="name"/><attribute name="accessright"/></entity></fetch>`

// retrieveRoleEditorLabels is the remote operation serving the friendly
// label table the role editor shows for privilege names.
const retrieveRoleEditorLabels = "RetrieveRoleEditorLabels"

// PrivilegeCache resolves privilege ids to names and friendly labels. The
// privilege table and the label table load in parallel on first use; the
// cache is ready once both have settled, with labels merged onto matching
// privileges (no match means no annotation, not an error).
type PrivilegeCache struct {
	loader *Loader[struct{}, map[string]domain.Privilege]
}

// NewPrivilegeCache creates the cache over the given client.
func NewPrivilegeCache(client domain.DataClient, logger *slog.Logger) *PrivilegeCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &PrivilegeCache{
		loader: NewLoader(func(ctx context.Context, _ struct{}) (map[string]domain.Privilege, error) {
			return loadPrivileges(ctx, client, logger)
		}),
	}
}

func loadPrivileges(ctx context.Context, client domain.DataClient, logger *slog.Logger) (map[string]domain.Privilege, error) {
	var (
		wg        sync.WaitGroup
		privDoc   domain.RawDocument
		privErr   error
		labelDoc  domain.RawDocument
		labelErr  error
		privByID  = make(map[string]domain.Privilege)
		labelByNm = make(map[string]string)
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		privDoc, privErr = client.RunQuery(ctx, privilegeQuery)
	}()
	go func() {
		defer wg.Done()
		labelDoc, labelErr = client.InvokeFunction(ctx, retrieveRoleEditorLabels, nil)
	}()
	wg.Wait()

	if privErr != nil {
		return nil, domain.ErrTransport("load privileges", privErr)
	}
	if labelErr != nil {
		// Labels are an annotation source only; privileges still resolve
		// by raw name without them.
		logger.Warn("role editor labels unavailable", "error", labelErr)
	} else {
		gjson.GetBytes(labelDoc, "Labels").ForEach(func(_, item gjson.Result) bool {
			name := item.Get("PrivilegeName").String()
			label := item.Get("DisplayName").String()
			if name != "" && label != "" {
				labelByNm[name] = label
			}
			return true
		})
	}

	rows := gjson.GetBytes(privDoc, "value")
	if !rows.Exists() {
		rows = gjson.ParseBytes(privDoc)
	}
	rows.ForEach(func(_, row gjson.Result) bool {
		id := row.Get("privilegeid").String()
		if id == "" {
			return true
		}
		p := domain.Privilege{
			ID:          id,
			Name:        row.Get("name").String(),
			AccessRight: int(row.Get("accessright").Int()),
		}
		p.DisplayName = labelByNm[p.Name]
		privByID[id] = p
		return true
	})

	logger.Debug("privilege cache loaded", "privileges", len(privByID), "labels", len(labelByNm))
	return privByID, nil
}

// Resolve returns the privilege for an id once the cache is ready. The
// boolean is false when the id is unknown to the service.
func (c *PrivilegeCache) Resolve(ctx context.Context, id string) (domain.Privilege, bool, error) {
	all, err := c.loader.Get(ctx, struct{}{})
	if err != nil {
		return domain.Privilege{}, false, err
	}
	p, ok := all[id]
	return p, ok, nil
}

// Clear drops the loaded tables; the next Resolve reloads them.
func (c *PrivilegeCache) Clear() { c.loader.Clear() }
