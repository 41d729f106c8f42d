package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

func newTablesCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List tables and whether auditing is enabled for them",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}

			doc, err := client.InvokeFunction(cmd.Context(), "RetrieveAllEntities", map[string]any{
				"EntityFilters":         "Entity",
				"RetrieveAsIfPublished": false,
			})
			if err != nil {
				return err
			}

			type row struct {
				logical string
				display string
				audited bool
			}
			var rows []row
			gjson.GetBytes(doc, "EntityMetadata").ForEach(func(_, item gjson.Result) bool {
				audited := item.Get("IsAuditEnabled.Value").Bool() || item.Get("IsAuditEnabled").Bool()
				if !audited && !all {
					return true
				}
				display := item.Get("DisplayName.UserLocalizedLabel.Label").String()
				rows = append(rows, row{
					logical: item.Get("LogicalName").String(),
					display: display,
					audited: audited,
				})
				return true
			})
			sort.Slice(rows, func(i, j int) bool { return rows[i].logical < rows[j].logical })

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TABLE\tDISPLAY NAME\tAUDITED")
			for _, r := range rows {
				fmt.Fprintf(w, "%s\t%s\t%t\n", r.logical, r.display, r.audited)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include tables with auditing disabled")
	return cmd
}
