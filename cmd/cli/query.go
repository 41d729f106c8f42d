package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/chrispiasecki/pptb-auditing-manager/internal/service/trail"
)

func newQueryCmd() *cobra.Command {
	var filters filterFlags
	var pageSize int

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Fetch the first page of audit entries matching a filter",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := filters.toDomain()
			if err != nil {
				return err
			}
			client, err := newClient()
			if err != nil {
				return err
			}

			session := trail.New(client, pageSize, newLogger())
			if err := session.SetFilters(cmd.Context(), filter); err != nil {
				return err
			}
			if err := session.LastError(); err != nil {
				return fmt.Errorf("query degraded: %w", err)
			}

			entries := session.Entries()
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CREATED\tOPERATION\tACTION\tTABLE\tRECORD\tUSER")
			for _, e := range entries {
				created := ""
				if !e.CreatedOn.IsZero() {
					created = e.CreatedOn.Format("2006-01-02 15:04:05")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					created, e.Operation, e.Action.Label(), e.ObjectTypeCode, e.ObjectName, e.UserName)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			fmt.Printf("\nPage %d of ~%d entries", session.PageNumber(), session.TotalCount())
			if session.HasMoreRecords() {
				fmt.Print(" (more available)")
			}
			fmt.Println()
			return nil
		},
	}

	filters.register(cmd)
	cmd.Flags().IntVar(&pageSize, "page-size", 50, "entries per page")
	return cmd
}
