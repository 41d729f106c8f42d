package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/chrispiasecki/pptb-auditing-manager/internal/fetch"
	"github.com/chrispiasecki/pptb-auditing-manager/internal/resolve"
	"github.com/chrispiasecki/pptb-auditing-manager/internal/service/export"
)

func newExportCmd() *cobra.Command {
	var filters filterFlags
	var (
		outPath     string
		maxRecords  int
		withDetails bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every matching audit entry to CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := filters.toDomain()
			if err != nil {
				return err
			}
			client, err := newClient()
			if err != nil {
				return err
			}

			logger := newLogger()
			fetcher := fetch.NewFetcher(client, logger, nil)
			dispatcher := resolve.NewDispatcher(client,
				resolve.NewPrincipalCache(client, logger),
				resolve.NewPrivilegeCache(client, logger),
				resolve.NewAttributeCache(client, logger),
				logger)
			svc := export.New(
				fetch.NewWalker(fetcher, fetch.ExportPageSize, logger),
				resolve.NewDetailCache(client, dispatcher, logger),
				maxRecords,
				logger)

			result, err := svc.Run(cmd.Context(), export.Request{
				Filter:      filter,
				MaxRecords:  maxRecords,
				WithDetails: withDetails,
			}, func(fetched, total int) {
				fmt.Fprintf(os.Stderr, "\rfetched %d of ~%d", fetched, total)
			})
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return err
			}

			out := os.Stdout
			if outPath != "" {
				f, err := os.Create(outPath) //nolint:gosec // path is caller-controlled
				if err != nil {
					return fmt.Errorf("create %s: %w", outPath, err)
				}
				defer f.Close() //nolint:errcheck
				out = f
			}

			w := csv.NewWriter(out)
			header := []string{"id", "created_on", "operation", "action", "table", "object_id", "object_name", "user_id", "user_name"}
			if withDetails {
				header = append(header, "detail_count")
			}
			if err := w.Write(header); err != nil {
				return err
			}
			for _, e := range result.Entries {
				created := ""
				if !e.CreatedOn.IsZero() {
					created = e.CreatedOn.UTC().Format(time.RFC3339)
				}
				row := []string{
					e.ID, created, e.Operation.String(), e.Action.Label(),
					e.ObjectTypeCode, e.ObjectID, e.ObjectName, e.UserID, e.UserName,
				}
				if withDetails {
					row = append(row, strconv.Itoa(len(result.Details[e.ID])))
				}
				if err := w.Write(row); err != nil {
					return err
				}
			}
			w.Flush()
			if err := w.Error(); err != nil {
				return err
			}

			fmt.Fprintf(os.Stderr, "exported %d entries", len(result.Entries))
			if result.Capped {
				fmt.Fprintf(os.Stderr, " (capped at %d, more remain)", maxRecords)
			}
			fmt.Fprintln(os.Stderr)
			return nil
		},
	}

	filters.register(cmd)
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")
	cmd.Flags().IntVar(&maxRecords, "max", export.DefaultMaxRecords, "record cap for the sweep")
	cmd.Flags().BoolVar(&withDetails, "details", false, "resolve detail variants for every entry")
	return cmd
}
