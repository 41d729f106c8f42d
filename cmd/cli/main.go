// Command auditctl is the terminal companion to the audit engine: it runs
// ad-hoc trail queries and bulk exports against a remote environment.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/chrispiasecki/pptb-auditing-manager/internal/dataverse"
	"github.com/chrispiasecki/pptb-auditing-manager/internal/domain"
)

var (
	flagURL      string
	flagToken    string
	flagLogLevel string
)

func main() {
	root := &cobra.Command{
		Use:           "auditctl",
		Short:         "Query and export a remote audit trail",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagURL, "url", os.Getenv("AUDIT_SERVICE_URL"), "audit service environment URL")
	root.PersistentFlags().StringVar(&flagToken, "token", os.Getenv("AUDIT_SERVICE_TOKEN"), "bearer token (prompted when omitted)")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "log level: debug, info, warn, error")

	root.AddCommand(newQueryCmd(), newExportCmd(), newTablesCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newClient builds the remote client from the shared flags, prompting for
// the token when the terminal is interactive and none was given.
func newClient() (*dataverse.Client, error) {
	if flagURL == "" {
		return nil, fmt.Errorf("--url or AUDIT_SERVICE_URL is required")
	}
	token := flagToken
	if token == "" && term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprint(os.Stderr, "Bearer token: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("read token: %w", err)
		}
		token = strings.TrimSpace(string(raw))
	}
	return dataverse.NewClient(flagURL, token, newLogger()), nil
}

func newLogger() *slog.Logger {
	var level slog.Level
	switch strings.ToLower(flagLogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// filterFlags holds the flags shared by query and export.
type filterFlags struct {
	tables     []string
	recordID   string
	operations []int
	actions    []int
	from       string
	to         string
	userIDs    []string
	roleIDs    []string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.tables, "table", nil, "logical table name (repeatable)")
	cmd.Flags().StringVar(&f.recordID, "record", "", "single record id (requires exactly one --table)")
	cmd.Flags().IntSliceVar(&f.operations, "operation", nil, "operation code: 1=create 2=update 3=delete 4=access")
	cmd.Flags().IntSliceVar(&f.actions, "action", nil, "action code (repeatable)")
	cmd.Flags().StringVar(&f.from, "from", "", "start date, YYYY-MM-DD")
	cmd.Flags().StringVar(&f.to, "to", "", "end date (inclusive), YYYY-MM-DD")
	cmd.Flags().StringSliceVar(&f.userIDs, "user", nil, "actor user id (repeatable)")
	cmd.Flags().StringSliceVar(&f.roleIDs, "role", nil, "security role id (repeatable)")
}

func (f *filterFlags) toDomain() (domain.FilterState, error) {
	out := domain.FilterState{
		Tables:   f.tables,
		RecordID: f.recordID,
		UserIDs:  f.userIDs,
		RoleIDs:  f.roleIDs,
	}
	for _, op := range f.operations {
		out.Operations = append(out.Operations, domain.Operation(op))
	}
	for _, a := range f.actions {
		out.Actions = append(out.Actions, domain.Action(a))
	}
	if f.from != "" {
		t, err := time.Parse("2006-01-02", f.from)
		if err != nil {
			return domain.FilterState{}, fmt.Errorf("invalid --from date %q", f.from)
		}
		out.From = t
	}
	if f.to != "" {
		t, err := time.Parse("2006-01-02", f.to)
		if err != nil {
			return domain.FilterState{}, fmt.Errorf("invalid --to date %q", f.to)
		}
		out.To = t
	}
	return out, out.Validate()
}
