package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/receipts/internal/model"
	"github.com/roach88/receipts/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Subject  string
	RunID    string
}

// HistoryRun is one listed run.
type HistoryRun struct {
	ID           string             `json:"id"`
	Seq          int64              `json:"seq"`
	Subject      string             `json:"subject"`
	Window       string             `json:"window"`
	Completeness model.Completeness `json:"completeness"`
	Events       int                `json:"events"`
	Workstreams  int                `json:"workstreams"`
	Dir          string             `json:"dir"`
	Files        []model.BundleFile `json:"files,omitempty"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs",
		Long: `List runs recorded in a history database, oldest first.

Example:
  receipts history --db history.db
  receipts history --db history.db --subject octocat
  receipts history --db history.db --run run-20250201T090000.000000000Z`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite history database (required)")
	cmd.Flags().StringVar(&opts.Subject, "subject", "", "only runs for this user")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "show one run with its artifacts")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runHistory(cmd *cobra.Command, opts *HistoryOptions) error {
	out := opts.formatter(cmd)

	st, err := store.Open(opts.Database)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeHistory, "failed to open history database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	var runs []HistoryRun
	if opts.RunID != "" {
		rec, files, err := st.GetRun(ctx, opts.RunID)
		if errors.Is(err, store.ErrNotFound) {
			return out.Fail(ExitCommandError, ErrCodeHistory, "no such run", err)
		}
		if err != nil {
			return out.Fail(ExitFailure, ErrCodeHistory, "read history", err)
		}
		run := historyRun(rec)
		run.Files = files
		runs = append(runs, run)
	} else {
		recs, err := st.ListRuns(ctx, opts.Subject)
		if err != nil {
			return out.Fail(ExitFailure, ErrCodeHistory, "read history", err)
		}
		runs = make([]HistoryRun, 0, len(recs))
		for _, rec := range recs {
			runs = append(runs, historyRun(rec))
		}
	}

	if out.Format == "json" {
		return out.Success(runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(out.Writer, "No runs recorded.")
		return nil
	}
	tw := tabwriter.NewWriter(out.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tRUN\tSUBJECT\tWINDOW\tCOVERAGE\tEVENTS\tWORKSTREAMS")
	for _, r := range runs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\t%d\n",
			r.Seq, r.ID, r.Subject, r.Window, r.Completeness, r.Events, r.Workstreams)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if opts.RunID != "" {
		fmt.Fprintln(out.Writer)
		for _, f := range runs[0].Files {
			fmt.Fprintf(out.Writer, "%s  %8d  %s\n", f.SHA256, f.Bytes, f.Path)
		}
	}
	return nil
}

func historyRun(rec store.RunRecord) HistoryRun {
	return HistoryRun{
		ID:           rec.ID,
		Seq:          rec.Seq,
		Subject:      rec.Subject,
		Window:       rec.Window.String(),
		Completeness: rec.Completeness,
		Events:       rec.Events,
		Workstreams:  rec.Workstreams,
		Dir:          rec.Dir,
	}
}
