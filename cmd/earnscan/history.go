package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/nao1215/earnscan/internal/config"
	"github.com/nao1215/earnscan/internal/database"
	"github.com/nao1215/earnscan/internal/report"
	"github.com/spf13/cobra"
)

// latestRun selects the most recent run for --run.
const latestRun = "latest"

var errConflictingFormats = errors.New("conflicting output formats: --json and --markdown cannot be used together")

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past runs from the run store",
		Long: `History lists the runs recorded in the SQLite run store, newest first.
With --run it prints the summary of one run together with its records
that have the highest dividend yield.

Examples:
  # List the last 20 runs
  earnscan history

  # Show the most recent run and its top 20 records
  earnscan history --run latest

  # Show a run as Markdown
  earnscan history --run 0b7c2e4a-1f7d-4c55-9a5e-3c1d2f6b8a90 --markdown`,
		Args: cobra.NoArgs,
		RunE: runHistoryCmd,
	}

	cmd.Flags().String("run", "", `Run ID to show, or "latest"`)
	cmd.Flags().IntP("limit", "l", 20, "Runs to list, or records to show with --run (0 for all runs)")
	cmd.Flags().BoolP("json", "j", false, "Output JSON (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false, "Output Markdown (mutually exclusive with --json)")
	cmd.Flags().String("db-dir", "", "SQLite store directory (default: XDG data directory)")

	return cmd
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	runID, err := flags.GetString("run")
	if err != nil {
		return err
	}
	limit, err := flags.GetInt("limit")
	if err != nil {
		return err
	}
	jsonOut, err := flags.GetBool("json")
	if err != nil {
		return err
	}
	markdownOut, err := flags.GetBool("markdown")
	if err != nil {
		return err
	}
	dbDir, err := flags.GetString("db-dir")
	if err != nil {
		return err
	}

	// Validate before opening the database so that a bad invocation never
	// creates an empty store.
	if jsonOut && markdownOut {
		return errConflictingFormats
	}
	format := report.FormatText
	switch {
	case jsonOut:
		format = report.FormatJSON
	case markdownOut:
		format = report.FormatMarkdown
	}
	if dbDir == "" {
		dbDir = config.XDGDataDir()
	}

	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	w, err := report.NewWriter(format, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if runID == "" {
		return listRuns(cmd, db, w, limit)
	}
	return showRun(cmd, db, w, runID, limit)
}

func listRuns(cmd *cobra.Command, db *database.RunDB, w report.Writer, limit int) error {
	runs, err := db.ListRuns(cmd.Context(), limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	rows := make([]report.RunRow, len(runs))
	for i, r := range runs {
		rows[i] = report.RunRow{
			ID:               r.ID,
			StartedAt:        r.StartedAt,
			FinishedAt:       r.FinishedAt,
			Canceled:         r.Canceled,
			RecordsWritten:   r.RecordsWritten,
			TerminalFailures: r.TerminalFailures,
		}
	}
	_, err = w.WriteRuns(rows)
	return err
}

func showRun(cmd *cobra.Command, db *database.RunDB, w report.Writer, runID string, limit int) error {
	ctx := cmd.Context()
	if runID == latestRun {
		id, err := db.LatestRunID(ctx)
		if err != nil {
			return fmt.Errorf("failed to find latest run: %w", err)
		}
		runID = id
	}

	summary, err := db.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, database.ErrRunNotFound) {
			return fmt.Errorf("%w (use 'earnscan history' to list runs)", err)
		}
		return fmt.Errorf("failed to load run: %w", err)
	}
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	top, err := db.TopRecords(ctx, runID, limit)
	if err != nil {
		return fmt.Errorf("failed to load records: %w", err)
	}

	_, err = w.Write(&report.Report{Summary: *summary, Top: top})
	return err
}

// historyHint is printed after a scan so that users find the stored run.
func historyHint(out io.Writer, runID string) {
	fmt.Fprintf(out, "\nRun stored as %s. Use 'earnscan history --run %s' to view it again.\n", runID, runID)
}
