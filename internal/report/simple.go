package report

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// maxFailuresShown caps the failure list unless the writer is verbose.
const maxFailuresShown = 10

// SimpleWriter outputs human-readable text reports for the terminal.
type SimpleWriter struct {
	baseWriter

	// verbose lists every failed URL instead of the first few.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the run report in human-readable format.
func (w *SimpleWriter) Write(report *Report) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeCounters(&sb, report)
	w.writeFailures(&sb, report)
	w.writeTop(&sb, report)
	w.writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *Report) {
	s := report.Summary
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                       EARNSCAN RUN SUMMARY\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Run ID:   %s\n", s.RunID)
	fmt.Fprintf(sb, "Started:  %s\n", s.StartedAt.Format(timeLayout))
	fmt.Fprintf(sb, "Duration: %s\n", s.Duration().Round(time.Millisecond))
	fmt.Fprintf(sb, "Status:   %s\n", status(s))
	sb.WriteString("\n")
}

func section(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}

func (w *SimpleWriter) writeCounters(sb *strings.Builder, report *Report) {
	s := report.Summary
	section(sb, "FETCHES")
	fmt.Fprintf(sb, "  Listing pages:          %d\n", s.ListingPages)
	fmt.Fprintf(sb, "  Detail pages:           %d\n", s.DetailPages)
	fmt.Fprintf(sb, "  Network calls:          %d\n", s.NetworkCalls)
	fmt.Fprintf(sb, "  Cache hits:             %d\n", s.CacheHits)
	fmt.Fprintf(sb, "  Successes:              %d\n", s.Successes)
	fmt.Fprintf(sb, "  Retried then succeeded: %d\n", s.RetriedSucceeded)
	fmt.Fprintf(sb, "  Terminal failures:      %d\n", s.TerminalFailures)
	sb.WriteString("\n")

	section(sb, "RECORDS")
	fmt.Fprintf(sb, "  Written:                %d\n", s.RecordsWritten)
	fmt.Fprintf(sb, "  Partial:                %d\n", s.PartialRecords)
	fmt.Fprintf(sb, "  Duplicates dropped:     %d\n", s.DuplicatesDropped)
	fmt.Fprintf(sb, "  Parse warnings:         %d\n", s.ParseWarnings)
	fmt.Fprintf(sb, "  Correlation mismatches: %d\n", s.CorrelationMismatches)
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeFailures(sb *strings.Builder, report *Report) {
	failures := report.Summary.Failures
	if len(failures) == 0 {
		return
	}

	section(sb, "FAILED URLS")
	shown := failures
	if !w.verbose && len(shown) > maxFailuresShown {
		shown = shown[:maxFailuresShown]
	}
	for _, f := range shown {
		kind := string(f.Kind)
		if f.StatusCode != 0 {
			kind = fmt.Sprintf("%s %d", kind, f.StatusCode)
		}
		fmt.Fprintf(sb, "  [%s] %s (attempts: %d)\n", kind, f.URL, f.Attempts)
		if w.verbose && f.Detail != "" {
			fmt.Fprintf(sb, "    %s\n", f.Detail)
		}
	}
	if rest := len(failures) - len(shown); rest > 0 {
		fmt.Fprintf(sb, "  ... and %d more (use -v to list all)\n", rest)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeTop(sb *strings.Builder, report *Report) {
	if len(report.Top) == 0 {
		return
	}

	section(sb, fmt.Sprintf("TOP %d BY DIVIDEND YIELD", len(report.Top)))
	fmt.Fprintf(sb, "  %-24s %-6s %8s %8s %8s %8s\n", "Company", "Code", "Yield", "PER", "PBR", "Progress")
	for _, r := range report.Top {
		fmt.Fprintf(sb, "  %-24s %-6s %8s %8s %8s %8s\n",
			truncateString(r.Name, 24),
			r.Code(),
			formatValue(r.DividendYield, "%"),
			formatValue(r.PER, ""),
			formatValue(r.PBR, ""),
			formatValue(r.ProgressRate, "%"),
		)
	}
	sb.WriteString("\n")
}

// WriteRuns outputs a run history listing.
func (w *SimpleWriter) WriteRuns(rows []RunRow) (int, error) {
	var sb strings.Builder
	if len(rows) == 0 {
		sb.WriteString("No runs recorded yet.\n")
		return w.output.Write([]byte(sb.String()))
	}

	fmt.Fprintf(&sb, "%-36s  %-23s  %-23s  %7s  %8s  %s\n",
		"RUN ID", "STARTED", "FINISHED", "RECORDS", "FAILURES", "STATUS")
	for _, r := range rows {
		fmt.Fprintf(&sb, "%-36s  %-23s  %-23s  %7d  %8d  %s\n",
			r.ID,
			r.StartedAt.Format(timeLayout),
			formatFinished(r.FinishedAt),
			r.RecordsWritten,
			r.TerminalFailures,
			r.State(),
		)
	}
	return w.output.Write([]byte(sb.String()))
}

func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by earnscan\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}
