package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
)

// MarkdownWriter outputs reports in Markdown format for sharing, for
// example as a CI job summary.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the run report in Markdown format.
func (w *MarkdownWriter) Write(report *Report) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeFetches(md, report)
	w.writeRecords(md, report)
	w.writeFailures(md, report)
	w.writeTop(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *Report) {
	s := report.Summary
	md.H1("earnscan Run Summary")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Run ID", "`" + s.RunID + "`"},
			{"Started", s.StartedAt.Format(timeLayout)},
			{"Duration", s.Duration().Round(time.Millisecond).String()},
			{"Status", status(s)},
		},
	})
	md.PlainText("")
	w.writeAlert(md, report)
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *Report) {
	s := report.Summary
	switch {
	case s.Canceled:
		md.Warningf("The run was canceled. %d record(s) were written before it stopped.", s.RecordsWritten)
	case s.CorrelationMismatches > 0:
		md.Cautionf("%d detail page(s) reported a different stock code than their listing row.", s.CorrelationMismatches)
	case s.TerminalFailures > 0:
		md.Importantf("%d URL(s) could not be fetched after all retries.", s.TerminalFailures)
	case s.ParseWarnings > 0:
		md.Note(fmt.Sprintf("%d value(s) could not be parsed. The page layout may have changed.", s.ParseWarnings))
	default:
		md.Tip("All pages were fetched and parsed.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeFetches(md *markdown.Markdown, report *Report) {
	s := report.Summary
	md.H2("Fetches")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Counter", "Value"},
		Rows: [][]string{
			{"Listing pages", strconv.Itoa(s.ListingPages)},
			{"Detail pages", strconv.Itoa(s.DetailPages)},
			{"Network calls", strconv.FormatInt(s.NetworkCalls, 10)},
			{"Cache hits", strconv.FormatInt(s.CacheHits, 10)},
			{"Successes", strconv.FormatInt(s.Successes, 10)},
			{"Retried then succeeded", strconv.FormatInt(s.RetriedSucceeded, 10)},
			{"Terminal failures", strconv.FormatInt(s.TerminalFailures, 10)},
		},
	})
	md.PlainText("")

	if s.CacheHits+s.Successes+s.TerminalFailures > 0 {
		w.writePieChart(md, report)
	}
}

// writePieChart charts how page requests were served.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, report *Report) {
	s := report.Summary
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Page Request Outcomes"),
		piechart.WithShowData(true),
	)

	firstTry := s.Successes - s.RetriedSucceeded
	if s.CacheHits > 0 {
		chart.LabelAndIntValue("Cache hit", uint64(s.CacheHits))
	}
	if firstTry > 0 {
		chart.LabelAndIntValue("First attempt", uint64(firstTry))
	}
	if s.RetriedSucceeded > 0 {
		chart.LabelAndIntValue("After retry", uint64(s.RetriedSucceeded))
	}
	if s.TerminalFailures > 0 {
		chart.LabelAndIntValue("Failed", uint64(s.TerminalFailures))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeRecords(md *markdown.Markdown, report *Report) {
	s := report.Summary
	md.H2("Records")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Counter", "Value"},
		Rows: [][]string{
			{"Written", strconv.Itoa(s.RecordsWritten)},
			{"Partial", strconv.Itoa(s.PartialRecords)},
			{"Duplicates dropped", strconv.Itoa(s.DuplicatesDropped)},
			{"Parse warnings", strconv.Itoa(s.ParseWarnings)},
			{"Correlation mismatches", strconv.Itoa(s.CorrelationMismatches)},
		},
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeFailures(md *markdown.Markdown, report *Report) {
	failures := report.Summary.Failures
	if len(failures) == 0 {
		return
	}

	md.H2("Failed URLs")
	md.PlainText("")
	rows := make([][]string, len(failures))
	for i, f := range failures {
		code := "-"
		if f.StatusCode != 0 {
			code = strconv.Itoa(f.StatusCode)
		}
		rows[i] = []string{
			truncateString(f.URL, 80),
			string(f.Kind),
			code,
			strconv.Itoa(f.Attempts),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"URL", "Kind", "Status", "Attempts"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeTop(md *markdown.Markdown, report *Report) {
	if len(report.Top) == 0 {
		return
	}

	md.H2("Top " + strconv.Itoa(len(report.Top)) + " by Dividend Yield")
	md.PlainText("")
	rows := make([][]string, len(report.Top))
	for i, r := range report.Top {
		rows[i] = []string{
			strconv.Itoa(i + 1),
			r.Name,
			r.Code(),
			formatValue(r.DividendYield, "%"),
			formatValue(r.PER, ""),
			formatValue(r.PBR, ""),
			formatValue(r.ProgressRate, "%"),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"#", "Company", "Code", "Yield", "PER", "PBR", "Progress"},
		Rows:   rows,
	})
	md.PlainText("")
}

// WriteRuns outputs a run history listing as a Markdown table.
func (w *MarkdownWriter) WriteRuns(rows []RunRow) (int, error) {
	md := markdown.NewMarkdown(w.output)
	md.H1("earnscan Run History")
	md.PlainText("")

	if len(rows) == 0 {
		md.PlainText("No runs recorded yet.")
		return len(md.String()), md.Build()
	}

	table := make([][]string, len(rows))
	for i, r := range rows {
		table[i] = []string{
			"`" + r.ID + "`",
			r.StartedAt.Format(timeLayout),
			formatFinished(r.FinishedAt),
			strconv.Itoa(r.RecordsWritten),
			strconv.FormatInt(r.TerminalFailures, 10),
			r.State(),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Run ID", "Started", "Finished", "Records", "Failures", "Status"},
		Rows:   table,
	})
	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [earnscan](https://github.com/nao1215/earnscan)*")
}
