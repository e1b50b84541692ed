package report

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/nao1215/earnscan/internal/model"
)

// ErrUnknownFormat is returned by NewWriter for an unsupported format name.
var ErrUnknownFormat = errors.New("unknown report format")

// Format names accepted by NewWriter.
const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
)

// Report is what a finished (or cancelled) run is rendered from.
type Report struct {
	Summary model.RunSummary `json:"summary"`

	// Top holds the best records by dividend yield, if any were loaded.
	Top []*model.Record `json:"top,omitempty"`
}

// RunRow is one line of run history.
type RunRow struct {
	ID               string    `json:"id"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at,omitzero"`
	Canceled         bool      `json:"canceled"`
	RecordsWritten   int       `json:"records_written"`
	TerminalFailures int64     `json:"terminal_failures"`
}

// State is "complete", "canceled" or "unfinished".
func (r RunRow) State() string {
	switch {
	case r.Canceled:
		return "canceled"
	case r.FinishedAt.IsZero():
		return "unfinished"
	default:
		return "complete"
	}
}

// Writer renders reports.
type Writer interface {
	// Write renders one run report.
	// Returns the number of bytes written and any error encountered.
	Write(report *Report) (int, error)

	// WriteRuns renders a run history listing.
	WriteRuns(rows []RunRow) (int, error)
}

// NewWriter returns the writer for format. The empty format selects text.
func NewWriter(format string, output io.Writer) (Writer, error) {
	switch format {
	case "", FormatText:
		return NewSimpleWriter(output), nil
	case FormatMarkdown:
		return NewMarkdownWriter(output), nil
	case FormatJSON:
		return NewJSONWriter(output, WithPrettyPrint()), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

const timeLayout = "2006-01-02 15:04:05 MST"

func status(s model.RunSummary) string {
	switch {
	case s.Canceled:
		return "Canceled (partial results)"
	case s.TerminalFailures > 0:
		return "Complete with failures"
	default:
		return "Complete"
	}
}

func formatValue(v *float64, suffix string) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.2f%s", *v, suffix)
}

func formatFinished(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(timeLayout)
}

// truncateString truncates s to maxLen runes with an ellipsis.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
