package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/nao1215/earnscan/internal/model"
)

// notAvailable is written for absent values.
const notAvailable = "N/A"

// utf8BOM makes spreadsheet applications read the file as UTF-8.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// csvHeader names the columns in order.
var csvHeader = []string{
	"会社名",
	"銘柄コード",
	"進捗率",
	"PER",
	"PBR",
	"配当利回り",
	"詳細ページURL",
	"stage",
	"partial_reason",
}

// CSVWriter appends records to a CSV file. The header is written only when
// the file is new or empty. Every row is flushed and synced before
// WriteRecord returns.
type CSVWriter struct {
	path string
	f    *os.File
	w    *csv.Writer
}

// CSVOption configures a CSVWriter.
type CSVOption func(*csvConfig)

type csvConfig struct {
	bom bool
}

// WithBOM prefixes a new file with a UTF-8 byte order mark.
func WithBOM(enabled bool) CSVOption {
	return func(c *csvConfig) {
		c.bom = enabled
	}
}

// NewCSVWriter opens path for appending, creating it and its directory if
// needed.
func NewCSVWriter(path string, opts ...CSVOption) (*CSVWriter, error) {
	var cfg csvConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	f, err := openAppend(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	cw := &CSVWriter{path: path, f: f, w: csv.NewWriter(f)}
	if info.Size() == 0 {
		if cfg.bom {
			if _, err := f.Write(utf8BOM); err != nil {
				_ = f.Close()
				return nil, fmt.Errorf("write BOM: %w", err)
			}
		}
		if err := cw.writeRow(csvHeader); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("write header: %w", err)
		}
	}
	return cw, nil
}

// Name implements Writer.
func (c *CSVWriter) Name() string {
	return "csv:" + c.path
}

// WriteRecord implements Writer.
func (c *CSVWriter) WriteRecord(_ context.Context, rec *model.Record) error {
	return c.writeRow(csvRow(rec))
}

func (c *CSVWriter) writeRow(row []string) error {
	if err := c.w.Write(row); err != nil {
		return err
	}
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return err
	}
	return c.f.Sync()
}

// Close implements Writer.
func (c *CSVWriter) Close() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		_ = c.f.Close()
		return err
	}
	return c.f.Close()
}

func csvRow(rec *model.Record) []string {
	return []string{
		rec.Name,
		rec.Code(),
		formatPercent(rec.ProgressRate, 1),
		formatNumber(rec.PER),
		formatNumber(rec.PBR),
		formatPercent(rec.DividendYield, 2),
		rec.DetailURL,
		string(rec.Stage),
		rec.PartialReason,
	}
}

func formatNumber(v *float64) string {
	if v == nil {
		return notAvailable
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatPercent(v *float64, prec int) string {
	if v == nil {
		return notAvailable
	}
	return strconv.FormatFloat(*v, 'f', prec, 64) + "%"
}

func openAppend(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600) //nolint:gosec // path comes from the user's configuration
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}
