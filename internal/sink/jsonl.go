package sink

import (
	"context"
	"encoding/json"
	"os"

	"github.com/nao1215/earnscan/internal/model"
)

// JSONLWriter appends one JSON object per line. Absent numeric fields are
// written as null.
type JSONLWriter struct {
	path string
	f    *os.File
	enc  *json.Encoder
}

// NewJSONLWriter opens path for appending.
func NewJSONLWriter(path string) (*JSONLWriter, error) {
	f, err := openAppend(path)
	if err != nil {
		return nil, err
	}
	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	return &JSONLWriter{path: path, f: f, enc: enc}, nil
}

// Name implements Writer.
func (j *JSONLWriter) Name() string {
	return "jsonl:" + j.path
}

// WriteRecord implements Writer.
func (j *JSONLWriter) WriteRecord(_ context.Context, rec *model.Record) error {
	if err := j.enc.Encode(rec); err != nil {
		return err
	}
	return j.f.Sync()
}

// Close implements Writer.
func (j *JSONLWriter) Close() error {
	return j.f.Close()
}
