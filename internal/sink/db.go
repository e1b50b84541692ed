package sink

import (
	"context"

	"github.com/nao1215/earnscan/internal/model"
)

// RecordStore persists records of a run. database.RunDB implements it.
type RecordStore interface {
	InsertRecord(ctx context.Context, runID string, rec *model.Record) error
}

// DBWriter writes records into the run store under one run ID.
// Closing it does not close the store.
type DBWriter struct {
	store RecordStore
	runID string
}

// NewDBWriter creates a DBWriter for runID.
func NewDBWriter(store RecordStore, runID string) *DBWriter {
	return &DBWriter{store: store, runID: runID}
}

// Name implements Writer.
func (d *DBWriter) Name() string {
	return "db:" + d.runID
}

// WriteRecord implements Writer.
func (d *DBWriter) WriteRecord(ctx context.Context, rec *model.Record) error {
	return d.store.InsertRecord(ctx, d.runID, rec)
}

// Close implements Writer.
func (d *DBWriter) Close() error {
	return nil
}
