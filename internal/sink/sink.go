// Package sink writes records to their durable outputs.
//
// A Sink consumes a record sequence exactly once and hands every record to
// each of its writers. Writers are append-only: a record handed to a writer
// is on disk before the next one is accepted, so a run that is interrupted
// leaves complete rows behind and nothing else.
package sink

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/earnscan/internal/model"
)

// ErrNoWriters is returned by New when no writer is given.
var ErrNoWriters = errors.New("sink needs at least one writer")

// Writer appends records to one output.
type Writer interface {
	// Name identifies the output in logs and errors.
	Name() string
	// WriteRecord appends one record.
	WriteRecord(ctx context.Context, rec *model.Record) error
	// Close releases the output.
	Close() error
}

// Sink fans a record sequence out to several writers.
type Sink struct {
	writers []Writer
	logger  *slog.Logger
}

// Option configures a Sink.
type Option func(*Sink)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sink) {
		s.logger = logger
	}
}

// New creates a Sink over writers.
func New(writers []Writer, opts ...Option) (*Sink, error) {
	if len(writers) == 0 {
		return nil, ErrNoWriters
	}
	s := &Sink{
		writers: writers,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Write consumes records once and appends each record with a code to every
// writer. It returns how many records were handed to the writers.
//
// Each writer runs in its own goroutine behind a one-slot channel, so a slow
// writer holds back at most one record. A writer that fails stops writing
// and drains the rest; the others carry on. Records already produced are
// written even when ctx is cancelled: a cancelled sequence simply ends.
func (s *Sink) Write(ctx context.Context, records iter.Seq[*model.Record]) (int, error) {
	// A cancelled run still flushes what it produced.
	writeCtx := context.WithoutCancel(ctx)

	chans := make([]chan *model.Record, len(s.writers))
	var g errgroup.Group
	for i, w := range s.writers {
		ch := make(chan *model.Record, 1)
		chans[i] = ch
		g.Go(func() error {
			var failed error
			for rec := range ch {
				if failed != nil {
					continue
				}
				if err := w.WriteRecord(writeCtx, rec); err != nil {
					failed = fmt.Errorf("%s: %w", w.Name(), err)
					s.logger.Error("output writer failed", "writer", w.Name(), "code", rec.Code(), "error", err)
				}
			}
			return failed
		})
	}

	written := 0
	for rec := range records {
		if rec == nil || rec.Code() == "" {
			continue
		}
		for _, ch := range chans {
			ch <- rec
		}
		written++
	}
	for _, ch := range chans {
		close(ch)
	}

	err := g.Wait()
	s.logger.Info("records written", "count", written, "writers", len(s.writers))
	return written, err
}

// Close closes every writer and returns their errors joined.
func (s *Sink) Close() error {
	var errs []error
	for _, w := range s.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", w.Name(), err))
		}
	}
	return errors.Join(errs...)
}
