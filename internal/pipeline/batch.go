package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/earnscan/internal/extract"
	"github.com/nao1215/earnscan/internal/model"
)

const defaultBatchSize = 50

// PageFetcher retrieves one page. fetcher.Fetcher implements it.
type PageFetcher interface {
	Fetch(ctx context.Context, key model.FetchKey) model.FetchResult
}

// Partition cuts items into consecutive batches of at most size elements.
// A non-positive size yields a single batch.
func Partition[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	if size <= 0 || size >= len(items) {
		return [][]T{items}
	}
	batches := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		batches = append(batches, items[start:end:end])
	}
	return batches
}

// Tally holds the orchestrator's counters.
type Tally struct {
	ListingPages          int
	DetailPages           int
	ParseWarnings         int
	CorrelationMismatches int
	PartialRecords        int
	DuplicatesDropped     int
}

// Orchestrator runs the listing and detail passes in sequential batches.
type Orchestrator struct {
	fetcher   PageFetcher
	extractor *extract.Extractor
	batchSize int
	logger    *slog.Logger

	mu       sync.Mutex
	tally    Tally
	errs     []error
	failures []model.TerminalFailure
}

// BatchOption configures an Orchestrator.
type BatchOption func(*Orchestrator)

// WithBatchSize sets the number of URLs scheduled per batch.
func WithBatchSize(n int) BatchOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(fetcher PageFetcher, extractor *extract.Extractor, opts ...BatchOption) *Orchestrator {
	o := &Orchestrator{
		fetcher:   fetcher,
		extractor: extractor,
		batchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// RunListingPass fetches every listing page and returns the records found,
// in fetch-completion order. A code seen earlier in the pass is dropped as
// a duplicate. Failed pages are recorded and do not stop the pass. The
// error is non-nil only when ctx was cancelled; records gathered so far are
// still returned.
func (o *Orchestrator) RunListingPass(ctx context.Context, urls []string) ([]*model.Record, error) {
	startTime := time.Now()
	batches := Partition(urls, o.batchSize)
	o.logger.Info("starting listing pass", "pages", len(urls), "batches", len(batches))

	seen := make(map[string]struct{})
	var (
		records []*model.Record
		mu      sync.Mutex
	)

	for n, batch := range batches {
		if err := ctx.Err(); err != nil {
			return records, err
		}

		// A plain Group: one failed page must not cancel its siblings.
		var g errgroup.Group
		for _, rawURL := range batch {
			g.Go(func() error {
				found := o.listingPage(ctx, rawURL)

				mu.Lock()
				defer mu.Unlock()
				for _, rec := range found {
					if _, dup := seen[rec.Code()]; dup {
						o.count(func(t *Tally) { t.DuplicatesDropped++ })
						continue
					}
					seen[rec.Code()] = struct{}{}
					records = append(records, rec)
				}
				return nil
			})
		}
		_ = g.Wait() //nolint:errcheck // goroutines record failures instead of returning them

		o.logger.Debug("listing batch done", "batch", n+1, "of", len(batches), "records", len(records))
	}

	o.logger.Info("listing pass complete",
		"records", len(records),
		"elapsed", time.Since(startTime),
	)
	return records, ctx.Err()
}

func (o *Orchestrator) listingPage(ctx context.Context, rawURL string) []*model.Record {
	key, err := model.NewFetchKey(rawURL)
	if err != nil {
		o.addError(fmt.Errorf("listing page: %w", err))
		return nil
	}
	res := o.fetcher.Fetch(ctx, key)
	if !res.OK() {
		o.recordFailure(res)
		return nil
	}
	o.count(func(t *Tally) { t.ListingPages++ })

	var found []*model.Record
	warnings := 0
	for rec, err := range o.extractor.ListingRecords(res.Content(), rawURL) {
		if err != nil {
			warnings++
			o.addError(fmt.Errorf("listing page %s: %w", rawURL, err))
			continue
		}
		warnings += len(rec.Warnings)
		found = append(found, rec)
	}
	if warnings > 0 {
		o.count(func(t *Tally) { t.ParseWarnings += warnings })
	}
	o.logger.Debug("listing page extracted", "url", rawURL, "records", len(found), "warnings", warnings)
	return found
}

// detailOutcome is what one detail goroutine hands back to the merge step.
type detailOutcome struct {
	rec      *model.Record
	fields   model.DetailFields
	reason   string
	canceled bool
}

// RunDetailPass returns a sequence that fetches detail pages batch by batch
// as it is consumed and yields each record merged with its detail fields.
// Records whose detail page is missing, failed, or belongs to another code
// are yielded as partial. Records whose fetch was cancelled are not yielded,
// and no further batch starts once ctx is done.
//
// The sequence may be consumed once.
func (o *Orchestrator) RunDetailPass(ctx context.Context, records []*model.Record) iter.Seq[*model.Record] {
	return func(yield func(*model.Record) bool) {
		batches := Partition(records, o.batchSize)
		o.logger.Info("starting detail pass", "records", len(records), "batches", len(batches))

		for _, batch := range batches {
			if ctx.Err() != nil {
				return
			}

			var (
				g         errgroup.Group
				mu        sync.Mutex
				completed = make([]detailOutcome, 0, len(batch))
			)
			for _, rec := range batch {
				g.Go(func() error {
					out := o.detailPage(ctx, rec)
					mu.Lock()
					completed = append(completed, out)
					mu.Unlock()
					return nil
				})
			}
			_ = g.Wait() //nolint:errcheck // goroutines record failures instead of returning them

			for _, out := range completed {
				if out.canceled {
					continue
				}
				o.merge(out)
				if !yield(out.rec) {
					return
				}
			}
		}
	}
}

func (o *Orchestrator) detailPage(ctx context.Context, rec *model.Record) detailOutcome {
	out := detailOutcome{rec: rec}
	if rec.DetailURL == "" {
		out.reason = "no detail url"
		return out
	}
	key, err := model.NewFetchKey(rec.DetailURL)
	if err != nil {
		out.reason = "invalid detail url"
		o.addError(fmt.Errorf("record %s: %w", rec.Code(), err))
		return out
	}

	res := o.fetcher.Fetch(ctx, key)
	if !res.OK() {
		if res.Kind() == model.FailureCanceled {
			out.canceled = true
			return out
		}
		o.recordFailure(res)
		out.reason = "detail fetch failed: " + string(res.Kind())
		return out
	}
	o.count(func(t *Tally) { t.DetailPages++ })

	fields, err := o.extractor.DetailFields(res.Content())
	if err != nil {
		o.addError(fmt.Errorf("detail page %s: %w", rec.DetailURL, err))
		out.reason = "detail page unreadable"
		return out
	}
	out.fields = fields
	return out
}

// merge applies one outcome to its record. A detail page reporting another
// code is never merged.
func (o *Orchestrator) merge(out detailOutcome) {
	rec := out.rec
	if out.reason != "" {
		rec.MarkPartial(out.reason)
		o.count(func(t *Tally) { t.PartialRecords++ })
		return
	}

	err := rec.MergeDetail(out.fields)
	switch {
	case err == nil:
		if n := len(out.fields.Warnings); n > 0 {
			o.count(func(t *Tally) { t.ParseWarnings += n })
		}
	case errors.Is(err, model.ErrCodeMismatch):
		o.logger.Warn("detail page belongs to another code",
			"code", rec.Code(),
			"page_code", out.fields.Code,
			"url", rec.DetailURL,
		)
		o.addError(err)
		rec.MarkPartial("correlation mismatch: detail page reports " + out.fields.Code)
		o.count(func(t *Tally) {
			t.CorrelationMismatches++
			t.PartialRecords++
		})
	default:
		o.addError(err)
		rec.MarkPartial(err.Error())
		o.count(func(t *Tally) { t.PartialRecords++ })
	}
}

func (o *Orchestrator) recordFailure(res model.FetchResult) {
	if res.Kind() == model.FailureCanceled {
		return
	}
	f := res.Failure()
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures = append(o.failures, model.TerminalFailure{
		URL:        res.URL(),
		Kind:       f.Kind,
		StatusCode: f.StatusCode,
		Detail:     f.Detail,
		Attempts:   res.Attempts(),
	})
	o.errs = append(o.errs, res.Err())
}

func (o *Orchestrator) addError(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errs = append(o.errs, err)
}

func (o *Orchestrator) count(fn func(*Tally)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn(&o.tally)
}

// Tally returns a snapshot of the counters.
func (o *Orchestrator) Tally() Tally {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.tally
}

// Errors returns the non-fatal errors gathered so far.
func (o *Orchestrator) Errors() []error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]error(nil), o.errs...)
}

// Failures returns the terminal fetch failures gathered so far.
func (o *Orchestrator) Failures() []model.TerminalFailure {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]model.TerminalFailure(nil), o.failures...)
}

// Summarize copies the orchestrator and fetcher counters into run.Summary
// and stamps the finish time.
func (o *Orchestrator) Summarize(run *model.Run, stats model.FetchStats) {
	t := o.Tally()
	s := &run.Summary
	s.ApplyFetchStats(stats)
	s.ListingPages = t.ListingPages
	s.DetailPages = t.DetailPages
	s.ParseWarnings = t.ParseWarnings
	s.CorrelationMismatches = t.CorrelationMismatches
	s.PartialRecords = t.PartialRecords
	s.DuplicatesDropped = t.DuplicatesDropped
	s.Failures = o.Failures()
	s.FinishedAt = time.Now()
	run.Errors = append(run.Errors, o.Errors()...)
}
