package pipeline

import (
	"context"
	"iter"
	"log/slog"
	"slices"

	"github.com/nao1215/earnscan/internal/model"
)

// DiscoverStep expands each base URL into the list of listing pages.
// The first page of each base URL is fetched to read its pagination links;
// that fetch fills the page cache, so the listing pass does not repeat it.
type DiscoverStep struct {
	fetcher   PageFetcher
	extractor pageLister
	enabled   bool
	logger    *slog.Logger
}

type pageLister interface {
	PageURLs(content []byte, baseURL string) []string
}

// DiscoverStepOption configures a DiscoverStep.
type DiscoverStepOption func(*DiscoverStep)

// WithDiscovery enables or disables pagination discovery. When disabled
// the base URLs are used as the only listing pages.
func WithDiscovery(enabled bool) DiscoverStepOption {
	return func(s *DiscoverStep) {
		s.enabled = enabled
	}
}

// WithDiscoverLogger sets a custom logger.
func WithDiscoverLogger(logger *slog.Logger) DiscoverStepOption {
	return func(s *DiscoverStep) {
		s.logger = logger
	}
}

// NewDiscoverStep creates a DiscoverStep with discovery enabled.
func NewDiscoverStep(fetcher PageFetcher, extractor pageLister, opts ...DiscoverStepOption) *DiscoverStep {
	s := &DiscoverStep{
		fetcher:   fetcher,
		extractor: extractor,
		enabled:   true,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *DiscoverStep) Name() string {
	return "discover"
}

// Do fills run.PageURLs. A base URL whose discovery fetch failed
// terminally goes to run.FailedPages instead, so its retry budget is spent
// only once.
func (s *DiscoverStep) Do(ctx context.Context, run *model.Run) error {
	seen := make(map[model.FetchKey]struct{})
	var pages []string
	add := func(u string) {
		key, err := model.NewFetchKey(u)
		if err != nil {
			run.AddError(err)
			return
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		pages = append(pages, u)
	}

	for _, base := range run.BaseURLs {
		if !s.enabled {
			add(base)
			continue
		}
		key, err := model.NewFetchKey(base)
		if err != nil {
			run.AddError(err)
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		res := s.fetcher.Fetch(ctx, key)
		if !res.OK() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("pagination discovery failed", "url", base, "error", res.Err())
			seen[key] = struct{}{}
			run.FailedPages = append(run.FailedPages, res)
			continue
		}
		for _, u := range s.extractor.PageURLs(res.Content(), base) {
			add(u)
		}
	}

	run.PageURLs = pages
	s.logger.Info("listing pages", "count", len(pages), "failed", len(run.FailedPages))
	return nil
}

// ListingStep runs the listing pass over run.PageURLs.
type ListingStep struct {
	orchestrator *Orchestrator
}

// NewListingStep creates a ListingStep.
func NewListingStep(o *Orchestrator) *ListingStep {
	return &ListingStep{orchestrator: o}
}

// Name returns the step name.
func (s *ListingStep) Name() string {
	return "listing"
}

// Do fills run.Records with listing-stage records. Pages in
// run.FailedPages are counted as terminal failures without a new fetch.
func (s *ListingStep) Do(ctx context.Context, run *model.Run) error {
	for _, res := range run.FailedPages {
		s.orchestrator.recordFailure(res)
	}
	records, err := s.orchestrator.RunListingPass(ctx, run.PageURLs)
	run.Records = records
	return err
}

// DetailStep runs the detail pass. With SortNone the pass is left as a lazy
// stream on run.Stream and executes while the sink consumes it; otherwise it
// is materialized and sorted into run.Records.
type DetailStep struct {
	orchestrator *Orchestrator
	order        SortOrder
}

// NewDetailStep creates a DetailStep.
func NewDetailStep(o *Orchestrator, order SortOrder) *DetailStep {
	return &DetailStep{orchestrator: o, order: order}
}

// Name returns the step name.
func (s *DetailStep) Name() string {
	return "detail"
}

// Do runs or prepares the detail pass.
func (s *DetailStep) Do(ctx context.Context, run *model.Run) error {
	seq := s.orchestrator.RunDetailPass(ctx, run.Records)
	if s.order == SortNone {
		run.Stream = seq
		return nil
	}
	records := slices.Collect(seq)
	SortRecords(records, s.order)
	run.Records = records
	run.Stream = nil
	return ctx.Err()
}

// RecordWriter consumes a record sequence. sink.Sink implements it.
type RecordWriter interface {
	Write(ctx context.Context, records iter.Seq[*model.Record]) (int, error)
}

// SinkStep writes the run's output records.
type SinkStep struct {
	writer RecordWriter
}

// NewSinkStep creates a SinkStep.
func NewSinkStep(w RecordWriter) *SinkStep {
	return &SinkStep{writer: w}
}

// Name returns the step name.
func (s *SinkStep) Name() string {
	return "sink"
}

// Do writes run.Output() and records how many records were written.
func (s *SinkStep) Do(ctx context.Context, run *model.Run) error {
	n, err := s.writer.Write(ctx, run.Output())
	run.Summary.RecordsWritten = n
	return err
}
