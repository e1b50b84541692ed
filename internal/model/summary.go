package model

import (
	"iter"
	"time"
)

// TerminalFailure is one URL that could not be fetched after all attempts.
type TerminalFailure struct {
	URL        string      `json:"url"`
	Kind       FailureKind `json:"kind"`
	StatusCode int         `json:"status_code,omitempty"`
	Detail     string      `json:"detail"`
	Attempts   int         `json:"attempts"`
}

// RunSummary describes a run once it finished or was cancelled.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Canceled   bool      `json:"canceled"`

	ListingPages int `json:"listing_pages"`
	DetailPages  int `json:"detail_pages"`

	NetworkCalls     int64 `json:"network_calls"`
	CacheHits        int64 `json:"cache_hits"`
	Successes        int64 `json:"successes"`
	RetriedSucceeded int64 `json:"retried_succeeded"`
	TerminalFailures int64 `json:"terminal_failures"`

	ParseWarnings         int               `json:"parse_warnings"`
	CorrelationMismatches int               `json:"correlation_mismatches"`
	PartialRecords        int               `json:"partial_records"`
	DuplicatesDropped     int               `json:"duplicates_dropped"`
	RecordsWritten        int               `json:"records_written"`
	Failures              []TerminalFailure `json:"failures,omitempty"`
}

// Duration returns how long the run took.
func (s *RunSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// ApplyFetchStats copies fetcher counters into the summary.
func (s *RunSummary) ApplyFetchStats(st FetchStats) {
	s.NetworkCalls = st.NetworkCalls
	s.CacheHits = st.CacheHits
	s.Successes = st.Successes
	s.RetriedSucceeded = st.RetriedSucceeded
	s.TerminalFailures = st.TerminalFailures
}

// Run carries state between pipeline steps.
type Run struct {
	// ID identifies the run in the run store.
	ID string

	// BaseURLs are the listing URLs given by the user.
	BaseURLs []string

	// PageURLs are all listing pages to fetch, base URLs included.
	PageURLs []string

	// FailedPages are listing pages that failed terminally before the
	// listing pass. They are reported by the listing pass, not fetched again.
	FailedPages []FetchResult

	// Records holds the listing pass output, and after a materializing
	// detail pass, the merged and sorted records.
	Records []*Record

	// Stream is set by a detail pass that does not materialize records.
	// It can be consumed once.
	Stream iter.Seq[*Record]

	Summary RunSummary

	// Errors collects non-fatal errors reported by steps.
	Errors []error
}

// NewRun returns a run for the given listing URLs.
func NewRun(id string, baseURLs []string) *Run {
	return &Run{
		ID:       id,
		BaseURLs: baseURLs,
		Summary: RunSummary{
			RunID:     id,
			StartedAt: time.Now(),
		},
	}
}

// AddError records a non-fatal error.
func (r *Run) AddError(err error) {
	if err != nil {
		r.Errors = append(r.Errors, err)
	}
}

// Output returns the records to write: the stream if set, otherwise the
// materialized records.
func (r *Run) Output() iter.Seq[*Record] {
	if r.Stream != nil {
		return r.Stream
	}
	return func(yield func(*Record) bool) {
		for _, rec := range r.Records {
			if !yield(rec) {
				return
			}
		}
	}
}
