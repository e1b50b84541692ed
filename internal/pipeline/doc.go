// Package pipeline drives a scan run: page discovery, the listing pass, the
// detail pass, ordering, and hand-off to the sink.
//
// Two layers live here. The Orchestrator does the batched fetching: input
// URLs are cut into fixed-size batches, every item of a batch is fetched in
// its own goroutine, and batch N is fully resolved before batch N+1 starts.
// True parallelism is bounded by the fetcher's gate, not by the batch size;
// the batch size bounds bookkeeping and memory.
//
// The Pipeline runs named Steps (DiscoverStep, ListingStep, DetailStep,
// SinkStep) over a *model.Run, with logging and cancellation checks between
// steps.
//
// Records reach the sink in fetch-completion order within a batch unless a
// sort order is configured, in which case the detail pass is materialized
// and sorted first.
package pipeline
