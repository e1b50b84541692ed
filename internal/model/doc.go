// Package model defines the core data structures shared by earnscan packages.
//
// This package contains the following main types:
//   - FetchKey: a normalized URL used as the page cache key
//   - FetchResult: the immutable outcome of fetching one URL
//   - Record: one company as seen on the listing and detail pages
//   - RunSummary: counters describing a finished (or cancelled) run
//   - Run: the state threaded through the pipeline steps
//
// Models live in their own package so that fetcher, extract, pipeline, sink,
// database and report can share them without import cycles.
//
// Records and summaries serialize to JSON for JSON Lines output and for the
// run store.
package model
