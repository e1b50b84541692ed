// Package database provides the SQLite run store for earnscan.
//
// Every scan is a row in runs, and every record it wrote is a row in
// records keyed by (run_id, code). The store lets the history command list
// past runs and show the best dividend yields of any run without re-scraping.
//
// The store uses modernc.org/sqlite, so it needs no CGO, and a single file
// under the XDG data directory.
package database
