// Package main provides the entry point for the earnscan CLI.
//
// earnscan scrapes an earnings announcement schedule: it walks the
// paginated listing, fetches every company's detail page, and writes the
// merged records to CSV, JSON Lines and a local SQLite run store.
//
// Usage:
//
//	earnscan scan "https://kabuyoho.jp/calender?lst=20251119#stocklist"
//	earnscan history
//
// See --help for all available options.
package main

func main() {
	Execute()
}
