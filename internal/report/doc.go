// Package report renders run summaries and run history.
//
// Three writers share the Writer interface:
//   - SimpleWriter: plain text for the terminal
//   - MarkdownWriter: GitHub-flavored Markdown with a fetch outcome chart
//   - JSONWriter: structured output for other tools
//
// The data being rendered lives in model; this package only formats it.
package report
