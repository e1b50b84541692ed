// Package extract turns earnings calendar pages into records.
//
// Three page shapes are understood:
//
//   - listing pages: one <tr> per company, holding an anchor to
//     /reportTop?bcode=NNNN and, somewhere in its cells, the progress rate
//   - detail pages: <dl><dt>label</dt><dd><p>value</p></dd></dl> pairs for
//     PER, PBR and dividend yield
//   - the first listing page, whose pagination links reveal the page count
//
// Parsing never fails on malformed content. A field that cannot be read is
// left absent and a model.ParseWarning is attached instead.
//
// Ratio cells repeat heavily across pages, so their parsing is memoized in
// a bounded LRU keyed on the raw cell text.
package extract
