package extract

import (
	"iter"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/earnscan/internal/model"
)

// ListingRecords yields one record per company row in content, in document
// order. A row whose stock code cannot be determined yields a nil record and
// a model.ParseWarning. A page that cannot be parsed yields a single error.
// The same name and code pair is yielded once per page.
//
// Rows are produced as the caller ranges; stopping early skips the rest.
func (e *Extractor) ListingRecords(content []byte, pageURL string) iter.Seq2[*model.Record, error] {
	return func(yield func(*model.Record, error) bool) {
		doc, err := parseDocument(content)
		if err != nil {
			yield(nil, err)
			return
		}
		base, _ := url.Parse(pageURL) //nolint:errcheck // a nil base leaves hrefs unresolved

		seen := make(map[string]struct{})
		rows := doc.Find("tr")
		for i := range rows.Length() {
			rec, ok, warn := e.parseRow(rows.Eq(i), base, pageURL)
			if !ok {
				continue
			}
			if rec == nil {
				if !yield(nil, warn) {
					return
				}
				continue
			}
			key := rec.Name + "_" + rec.Code()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// parseRow reads one <tr>. ok is false for rows without a company link.
func (e *Extractor) parseRow(row *goquery.Selection, base *url.URL, pageURL string) (*model.Record, bool, error) {
	link := row.Find("a[href]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		return companyLinkPattern.MatchString(href)
	}).First()
	if link.Length() == 0 {
		return nil, false, nil
	}

	href, _ := link.Attr("href")
	text := normalize(link.Text())
	name, code := splitNameCode(text)
	if m := stockCodePattern.FindStringSubmatch(href); m != nil {
		code = m[1]
	}

	rec, err := model.NewRecord(code, name)
	if err != nil {
		return nil, true, model.ParseWarning{Field: "code", Raw: text, Reason: "no stock code in row"}
	}
	rec.SourceURL = pageURL
	rec.DetailURL = resolve(base, href)
	if rec.Name == "" {
		rec.AddWarning(model.ParseWarning{Field: "name", Raw: text, Reason: "empty company name"})
	}

	e.readProgressRate(row, rec)
	return rec, true, nil
}

// readProgressRate takes the right-most cell holding an in-range rate.
// If none is in range but some cell looked like a rate, a warning is kept.
func (e *Extractor) readProgressRate(row *goquery.Selection, rec *model.Record) {
	cells := row.Find("td")
	var rejected *model.ParseWarning
	for i := cells.Length() - 1; i >= 0; i-- {
		raw := strings.TrimSpace(cells.Eq(i).Text())
		r := e.parseRatio(raw)
		switch r.Status {
		case RatioOK:
			rec.ProgressRate = model.Float(r.Value)
			return
		case RatioOutOfRange:
			if rejected == nil {
				rejected = &model.ParseWarning{
					Field:  "progress_rate",
					Raw:    raw,
					Reason: "outside " + strconv.Itoa(minProgressRate) + ".." + strconv.Itoa(maxProgressRate),
				}
			}
		case RatioMalformed:
			if rejected == nil {
				rejected = &model.ParseWarning{Field: "progress_rate", Raw: raw, Reason: "not a number"}
			}
		case RatioNone:
		}
	}
	if rejected != nil {
		rec.AddWarning(*rejected)
	}
}

// splitNameCode splits "トヨタ自動車 7203" into name and trailing code.
// Without a trailing numeric token the whole text is the name.
func splitNameCode(text string) (string, string) {
	parts := strings.Fields(text)
	if len(parts) >= 2 && isDigits(parts[len(parts)-1]) {
		return strings.Join(parts[:len(parts)-1], " "), parts[len(parts)-1]
	}
	return text, ""
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func resolve(base *url.URL, href string) string {
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	if base == nil || ref.IsAbs() {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}
