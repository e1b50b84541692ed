package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/earnscan/internal/model"
)

// placeholders are values the site prints for "no data".
var placeholders = map[string]bool{
	"":    true,
	"-":   true,
	"--":  true,
	"---": true,
	"—":   true,
	"―":   true,
	"N/A": true,
}

// DetailFields reads PER, PBR and dividend yield from a detail page. For each
// field the first labelled value wins. Code is taken from the page's
// canonical URL, or og:url, when it carries a bcode parameter.
func (e *Extractor) DetailFields(content []byte) (model.DetailFields, error) {
	doc, err := parseDocument(content)
	if err != nil {
		return model.DetailFields{}, err
	}

	var fields model.DetailFields
	fields.Code = pageCode(doc)

	doc.Find("dl").Each(func(_ int, dl *goquery.Selection) {
		dt := dl.Find("dt").First()
		dd := dl.Find("dd").First()
		if dt.Length() == 0 || dd.Length() == 0 {
			return
		}
		p := dd.Find("p").First()
		if p.Length() == 0 {
			return
		}

		label := strings.TrimSpace(dt.Text())
		target, name := fieldFor(label, &fields)
		if target == nil {
			return
		}

		raw := strings.TrimSpace(p.Text())
		v, ok := parseNumber(raw)
		if !ok {
			if !placeholders[normalize(raw)] {
				fields.Warnings = append(fields.Warnings, model.ParseWarning{
					Field:  name,
					Raw:    raw,
					Reason: "no number in value",
				})
			}
			return
		}
		*target = model.Float(v)
	})

	return fields, nil
}

// fieldFor picks the still-empty field a label refers to. PER is checked
// before PBR, and both before the dividend yield.
func fieldFor(label string, f *model.DetailFields) (**float64, string) {
	switch {
	case strings.Contains(label, "PER"):
		if f.PER == nil {
			return &f.PER, "per"
		}
	case strings.Contains(label, "PBR"):
		if f.PBR == nil {
			return &f.PBR, "pbr"
		}
	case strings.Contains(label, "利回り"):
		if f.DividendYield == nil {
			return &f.DividendYield, "dividend_yield"
		}
	}
	return nil, ""
}

func pageCode(doc *goquery.Document) string {
	candidates := []string{
		doc.Find(`link[rel="canonical"]`).AttrOr("href", ""),
		doc.Find(`meta[property="og:url"]`).AttrOr("content", ""),
	}
	for _, c := range candidates {
		if m := stockCodePattern.FindStringSubmatch(c); m != nil {
			return m[1]
		}
	}
	return ""
}
