package extract

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const stocklistAnchor = "#stocklist"

// MaxListingPages bounds the pages expanded from one base listing URL.
// A calendar day spans a handful of pages; a larger number comes from a
// malformed or hostile pager link.
const MaxListingPages = 100

// PageURLs returns baseURL followed by the URLs of pages 2 through the
// highest page number linked from content, at most MaxListingPages in
// total. Without pagination links only baseURL is returned.
func (e *Extractor) PageURLs(content []byte, baseURL string) []string {
	urls := []string{baseURL}

	doc, err := parseDocument(content)
	if err != nil {
		e.logger.Warn("cannot parse first listing page for pagination", "url", baseURL, "error", err)
		return urls
	}

	maxPage := 0
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if !pageLinkPattern.MatchString(href) {
			return
		}
		m := pageNumberPattern.FindStringSubmatch(href)
		if m == nil {
			return
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > maxPage {
			maxPage = n
		}
	})
	if maxPage < 2 {
		return urls
	}

	if maxPage > MaxListingPages {
		e.logger.Warn("pagination capped", "url", baseURL, "linked", maxPage, "max", MaxListingPages)
		maxPage = MaxListingPages
	}
	e.logger.Info("pagination discovered", "pages", maxPage)
	for n := 2; n <= maxPage; n++ {
		urls = append(urls, pageURL(baseURL, n))
	}
	return urls
}

// pageURL appends page=n to baseURL, keeping a trailing #stocklist anchor
// at the end.
func pageURL(baseURL string, n int) string {
	sep := "?"
	if strings.Contains(baseURL, "?") {
		sep = "&"
	}
	param := sep + "page=" + strconv.Itoa(n)
	if strings.Contains(baseURL, stocklistAnchor) {
		return strings.Replace(baseURL, stocklistAnchor, param+stocklistAnchor, 1)
	}
	return baseURL + param
}
