package extract

import (
	"bytes"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/text/width"

	"github.com/nao1215/earnscan/internal/cache"
)

var (
	companyLinkPattern = regexp.MustCompile(`/reportTop\?bcode=`)
	stockCodePattern   = regexp.MustCompile(`bcode=(\d+)`)
	pageLinkPattern    = regexp.MustCompile(`/calender\?.*page=\d+`)
	pageNumberPattern  = regexp.MustCompile(`page=(\d+)`)
	ratioPattern       = regexp.MustCompile(`^\d+\.\d+$`)
	percentPattern     = regexp.MustCompile(`^\d+\.\d+%$`)
	numberPattern      = regexp.MustCompile(`(-?)\s*(\d+(?:\.\d+)?)`)
	digitPattern       = regexp.MustCompile(`\d`)
)

// minusSigns are the ways a negative value is written. Full-width '－' is
// folded to '-' by normalize before this replacer runs.
var minusSigns = strings.NewReplacer("−", "-", "▲", "-", "△", "-")

const (
	minProgressRate = 0
	maxProgressRate = 200
)

// RatioStatus is the outcome of parsing one cell as a progress rate.
type RatioStatus uint8

const (
	// RatioNone means the cell does not look like a rate at all.
	RatioNone RatioStatus = iota
	// RatioOK means Value holds a rate within range.
	RatioOK
	// RatioOutOfRange means the cell looked like a rate but fell outside 0..200.
	RatioOutOfRange
	// RatioMalformed means the cell ended in '%' but was not a number.
	RatioMalformed
)

// Ratio is a memoized cell parse.
type Ratio struct {
	Value  float64
	Status RatioStatus
}

// Memo caches cell text → parsed ratio.
type Memo = cache.LRU[string, Ratio]

// NewMemo returns a memo cache holding at most size entries.
func NewMemo(size int) (*Memo, error) {
	return cache.New[string, Ratio](size)
}

// Extractor parses listing and detail pages. It is safe for concurrent use.
type Extractor struct {
	memo   *Memo
	logger *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		e.logger = logger
	}
}

// New returns an Extractor using memo for ratio parsing. A nil memo disables
// memoization.
func New(memo *Memo, opts ...Option) *Extractor {
	e := &Extractor{
		memo:   memo,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MemoStats returns the memo cache counters.
func (e *Extractor) MemoStats() cache.Stats {
	if e.memo == nil {
		return cache.Stats{}
	}
	return e.memo.Stats()
}

// parseRatio reads a progress-rate cell, consulting the memo first.
func (e *Extractor) parseRatio(raw string) Ratio {
	if e.memo != nil {
		if r, ok := e.memo.Get(raw); ok {
			return r
		}
	}
	r := parseRatioText(raw)
	if e.memo != nil {
		e.memo.Put(raw, r)
	}
	return r
}

func parseRatioText(raw string) Ratio {
	text := normalize(raw)
	var numeric string
	switch {
	case ratioPattern.MatchString(text):
		numeric = text
	case percentPattern.MatchString(text):
		numeric = strings.TrimSuffix(text, "%")
	case strings.HasSuffix(text, "%") && digitPattern.MatchString(text):
		return Ratio{Status: RatioMalformed}
	default:
		return Ratio{Status: RatioNone}
	}

	v, err := strconv.ParseFloat(numeric, 64)
	if err != nil {
		return Ratio{Status: RatioMalformed}
	}
	if v < minProgressRate || v > maxProgressRate {
		return Ratio{Value: v, Status: RatioOutOfRange}
	}
	return Ratio{Value: v, Status: RatioOK}
}

// parseNumber pulls the first number out of a detail value such as
// "12.3倍", "1,234.5" or "▲12.5倍". A leading minus sign is kept.
func parseNumber(raw string) (float64, bool) {
	text := minusSigns.Replace(strings.ReplaceAll(normalize(raw), ",", ""))
	m := numberPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1]+m[2], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// normalize folds full-width digits, signs and spaces to ASCII and trims the
// result. Katakana is folded to its full-width form.
func normalize(s string) string {
	return strings.TrimSpace(width.Fold.String(s))
}

func parseDocument(content []byte) (*goquery.Document, error) {
	root, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return goquery.NewDocumentFromNode(root), nil
}
