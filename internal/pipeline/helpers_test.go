package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/earnscan/internal/cache"
	"github.com/nao1215/earnscan/internal/extract"
	"github.com/nao1215/earnscan/internal/fetcher"
	"github.com/nao1215/earnscan/internal/model"
	"github.com/nao1215/earnscan/internal/rate"
)

const siteURL = "http://kabuyoho.test"

// fakeSite is a fetcher.Requester serving canned pages. Scripted failures
// are returned before the page is served.
type fakeSite struct {
	mu       sync.Mutex
	pages    map[string]string
	failures map[string][]model.FailureKind
	status   map[string]int
	calls    map[string]int
	delay    time.Duration

	current atomic.Int64
	peak    atomic.Int64
}

func newFakeSite() *fakeSite {
	return &fakeSite{
		pages:    map[string]string{},
		failures: map[string][]model.FailureKind{},
		status:   map[string]int{},
		calls:    map[string]int{},
	}
}

func (s *fakeSite) Request(ctx context.Context, _ string, url string, _ http.Header, _ time.Duration) model.FetchResult {
	n := s.current.Add(1)
	defer s.current.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return model.NewFailure(url, model.FailureCanceled, ctx.Err().Error(), 0)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[url]++
	if q := s.failures[url]; len(q) > 0 {
		s.failures[url] = q[1:]
		return model.NewFailure(url, q[0], "scripted", s.status[url])
	}
	body, ok := s.pages[url]
	if !ok {
		return model.NewFailure(url, model.FailureHTTPStatus, "404 Not Found", http.StatusNotFound)
	}
	return model.NewSuccess(url, []byte(body), http.StatusOK, time.Now())
}

func (s *fakeSite) callsFor(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[url]
}

// listingHTML renders a listing page with one row per code.
func listingHTML(codes ...string) string {
	var b strings.Builder
	b.WriteString("<html><body><table>")
	for _, c := range codes {
		fmt.Fprintf(&b, `<tr><td><a href="/reportTop?bcode=%s">会社%s %s</a></td><td>50.0%%</td></tr>`, c, c, c)
	}
	b.WriteString("</table></body></html>")
	return b.String()
}

// detailHTML renders a detail page identifying itself as code.
func detailHTML(code string, yield float64) string {
	return fmt.Sprintf(`<html><head><link rel="canonical" href="%s/reportTop?bcode=%s"></head><body>
<dl><dt>PER</dt><dd><p>12.0倍</p></dd></dl>
<dl><dt>PBR</dt><dd><p>1.1倍</p></dd></dl>
<dl><dt>配当利回り</dt><dd><p>%.1f%%</p></dd></dl>
</body></html>`, siteURL, code, yield)
}

func detailURL(code string) string {
	return siteURL + "/reportTop?bcode=" + code
}

func pageURL(n int) string {
	return fmt.Sprintf("%s/calender?page=%d", siteURL, n)
}

type harness struct {
	site    *fakeSite
	fetcher *fetcher.Fetcher
	orch    *Orchestrator
	ext     *extract.Extractor
}

func newHarness(t *testing.T, site *fakeSite, maxConcurrent, batchSize, cacheSize int, fopts ...fetcher.Option) *harness {
	t.Helper()
	gate, err := rate.NewGate(maxConcurrent, 0)
	if err != nil {
		t.Fatal(err)
	}
	pages, err := cache.New[model.FetchKey, model.FetchResult](cacheSize)
	if err != nil {
		t.Fatal(err)
	}
	memo, err := extract.NewMemo(100)
	if err != nil {
		t.Fatal(err)
	}
	fopts = append([]fetcher.Option{fetcher.WithBackoffBase(time.Millisecond)}, fopts...)
	f := fetcher.New(site, gate, pages, fopts...)
	ext := extract.New(memo)
	return &harness{
		site:    site,
		fetcher: f,
		ext:     ext,
		orch:    NewOrchestrator(f, ext, WithBatchSize(batchSize)),
	}
}

func codesOf(records []*model.Record) map[string]*model.Record {
	m := make(map[string]*model.Record, len(records))
	for _, r := range records {
		m[r.Code()] = r
	}
	return m
}
