package transport

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/nao1215/earnscan/internal/model"
)

func newTestManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	m, err := New(opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestRequestSuccess(t *testing.T) {
	t.Parallel()

	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	m := newTestManager(t, WithUserAgent("earnscan-test"))
	res := m.Request(context.Background(), http.MethodGet, srv.URL, nil, time.Second)

	if !res.OK() {
		t.Fatalf("expected success, got %v", res.Err())
	}
	if string(res.Content()) != "<html>ok</html>" {
		t.Errorf("unexpected body %q", res.Content())
	}
	if got := gotHeaders.Get("User-Agent"); got != "earnscan-test" {
		t.Errorf("User-Agent = %q", got)
	}
	if got := gotHeaders.Get("Accept-Encoding"); got != "gzip, deflate, br" {
		t.Errorf("Accept-Encoding = %q", got)
	}
	if st := m.Stats(); st.Requests != 1 {
		t.Errorf("requests = %d, want 1", st.Requests)
	}
}

func TestRequestDecodesBody(t *testing.T) {
	t.Parallel()

	const payload = "<html><body>決算発表</body></html>"

	encoders := map[string]func(*bytes.Buffer){
		"gzip": func(b *bytes.Buffer) {
			w := gzip.NewWriter(b)
			_, _ = w.Write([]byte(payload))
			_ = w.Close()
		},
		"deflate": func(b *bytes.Buffer) {
			w := zlib.NewWriter(b)
			_, _ = w.Write([]byte(payload))
			_ = w.Close()
		},
		"br": func(b *bytes.Buffer) {
			w := brotli.NewWriter(b)
			_, _ = w.Write([]byte(payload))
			_ = w.Close()
		},
	}

	for encoding, encode := range encoders {
		t.Run(encoding, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			encode(&buf)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Encoding", encoding)
				_, _ = w.Write(buf.Bytes())
			}))
			defer srv.Close()

			m := newTestManager(t)
			res := m.Request(context.Background(), http.MethodGet, srv.URL, nil, time.Second)
			if !res.OK() {
				t.Fatalf("expected success, got %v", res.Err())
			}
			if string(res.Content()) != payload {
				t.Errorf("decoded %q, want %q", res.Content(), payload)
			}
		})
	}

	t.Run("raw deflate", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w, _ := flate.NewWriter(&buf, flate.DefaultCompression)
		_, _ = w.Write([]byte(payload))
		_ = w.Close()

		r, err := decodeBody("deflate", bytes.NewReader(buf.Bytes()))
		if err != nil {
			t.Fatal(err)
		}
		var out bytes.Buffer
		if _, err := out.ReadFrom(r); err != nil {
			t.Fatal(err)
		}
		if out.String() != payload {
			t.Errorf("decoded %q", out.String())
		}
		if err := r.Close(); err != nil {
			t.Errorf("close decoder: %v", err)
		}
	})

	t.Run("unknown encoding", func(t *testing.T) {
		t.Parallel()

		if _, err := decodeBody("compress", strings.NewReader("x")); !errors.Is(err, ErrBodyDecode) {
			t.Errorf("expected ErrBodyDecode, got %v", err)
		}
	})
}

func TestRequestMaxBodySize(t *testing.T) {
	t.Parallel()

	serve := func(t *testing.T, size int, gzipped bool) *httptest.Server {
		t.Helper()
		body := bytes.Repeat([]byte("a"), size)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if gzipped {
				w.Header().Set("Content-Encoding", "gzip")
				zw := gzip.NewWriter(w)
				_, _ = zw.Write(body)
				_ = zw.Close()
				return
			}
			_, _ = w.Write(body)
		}))
		t.Cleanup(srv.Close)
		return srv
	}

	t.Run("body at the limit is kept whole", func(t *testing.T) {
		t.Parallel()

		srv := serve(t, 50, false)
		m := newTestManager(t, WithMaxBodySize(50))
		res := m.Request(context.Background(), http.MethodGet, srv.URL, nil, time.Second)
		if !res.OK() || len(res.Content()) != 50 {
			t.Errorf("ok=%v length=%d, want success with 50 bytes", res.OK(), len(res.Content()))
		}
	})

	t.Run("oversized body fails instead of being cut", func(t *testing.T) {
		t.Parallel()

		srv := serve(t, 108, false)
		m := newTestManager(t, WithMaxBodySize(50))
		res := m.Request(context.Background(), http.MethodGet, srv.URL, nil, time.Second)
		if res.OK() {
			t.Fatalf("expected failure, got %d bytes", len(res.Content()))
		}
		if res.Kind() != model.FailureNetwork {
			t.Errorf("kind = %q, want %q", res.Kind(), model.FailureNetwork)
		}
		if !strings.Contains(res.Failure().Detail, ErrBodyTooLarge.Error()) {
			t.Errorf("detail = %q", res.Failure().Detail)
		}
	})

	t.Run("limit applies to decoded bytes", func(t *testing.T) {
		t.Parallel()

		srv := serve(t, 1000, true)
		m := newTestManager(t, WithMaxBodySize(100))
		res := m.Request(context.Background(), http.MethodGet, srv.URL, nil, time.Second)
		if res.OK() {
			t.Errorf("compressed body of 1000 decoded bytes passed a limit of 100")
		}
	})
}

func TestRequestFailureKinds(t *testing.T) {
	t.Parallel()

	t.Run("non-2xx is HTTPStatus", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "gone", http.StatusNotFound)
		}))
		defer srv.Close()

		m := newTestManager(t)
		res := m.Request(context.Background(), http.MethodGet, srv.URL, nil, time.Second)
		if res.Kind() != model.FailureHTTPStatus || res.StatusCode() != http.StatusNotFound {
			t.Errorf("got kind %q status %d", res.Kind(), res.StatusCode())
		}
	})

	t.Run("deadline is Timeout", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		m := newTestManager(t)
		res := m.Request(context.Background(), http.MethodGet, srv.URL, nil, 50*time.Millisecond)
		if res.Kind() != model.FailureTimeout {
			t.Errorf("got kind %q (%v), want timeout", res.Kind(), res.Err())
		}
	})

	t.Run("cancelled parent is Canceled", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(30*time.Millisecond, cancel)

		m := newTestManager(t)
		res := m.Request(ctx, http.MethodGet, srv.URL, nil, 5*time.Second)
		if res.Kind() != model.FailureCanceled {
			t.Errorf("got kind %q, want canceled", res.Kind())
		}
	})

	t.Run("refused connection is Network", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.NotFoundHandler())
		addr := srv.URL
		srv.Close()

		m := newTestManager(t)
		res := m.Request(context.Background(), http.MethodGet, addr, nil, time.Second)
		if res.Kind() != model.FailureNetwork {
			t.Errorf("got kind %q (%v), want network", res.Kind(), res.Err())
		}
	})
}

func TestConnectionReuse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	m := newTestManager(t)
	for range 3 {
		if res := m.Request(context.Background(), http.MethodGet, srv.URL, nil, time.Second); !res.OK() {
			t.Fatal(res.Err())
		}
	}
	st := m.Stats()
	if st.ReusedConnections < 2 {
		t.Errorf("reused = %d, want >= 2", st.ReusedConnections)
	}
	if st.OpenConnections != 1 {
		t.Errorf("open = %d, want 1", st.OpenConnections)
	}

	_ = m.Close()
	if st := m.Stats(); st.OpenConnections != 0 {
		t.Errorf("open after Close = %d, want 0", st.OpenConnections)
	}
}

func TestDNSCache(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	url := strings.Replace(srv.URL, "127.0.0.1", "localhost", 1)
	m := newTestManager(t)

	// Closing idle connections forces a new dial, and so a second lookup.
	for range 2 {
		if res := m.Request(context.Background(), http.MethodGet, url, nil, time.Second); !res.OK() {
			t.Fatal(res.Err())
		}
		m.transport.CloseIdleConnections()
	}

	st := m.Stats()
	if st.DNSMisses != 1 || st.DNSHits != 1 {
		t.Errorf("dns misses=%d hits=%d, want 1 and 1", st.DNSMisses, st.DNSHits)
	}
}

func TestHeaderInjection(t *testing.T) {
	t.Parallel()

	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
	}))
	defer srv.Close()

	m := newTestManager(t,
		WithCookie("session=abc"),
		WithHeaders(map[string]string{"X-Custom": "v"}),
	)
	hdr := http.Header{}
	hdr.Set("Cookie", "lang=ja")
	res := m.Request(context.Background(), http.MethodGet, srv.URL, hdr, time.Second)
	if !res.OK() {
		t.Fatal(res.Err())
	}
	if got.Get("Cookie") != "lang=ja; session=abc" {
		t.Errorf("Cookie = %q", got.Get("Cookie"))
	}
	if got.Get("X-Custom") != "v" {
		t.Errorf("X-Custom = %q", got.Get("X-Custom"))
	}
}

func TestParseProxyAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in       string
		hostport string
		user     string
		wantErr  bool
	}{
		{in: "127.0.0.1:9050", hostport: "127.0.0.1:9050"},
		{in: "socks5://proxy.local:1080", hostport: "proxy.local:1080"},
		{in: "socks5://u:p@proxy.local:1080", hostport: "proxy.local:1080", user: "u"},
		{in: "http://proxy.local:1080", wantErr: true},
		{in: "127.0.0.1", wantErr: true},
		{in: ":9050", wantErr: true},
		{in: "host:0", wantErr: true},
		{in: "host:70000", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			hostport, auth, err := parseProxyAddress(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidProxyAddress) {
					t.Errorf("expected ErrInvalidProxyAddress, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if hostport != tt.hostport {
				t.Errorf("hostport = %q", hostport)
			}
			if tt.user != "" && (auth == nil || auth.User != tt.user) {
				t.Errorf("auth = %+v", auth)
			}
		})
	}
}

func TestNewRejectsBadProxy(t *testing.T) {
	t.Parallel()

	if _, err := New(WithProxy("not-a-proxy")); !errors.Is(err, ErrInvalidProxyAddress) {
		t.Errorf("expected ErrInvalidProxyAddress, got %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	m, err := New(WithIdleCleanupInterval(time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
}
