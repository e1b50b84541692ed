package transport

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/net/proxy"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultUserAgent is sent when no user agent is configured.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// DefaultMaxBodySize caps the decoded body. Larger bodies are truncated.
	DefaultMaxBodySize = 5 * 1024 * 1024

	defaultMaxConns            = 10
	defaultDNSCacheTTL         = 300 * time.Second
	defaultDNSCacheSize        = 256
	defaultIdleCleanupInterval = 30 * time.Second
	defaultIdleConnTimeout     = 90 * time.Second
	defaultDialTimeout         = 10 * time.Second
	maxRedirects               = 10
)

// Stats describes the connection pool. It is for observability only.
type Stats struct {
	Requests          int64 `json:"requests"`
	OpenConnections   int64 `json:"open_connections"`
	ReusedConnections int64 `json:"reused_connections"`
	DNSHits           int64 `json:"dns_hits"`
	DNSMisses         int64 `json:"dns_misses"`
}

// Manager is a pooled HTTP client with DNS caching and body decoding.
type Manager struct {
	maxConns            int
	dnsTTL              time.Duration
	idleCleanupInterval time.Duration
	userAgent           string
	headers             map[string]string
	cookie              string
	proxyAddress        string
	maxBodySize         int64
	logger              *slog.Logger

	transport *http.Transport
	client    *http.Client
	dialer    *net.Dialer
	resolver  *net.Resolver
	socks     proxy.ContextDialer
	dns       *expirable.LRU[string, []string]
	lookups   singleflight.Group

	requests  atomic.Int64
	open      atomic.Int64
	reused    atomic.Int64
	dnsHits   atomic.Int64
	dnsMisses atomic.Int64

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxConns sizes the connection pool. It should match the concurrency limit.
func WithMaxConns(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxConns = n
		}
	}
}

// WithDNSCacheTTL sets how long resolved addresses are reused.
func WithDNSCacheTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.dnsTTL = d
		}
	}
}

// WithIdleCleanupInterval sets how often idle connections are closed.
func WithIdleCleanupInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.idleCleanupInterval = d
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(m *Manager) {
		if ua != "" {
			m.userAgent = ua
		}
	}
}

// WithHeaders sets extra headers sent with every request.
func WithHeaders(headers map[string]string) Option {
	return func(m *Manager) {
		m.headers = headers
	}
}

// WithCookie sets a raw cookie string sent with every request.
func WithCookie(cookie string) Option {
	return func(m *Manager) {
		m.cookie = cookie
	}
}

// WithProxy routes all connections through a SOCKS5 proxy.
func WithProxy(address string) Option {
	return func(m *Manager) {
		m.proxyAddress = address
	}
}

// WithMaxBodySize caps the decoded body size.
func WithMaxBodySize(n int64) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxBodySize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// New creates a Manager and starts its idle-connection janitor.
// Callers must call Close when the run ends.
func New(opts ...Option) (*Manager, error) {
	m := &Manager{
		maxConns:            defaultMaxConns,
		dnsTTL:              defaultDNSCacheTTL,
		idleCleanupInterval: defaultIdleCleanupInterval,
		userAgent:           DefaultUserAgent,
		maxBodySize:         DefaultMaxBodySize,
		logger:              slog.Default(),
		dialer: &net.Dialer{
			Timeout:   defaultDialTimeout,
			KeepAlive: 30 * time.Second,
		},
		resolver: net.DefaultResolver,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.proxyAddress != "" {
		socks, err := newSOCKS5Dialer(m.proxyAddress, m.dialer)
		if err != nil {
			return nil, err
		}
		m.socks = socks
	}

	m.dns = expirable.NewLRU[string, []string](defaultDNSCacheSize, nil, m.dnsTTL)

	m.transport = &http.Transport{
		DialContext:         m.dialContext,
		MaxIdleConns:        m.maxConns,
		MaxIdleConnsPerHost: m.maxConns,
		MaxConnsPerHost:     m.maxConns,
		IdleConnTimeout:     defaultIdleConnTimeout,
		TLSHandshakeTimeout: 10 * time.Second,
		ForceAttemptHTTP2:   true,
		// Bodies are decoded by the manager so that brotli is covered too.
		DisableCompression: true,
	}

	var rt http.RoundTripper = m.transport
	if m.cookie != "" || len(m.headers) > 0 {
		rt = &headerInjectingTransport{
			base:    m.transport,
			cookie:  m.cookie,
			headers: m.headers,
		}
	}

	m.client = &http.Client{
		Transport: rt,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}

	m.wg.Add(1)
	go m.janitor()

	m.logger.Debug("transport ready",
		"max_conns", m.maxConns,
		"dns_ttl", m.dnsTTL,
		"proxy", m.proxyAddress,
	)
	return m, nil
}

// Close stops the janitor and closes idle connections. It is safe to call
// more than once.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		close(m.done)
		m.wg.Wait()
		m.transport.CloseIdleConnections()
	})
	return nil
}

// Stats returns a snapshot of the pool counters.
func (m *Manager) Stats() Stats {
	return Stats{
		Requests:          m.requests.Load(),
		OpenConnections:   m.open.Load(),
		ReusedConnections: m.reused.Load(),
		DNSHits:           m.dnsHits.Load(),
		DNSMisses:         m.dnsMisses.Load(),
	}
}

func (m *Manager) janitor() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.idleCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.transport.CloseIdleConnections()
			m.logger.Debug("closed idle connections", "open", m.open.Load())
		}
	}
}

// headerInjectingTransport adds the configured cookie and headers to every
// request, redirects included.
type headerInjectingTransport struct {
	base    http.RoundTripper
	cookie  string
	headers map[string]string
}

// RoundTrip implements http.RoundTripper.
func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())

	if t.cookie != "" {
		if existing := clone.Header.Get("Cookie"); existing != "" {
			clone.Header.Set("Cookie", existing+"; "+t.cookie)
		} else {
			clone.Header.Set("Cookie", t.cookie)
		}
	}
	for key, value := range t.headers {
		clone.Header.Set(key, value)
	}

	return t.base.RoundTrip(clone)
}
