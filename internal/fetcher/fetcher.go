// Package fetcher retrieves pages through the page cache, the concurrency
// gate and the connection manager, retrying transient failures.
package fetcher

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"

	"github.com/nao1215/earnscan/internal/cache"
	"github.com/nao1215/earnscan/internal/model"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultAttempts    = 3
	defaultBackoffBase = time.Second
	maxBackoffInterval = 10 * time.Minute
)

// DefaultRetryableStatus lists the HTTP statuses retried by default.
var DefaultRetryableStatus = []int{
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// Requester performs a single HTTP request. transport.Manager implements it.
type Requester interface {
	Request(ctx context.Context, method, url string, headers http.Header, timeout time.Duration) model.FetchResult
}

// Limiter bounds concurrent network attempts. rate.Gate implements it.
type Limiter interface {
	Acquire(ctx context.Context, host string) error
	Release()
}

// Fetcher implements cache → gate → request → retry → cache.
type Fetcher struct {
	requester   Requester
	gate        Limiter
	cache       *cache.LRU[model.FetchKey, model.FetchResult]
	timeout     time.Duration
	attempts    int
	backoffBase time.Duration
	retryable   map[int]bool
	logger      *slog.Logger

	group singleflight.Group

	networkCalls     atomic.Int64
	cacheHits        atomic.Int64
	successes        atomic.Int64
	retriedSucceeded atomic.Int64
	terminal         atomic.Int64
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithTimeout sets the per-attempt request timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithRetryAttempts sets the total number of attempts, first one included.
func WithRetryAttempts(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.attempts = n
		}
	}
}

// WithBackoffBase sets the wait before the first retry. Each later retry
// waits twice as long as the previous one.
func WithBackoffBase(d time.Duration) Option {
	return func(f *Fetcher) {
		if d >= 0 {
			f.backoffBase = d
		}
	}
}

// WithRetryableStatus replaces the set of retried HTTP statuses.
func WithRetryableStatus(codes ...int) Option {
	return func(f *Fetcher) {
		f.retryable = make(map[int]bool, len(codes))
		for _, c := range codes {
			f.retryable[c] = true
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// New returns a Fetcher.
func New(requester Requester, gate Limiter, pageCache *cache.LRU[model.FetchKey, model.FetchResult], opts ...Option) *Fetcher {
	f := &Fetcher{
		requester:   requester,
		gate:        gate,
		cache:       pageCache,
		timeout:     defaultTimeout,
		attempts:    defaultAttempts,
		backoffBase: defaultBackoffBase,
		logger:      slog.Default(),
	}
	WithRetryableStatus(DefaultRetryableStatus...)(f)
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns the page for key. Cached pages are returned without touching
// the gate or the network. Concurrent misses for the same key share one
// network fetch.
func (f *Fetcher) Fetch(ctx context.Context, key model.FetchKey) model.FetchResult {
	if res, ok := f.cache.Get(key); ok {
		f.cacheHits.Add(1)
		return res
	}

	v, _, _ := f.group.Do(key.String(), func() (any, error) {
		if res, ok := f.cache.Peek(key); ok {
			f.cacheHits.Add(1)
			return res, nil
		}
		res := f.fetchWithRetry(ctx, key)
		if res.OK() {
			f.cache.Put(key, res)
		}
		return res, nil
	})
	res, _ := v.(model.FetchResult) //nolint:errcheck // the closure only returns FetchResult
	return res
}

// Stats returns a snapshot of the counters.
func (f *Fetcher) Stats() model.FetchStats {
	return model.FetchStats{
		NetworkCalls:     f.networkCalls.Load(),
		CacheHits:        f.cacheHits.Load(),
		Successes:        f.successes.Load(),
		RetriedSucceeded: f.retriedSucceeded.Load(),
		TerminalFailures: f.terminal.Load(),
	}
}

func (f *Fetcher) fetchWithRetry(ctx context.Context, key model.FetchKey) model.FetchResult {
	var (
		last    model.FetchResult
		attempt int
	)

	operation := func() error {
		attempt++
		last = f.attempt(ctx, key).WithAttempts(attempt)
		if last.OK() {
			return nil
		}
		if !f.shouldRetry(last) {
			return backoff.Permanent(last.Err())
		}
		return last.Err()
	}
	notify := func(err error, wait time.Duration) {
		f.logger.Debug("retrying fetch",
			"url", key.String(),
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
	}

	err := backoff.RetryNotify(operation, f.policy(ctx), notify)

	switch {
	case err == nil:
		f.successes.Add(1)
		if attempt > 1 {
			f.retriedSucceeded.Add(1)
			f.logger.Info("fetch succeeded after retry", "url", key.String(), "attempts", attempt)
		}
		return last
	case ctx.Err() != nil:
		// Cancelled while waiting for the gate, the response or a backoff sleep.
		return model.NewFailure(key.String(), model.FailureCanceled, ctx.Err().Error(), 0).WithAttempts(attempt)
	default:
		f.terminal.Add(1)
		f.logger.Warn("fetch failed",
			"url", key.String(),
			"kind", last.Kind(),
			"status", last.StatusCode(),
			"attempts", attempt,
		)
		return last
	}
}

// attempt performs one gated request. The gate is held only for the duration
// of the request.
func (f *Fetcher) attempt(ctx context.Context, key model.FetchKey) model.FetchResult {
	if err := f.gate.Acquire(ctx, key.Host()); err != nil {
		return model.NewFailure(key.String(), model.FailureCanceled, err.Error(), 0)
	}
	defer f.gate.Release()

	f.networkCalls.Add(1)
	return f.requester.Request(ctx, http.MethodGet, key.String(), nil, f.timeout)
}

func (f *Fetcher) shouldRetry(res model.FetchResult) bool {
	switch res.Kind() {
	case model.FailureNetwork, model.FailureTimeout:
		return true
	case model.FailureHTTPStatus:
		return f.retryable[res.StatusCode()]
	default:
		return false
	}
}

// policy waits base, 2*base, 4*base... between attempts, without jitter,
// and stops after the configured number of attempts.
func (f *Fetcher) policy(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = f.backoffBase
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxInterval = maxBackoffInterval
	exp.MaxElapsedTime = 0
	exp.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(f.attempts-1)), ctx)
}
