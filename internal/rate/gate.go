package rate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	xrate "golang.org/x/time/rate"
)

// ErrInvalidCapacity is returned by NewGate for a non-positive limit.
var ErrInvalidCapacity = errors.New("gate capacity must be positive")

// Gate limits concurrent requests and enforces per-host spacing.
// All methods are safe for concurrent use.
type Gate struct {
	capacity int64
	delay    time.Duration
	sem      *semaphore.Weighted
	inFlight atomic.Int64
	misuse   atomic.Int64

	mu       sync.Mutex
	limiters map[string]*xrate.Limiter

	logger *slog.Logger
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithLogger sets the logger used to report release misuse.
func WithLogger(logger *slog.Logger) GateOption {
	return func(g *Gate) {
		g.logger = logger
	}
}

// NewGate returns a gate admitting at most maxConcurrent holders, with at least
// delay between two issuances to the same host. A zero delay disables spacing.
func NewGate(maxConcurrent int, delay time.Duration, opts ...GateOption) (*Gate, error) {
	if maxConcurrent <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, maxConcurrent)
	}
	if delay < 0 {
		delay = 0
	}
	g := &Gate{
		capacity: int64(maxConcurrent),
		delay:    delay,
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		limiters: make(map[string]*xrate.Limiter),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Acquire blocks until a slot is free and the host spacing has elapsed.
// On error (context cancelled or deadline exceeded) no slot is held.
func (g *Gate) Acquire(ctx context.Context, host string) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	if lim := g.limiter(host); lim != nil {
		if err := lim.Wait(ctx); err != nil {
			g.sem.Release(1)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}
	}
	g.inFlight.Add(1)
	return nil
}

// Release frees a slot taken by Acquire. A release without a matching
// acquire is logged and ignored.
func (g *Gate) Release() {
	for {
		n := g.inFlight.Load()
		if n <= 0 {
			g.misuse.Add(1)
			g.logger.Error("gate released without acquire")
			return
		}
		if g.inFlight.CompareAndSwap(n, n-1) {
			g.sem.Release(1)
			return
		}
	}
}

// InFlight returns the number of slots currently held.
func (g *Gate) InFlight() int {
	return int(g.inFlight.Load())
}

// Capacity returns the maximum number of concurrent holders.
func (g *Gate) Capacity() int {
	return int(g.capacity)
}

// Misuses returns how many unmatched releases were ignored.
func (g *Gate) Misuses() int64 {
	return g.misuse.Load()
}

func (g *Gate) limiter(host string) *xrate.Limiter {
	if g.delay == 0 {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	lim, ok := g.limiters[host]
	if !ok {
		lim = xrate.NewLimiter(xrate.Every(g.delay), 1)
		g.limiters[host] = lim
	}
	return lim
}
