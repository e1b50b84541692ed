package model

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// FetchKey is a normalized URL. Two URLs that differ only in scheme/host case,
// a fragment, or an empty path map to the same key.
type FetchKey string

// NewFetchKey normalizes raw into a FetchKey.
// Only absolute http and https URLs are accepted.
func NewFetchKey(raw string) (FetchKey, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", raw, err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrMissingHost, raw)
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" {
		u.Path = "/"
	}
	return FetchKey(u.String()), nil
}

// String returns the key as a URL string.
func (k FetchKey) String() string {
	return string(k)
}

// Host returns the host (with port, if any) of the key.
// It returns an empty string for a malformed key.
func (k FetchKey) Host() string {
	u, err := url.Parse(string(k))
	if err != nil {
		return ""
	}
	return u.Host
}

// FailureKind classifies why a fetch failed.
type FailureKind string

const (
	// FailureNetwork covers connection resets, DNS and TLS failures.
	FailureNetwork FailureKind = "network"
	// FailureTimeout means the per-request deadline elapsed.
	FailureTimeout FailureKind = "timeout"
	// FailureHTTPStatus means the server answered with a non-2xx status.
	FailureHTTPStatus FailureKind = "http_status"
	// FailureCanceled means the run itself was cancelled. It is never
	// retried and never cached.
	FailureCanceled FailureKind = "canceled"
)

// Failure describes a failed fetch.
type Failure struct {
	Kind       FailureKind `json:"kind"`
	Detail     string      `json:"detail"`
	StatusCode int         `json:"status_code,omitempty"`
}

// FetchResult is the outcome of fetching one URL. It is either a success
// carrying the body, or a failure. Values are immutable: retries produce new
// results rather than mutating an old one.
type FetchResult struct {
	url        string
	content    []byte
	fetchedAt  time.Time
	statusCode int
	attempts   int
	failure    *Failure
}

// NewSuccess returns a successful result. The content slice is owned by the
// result from here on; callers must not modify it afterwards.
func NewSuccess(rawURL string, content []byte, statusCode int, fetchedAt time.Time) FetchResult {
	return FetchResult{
		url:        rawURL,
		content:    content,
		fetchedAt:  fetchedAt,
		statusCode: statusCode,
		attempts:   1,
	}
}

// NewFailure returns a failed result.
func NewFailure(rawURL string, kind FailureKind, detail string, statusCode int) FetchResult {
	return FetchResult{
		url:        rawURL,
		statusCode: statusCode,
		attempts:   1,
		failure: &Failure{
			Kind:       kind,
			Detail:     detail,
			StatusCode: statusCode,
		},
	}
}

// WithAttempts returns a copy of r that records n total attempts.
func (r FetchResult) WithAttempts(n int) FetchResult {
	r.attempts = n
	return r
}

// OK reports whether the fetch succeeded.
func (r FetchResult) OK() bool {
	return r.failure == nil && r.url != ""
}

// URL returns the fetched URL.
func (r FetchResult) URL() string { return r.url }

// Content returns the response body of a successful fetch.
// The returned slice must be treated as read-only.
func (r FetchResult) Content() []byte { return r.content }

// FetchedAt returns when the body was received.
func (r FetchResult) FetchedAt() time.Time { return r.fetchedAt }

// StatusCode returns the HTTP status, or 0 when no response was received.
func (r FetchResult) StatusCode() int { return r.statusCode }

// Attempts returns how many network attempts produced this result.
func (r FetchResult) Attempts() int { return r.attempts }

// Failure returns a copy of the failure description, or nil on success.
func (r FetchResult) Failure() *Failure {
	if r.failure == nil {
		return nil
	}
	f := *r.failure
	return &f
}

// Kind returns the failure kind, or an empty kind on success.
func (r FetchResult) Kind() FailureKind {
	if r.failure == nil {
		return ""
	}
	return r.failure.Kind
}

// Err returns the failure as a *FetchError, or nil on success.
func (r FetchResult) Err() error {
	if r.failure == nil {
		return nil
	}
	return &FetchError{
		URL:        r.url,
		Kind:       r.failure.Kind,
		StatusCode: r.failure.StatusCode,
		Detail:     r.failure.Detail,
		Attempts:   r.attempts,
	}
}

// Sentinel errors matched by FetchError.Is.
var (
	ErrNetwork    = errors.New("network error")
	ErrTimeout    = errors.New("request timed out")
	ErrHTTPStatus = errors.New("unexpected http status")
	ErrCanceled   = errors.New("fetch canceled")

	ErrUnsupportedScheme = errors.New("unsupported url scheme")
	ErrMissingHost       = errors.New("url has no host")
)

// FetchError is the error form of a failed FetchResult.
type FetchError struct {
	URL        string
	Kind       FailureKind
	StatusCode int
	Detail     string
	Attempts   int
}

// Error implements error.
func (e *FetchError) Error() string {
	if e.Kind == FailureHTTPStatus {
		return fmt.Sprintf("fetch %s: http status %d after %d attempt(s)", e.URL, e.StatusCode, e.Attempts)
	}
	return fmt.Sprintf("fetch %s: %s: %s after %d attempt(s)", e.URL, e.Kind, e.Detail, e.Attempts)
}

// Is maps the failure kind onto the package sentinels so callers can use
// errors.Is(err, model.ErrTimeout) and friends.
func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Kind == FailureNetwork
	case ErrTimeout:
		return e.Kind == FailureTimeout
	case ErrHTTPStatus:
		return e.Kind == FailureHTTPStatus
	case ErrCanceled:
		return e.Kind == FailureCanceled
	}
	return false
}

// FetchStats are the PageFetcher counters.
type FetchStats struct {
	NetworkCalls     int64 `json:"network_calls"`
	CacheHits        int64 `json:"cache_hits"`
	Successes        int64 `json:"successes"`
	RetriedSucceeded int64 `json:"retried_succeeded"`
	TerminalFailures int64 `json:"terminal_failures"`
}
