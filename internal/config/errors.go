package config

import "errors"

// Configuration validation errors returned by Config.Validate.
// Callers use errors.Is to tell them apart.
var (
	// ErrNoTarget is returned when no listing URL is configured.
	ErrNoTarget = errors.New("no target specified: provide a listing URL or set baseURLs in the config file")

	// ErrInvalidMaxConcurrent is returned when the concurrency limit is not positive.
	// With no slots no request could ever be issued.
	ErrInvalidMaxConcurrent = errors.New("invalid max concurrent requests: must be positive")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrInvalidCacheSize is returned when the page cache capacity is not positive.
	ErrInvalidCacheSize = errors.New("invalid cache size: must be positive")

	// ErrInvalidParseCacheSize is returned when the ratio memo capacity is not positive.
	ErrInvalidParseCacheSize = errors.New("invalid parse cache size: must be positive")

	// ErrInvalidTimeout is returned when the request timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid request timeout: must be positive")

	// ErrInvalidRateLimitDelay is returned when the per-host delay is negative.
	// Use 0 for no spacing between requests.
	ErrInvalidRateLimitDelay = errors.New("invalid rate limit delay: must be non-negative")

	// ErrInvalidRetryAttempts is returned when fewer than one attempt is configured.
	ErrInvalidRetryAttempts = errors.New("invalid retry attempts: must be at least 1")

	// ErrInvalidBackoffBase is returned when the backoff base is negative.
	ErrInvalidBackoffBase = errors.New("invalid retry backoff base: must be non-negative")

	// ErrInvalidStatusCode is returned when a retryable status code is not an HTTP status.
	ErrInvalidStatusCode = errors.New("invalid retryable status code: must be between 100 and 599")

	// ErrInvalidDNSCacheTTL is returned when the DNS cache TTL is negative.
	ErrInvalidDNSCacheTTL = errors.New("invalid DNS cache TTL: must be non-negative")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	// Use 0 for the default limit.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidSortOrder is returned for a sort order other than code, dividend_yield or none.
	ErrInvalidSortOrder = errors.New("invalid sort order: must be code, dividend_yield or none")

	// ErrInvalidSummaryFormat is returned for an unknown summary format.
	ErrInvalidSummaryFormat = errors.New("invalid summary format: must be text, markdown or json")

	// ErrInvalidTopN is returned when the number of top records is negative.
	ErrInvalidTopN = errors.New("invalid top count: must be non-negative")

	// ErrNoOutput is returned when every output is disabled.
	// A run that writes nowhere would fetch pages for nothing.
	ErrNoOutput = errors.New("no output configured: enable --csv, --jsonl or the database")
)
