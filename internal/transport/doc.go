// Package transport owns the HTTP connection pool used by a scan run.
//
// A Manager wraps a keep-alive http.Transport and adds:
//   - a TTL-bounded DNS cache in front of the dialer
//   - gzip, deflate and brotli response decoding
//   - periodic cleanup of idle connections
//   - an optional SOCKS5 upstream proxy
//   - per-site headers and cookie injection
//
// Request never returns an error. Every outcome, including transport errors,
// is folded into a model.FetchResult so the fetcher can decide whether to
// retry.
//
// A Manager is created when a run starts and closed when it ends.
package transport
