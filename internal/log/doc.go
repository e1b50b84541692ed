// Package log provides the slog logger used by earnscan. Its SecureHandler
// masks values that must not end up in shared logs: cookies and
// authorization headers from the per-site configuration, and credentials
// embedded in proxy URLs.
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	logger.Debug("transport ready", "proxy", "socks5://user:pw@127.0.0.1:1080")
//	// proxy=socks5://***REDACTED***@127.0.0.1:1080
package log
