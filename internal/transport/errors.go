package transport

import "errors"

var (
	// ErrInvalidProxyAddress is returned when the proxy address is not a
	// SOCKS5 "host:port" or "socks5://[user:pass@]host:port".
	ErrInvalidProxyAddress = errors.New("invalid proxy address: expected host:port or socks5://host:port")

	// ErrBodyDecode is returned when a compressed body cannot be decoded.
	ErrBodyDecode = errors.New("decode response body")

	// ErrBodyTooLarge is returned when a decoded body exceeds the maximum
	// body size. The page is reported as failed rather than cut short.
	ErrBodyTooLarge = errors.New("response body exceeds max size")
)
