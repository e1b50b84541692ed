package transport

import (
	"bufio"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"strings"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/nao1215/earnscan/internal/model"
)

// drainLimit bounds how much of an error body is read so the connection can
// return to the pool.
const drainLimit = 64 * 1024

// Request performs one HTTP request and classifies the outcome.
//
// A timeout of zero means no per-request deadline beyond ctx. When ctx itself
// is done the result is a Canceled failure, regardless of the underlying
// error.
func (m *Manager) Request(ctx context.Context, method, rawURL string, headers http.Header, timeout time.Duration) model.FetchResult {
	reqCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	reqCtx = httptrace.WithClientTrace(reqCtx, &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			if info.Reused {
				m.reused.Add(1)
			}
		},
	})

	req, err := http.NewRequestWithContext(reqCtx, method, rawURL, nil)
	if err != nil {
		return model.NewFailure(rawURL, model.FailureNetwork, err.Error(), 0)
	}
	m.setDefaultHeaders(req)
	for key, values := range headers {
		req.Header[key] = values
	}

	m.requests.Add(1)
	resp, err := m.client.Do(req)
	if err != nil {
		return classify(ctx, rawURL, err, 0)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit)) //nolint:errcheck // best effort drain
		return model.NewFailure(rawURL, model.FailureHTTPStatus, resp.Status, resp.StatusCode)
	}

	body, err := m.readBody(resp)
	if err != nil {
		return classify(ctx, rawURL, err, resp.StatusCode)
	}

	m.logger.Debug("fetched",
		"url", rawURL,
		"status", resp.StatusCode,
		"encoding", resp.Header.Get("Content-Encoding"),
		"bytes", len(body),
	)
	return model.NewSuccess(rawURL, body, resp.StatusCode, time.Now())
}

func (m *Manager) setDefaultHeaders(req *http.Request) {
	req.Header.Set("User-Agent", m.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ja,en-US;q=0.7,en;q=0.3")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Connection", "keep-alive")
}

// readBody decodes the body according to Content-Encoding. A body larger
// than maxBodySize decoded bytes is an ErrBodyTooLarge error.
func (m *Manager) readBody(resp *http.Response) ([]byte, error) {
	r, err := decodeBody(resp.Header.Get("Content-Encoding"), resp.Body)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	body, err := io.ReadAll(io.LimitReader(r, m.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > m.maxBodySize {
		return nil, fmt.Errorf("%w of %d bytes", ErrBodyTooLarge, m.maxBodySize)
	}
	return body, nil
}

// decodeBody wraps body in the decoder for encoding. Closing the result
// releases the decoder, not body.
func decodeBody(encoding string, body io.Reader) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return io.NopCloser(body), nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("%w: gzip: %w", ErrBodyDecode, err)
		}
		return zr, nil
	case "deflate":
		// Servers send either zlib-wrapped or raw deflate under this name.
		br := bufio.NewReader(body)
		if head, err := br.Peek(2); err == nil && isZlibHeader(head) {
			zr, err := zlib.NewReader(br)
			if err != nil {
				return nil, fmt.Errorf("%w: zlib: %w", ErrBodyDecode, err)
			}
			return zr, nil
		}
		return flate.NewReader(br), nil
	case "br":
		return io.NopCloser(brotli.NewReader(body)), nil
	default:
		return nil, fmt.Errorf("%w: unsupported encoding %q", ErrBodyDecode, encoding)
	}
}

func isZlibHeader(b []byte) bool {
	return b[0]&0x0f == 8 && (uint16(b[0])<<8|uint16(b[1]))%31 == 0
}

// classify maps a transport error to a failure kind. parent is the caller's
// context without the per-request deadline.
func classify(parent context.Context, rawURL string, err error, status int) model.FetchResult {
	if parent.Err() != nil {
		return model.NewFailure(rawURL, model.FailureCanceled, parent.Err().Error(), status)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.NewFailure(rawURL, model.FailureTimeout, err.Error(), status)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.NewFailure(rawURL, model.FailureTimeout, err.Error(), status)
	}
	return model.NewFailure(rawURL, model.FailureNetwork, err.Error(), status)
}
