package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/net/proxy"
)

// dialContext resolves through the DNS cache and counts open connections.
// With a proxy configured, name resolution is left to the proxy.
func (m *Manager) dialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if m.socks != nil {
		conn, err := m.socks.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		return m.track(conn), nil
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	ips, err := m.resolve(ctx, host)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, ip := range ips {
		conn, err := m.dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
		if err == nil {
			return m.track(conn), nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr == nil {
		lastErr = &net.DNSError{Err: "no addresses", Name: host, IsNotFound: true}
	}
	return nil, lastErr
}

// resolve returns the addresses for host, from cache when fresh.
// Concurrent misses for one host share a single lookup.
func (m *Manager) resolve(ctx context.Context, host string) ([]string, error) {
	if net.ParseIP(host) != nil {
		return []string{host}, nil
	}
	if ips, ok := m.dns.Get(host); ok {
		m.dnsHits.Add(1)
		return ips, nil
	}
	m.dnsMisses.Add(1)

	v, err, _ := m.lookups.Do(host, func() (any, error) {
		ips, err := m.resolver.LookupHost(ctx, host)
		if err != nil {
			return nil, err
		}
		m.dns.Add(host, ips)
		return ips, nil
	})
	if err != nil {
		return nil, err
	}
	ips, ok := v.([]string)
	if !ok {
		return nil, fmt.Errorf("resolve %s: unexpected lookup result", host)
	}
	return ips, nil
}

func (m *Manager) track(conn net.Conn) net.Conn {
	m.open.Add(1)
	return &trackedConn{Conn: conn, open: &m.open}
}

// trackedConn decrements the open-connection counter once on Close.
type trackedConn struct {
	net.Conn
	once sync.Once
	open *atomic.Int64
}

func (c *trackedConn) Close() error {
	c.once.Do(func() {
		c.open.Add(-1)
	})
	return c.Conn.Close()
}

// newSOCKS5Dialer builds a context-aware SOCKS5 dialer from an address of
// the form "host:port" or "socks5://[user:pass@]host:port".
func newSOCKS5Dialer(address string, forward *net.Dialer) (proxy.ContextDialer, error) {
	hostport, auth, err := parseProxyAddress(address)
	if err != nil {
		return nil, err
	}
	d, err := proxy.SOCKS5("tcp", hostport, auth, forward)
	if err != nil {
		return nil, fmt.Errorf("create SOCKS5 dialer: %w", err)
	}
	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return nil, errors.New("SOCKS5 dialer does not support contexts")
	}
	return cd, nil
}

func parseProxyAddress(address string) (string, *proxy.Auth, error) {
	var auth *proxy.Auth
	hostport := address
	if strings.Contains(address, "://") {
		u, err := url.Parse(address)
		if err != nil || u.Scheme != "socks5" {
			return "", nil, ErrInvalidProxyAddress
		}
		hostport = u.Host
		if u.User != nil {
			pass, _ := u.User.Password()
			auth = &proxy.Auth{User: u.User.Username(), Password: pass}
		}
	}
	if !isValidProxyAddress(hostport) {
		return "", nil, ErrInvalidProxyAddress
	}
	return hostport, auth, nil
}

// isValidProxyAddress checks for a non-empty host and a port in 1..65535.
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return false
	}
	return n >= 1 && n <= 65535
}
