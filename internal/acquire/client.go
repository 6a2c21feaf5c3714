package acquire

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"

	"dailete/internal/services"
)

// NewDirectClient returns the Local channel client. Environment proxy
// variables are ignored so the local capture really is direct.
func NewDirectClient(timeout time.Duration) *http.Client {
	transport := baseTransport()
	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
	transport.DialContext = dialer.DialContext
	return &http.Client{Transport: transport, Timeout: timeout}
}

// NewProxyClient returns the Remote channel client, dialing every connection
// through the SOCKS5 proxy at address (socks5:// or socks5h://).
func NewProxyClient(address string, timeout time.Duration) (*http.Client, error) {
	parsed, err := url.Parse(address)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "acquire", "proxy", "parse address", err)
	}
	dialer, err := proxy.FromURL(parsed, &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second})
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "acquire", "proxy", address, err)
	}

	transport := baseTransport()
	if contextDialer, ok := dialer.(proxy.ContextDialer); ok {
		transport.DialContext = contextDialer.DialContext
	} else {
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialWithContext(ctx, dialer, network, addr)
		}
	}
	return &http.Client{Transport: transport, Timeout: timeout}, nil
}

func baseTransport() *http.Transport {
	return &http.Transport{
		Proxy:                 nil,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}

func dialWithContext(ctx context.Context, dialer proxy.Dialer, network, addr string) (net.Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := dialer.Dial(network, addr)
		done <- result{conn, err}
	}()
	select {
	case <-ctx.Done():
		go func() {
			if r := <-done; r.conn != nil {
				_ = r.conn.Close()
			}
		}()
		return nil, fmt.Errorf("dial %s via proxy: %w", addr, ctx.Err())
	case r := <-done:
		return r.conn, r.err
	}
}
