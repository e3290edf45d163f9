// Package transport builds the HTTP clients used for outbound calls to
// reasoning backends and the ledger service.
package transport

import (
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

// DefaultTimeout bounds a whole request when the caller sets none.
const DefaultTimeout = 30 * time.Second

// NewHTTPClient returns a client whose transport negotiates HTTP/2 over TLS
// and falls back to HTTP/1.1 for plain-text endpoints.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	// ConfigureTransport only fails when the transport was already configured.
	_ = http2.ConfigureTransport(t)

	return &http.Client{
		Transport: t,
		Timeout:   timeout,
	}
}
