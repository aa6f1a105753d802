// Package transport provides the HTTP plumbing shared by the primary fetch
// and the overlay probes: one pooled client per engine, reused across rounds.
package transport

import (
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"

	"github.com/agentstation/quorum/pkg/constants"
	"github.com/agentstation/quorum/pkg/errors"
)

// PoolConfig sizes the shared connection pool.
type PoolConfig struct {
	// Concurrency bounds the connections opened to a single host.
	Concurrency int
	// Timeout bounds a whole request, body included.
	Timeout time.Duration
}

// NewPool creates an HTTP client whose transport holds at most
// cfg.Concurrency connections per host. HTTP/2 is negotiated over TLS when
// the server offers it.
func NewPool(cfg PoolConfig) (*http.Client, error) {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = constants.DefaultConcurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = constants.DefaultHTTPTimeout
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          cfg.Concurrency * 2,
		MaxIdleConnsPerHost:   cfg.Concurrency,
		MaxConnsPerHost:       cfg.Concurrency,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	if err := http2.ConfigureTransport(transport); err != nil {
		return nil, errors.NewConfigError("transport", "enabling HTTP/2", err)
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}, nil
}
