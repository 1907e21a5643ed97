// Package proxy implements the mirroring reverse proxy: it resolves the
// front domain of each inbound request, authenticates it, acquires an origin
// connection (directly or via SOCKS5) and streams the rewritten exchange.
package proxy

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/atomic"

	"github.com/webglass/webglass/proxy/internal/authgate"
	"github.com/webglass/webglass/proxy/internal/domains"
	"github.com/webglass/webglass/proxy/internal/upstream"
)

// Options configures a Proxy. The mapping table and auth policy are copied
// into immutable structures at construction and shared, read-only, by every
// request.
type Options struct {
	Addr     string
	Mappings []Mapping
	Auth     AuthPolicy

	// SOCKS5Server routes every upstream connection through the given
	// SOCKS5 server when non-empty.
	SOCKS5Server string

	// ReadTimeout bounds the wait for origin response headers.
	// Default: 30s.
	ReadTimeout time.Duration

	// DialTimeout bounds upstream TCP connect and SOCKS5 negotiation.
	// Default: 15s.
	DialTimeout time.Duration

	// MaxConnections caps concurrent client connections. 0 means no cap.
	MaxConnections int
}

// Proxy is the long-lived server. It is also the http.Handler running the
// per-request pipeline, which makes it directly testable with httptest.
type Proxy struct {
	opts      *Options
	domains   *domains.Map
	gate      *authgate.Gate
	upstream  *upstream.Manager
	transport *http.Transport
	entry     *entry

	acceptedConns   atomic.Int64
	handledRequests atomic.Int64
}

// NewProxy validates opts and builds a Proxy ready to Start.
func NewProxy(opts *Options) (*Proxy, error) {
	if opts.Addr == "" {
		return nil, errors.New("proxy: listen address is required")
	}
	if len(opts.Mappings) == 0 {
		return nil, errors.New("proxy: at least one domain mapping is required")
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 15 * time.Second
	}

	p := &Proxy{
		opts:     opts,
		domains:  domains.NewMap(opts.Mappings),
		gate:     authgate.New(opts.Auth),
		upstream: upstream.NewManager(opts.SOCKS5Server, opts.DialTimeout),
	}
	p.transport = &http.Transport{
		DialContext:           p.upstream.DialContext,
		DisableCompression:    true, // Accept-Encoding is negotiated by the rewriter
		ForceAttemptHTTP2:     false,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: opts.ReadTimeout,
	}
	p.entry = newEntry(p)

	return p, nil
}

// Start listens on the configured address and serves until shut down.
func (p *Proxy) Start() error {
	return p.entry.start()
}

// Close immediately stops the server and all active connections.
func (p *Proxy) Close() error {
	p.transport.CloseIdleConnections()
	return p.entry.close()
}

// Shutdown gracefully stops the server, waiting for in-flight requests up to
// the context deadline.
func (p *Proxy) Shutdown(ctx context.Context) error {
	p.transport.CloseIdleConnections()
	return p.entry.shutdown(ctx)
}

// AcceptedConnections returns the number of client connections accepted.
func (p *Proxy) AcceptedConnections() int64 {
	return p.acceptedConns.Load()
}

// HandledRequests returns the number of requests that entered the pipeline.
func (p *Proxy) HandledRequests() int64 {
	return p.handledRequests.Load()
}
