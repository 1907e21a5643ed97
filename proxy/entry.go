package proxy

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/netutil"
)

// wrapListener counts accepted client connections.
type wrapListener struct {
	net.Listener
	proxy *Proxy
}

func (l *wrapListener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	if err == nil {
		l.proxy.acceptedConns.Inc()
	}
	return c, err
}

// entry owns the HTTP server side of the proxy: the listener, the server
// lifecycle and nothing else. Request handling lives in the pipeline.
type entry struct {
	proxy  *Proxy
	server *http.Server
}

func newEntry(proxy *Proxy) *entry {
	e := &entry{proxy: proxy}
	e.server = &http.Server{
		Addr:              proxy.opts.Addr,
		Handler:           proxy,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return e
}

// start begins listening and blocks until the server stops.
func (e *entry) start() error {
	ln, err := net.Listen("tcp", e.server.Addr)
	if err != nil {
		return err
	}
	if maxConns := e.proxy.opts.MaxConnections; maxConns > 0 {
		ln = netutil.LimitListener(ln, maxConns)
	}

	slog.Info("webglass listening",
		"addr", e.server.Addr,
		"domains", len(e.proxy.opts.Mappings),
		"socks5", e.proxy.upstream.ViaSOCKS5(),
	)
	return e.server.Serve(&wrapListener{Listener: ln, proxy: e.proxy})
}

func (e *entry) close() error {
	return e.server.Close()
}

func (e *entry) shutdown(ctx context.Context) error {
	return e.server.Shutdown(ctx)
}
