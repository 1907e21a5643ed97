package proxy

import (
	"crypto/tls"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"strings"

	"github.com/webglass/webglass/internal/helper"
	"github.com/webglass/webglass/proxy/internal/domains"
	"github.com/webglass/webglass/proxy/internal/rewrite"
)

func isUpgrade(h http.Header) bool {
	return h.Get("Upgrade") != "" &&
		strings.Contains(strings.ToLower(h.Get("Connection")), "upgrade")
}

// serveUpgrade tunnels protocol upgrades (WebSocket and friends) without
// content rewriting: the upgrade request is replayed against the origin with
// restored headers, then both directions are copied raw.
func (p *Proxy) serveUpgrade(w http.ResponseWriter, req *http.Request, mapping *domains.Mapping, rwctx *rewrite.Context, logger *slog.Logger) {
	logger = logger.With("in", "Proxy.serveUpgrade")

	outURL := *req.URL
	outURL.Scheme = mapping.OriginScheme
	outURL.Host = mapping.OriginHost

	// Front hostnames smuggled into the path or query are restored the same
	// way the non-upgrade pipeline restores them.
	rules := rwctx.RequestRules()
	outURL.Path = rules.ReplaceString(outURL.Path)
	outURL.RawQuery = rules.ReplaceString(outURL.RawQuery)

	out := req.Clone(req.Context())
	out.URL = &outURL
	out.Host = mapping.OriginHost
	out.RequestURI = "" // DumpRequest must derive the request line from URL
	out.Header.Del(schemeHeader)
	rwctx.RewriteRequestHeader(out.Header)
	out.Header.Set(loopHeader, "1")

	upgradeBuf, err := httputil.DumpRequest(out, false)
	if err != nil {
		logger.Error("DumpRequest failed", "error", err)
		httpError(w, "invalid request", http.StatusBadRequest)
		return
	}

	serverConn, err := p.upstream.DialContext(req.Context(), "tcp", helper.CanonicalAddr(&outURL))
	if err != nil {
		logErr(logger, err)
		httpError(w, "upstream connection failed", connectStatus(err))
		return
	}

	if mapping.OriginScheme == "https" {
		tlsConn := tls.Client(serverConn, &tls.Config{
			ServerName: helper.NormalizeHost(mapping.OriginHost),
		})
		if err := tlsConn.HandshakeContext(req.Context()); err != nil {
			serverConn.Close()
			logErr(logger, err)
			httpError(w, "upstream connection failed", http.StatusBadGateway)
			return
		}
		serverConn = net.Conn(tlsConn)
	}
	defer serverConn.Close()

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		logger.Error("response writer does not support hijacking")
		httpError(w, "upgrade not supported", http.StatusInternalServerError)
		return
	}
	cconn, _, err := hijacker.Hijack()
	if err != nil {
		logger.Error("hijack failed", "error", err)
		return
	}
	defer cconn.Close()

	if _, err := serverConn.Write(upgradeBuf); err != nil {
		logger.Error("upgrade replay failed", "error", err)
		return
	}

	transfer(logger, serverConn, cconn)
}
