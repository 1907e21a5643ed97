package proxy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"

	uuid "github.com/satori/go.uuid"

	"github.com/webglass/webglass/proxy/internal/domains"
	"github.com/webglass/webglass/proxy/internal/rewrite"
)

const (
	// schemeHeader is set by the external TLS terminator: "https" means
	// the client reached the front over TLS.
	schemeHeader = "X-Scheme"

	// loopHeader marks requests that already passed through a webglass
	// instance, so two mirrors pointing at each other do not loop.
	loopHeader = "X-Webglass"
)

// ServeHTTP runs the per-request pipeline:
// resolve domain -> authenticate -> connect -> forward -> stream.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	p.handledRequests.Inc()
	logger := slog.Default().With(
		"in", "Proxy.ServeHTTP",
		"id", uuid.NewV4().String(),
		"host", req.Host,
	)

	if req.Header.Get(loopHeader) != "" {
		logger.Warn("request already passed through a mirror, refusing loop")
		httpError(w, "loop detected", http.StatusLoopDetected)
		return
	}

	mapping, ok := p.domains.Resolve(req.Host)
	if !ok {
		logger.Debug("unknown front domain")
		httpError(w, "unknown domain", http.StatusNotFound)
		return
	}

	if !p.gate.Authenticate(mapping.FrontHost, req) {
		logger.Debug("credentials rejected")
		w.Header().Set("WWW-Authenticate", `Basic realm="`+mapping.FrontHost+`"`)
		httpError(w, "authorization required", http.StatusUnauthorized)
		return
	}
	if p.gate.Protects(mapping.FrontHost) {
		// Mirror credentials are for the mirror only, not the origin.
		req.Header.Del("Authorization")
	}

	clientScheme := "http"
	if strings.EqualFold(req.Header.Get(schemeHeader), "https") {
		clientScheme = "https"
	}
	rwctx := rewrite.New(mapping.FrontHost, clientScheme, mapping.OriginHost, mapping.OriginScheme, mapping.ForceHTTPS)

	if isUpgrade(req.Header) {
		p.serveUpgrade(w, req, mapping, rwctx, logger)
		return
	}

	out := p.upstreamRequest(req, mapping, rwctx)

	resp, err := p.transport.RoundTrip(out)
	if err != nil {
		logErr(logger, err)
		httpError(w, "upstream connection failed", connectStatus(err))
		return
	}
	defer resp.Body.Close()

	logger.Debug("origin responded", "status", resp.StatusCode)
	p.writeResponse(w, req, resp, rwctx, logger)
}

// upstreamRequest derives the outbound origin request from the client
// request: origin URL and Host, restored header values, filtered
// Accept-Encoding and, for textual bodies, a restoring body reader.
func (p *Proxy) upstreamRequest(req *http.Request, mapping *domains.Mapping, rwctx *rewrite.Context) *http.Request {
	out := req.Clone(req.Context())
	out.URL.Scheme = mapping.OriginScheme
	out.URL.Host = mapping.OriginHost
	out.Host = mapping.OriginHost
	out.RequestURI = "" // client requests must not set it

	// Front hostnames can be smuggled into the path or query by rewritten
	// pages; restore them the same way header values are restored.
	rules := rwctx.RequestRules()
	out.URL.Path = rules.ReplaceString(out.URL.Path)
	out.URL.RawQuery = rules.ReplaceString(out.URL.RawQuery)

	removeHopHeaders(out.Header)
	out.Header.Del(schemeHeader)
	rwctx.RewriteRequestHeader(out.Header)
	out.Header.Set(loopHeader, "1")

	accept := rewrite.FilterAcceptEncoding(req.Header.Get("Accept-Encoding"))
	if accept == "" {
		accept = "identity"
	}
	out.Header.Set("Accept-Encoding", accept)

	contentEncoding := out.Header.Get("Content-Encoding")
	if out.Body != nil && out.Body != http.NoBody &&
		rewrite.IsRewritableContentType(out.Header.Get("Content-Type")) &&
		(contentEncoding == "" || contentEncoding == "identity") {
		out.Body = readCloser{
			Reader: rewrite.NewReader(out.Body, rules),
			Closer: req.Body,
		}
		out.ContentLength = -1
		out.Header.Del("Content-Length")
	}

	return out
}

// writeResponse relays the origin response, rewriting headers always and the
// body only when it is textual and in a coding the rewriter can handle.
func (p *Proxy) writeResponse(w http.ResponseWriter, req *http.Request, resp *http.Response, rwctx *rewrite.Context, logger *slog.Logger) {
	removeHopHeaders(resp.Header)
	rwctx.RewriteResponseHeader(resp.Header)

	encoding := resp.Header.Get("Content-Encoding")
	rewritable := req.Method != http.MethodHead &&
		bodyAllowed(resp.StatusCode) &&
		rewrite.IsRewritableContentType(resp.Header.Get("Content-Type")) &&
		rewrite.CanRecode(encoding)

	if !rewritable {
		// Binary, compressed-beyond-recoding or bodiless: byte-exact
		// passthrough, original framing preserved.
		copyHeader(w.Header(), resp.Header)
		w.WriteHeader(resp.StatusCode)
		if _, err := io.Copy(w, resp.Body); err != nil {
			logErr(logger, err)
		}
		return
	}

	// Substitution changes byte length: drop Content-Length and let the
	// server re-frame the stream (chunked for HTTP/1.1 clients).
	resp.Header.Del("Content-Length")
	copyHeader(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)

	dec, err := rewrite.NewDecoder(resp.Body, encoding)
	if err != nil {
		logErr(logger, err)
		_, _ = io.Copy(w, resp.Body)
		return
	}
	defer dec.Close()
	body := rewrite.NewReader(dec, rwctx.ResponseRules())

	var dst io.Writer = w
	var enc io.WriteCloser
	if encoding != "" && encoding != "identity" {
		enc, err = rewrite.NewEncoder(w, encoding)
		if err != nil {
			logErr(logger, err)
			return
		}
		dst = enc
	}

	if err := copyFlush(dst, body, w); err != nil {
		// Mid-stream upstream failure: the response is already partly
		// sent, so truncate rather than retry.
		logErr(logger, err)
		return
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			logErr(logger, err)
		}
	}
}

// copyFlush streams src to dst, flushing the response writer after every
// chunk so bytes reach the client while the origin is still sending.
func copyFlush(dst io.Writer, src io.Reader, w http.ResponseWriter) error {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// bodyAllowed mirrors RFC 7230 section 3.3: these statuses never carry one.
func bodyAllowed(status int) bool {
	if status >= 100 && status < 200 {
		return false
	}
	return status != http.StatusNoContent && status != http.StatusNotModified
}

// connectStatus maps an upstream failure to the client-facing status:
// timeouts are 504, everything else (DNS, TCP, TLS, SOCKS5) is 502.
func connectStatus(err error) int {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return http.StatusGatewayTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

type readCloser struct {
	io.Reader
	io.Closer
}
