package helper

import (
	"net"
	"net/url"
	"strings"
)

var portMap = map[string]string{
	"http":  "80",
	"https": "443",
}

// CanonicalAddr returns url.Host but always with a ":port" suffix.
func CanonicalAddr(u *url.URL) string {
	port := u.Port()
	if port == "" {
		port = portMap[u.Scheme]
	}
	return net.JoinHostPort(u.Hostname(), port)
}

// DefaultPort returns the well-known port for the given scheme.
func DefaultPort(scheme string) string {
	return portMap[scheme]
}

// NormalizeHost lowercases a host and strips a trailing port suffix, so that
// "X.COM:443" and "x.com" compare equal as lookup keys.
func NormalizeHost(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.ToLower(host)
}

// Hop-by-hop headers, not forwarded in either direction.
// ref: icexin/sockhttp, RFC 7230 section 6.1
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te", // canonicalized version of "TE"
	"Trailers",
	"Transfer-Encoding",
	"Upgrade",
}

// HopHeaders returns the set of hop-by-hop header names.
func HopHeaders() []string {
	return hopHeaders
}
