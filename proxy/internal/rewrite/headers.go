package rewrite

import "net/http"

// Response headers that carry origin URLs or hostnames back to the client.
// Location covers redirects, Set-Cookie the Domain= attribute; the rest came
// up in practice on mirrored sites (CORS and frame policies).
var responseHeaders = []string{
	"Location",
	"Set-Cookie",
	"Access-Control-Allow-Origin",
	"Content-Security-Policy",
	"X-Frame-Options",
}

// RewriteRequestHeader restores origin host/scheme in every outbound header
// value that mentions the front. This covers Origin and Referer without
// having to enumerate them.
func (c *Context) RewriteRequestHeader(h http.Header) {
	rules := c.request
	for key, values := range h {
		for i, v := range values {
			h[key][i] = rules.ReplaceString(v)
		}
	}
}

// RewriteResponseHeader replaces origin host/scheme with the front values in
// the headers that are known to leak them.
func (c *Context) RewriteResponseHeader(h http.Header) {
	rules := c.response
	for _, key := range responseHeaders {
		values, ok := h[key]
		if !ok {
			continue
		}
		for i, v := range values {
			values[i] = rules.ReplaceString(v)
		}
	}
}
