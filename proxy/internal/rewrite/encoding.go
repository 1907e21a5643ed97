package rewrite

import (
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

// Content types whose bodies are textual and safe to substitute in.
// Everything else (images, fonts, archives) passes through untouched.
var rewritableTypes = map[string]struct{}{
	"text/html":                         {},
	"text/plain":                        {},
	"text/css":                          {},
	"text/javascript":                   {},
	"application/javascript":            {},
	"application/json":                  {},
	"application/manifest+json":         {},
	"application/x-www-form-urlencoded": {},
}

// IsRewritableContentType reports whether a Content-Type header value names
// a textual type the rewriter may transform.
func IsRewritableContentType(contentType string) bool {
	if contentType == "" {
		return false
	}
	essence, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	_, ok := rewritableTypes[essence]
	return ok
}

// Content codings the rewriter can decode and re-encode.
var recodableEncodings = map[string]struct{}{
	"gzip":    {},
	"deflate": {},
	"br":      {},
	"zstd":    {},
}

// CanRecode reports whether a Content-Encoding value can be decoded,
// rewritten and re-encoded. Identity (or absent) trivially qualifies.
func CanRecode(encoding string) bool {
	if encoding == "" || encoding == "identity" {
		return true
	}
	_, ok := recodableEncodings[encoding]
	return ok
}

// FilterAcceptEncoding reduces a client Accept-Encoding header to the
// codings the rewriter can recode, so a compressed origin response never
// arrives in a coding that would block substitution.
func FilterAcceptEncoding(accept string) string {
	var kept []string
	for _, part := range strings.Split(accept, ",") {
		coding := strings.TrimSpace(part)
		if i := strings.IndexByte(coding, ';'); i >= 0 {
			coding = strings.TrimSpace(coding[:i])
		}
		coding = strings.ToLower(coding)
		if _, ok := recodableEncodings[coding]; ok {
			kept = append(kept, coding)
		}
	}
	return strings.Join(kept, ", ")
}

// NewDecoder wraps r with a decompressor for the given content coding.
func NewDecoder(r io.Reader, encoding string) (io.ReadCloser, error) {
	switch encoding {
	case "", "identity":
		return io.NopCloser(r), nil
	case "gzip":
		return gzip.NewReader(r)
	case "deflate":
		return flate.NewReader(r), nil
	case "br":
		return io.NopCloser(brotli.NewReader(r)), nil
	case "zstd":
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zr.IOReadCloser(), nil
	}
	return nil, fmt.Errorf("rewrite: unhandled content encoding %q", encoding)
}

// NewEncoder wraps w with a compressor for the given content coding.
// Close must be called to flush the coder's trailer.
func NewEncoder(w io.Writer, encoding string) (io.WriteCloser, error) {
	switch encoding {
	case "gzip":
		return gzip.NewWriter(w), nil
	case "deflate":
		return flate.NewWriter(w, flate.DefaultCompression)
	case "br":
		return brotli.NewWriter(w), nil
	case "zstd":
		return zstd.NewWriter(w)
	}
	return nil, fmt.Errorf("rewrite: unhandled content encoding %q", encoding)
}
