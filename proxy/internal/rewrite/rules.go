// Package rewrite performs the bidirectional host/scheme substitution that
// makes a mirrored site address itself by its front domain. Substitution is
// byte-level and streaming: bodies are never loaded whole into memory.
package rewrite

import (
	"bytes"
	"sort"
)

// rule is one needle/replacement pair. Boundary flags restrict matches to
// positions where the neighbouring byte is not a domain-label character, so
// "notwww.google.com" is not corrupted by a "www.google.com" rule.
type rule struct {
	needle      []byte
	replacement []byte
	leftBound   bool
	rightBound  bool
}

// Rules is an ordered, immutable substitution set for one direction.
type Rules struct {
	rules     []rule
	maxNeedle int
}

// Context carries the per-request substitution state. It is created when a
// request is matched to a domain mapping and discarded when the response
// finishes streaming.
type Context struct {
	FrontHost    string
	FrontScheme  string
	OriginHost   string
	OriginScheme string

	response *Rules // origin -> front, applied to response bytes
	request  *Rules // front -> origin, applied to request bytes
}

// New builds a Context. clientScheme is the scheme the client reached the
// front with ("https" behind a TLS terminator, else "http"); forceHTTPS
// overrides it so rewritten URLs are always absolute https.
func New(frontHost, clientScheme, originHost, originScheme string, forceHTTPS bool) *Context {
	frontScheme := clientScheme
	if forceHTTPS {
		frontScheme = "https"
	}

	c := &Context{
		FrontHost:    frontHost,
		FrontScheme:  frontScheme,
		OriginHost:   originHost,
		OriginScheme: originScheme,
	}

	response := []rule{
		{
			needle:      []byte(originScheme + "://" + originHost),
			replacement: []byte(frontScheme + "://" + frontHost),
			rightBound:  true,
		},
		{
			needle:      []byte(originHost),
			replacement: []byte(frontHost),
			leftBound:   true,
			rightBound:  true,
		},
	}
	if forceHTTPS && originScheme != "http" {
		// Stray plain-http links to the origin get upgraded too.
		response = append(response, rule{
			needle:      []byte("http://" + originHost),
			replacement: []byte("https://" + frontHost),
			rightBound:  true,
		})
	}

	request := []rule{
		{
			needle:      []byte("https://" + frontHost),
			replacement: []byte(originScheme + "://" + originHost),
			rightBound:  true,
		},
		{
			needle:      []byte("http://" + frontHost),
			replacement: []byte(originScheme + "://" + originHost),
			rightBound:  true,
		},
		{
			needle:      []byte(frontHost),
			replacement: []byte(originHost),
			leftBound:   true,
			rightBound:  true,
		},
	}

	c.response = newRules(response)
	c.request = newRules(request)
	return c
}

// ResponseRules returns the origin→front substitution set.
func (c *Context) ResponseRules() *Rules {
	return c.response
}

// RequestRules returns the front→origin substitution set.
func (c *Context) RequestRules() *Rules {
	return c.request
}

func newRules(rules []rule) *Rules {
	// Longest needle wins at any given position.
	sort.SliceStable(rules, func(i, j int) bool {
		return len(rules[i].needle) > len(rules[j].needle)
	})
	rs := &Rules{rules: rules}
	for _, ru := range rules {
		if len(ru.needle) > rs.maxNeedle {
			rs.maxNeedle = len(ru.needle)
		}
	}
	return rs
}

// isLabelByte reports whether b can be part of a DNS label. A needle match
// flanked by such a byte is part of a longer hostname and must be skipped.
func isLabelByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b == '-'
}

// matchAt tries every rule at position i of data. prev is the byte emitted
// just before i (zero at start of stream). When atEOF is false the caller
// guarantees maxNeedle+1 bytes of lookahead, so boundary checks never lack
// the byte they need.
func (rs *Rules) matchAt(data []byte, i int, prev byte, atEOF bool) (replacement []byte, advance int, ok bool) {
	rest := data[i:]
	for _, ru := range rs.rules {
		if len(rest) < len(ru.needle) {
			continue
		}
		if !bytes.HasPrefix(rest, ru.needle) {
			continue
		}
		if ru.leftBound && isLabelByte(prev) {
			continue
		}
		if ru.rightBound && len(rest) > len(ru.needle) && isLabelByte(rest[len(ru.needle)]) {
			continue
		}
		return ru.replacement, len(ru.needle), true
	}
	return nil, 0, false
}

// Replace applies the rules to a complete buffer and returns the result.
// Used for header values; bodies go through Reader instead.
func (rs *Rules) Replace(b []byte) []byte {
	out := make([]byte, 0, len(b))
	var prev byte
	i := 0
	for i < len(b) {
		if rep, n, ok := rs.matchAt(b, i, prev, true); ok {
			out = append(out, rep...)
			prev = rep[len(rep)-1]
			i += n
			continue
		}
		out = append(out, b[i])
		prev = b[i]
		i++
	}
	return out
}

// ReplaceString is Replace for strings.
func (rs *Rules) ReplaceString(s string) string {
	return string(rs.Replace([]byte(s)))
}
