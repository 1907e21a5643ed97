package domains_test

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/webglass/webglass/proxy/internal/domains"
)

func newTestMap() *domains.Map {
	return domains.NewMap([]domains.Mapping{
		{FrontHost: "x.com", OriginHost: "www.google.com", OriginScheme: "https"},
		{FrontHost: "plain.example", OriginHost: "origin.example", OriginScheme: "http", ForceHTTPS: true},
		{FrontHost: "wild.example", OriginHost: "upstream.example", OriginScheme: "https", Wildcard: true},
	})
}

func TestResolveExact(t *testing.T) {
	c := qt.New(t)
	m := newTestMap()

	entry, ok := m.Resolve("x.com")
	c.Assert(ok, qt.IsTrue)
	c.Assert(entry.OriginHost, qt.Equals, "www.google.com")
	c.Assert(entry.OriginScheme, qt.Equals, "https")
}

func TestResolveCaseAndPortInsensitive(t *testing.T) {
	c := qt.New(t)
	m := newTestMap()

	entry, ok := m.Resolve("X.COM:443")
	c.Assert(ok, qt.IsTrue)
	c.Assert(entry.OriginHost, qt.Equals, "www.google.com")
}

func TestResolveNotFound(t *testing.T) {
	c := qt.New(t)
	m := newTestMap()

	_, ok := m.Resolve("unmapped.example")
	c.Assert(ok, qt.IsFalse)

	// A subdomain of a non-wildcard entry must not match.
	_, ok = m.Resolve("img.x.com")
	c.Assert(ok, qt.IsFalse)
}

func TestResolveWildcard(t *testing.T) {
	c := qt.New(t)
	m := newTestMap()

	entry, ok := m.Resolve("img.wild.example")
	c.Assert(ok, qt.IsTrue)
	c.Assert(entry.FrontHost, qt.Equals, "img.wild.example")
	c.Assert(entry.OriginHost, qt.Equals, "img.upstream.example")
	c.Assert(entry.OriginScheme, qt.Equals, "https")

	// Deep subdomains keep the whole prefix.
	entry, ok = m.Resolve("a.b.wild.example")
	c.Assert(ok, qt.IsTrue)
	c.Assert(entry.OriginHost, qt.Equals, "a.b.upstream.example")

	// The apex itself resolves via the exact table.
	entry, ok = m.Resolve("wild.example")
	c.Assert(ok, qt.IsTrue)
	c.Assert(entry.OriginHost, qt.Equals, "upstream.example")
}

func TestResolveWildcardSuffixNotSubdomain(t *testing.T) {
	c := qt.New(t)
	m := newTestMap()

	// "notwild.example" ends with "wild.example" but is not a subdomain.
	_, ok := m.Resolve("notwild.example")
	c.Assert(ok, qt.IsFalse)
}

func TestResolveIdempotent(t *testing.T) {
	c := qt.New(t)
	m := newTestMap()

	for i := 0; i < 3; i++ {
		entry, ok := m.Resolve("img.wild.example")
		c.Assert(ok, qt.IsTrue)
		c.Assert(entry.OriginHost, qt.Equals, "img.upstream.example")

		_, ok = m.Resolve("missing.example")
		c.Assert(ok, qt.IsFalse)
	}
}
