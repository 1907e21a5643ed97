// Package domains holds the front-domain to origin lookup table.
//
// The table is built once at startup and never mutated afterwards, so it is
// safe for unsynchronized concurrent reads. Wildcard resolutions derive a new
// mapping per subdomain and are memoized in a small LRU behind a mutex.
package domains

import (
	"strings"
	"sync"

	"github.com/golang/groupcache/lru"
	"github.com/tidwall/match"

	"github.com/webglass/webglass/internal/helper"
)

const wildcardCacheSize = 1024

// Mapping describes one front domain and the origin it mirrors.
type Mapping struct {
	// FrontHost is the public hostname clients use, lowercase, no port.
	FrontHost string

	// OriginHost is the mirrored site's host, optionally with a port.
	OriginHost string

	// OriginScheme is "http" or "https".
	OriginScheme string

	// ForceHTTPS rewrites origin URLs to absolute https front URLs
	// regardless of the scheme the client used.
	ForceHTTPS bool

	// Wildcard extends this mapping to any subdomain of FrontHost,
	// carrying the subdomain prefix onto OriginHost.
	Wildcard bool
}

// Map resolves front hosts to mappings.
type Map struct {
	exact   map[string]*Mapping
	apexes  []*Mapping // wildcard-enabled entries, checked as suffixes
	cacheMu sync.Mutex
	wildLRU *lru.Cache
}

// NewMap builds an immutable lookup table from the given mappings.
// Front hosts are normalized to lowercase without ports.
func NewMap(mappings []Mapping) *Map {
	m := &Map{
		exact:   make(map[string]*Mapping, len(mappings)),
		wildLRU: lru.New(wildcardCacheSize),
	}
	for i := range mappings {
		entry := mappings[i]
		entry.FrontHost = helper.NormalizeHost(entry.FrontHost)
		m.exact[entry.FrontHost] = &entry
		if entry.Wildcard {
			m.apexes = append(m.apexes, &entry)
		}
	}
	return m
}

// Resolve maps a front host to its mapping. The host may carry a port and
// any case; comparison is canonical. A wildcard match returns a derived
// mapping with the subdomain prefix applied to both hosts.
func (m *Map) Resolve(frontHost string) (*Mapping, bool) {
	host := helper.NormalizeHost(frontHost)
	if entry, ok := m.exact[host]; ok {
		return entry, true
	}
	return m.resolveWildcard(host)
}

func (m *Map) resolveWildcard(host string) (*Mapping, bool) {
	if len(m.apexes) == 0 {
		return nil, false
	}

	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()

	if cached, ok := m.wildLRU.Get(host); ok {
		entry := cached.(*Mapping)
		return entry, entry != nil
	}

	for _, apex := range m.apexes {
		if !match.Match(host, "*."+apex.FrontHost) {
			continue
		}
		prefix := strings.TrimSuffix(host, "."+apex.FrontHost)
		derived := *apex
		derived.FrontHost = host
		derived.OriginHost = prefix + "." + apex.OriginHost
		m.wildLRU.Add(host, &derived)
		return &derived, true
	}

	// Negative entries are cached too: unmapped subdomains are a common
	// probe pattern and should not rescan the apex list every time.
	m.wildLRU.Add(host, (*Mapping)(nil))
	return nil, false
}
