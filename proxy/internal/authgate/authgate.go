// Package authgate implements the per-domain credential check that runs
// before any upstream traffic is generated. It fails closed: a protected
// domain with no matching account is denied.
package authgate

import (
	"net/http"
	"strings"

	"github.com/webglass/webglass/internal/helper"
)

// Account is one username/password pair.
type Account struct {
	Username string
	Password string
}

// Policy is the immutable authorization configuration.
type Policy struct {
	Enabled  bool
	Domains  []string // front hosts requiring credentials
	Accounts []Account
}

// Gate answers allow/deny for a resolved front host and request.
type Gate struct {
	enabled   bool
	protected map[string]struct{}
	suffixes  []string
	accounts  []Account
}

// New builds a Gate from a Policy. Domain entries are normalized the same
// way lookup keys are.
func New(policy Policy) *Gate {
	g := &Gate{
		enabled:   policy.Enabled,
		protected: make(map[string]struct{}, len(policy.Domains)),
		accounts:  policy.Accounts,
	}
	for _, d := range policy.Domains {
		normalized := helper.NormalizeHost(d)
		g.protected[normalized] = struct{}{}
		g.suffixes = append(g.suffixes, "."+normalized)
	}
	return g
}

// Protects reports whether the given front host requires credentials.
// Subdomains of a protected domain are protected too, so a wildcard mapping
// cannot be used to reach a protected apex without credentials.
func (g *Gate) Protects(frontHost string) bool {
	if !g.enabled {
		return false
	}
	host := helper.NormalizeHost(frontHost)
	if _, ok := g.protected[host]; ok {
		return true
	}
	for _, suffix := range g.suffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

// Authenticate checks the request's Basic credentials against the configured
// accounts. Unprotected hosts are always allowed. Comparison is exact and
// case-sensitive, both fields of a single account must match.
func (g *Gate) Authenticate(frontHost string, req *http.Request) bool {
	if !g.Protects(frontHost) {
		return true
	}
	username, password, ok := req.BasicAuth()
	if !ok {
		return false
	}
	for _, account := range g.accounts {
		if account.Username == username && account.Password == password {
			return true
		}
	}
	return false
}
