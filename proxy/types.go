package proxy

import (
	"github.com/webglass/webglass/proxy/internal/authgate"
	"github.com/webglass/webglass/proxy/internal/domains"
)

// Re-export types from internal packages for external use.

type (
	// Mapping describes one front domain and the origin it mirrors.
	Mapping = domains.Mapping

	// AuthPolicy is the immutable authorization configuration.
	AuthPolicy = authgate.Policy

	// Account is one username/password pair.
	Account = authgate.Account
)
