// Package config loads and validates the YAML configuration file consumed by
// the proxy. Configuration is read once at startup; every error here is
// fatal before the listener ever opens.
package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/webglass/webglass/proxy"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the on-disk configuration.
type Config struct {
	// ListenAddress is the host:port the proxy binds.
	ListenAddress string `yaml:"listen_address"`

	// SOCKS5Server, when set, routes every upstream connection through
	// the given SOCKS5 server (host:port).
	SOCKS5Server string `yaml:"socks5_server"`

	// DomainName maps front hosts to origin specs. An origin spec is
	// either a bare host (scheme defaults to https) or a full
	// "scheme://host[:port]".
	DomainName map[string]string `yaml:"domain_name"`

	// UseHTTPS lists front hosts whose rewritten URLs are forced to
	// absolute https regardless of the client's scheme.
	UseHTTPS []string `yaml:"use_https"`

	// WildcardDomains lists front hosts whose subdomains also map,
	// carrying the subdomain prefix onto the origin host.
	WildcardDomains []string `yaml:"wildcard_domains"`

	Authorization Authorization `yaml:"authorization"`

	// ReadTimeout bounds the wait for origin response headers.
	ReadTimeout Duration `yaml:"read_timeout"`

	// MaxConnections caps concurrent client connections (0 = unlimited).
	MaxConnections int `yaml:"max_connections"`
}

// Authorization is the credential gate configuration.
type Authorization struct {
	Enabled    bool      `yaml:"enabled"`
	DomainList []string  `yaml:"domain_list"`
	Account    []Account `yaml:"account"`
}

// Account is one username/password pair.
type Account struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Load reads, parses and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for the mistakes that would otherwise
// surface as confusing behavior at request time.
func (c *Config) Validate() error {
	if c.ListenAddress == "" {
		return fmt.Errorf("listen_address is required")
	}
	if _, _, err := net.SplitHostPort(c.ListenAddress); err != nil {
		return fmt.Errorf("listen_address: %w", err)
	}
	if c.SOCKS5Server != "" {
		if _, _, err := net.SplitHostPort(c.SOCKS5Server); err != nil {
			return fmt.Errorf("socks5_server: %w", err)
		}
	}
	if len(c.DomainName) == 0 {
		return fmt.Errorf("domain_name must contain at least one mapping")
	}

	fronts := lo.Keys(c.DomainName)

	// Body rewriting is plain substitution, so no front domain may be a
	// substring of another: both rules would fire on the same bytes.
	for _, a := range fronts {
		for _, b := range fronts {
			if a != b && strings.Contains(b, a) {
				return fmt.Errorf("conflicting front domains %q and %q", b, a)
			}
		}
	}

	for _, spec := range c.DomainName {
		if _, _, err := parseOriginSpec(spec); err != nil {
			return err
		}
	}

	if unknown := lo.Without(c.UseHTTPS, fronts...); len(unknown) > 0 {
		return fmt.Errorf("use_https lists unmapped domains: %s", strings.Join(unknown, ", "))
	}
	if unknown := lo.Without(c.WildcardDomains, fronts...); len(unknown) > 0 {
		return fmt.Errorf("wildcard_domains lists unmapped domains: %s", strings.Join(unknown, ", "))
	}

	if c.Authorization.Enabled {
		if len(c.Authorization.Account) == 0 {
			return fmt.Errorf("authorization is enabled but no accounts are configured")
		}
		for _, account := range c.Authorization.Account {
			if account.Username == "" {
				return fmt.Errorf("authorization accounts must have a username")
			}
		}
		if unknown := lo.Without(c.Authorization.DomainList, fronts...); len(unknown) > 0 {
			return fmt.Errorf("authorization domain_list lists unmapped domains: %s", strings.Join(unknown, ", "))
		}
	}

	return nil
}

// Mappings converts the domain table to proxy mappings.
func (c *Config) Mappings() ([]proxy.Mapping, error) {
	mappings := make([]proxy.Mapping, 0, len(c.DomainName))
	for front, spec := range c.DomainName {
		scheme, host, err := parseOriginSpec(spec)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, proxy.Mapping{
			FrontHost:    front,
			OriginHost:   host,
			OriginScheme: scheme,
			ForceHTTPS:   lo.Contains(c.UseHTTPS, front),
			Wildcard:     lo.Contains(c.WildcardDomains, front),
		})
	}
	return mappings, nil
}

// AuthPolicy converts the authorization section to a proxy policy.
func (c *Config) AuthPolicy() proxy.AuthPolicy {
	accounts := lo.Map(c.Authorization.Account, func(a Account, _ int) proxy.Account {
		return proxy.Account{Username: a.Username, Password: a.Password}
	})
	return proxy.AuthPolicy{
		Enabled:  c.Authorization.Enabled,
		Domains:  c.Authorization.DomainList,
		Accounts: accounts,
	}
}

// parseOriginSpec splits an origin spec into scheme and host. Bare hosts
// default to https.
func parseOriginSpec(spec string) (scheme, host string, err error) {
	scheme, host = "https", spec
	if s, h, found := strings.Cut(spec, "://"); found {
		scheme, host = s, h
	}
	host = strings.TrimSuffix(host, "/")
	if scheme != "http" && scheme != "https" {
		return "", "", fmt.Errorf("origin %q: unsupported scheme %q", spec, scheme)
	}
	if host == "" {
		return "", "", fmt.Errorf("origin %q: missing host", spec)
	}
	if strings.ContainsAny(host, "/?#") {
		return "", "", fmt.Errorf("origin %q: must be scheme://host[:port] without a path", spec)
	}
	return scheme, host, nil
}
