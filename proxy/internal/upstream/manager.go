// Package upstream acquires network connections to origin servers, either
// directly or through a configured SOCKS5 server.
package upstream

import (
	"context"
	"net"
	"time"

	"github.com/webglass/webglass/proxy/internal/socks5"
)

// Manager hands out upstream connections. When a SOCKS5 server is
// configured, every origin connection is negotiated through it regardless of
// the target scheme; otherwise plain TCP is used. TLS to https origins is
// layered on top by the caller (net/http.Transport).
type Manager struct {
	socks5Server string
	dialer       *net.Dialer
	socksDialer  *socks5.Dialer
}

// NewManager creates a Manager. socks5Server may be empty for direct
// connections. dialTimeout bounds the TCP (and SOCKS5 handshake) phase.
func NewManager(socks5Server string, dialTimeout time.Duration) *Manager {
	nd := &net.Dialer{Timeout: dialTimeout}
	m := &Manager{
		socks5Server: socks5Server,
		dialer:       nd,
	}
	if socks5Server != "" {
		m.socksDialer = &socks5.Dialer{Server: socks5Server, Forward: nd}
	}
	return m
}

// ViaSOCKS5 reports whether connections are routed through a SOCKS5 server.
func (m *Manager) ViaSOCKS5() bool {
	return m.socksDialer != nil
}

// DialContext opens one connection to addr ("host:port"). It is shaped to
// plug into http.Transport.DialContext. A single attempt is made; all
// failure modes (DNS, TCP, SOCKS5 negotiation) surface as the returned error.
func (m *Manager) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if m.socksDialer != nil {
		return m.socksDialer.DialContext(ctx, network, addr)
	}
	return m.dialer.DialContext(ctx, network, addr)
}
