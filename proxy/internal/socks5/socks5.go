// Package socks5 implements the client side of the SOCKS5 CONNECT handshake
// (RFC 1928). Only the no-authentication method is offered; a server that
// insists on credentials is treated as a connect failure. One attempt per
// call, no retries.
package socks5

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"
)

const (
	socks5Version = 0x05

	methodNoAuth        = 0x00
	noAcceptableMethods = 0xFF

	cmdConnect = 0x01

	addrTypeIPv4   = 0x01
	addrTypeDomain = 0x03
	addrTypeIPv6   = 0x04

	replySuccess = 0x00
)

var replyText = map[byte]string{
	0x01: "general SOCKS server failure",
	0x02: "connection not allowed by ruleset",
	0x03: "network unreachable",
	0x04: "host unreachable",
	0x05: "connection refused",
	0x06: "TTL expired",
	0x07: "command not supported",
	0x08: "address type not supported",
}

// Dialer opens connections through a SOCKS5 server.
type Dialer struct {
	// Server is the SOCKS5 server address as host:port.
	Server string

	// Forward establishes the raw connection to Server.
	// Defaults to a plain net.Dialer.
	Forward *net.Dialer
}

// DialContext connects to addr ("host:port") through the SOCKS5 server.
// The handshake honours the context deadline; on any failure the underlying
// connection is closed and an error is returned.
func (d *Dialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if network != "tcp" {
		return nil, fmt.Errorf("socks5: unsupported network %q", network)
	}

	forward := d.Forward
	if forward == nil {
		forward = &net.Dialer{}
	}
	conn, err := forward.DialContext(ctx, "tcp", d.Server)
	if err != nil {
		return nil, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if err := handshake(conn, addr); err != nil {
		conn.Close()
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})
	return conn, nil
}

// handshake performs the greeting, method selection and CONNECT exchange.
// States: greeting sent -> method chosen -> connect sent -> connect acked.
func handshake(conn net.Conn, addr string) error {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("socks5: invalid target address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 0xFFFF {
		return fmt.Errorf("socks5: invalid target port %q", portStr)
	}

	// Greeting: we offer exactly one method, no-auth.
	if _, err := conn.Write([]byte{socks5Version, 0x01, methodNoAuth}); err != nil {
		return fmt.Errorf("socks5: write greeting: %w", err)
	}
	var method [2]byte
	if _, err := io.ReadFull(conn, method[:]); err != nil {
		return fmt.Errorf("socks5: read method selection: %w", err)
	}
	if method[0] != socks5Version {
		return fmt.Errorf("socks5: unexpected version 0x%02x", method[0])
	}
	if method[1] == noAcceptableMethods {
		return errors.New("socks5: server requires authentication")
	}
	if method[1] != methodNoAuth {
		return fmt.Errorf("socks5: server chose unsupported method 0x%02x", method[1])
	}

	req, err := connectRequest(host, uint16(port))
	if err != nil {
		return err
	}
	if _, err := conn.Write(req); err != nil {
		return fmt.Errorf("socks5: write connect request: %w", err)
	}

	var reply [4]byte
	if _, err := io.ReadFull(conn, reply[:]); err != nil {
		return fmt.Errorf("socks5: read connect reply: %w", err)
	}
	if reply[0] != socks5Version {
		return fmt.Errorf("socks5: unexpected reply version 0x%02x", reply[0])
	}
	if reply[1] != replySuccess {
		if text, ok := replyText[reply[1]]; ok {
			return errors.New("socks5: " + text)
		}
		return fmt.Errorf("socks5: connect failed with code 0x%02x", reply[1])
	}

	// Drain the bound address so the stream is positioned at payload bytes.
	var skip int
	switch reply[3] {
	case addrTypeIPv4:
		skip = net.IPv4len + 2
	case addrTypeIPv6:
		skip = net.IPv6len + 2
	case addrTypeDomain:
		var n [1]byte
		if _, err := io.ReadFull(conn, n[:]); err != nil {
			return fmt.Errorf("socks5: read bound address: %w", err)
		}
		skip = int(n[0]) + 2
	default:
		return fmt.Errorf("socks5: unknown bound address type 0x%02x", reply[3])
	}
	if _, err := io.CopyN(io.Discard, conn, int64(skip)); err != nil {
		return fmt.Errorf("socks5: read bound address: %w", err)
	}
	return nil
}

// connectRequest encodes a CONNECT message for the target. IP literals use
// the IPv4/IPv6 address types, anything else is sent as a domain name so the
// SOCKS server resolves it.
func connectRequest(host string, port uint16) ([]byte, error) {
	buf := []byte{socks5Version, cmdConnect, 0x00}

	if ip := net.ParseIP(host); ip != nil {
		if ip4 := ip.To4(); ip4 != nil {
			buf = append(buf, addrTypeIPv4)
			buf = append(buf, ip4...)
		} else {
			buf = append(buf, addrTypeIPv6)
			buf = append(buf, ip.To16()...)
		}
	} else {
		if len(host) > 255 {
			return nil, fmt.Errorf("socks5: target host too long: %q", host)
		}
		buf = append(buf, addrTypeDomain, byte(len(host)))
		buf = append(buf, host...)
	}

	return binary.BigEndian.AppendUint16(buf, port), nil
}
