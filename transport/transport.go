// Copyright 2026 The TermTalk Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/proxy"
)

// Compile-time interface checks.
var (
	_ Dialer = (*TCPDialer)(nil)
	_ Dialer = (*SOCKS5Dialer)(nil)
)

var (
	// ErrNotConnected indicates a Send before the secure channel was
	// established.
	ErrNotConnected = errors.New("not connected")

	// ErrBanned indicates the host banned this peer's source address
	// after repeated password failures. Terminal: reconnecting from
	// the same address is rejected at accept time.
	ErrBanned = errors.New("banned by host")
)

// Wire protocol limits. Token lines carry one base64-encoded public
// key; frame lines carry one sealed message.
const (
	// maxTokenLine caps the handshake token read. A raw X25519 key is
	// 32 bytes, 44 base64 characters; anything near the cap is junk.
	maxTokenLine = 512

	// maxFrameLine caps a single sealed frame line. Reads beyond this
	// close the connection.
	maxFrameLine = 64 * 1024

	// readChunk is the initial read buffer size for the frame scanner.
	readChunk = 4096
)

// Dialer opens outbound connections to a host endpoint. The address
// format is "host:port", matching what the host publishes in the room
// directory.
type Dialer interface {
	DialContext(ctx context.Context, address string) (net.Conn, error)
}

// TCPDialer opens direct TCP connections.
type TCPDialer struct {
	// Timeout bounds connection establishment. Zero means only the
	// context deadline applies.
	Timeout time.Duration
}

// DialContext opens a TCP connection to address.
func (d *TCPDialer) DialContext(ctx context.Context, address string) (net.Conn, error) {
	return (&net.Dialer{Timeout: d.Timeout}).DialContext(ctx, "tcp", address)
}

// SOCKS5Dialer routes connections through a SOCKS5 proxy, typically a
// local Tor daemon on 127.0.0.1:9050. The proxy sees the destination
// address; the destination sees the proxy's address.
type SOCKS5Dialer struct {
	// ProxyAddress is the SOCKS5 proxy endpoint, e.g. "127.0.0.1:9050".
	ProxyAddress string

	// Timeout bounds establishment of the proxy connection.
	Timeout time.Duration
}

// DialContext opens a connection to address through the proxy.
func (d *SOCKS5Dialer) DialContext(ctx context.Context, address string) (net.Conn, error) {
	base := &net.Dialer{Timeout: d.Timeout}
	socksDialer, err := proxy.SOCKS5("tcp", d.ProxyAddress, nil, base)
	if err != nil {
		return nil, fmt.Errorf("configuring SOCKS5 proxy %s: %w", d.ProxyAddress, err)
	}
	// The x/net SOCKS5 dialer implements ContextDialer; the assertion
	// guards against a future implementation change.
	if contextDialer, ok := socksDialer.(proxy.ContextDialer); ok {
		return contextDialer.DialContext(ctx, "tcp", address)
	}
	return socksDialer.Dial("tcp", address)
}

// sourceIP extracts the IP portion of a connection's remote address.
// Admission control keys on this.
func sourceIP(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}
