// Copyright 2026 The TermTalk Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/xzyqiu/TermTalk/lib/clock"
	"github.com/xzyqiu/TermTalk/lib/handshake"
	"github.com/xzyqiu/TermTalk/lib/sealed"
)

// defaultPeerTimeout bounds peer-side dial, handshake, and gate I/O.
const defaultPeerTimeout = 30 * time.Second

// PeerConfig configures a Peer endpoint. Address is required.
type PeerConfig struct {
	// Address is the host endpoint to connect to, "host:port".
	Address string

	// Dialer opens the connection. Nil means a direct TCPDialer; pass
	// a SOCKS5Dialer to route through a proxy.
	Dialer Dialer

	// Password supplies the room password when the host challenges.
	// Nil fails the gate if the host requires a password.
	Password PasswordFunc

	// OnMessage receives each decrypted incoming message. Optional.
	OnMessage func(message string)

	// Timeout bounds dial, handshake, and gate operations. Zero means
	// 30 seconds.
	Timeout time.Duration

	// Logger receives connection events. Nil means slog.Default().
	Logger *slog.Logger

	// Clock overrides the time source. Nil means clock.Real().
	Clock clock.Clock
}

// Peer is the connecting side of a session: it dials one host,
// performs the mirror handshake, answers the password gate, and runs a
// receive loop on its own goroutine.
type Peer struct {
	cfg    PeerConfig
	logger *slog.Logger
	clock  clock.Clock

	mu      sync.Mutex
	conn    net.Conn
	channel *sealed.Channel

	// authenticated closes when the gate admits the session;
	// done closes when the receive loop exits, with failure recorded
	// in err.
	authenticated chan struct{}
	done          chan struct{}
	err           error
}

// NewPeer validates cfg and builds a Peer. It does not connect.
func NewPeer(cfg PeerConfig) (*Peer, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("peer: Address is required")
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &TCPDialer{Timeout: defaultPeerTimeout}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultPeerTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeSource := cfg.Clock
	if timeSource == nil {
		timeSource = clock.Real()
	}
	return &Peer{
		cfg:           cfg,
		logger:        logger,
		clock:         timeSource,
		authenticated: make(chan struct{}),
		done:          make(chan struct{}),
	}, nil
}

// Connect dials the host, exchanges handshake tokens, and derives the
// secure channel, then starts the receive loop (which answers the
// password gate as its first phase). After Connect returns nil, Send
// is usable; whether the host ultimately admits the session is
// reported through Authenticated and Err.
func (p *Peer) Connect(ctx context.Context) error {
	conn, err := p.cfg.Dialer.DialContext(ctx, p.cfg.Address)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", p.cfg.Address, err)
	}

	line := newLineConn(conn, p.clock, p.cfg.Timeout)

	// The host speaks first: read its token, then send ours.
	hostToken, err := line.readToken()
	if err != nil {
		conn.Close()
		return fmt.Errorf("receiving host key: %w", err)
	}
	ownKeys, err := handshake.Generate()
	if err != nil {
		conn.Close()
		return fmt.Errorf("generating handshake keys: %w", err)
	}
	if err := line.writeLine(ownKeys.PublicKeyToken()); err != nil {
		conn.Close()
		return fmt.Errorf("sending public key: %w", err)
	}
	secret, err := ownKeys.DeriveSharedSecret(hostToken)
	if err != nil {
		conn.Close()
		return fmt.Errorf("deriving shared secret: %w", err)
	}
	channel, err := sealed.NewChannel(secret)
	if err != nil {
		conn.Close()
		return fmt.Errorf("building secure channel: %w", err)
	}

	p.mu.Lock()
	p.conn = conn
	p.channel = channel
	p.mu.Unlock()

	go p.receiveLoop(line, channel)
	return nil
}

// receiveLoop answers the password gate, then reads sealed frames
// until end-of-stream or a fatal error. Decode failures in the steady
// state are logged and skipped.
func (p *Peer) receiveLoop(line *lineConn, channel *sealed.Channel) {
	defer close(p.done)

	leftover, err := runPeerGate(line, channel, p.cfg.Password)
	if err != nil {
		p.err = err
		p.logger.Debug("gate failed", "error", err)
		p.closeConn()
		return
	}
	close(p.authenticated)
	if leftover != "" && p.cfg.OnMessage != nil {
		p.cfg.OnMessage(leftover)
	}

	// Steady state: block on reads indefinitely. The host's idle
	// timeout, not ours, reaps quiet connections.
	line.timeout = 0

	for {
		frame, err := line.readLine()
		if err != nil {
			return
		}
		message, err := channel.Open(frame)
		if err != nil {
			p.logger.Warn("dropping undecryptable frame", "error", err)
			continue
		}
		if p.cfg.OnMessage != nil {
			p.cfg.OnMessage(message)
		}
	}
}

// Send seals message and writes it to the host. Fails with
// [ErrNotConnected] before Connect completes.
func (p *Peer) Send(message string) error {
	p.mu.Lock()
	conn, channel := p.conn, p.channel
	p.mu.Unlock()
	if channel == nil {
		return ErrNotConnected
	}

	frame, err := channel.Seal(message)
	if err != nil {
		return fmt.Errorf("sealing message: %w", err)
	}
	_ = conn.SetWriteDeadline(p.clock.Now().Add(p.cfg.Timeout))
	if _, err := conn.Write([]byte(frame + "\n")); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	return nil
}

// Authenticated returns a channel closed once the host admits the
// session (the gate completed). It never closes if the gate fails;
// select against Done.
func (p *Peer) Authenticated() <-chan struct{} { return p.authenticated }

// Done returns a channel closed when the receive loop exits, whether
// by disconnect, ban, or Close.
func (p *Peer) Done() <-chan struct{} { return p.done }

// Err returns the terminal failure, if any. Valid after Done closes.
// A ban reports [ErrBanned].
func (p *Peer) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Close closes the connection; the receive loop exits via read error.
func (p *Peer) Close() error {
	p.closeConn()
	return nil
}

func (p *Peer) closeConn() {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}
