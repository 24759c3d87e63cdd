// Copyright 2026 The TermTalk Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/xzyqiu/TermTalk/lib/clock"
	"github.com/xzyqiu/TermTalk/lib/handshake"
	"github.com/xzyqiu/TermTalk/lib/ident"
	"github.com/xzyqiu/TermTalk/lib/sealed"
)

// Host endpoint defaults.
const (
	defaultMaxConnections = 50
	defaultMaxPerSource   = 5
	defaultAcceptTimeout  = 30 * time.Second
	defaultIdleTimeout    = 60 * time.Second
)

// HostConfig configures a Host endpoint. Address is required; zero
// values elsewhere take the defaults above.
type HostConfig struct {
	// Address is the listen address, e.g. "0.0.0.0:7500" or
	// "127.0.0.1:0" for a random port.
	Address string

	// MaxConnections caps live connections across all sources.
	MaxConnections int

	// MaxPerSource caps live connections per source IP.
	MaxPerSource int

	// AcceptTimeout bounds each Accept call so the loop observes
	// shutdown promptly.
	AcceptTimeout time.Duration

	// IdleTimeout bounds each read on an established connection.
	IdleTimeout time.Duration

	// CheckPassword compares a submitted password against the room's
	// stored hash, in constant time. Nil means the room has no
	// password and the gate is skipped entirely.
	CheckPassword func(password string) bool

	// OnJoin and OnLeave are invoked with the peer identifier after a
	// session is registered and after it is torn down. Optional; used
	// for user-visible notifications. Called from connection handler
	// goroutines.
	OnJoin  func(peerID string)
	OnLeave func(peerID string)

	// OnMessage receives each successfully decrypted message from any
	// peer, tagged with the sender's identifier. Optional.
	OnMessage func(peerID, message string)

	// Logger receives connection lifecycle events. Nil means
	// slog.Default().
	Logger *slog.Logger

	// Clock overrides the time source. Nil means clock.Real().
	Clock clock.Clock
}

// session is one authenticated peer connection.
type session struct {
	peerID      string
	conn        net.Conn
	channel     *sealed.Channel
	established time.Time
}

// Host accepts peer connections, establishes a secure channel with
// each, optionally gates them by password, and relays encrypted lines.
// Create with NewHost, start with ListenAndServe or Serve, stop with
// Shutdown.
type Host struct {
	cfg       HostConfig
	logger    *slog.Logger
	clock     clock.Clock
	admission *admission

	mu       sync.Mutex
	sessions map[string]*session
	conns    map[net.Conn]struct{}
	listener net.Listener
	closed   bool

	handlers sync.WaitGroup
}

// NewHost validates cfg and builds a Host. It does not open the
// listening socket.
func NewHost(cfg HostConfig) (*Host, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("host: Address is required")
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = defaultMaxConnections
	}
	if cfg.MaxPerSource <= 0 {
		cfg.MaxPerSource = defaultMaxPerSource
	}
	if cfg.AcceptTimeout <= 0 {
		cfg.AcceptTimeout = defaultAcceptTimeout
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeSource := cfg.Clock
	if timeSource == nil {
		timeSource = clock.Real()
	}
	return &Host{
		cfg:       cfg,
		logger:    logger,
		clock:     timeSource,
		admission: newAdmission(cfg.MaxConnections, cfg.MaxPerSource, timeSource),
		sessions:  make(map[string]*session),
		conns:     make(map[net.Conn]struct{}),
	}, nil
}

// ListenAndServe opens the configured listen address and runs the
// accept loop. Blocks until Shutdown.
func (h *Host) ListenAndServe() error {
	listener, err := net.Listen("tcp", h.cfg.Address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", h.cfg.Address, err)
	}
	return h.Serve(listener)
}

// Serve runs the accept loop on an existing listener. Blocks until
// Shutdown. Returns nil on clean shutdown.
func (h *Host) Serve(listener net.Listener) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		listener.Close()
		return nil
	}
	h.listener = listener
	h.mu.Unlock()

	type deadlineListener interface {
		SetDeadline(t time.Time) error
	}

	for {
		if dl, ok := listener.(deadlineListener); ok {
			// Bound Accept so the loop re-checks the shutdown flag even
			// if no connection ever arrives.
			_ = dl.SetDeadline(h.clock.Now().Add(h.cfg.AcceptTimeout))
		}
		conn, err := listener.Accept()
		if err != nil {
			if h.isClosed() {
				return nil
			}
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			// Transient accept error (EMFILE, aborted connection):
			// log and keep serving. No single failure takes the
			// endpoint down.
			h.logger.Warn("accept error", "error", err)
			continue
		}

		ip := sourceIP(conn)
		if !h.admission.admit(ip) {
			// Silent close: rejected parties get no diagnostic to
			// probe against.
			conn.Close()
			continue
		}

		h.handlers.Add(1)
		go func() {
			defer h.handlers.Done()
			h.handleConnection(conn, ip)
		}()
	}
}

// Address returns the listener's address in "host:port" form, or ""
// before Serve.
func (h *Host) Address() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listener == nil {
		return ""
	}
	return h.listener.Addr().String()
}

// handleConnection runs the per-connection protocol: token exchange,
// secret derivation, optional password gate, session registration, and
// the steady-state message loop. Any failure is fatal for this
// connection only.
func (h *Host) handleConnection(conn net.Conn, ip string) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		h.admission.release(ip)
		return
	}
	h.conns[conn] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.conns, conn)
		h.mu.Unlock()
		conn.Close()
		h.admission.release(ip)
	}()

	line := newLineConn(conn, h.clock, h.cfg.IdleTimeout)

	ownKeys, err := handshake.Generate()
	if err != nil {
		h.logger.Error("generating handshake keys", "error", err)
		return
	}
	if err := line.writeLine(ownKeys.PublicKeyToken()); err != nil {
		h.logger.Debug("sending public key", "source", ip, "error", err)
		return
	}
	peerToken, err := line.readToken()
	if err != nil {
		h.logger.Debug("handshake failed", "source", ip, "error", err)
		return
	}
	secret, err := ownKeys.DeriveSharedSecret(peerToken)
	if err != nil {
		h.logger.Debug("deriving shared secret", "source", ip, "error", err)
		return
	}
	channel, err := sealed.NewChannel(secret)
	if err != nil {
		h.logger.Error("building secure channel", "error", err)
		return
	}

	if h.cfg.CheckPassword != nil {
		err := runHostGate(line, channel, h.cfg.CheckPassword, func() {
			h.admission.ban(ip)
			h.logger.Info("source banned after failed password attempts", "source", ip)
		})
		if err != nil {
			h.logger.Debug("password gate failed", "source", ip, "error", err)
			return
		}
	}

	peerID, err := ident.PeerID()
	if err != nil {
		h.logger.Error("generating peer id", "error", err)
		return
	}
	sess := &session{
		peerID:      peerID,
		conn:        conn,
		channel:     channel,
		established: h.clock.Now(),
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.sessions[peerID] = sess
	h.mu.Unlock()

	h.logger.Info("peer joined", "peer", peerID)
	if h.cfg.OnJoin != nil {
		h.cfg.OnJoin(peerID)
	}

	h.messageLoop(line, sess)

	h.mu.Lock()
	delete(h.sessions, peerID)
	h.mu.Unlock()

	h.logger.Info("peer left", "peer", peerID, "duration", h.clock.Now().Sub(sess.established))
	if h.cfg.OnLeave != nil {
		h.cfg.OnLeave(peerID)
	}
}

// messageLoop reads sealed frames from one session until end-of-stream,
// a read timeout, or an oversized line. Authentication failures are
// non-fatal: transient corruption is logged and skipped rather than
// tearing down an otherwise healthy session.
func (h *Host) messageLoop(line *lineConn, sess *session) {
	for {
		frame, err := line.readLine()
		if err != nil {
			return
		}
		message, err := sess.channel.Open(frame)
		if err != nil {
			h.logger.Warn("dropping undecryptable frame", "peer", sess.peerID, "error", err)
			continue
		}
		if h.cfg.OnMessage != nil {
			h.cfg.OnMessage(sess.peerID, message)
		}
	}
}

// Broadcast seals message independently for every registered session
// and writes it. Iteration runs over a snapshot, so concurrent joins
// and leaves cannot corrupt it; a write failure to one peer is logged
// and does not affect delivery to the others.
func (h *Host) Broadcast(message string) {
	h.mu.Lock()
	snapshot := make([]*session, 0, len(h.sessions))
	for _, sess := range h.sessions {
		snapshot = append(snapshot, sess)
	}
	h.mu.Unlock()

	for _, sess := range snapshot {
		frame, err := sess.channel.Seal(message)
		if err != nil {
			h.logger.Warn("seal failed during broadcast", "peer", sess.peerID, "error", err)
			continue
		}
		_ = sess.conn.SetWriteDeadline(h.clock.Now().Add(h.cfg.IdleTimeout))
		if _, err := sess.conn.Write([]byte(frame + "\n")); err != nil {
			h.logger.Warn("broadcast write failed", "peer", sess.peerID, "error", err)
		}
	}
}

// PeerCount returns the number of registered sessions.
func (h *Host) PeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Shutdown stops accepting, closes the listening socket and all
// session connections, and waits for every connection handler to
// exit. Idempotent.
func (h *Host) Shutdown() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	listener := h.listener
	conns := make([]net.Conn, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	if listener != nil {
		listener.Close()
	}
	// Closing live sockets (sessions and handshakes in flight) forces
	// blocked reads in the handlers to return, so the drain below
	// terminates promptly instead of waiting out idle timeouts.
	for _, conn := range conns {
		conn.Close()
	}
	h.handlers.Wait()
	return nil
}

func (h *Host) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}
