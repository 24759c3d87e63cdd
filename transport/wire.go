// Copyright 2026 The TermTalk Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/xzyqiu/TermTalk/lib/clock"
)

// lineConn wraps a connection with newline-delimited line I/O and
// per-operation deadlines. Both the handshake token exchange and the
// sealed frame stream are line-oriented; the scanner's buffer cap
// enforces the per-line size limit (a line that outgrows it surfaces
// bufio.ErrTooLong, which callers treat as fatal).
type lineConn struct {
	conn    net.Conn
	scanner *bufio.Scanner
	clock   clock.Clock
	timeout time.Duration
}

func newLineConn(conn net.Conn, c clock.Clock, timeout time.Duration) *lineConn {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, readChunk), maxFrameLine)
	return &lineConn{conn: conn, scanner: scanner, clock: c, timeout: timeout}
}

// readLine returns the next line without its terminator. io.EOF,
// timeouts, and oversized lines all surface as errors; the caller
// decides which are fatal. A zero timeout blocks indefinitely.
func (l *lineConn) readLine() (string, error) {
	if err := l.conn.SetReadDeadline(l.deadline()); err != nil {
		return "", fmt.Errorf("setting read deadline: %w", err)
	}
	if !l.scanner.Scan() {
		if err := l.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimRight(l.scanner.Text(), "\r"), nil
}

// deadline computes the next I/O deadline; zero timeout means none.
func (l *lineConn) deadline() time.Time {
	if l.timeout <= 0 {
		return time.Time{}
	}
	return l.clock.Now().Add(l.timeout)
}

// writeLine writes s followed by a newline.
func (l *lineConn) writeLine(s string) error {
	if err := l.conn.SetWriteDeadline(l.deadline()); err != nil {
		return fmt.Errorf("setting write deadline: %w", err)
	}
	if _, err := l.conn.Write([]byte(s + "\n")); err != nil {
		return fmt.Errorf("writing line: %w", err)
	}
	return nil
}

// readToken reads one handshake token line and validates it: non-empty
// and within the token size cap.
func (l *lineConn) readToken() (string, error) {
	token, err := l.readLine()
	if err != nil {
		return "", fmt.Errorf("reading handshake token: %w", err)
	}
	if token == "" {
		return "", fmt.Errorf("empty handshake token")
	}
	if len(token) > maxTokenLine {
		return "", fmt.Errorf("handshake token exceeds %d bytes", maxTokenLine)
	}
	return token, nil
}
