// Copyright 2026 The TermTalk Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"crypto/rand"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/xzyqiu/TermTalk/lib/clock"
	"github.com/xzyqiu/TermTalk/lib/sealed"
	"github.com/xzyqiu/TermTalk/lib/testutil"
)

// gatePair builds both ends of a password gate over net.Pipe: a host
// lineConn and channel, and the mirror pair for the peer. Both
// channels share one key, as they would after a real handshake.
func gatePair(t *testing.T) (host, peer *lineConn, hostChannel, peerChannel *sealed.Channel) {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generating key: %v", err)
	}
	hostConn, peerConn := net.Pipe()
	t.Cleanup(func() {
		hostConn.Close()
		peerConn.Close()
	})
	hostChannel, err := sealed.NewChannel(key)
	if err != nil {
		t.Fatalf("NewChannel() error: %v", err)
	}
	peerChannel, err = sealed.NewChannel(key)
	if err != nil {
		t.Fatalf("NewChannel() error: %v", err)
	}
	timeSource := clock.Real()
	return newLineConn(hostConn, timeSource, 5*time.Second),
		newLineConn(peerConn, timeSource, 5*time.Second),
		hostChannel, peerChannel
}

func checkAgainst(want string) func(string) bool {
	return func(got string) bool { return got == want }
}

func TestGate_CorrectPasswordFirstTry(t *testing.T) {
	hostLine, peerLine, hostChannel, peerChannel := gatePair(t)

	hostResult := make(chan error, 1)
	go func() {
		hostResult <- runHostGate(hostLine, hostChannel, checkAgainst("abc123"), func() {
			t.Error("ban invoked for a correct password")
		})
	}()

	leftover, err := runPeerGate(peerLine, peerChannel, func(remaining int) (string, error) {
		if remaining != 0 {
			t.Errorf("first prompt reported %d attempts remaining, want 0", remaining)
		}
		return "abc123", nil
	})
	if err != nil {
		t.Fatalf("runPeerGate() error: %v", err)
	}
	if leftover != "" {
		t.Errorf("runPeerGate() leftover = %q, want empty", leftover)
	}
	if err := testutil.RequireReceive(t, hostResult, 5*time.Second, "host gate result"); err != nil {
		t.Fatalf("runHostGate() error: %v", err)
	}
}

func TestGate_RetryAfterIncorrect(t *testing.T) {
	hostLine, peerLine, hostChannel, peerChannel := gatePair(t)

	hostResult := make(chan error, 1)
	go func() {
		hostResult <- runHostGate(hostLine, hostChannel, checkAgainst("abc123"), func() {
			t.Error("ban invoked before attempts were exhausted")
		})
	}()

	var prompts []int
	_, err := runPeerGate(peerLine, peerChannel, func(remaining int) (string, error) {
		prompts = append(prompts, remaining)
		if len(prompts) == 1 {
			return "wrong", nil
		}
		return "abc123", nil
	})
	if err != nil {
		t.Fatalf("runPeerGate() error: %v", err)
	}
	if err := testutil.RequireReceive(t, hostResult, 5*time.Second, "host gate result"); err != nil {
		t.Fatalf("runHostGate() error: %v", err)
	}

	// First prompt: no count reported yet. Second prompt: the host
	// said PASSWORD_INCORRECT:2.
	if len(prompts) != 2 || prompts[0] != 0 || prompts[1] != 2 {
		t.Errorf("prompt sequence = %v, want [0 2]", prompts)
	}
}

func TestGate_BanAfterThreeFailures(t *testing.T) {
	hostLine, peerLine, hostChannel, peerChannel := gatePair(t)

	banned := make(chan struct{})
	hostResult := make(chan error, 1)
	go func() {
		hostResult <- runHostGate(hostLine, hostChannel, checkAgainst("abc123"), func() {
			close(banned)
		})
	}()

	attempts := 0
	_, err := runPeerGate(peerLine, peerChannel, func(int) (string, error) {
		attempts++
		return "always-wrong", nil
	})
	if !errors.Is(err, ErrBanned) {
		t.Fatalf("runPeerGate() error = %v, want ErrBanned", err)
	}
	if attempts != maxPasswordAttempts {
		t.Errorf("peer was prompted %d times, want %d", attempts, maxPasswordAttempts)
	}

	hostErr := testutil.RequireReceive(t, hostResult, 5*time.Second, "host gate result")
	if !errors.Is(hostErr, ErrBanned) {
		t.Errorf("runHostGate() error = %v, want ErrBanned", hostErr)
	}
	testutil.RequireClosed(t, banned, 5*time.Second, "ban callback")
}

func TestGate_PasswordlessHostFirstFrameIsChat(t *testing.T) {
	// A host without a password never runs the gate; the first sealed
	// frame the peer sees is ordinary traffic. The peer gate must hand
	// it back as leftover rather than swallowing it.
	hostLine, peerLine, hostChannel, peerChannel := gatePair(t)

	go func() {
		frame, err := hostChannel.Seal("welcome to the room")
		if err != nil {
			t.Errorf("Seal() error: %v", err)
			return
		}
		if err := hostLine.writeLine(frame); err != nil {
			t.Errorf("writeLine() error: %v", err)
		}
	}()

	leftover, err := runPeerGate(peerLine, peerChannel, nil)
	if err != nil {
		t.Fatalf("runPeerGate() error: %v", err)
	}
	if leftover != "welcome to the room" {
		t.Errorf("leftover = %q, want the first chat message", leftover)
	}
}

func TestGate_NoPasswordFuncFails(t *testing.T) {
	hostLine, peerLine, hostChannel, peerChannel := gatePair(t)

	// Host sends a challenge; it observes the peer hanging up as a
	// read error, which is fine here.
	go func() {
		_ = runHostGate(hostLine, hostChannel, checkAgainst("abc123"), func() {})
	}()

	_, err := runPeerGate(peerLine, peerChannel, nil)
	if err == nil {
		t.Fatal("runPeerGate() with no PasswordFunc succeeded against a challenging host")
	}
}
