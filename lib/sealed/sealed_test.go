// Copyright 2026 The TermTalk Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generating test key: %v", err)
	}
	return key
}

func TestNewChannel_KeyLength(t *testing.T) {
	for _, length := range []int{0, 16, 31, 33, 64} {
		_, err := NewChannel(make([]byte, length))
		if !errors.Is(err, ErrInvalidKeyLength) {
			t.Errorf("NewChannel(%d-byte key) error = %v, want ErrInvalidKeyLength", length, err)
		}
	}
	if _, err := NewChannel(make([]byte, 32)); err != nil {
		t.Errorf("NewChannel(32-byte key) error: %v", err)
	}
}

func TestSealOpen_RoundTrip(t *testing.T) {
	channel, err := NewChannel(testKey(t))
	if err != nil {
		t.Fatalf("NewChannel() error: %v", err)
	}

	messages := []string{
		"",
		"hello",
		"Hello\nWorld",
		"unicode: 你好世界",
		"emoji: 🔒🔑",
		"null byte\x00inside",
		strings.Repeat("A", 1<<20), // 1 MB
	}
	for _, message := range messages {
		frame, err := channel.Seal(message)
		if err != nil {
			t.Fatalf("Seal(%d bytes) error: %v", len(message), err)
		}
		got, err := channel.Open(frame)
		if err != nil {
			t.Fatalf("Open() error: %v", err)
		}
		if got != message {
			t.Errorf("round trip mismatch for %d-byte message", len(message))
		}
	}
}

func TestSeal_Probabilistic(t *testing.T) {
	channel, err := NewChannel(testKey(t))
	if err != nil {
		t.Fatalf("NewChannel() error: %v", err)
	}

	first, err := channel.Seal("same plaintext")
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}
	second, err := channel.Seal("same plaintext")
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}
	if first == second {
		t.Error("two seals of the same plaintext produced identical frames")
	}
	for _, frame := range []string{first, second} {
		if got, err := channel.Open(frame); err != nil || got != "same plaintext" {
			t.Errorf("Open() = %q, %v", got, err)
		}
	}
}

func TestOpen_WrongKey(t *testing.T) {
	sender, _ := NewChannel(testKey(t))
	receiver, _ := NewChannel(testKey(t))

	frame, err := sender.Seal("secret")
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}
	got, err := receiver.Open(frame)
	if !errors.Is(err, ErrAuthenticationFailure) {
		t.Errorf("Open() with wrong key error = %v, want ErrAuthenticationFailure", err)
	}
	if got != "" {
		t.Errorf("Open() with wrong key returned plaintext %q", got)
	}
}

func TestOpen_BitFlips(t *testing.T) {
	channel, err := NewChannel(testKey(t))
	if err != nil {
		t.Fatalf("NewChannel() error: %v", err)
	}
	frame, err := channel.Seal("integrity matters")
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(frame)
	if err != nil {
		t.Fatalf("decoding frame: %v", err)
	}

	// Flip one bit at every byte position: nonce, ciphertext, and tag
	// corruption must all fail authentication.
	for position := range raw {
		corrupted := bytes.Clone(raw)
		corrupted[position] ^= 0x01
		got, err := channel.Open(base64.StdEncoding.EncodeToString(corrupted))
		if !errors.Is(err, ErrAuthenticationFailure) {
			t.Fatalf("bit flip at byte %d: error = %v, want ErrAuthenticationFailure", position, err)
		}
		if got != "" {
			t.Fatalf("bit flip at byte %d returned plaintext %q", position, got)
		}
	}
}

func TestOpen_MalformedInput(t *testing.T) {
	channel, err := NewChannel(testKey(t))
	if err != nil {
		t.Fatalf("NewChannel() error: %v", err)
	}

	tests := []struct {
		name  string
		frame string
		want  error
	}{
		{"empty", "", ErrPayloadTooShort},
		{"invalid base64", "not-base64!@#$", ErrMalformedEncoding},
		{"valid base64 too short", base64.StdEncoding.EncodeToString([]byte("test")), ErrPayloadTooShort},
		{"27 bytes", base64.StdEncoding.EncodeToString(make([]byte, 27)), ErrPayloadTooShort},
		{"28 zero bytes", base64.StdEncoding.EncodeToString(make([]byte, 28)), ErrAuthenticationFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := channel.Open(tt.frame)
			if !errors.Is(err, tt.want) {
				t.Errorf("Open(%q) error = %v, want %v", tt.frame, err, tt.want)
			}
		})
	}
}

func TestChannel_Symmetric(t *testing.T) {
	key := testKey(t)
	a, _ := NewChannel(key)
	b, _ := NewChannel(key)

	frame, err := a.Seal("from a to b")
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}
	got, err := b.Open(frame)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if got != "from a to b" {
		t.Errorf("Open() = %q", got)
	}
}
