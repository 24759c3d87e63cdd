// Copyright 2026 The TermTalk Authors
// SPDX-License-Identifier: Apache-2.0

package handshake

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func TestDeriveSharedSecret_Commutative(t *testing.T) {
	alice, err := Generate()
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	bob, err := Generate()
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}

	aliceSecret, err := alice.DeriveSharedSecret(bob.PublicKeyToken())
	if err != nil {
		t.Fatalf("alice.DeriveSharedSecret() error: %v", err)
	}
	bobSecret, err := bob.DeriveSharedSecret(alice.PublicKeyToken())
	if err != nil {
		t.Fatalf("bob.DeriveSharedSecret() error: %v", err)
	}

	if !bytes.Equal(aliceSecret, bobSecret) {
		t.Errorf("shared secrets differ: alice=%x bob=%x", aliceSecret, bobSecret)
	}
	if len(aliceSecret) != 32 {
		t.Errorf("secret length = %d, want 32", len(aliceSecret))
	}
}

func TestDeriveSharedSecret_DistinctPeers(t *testing.T) {
	alice, _ := Generate()
	bob, _ := Generate()
	charlie, _ := Generate()

	withBob, err := alice.DeriveSharedSecret(bob.PublicKeyToken())
	if err != nil {
		t.Fatalf("DeriveSharedSecret(bob) error: %v", err)
	}
	withCharlie, err := alice.DeriveSharedSecret(charlie.PublicKeyToken())
	if err != nil {
		t.Fatalf("DeriveSharedSecret(charlie) error: %v", err)
	}
	if bytes.Equal(withBob, withCharlie) {
		t.Error("different peers produced the same shared secret")
	}
}

func TestDeriveSharedSecret_InvalidTokens(t *testing.T) {
	h, err := Generate()
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"not base64", "not-valid-base64!@#"},
		{"too short", base64.StdEncoding.EncodeToString([]byte("test"))},
		{"too long", base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0x42}, 64))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.DeriveSharedSecret(tt.token)
			if !errors.Is(err, ErrInvalidKeyMaterial) {
				t.Errorf("DeriveSharedSecret(%q) error = %v, want ErrInvalidKeyMaterial", tt.token, err)
			}
		})
	}
}

func TestPublicKeyToken_Deterministic(t *testing.T) {
	h, err := Generate()
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	first := h.PublicKeyToken()
	second := h.PublicKeyToken()
	if first != second {
		t.Errorf("PublicKeyToken() not deterministic: %q vs %q", first, second)
	}

	raw, err := base64.StdEncoding.DecodeString(first)
	if err != nil {
		t.Fatalf("token is not valid base64: %v", err)
	}
	if len(raw) != 32 {
		t.Errorf("decoded token length = %d, want 32", len(raw))
	}
	if strings.ContainsAny(first, "\n\r") {
		t.Error("token contains line breaks")
	}
}

func TestGenerate_FreshKeypairs(t *testing.T) {
	a, _ := Generate()
	b, _ := Generate()
	if a.PublicKeyToken() == b.PublicKeyToken() {
		t.Error("two Generate() calls produced the same public key")
	}
}
