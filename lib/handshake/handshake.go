// Copyright 2026 The TermTalk Authors
// SPDX-License-Identifier: Apache-2.0

// Package handshake implements the TermTalk key exchange: an ephemeral
// X25519 Diffie-Hellman exchange followed by HKDF-SHA256 key
// derivation. Each side generates a fresh keypair per connection,
// exchanges base64-encoded public keys, and derives a 32-byte session
// key suitable for [sealed.NewChannel]. The private scalar never
// leaves the Handshake value.
//
// Both parties derive bitwise-identical secrets from each other's
// tokens; that commutativity is the correctness property the protocol
// rests on. Fresh keypairs per connection give forward secrecy: a
// compromised session key exposes nothing about earlier or later
// sessions.
package handshake

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// ErrInvalidKeyMaterial indicates a peer public-key token that could
// not be decoded or does not encode a valid X25519 public key.
var ErrInvalidKeyMaterial = errors.New("invalid key material")

// publicKeySize is the raw X25519 public key length in bytes.
const publicKeySize = 32

// kdfInfo is the protocol-versioned HKDF context string. Changing the
// protocol in an incompatible way must change this string so that
// mismatched versions fail the handshake instead of half-working.
const kdfInfo = "TermTalk v1 session key"

// Handshake holds one side's ephemeral keypair for a single key
// exchange. Values are single-use: generate one per connection and
// discard it after [Handshake.DeriveSharedSecret].
type Handshake struct {
	privateKey *ecdh.PrivateKey
}

// Generate produces a Handshake with a fresh ephemeral X25519 keypair.
func Generate() (*Handshake, error) {
	privateKey, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating X25519 keypair: %w", err)
	}
	return &Handshake{privateKey: privateKey}, nil
}

// PublicKeyToken returns the base64 encoding of the raw 32-byte public
// key, suitable for transmission as a newline-terminated line.
func (h *Handshake) PublicKeyToken() string {
	return base64.StdEncoding.EncodeToString(h.privateKey.PublicKey().Bytes())
}

// DeriveSharedSecret decodes the peer's public-key token, performs the
// X25519 exchange with the local private scalar, and derives a 32-byte
// session key via HKDF-SHA256 (no salt, fixed protocol info string).
//
// Returns an error wrapping [ErrInvalidKeyMaterial] if the token is
// not valid base64, decodes to the wrong length, or encodes a
// low-order point the curve implementation rejects.
func (h *Handshake) DeriveSharedSecret(peerToken string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(peerToken)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding peer token: %v", ErrInvalidKeyMaterial, err)
	}
	if len(raw) != publicKeySize {
		return nil, fmt.Errorf("%w: peer key is %d bytes, want %d", ErrInvalidKeyMaterial, len(raw), publicKeySize)
	}

	peerKey, err := ecdh.X25519().NewPublicKey(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing peer key: %v", ErrInvalidKeyMaterial, err)
	}

	sharedPoint, err := h.privateKey.ECDH(peerKey)
	if err != nil {
		return nil, fmt.Errorf("%w: X25519 exchange: %v", ErrInvalidKeyMaterial, err)
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, sharedPoint, nil, []byte(kdfInfo)), key); err != nil {
		return nil, fmt.Errorf("deriving session key: %w", err)
	}
	return key, nil
}
