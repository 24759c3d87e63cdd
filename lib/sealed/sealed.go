// Copyright 2026 The TermTalk Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	// ErrInvalidKeyLength indicates a channel key that is not exactly
	// 32 bytes.
	ErrInvalidKeyLength = errors.New("key must be exactly 32 bytes")

	// ErrMalformedEncoding indicates a frame that is not valid base64.
	ErrMalformedEncoding = errors.New("malformed frame encoding")

	// ErrPayloadTooShort indicates a decoded frame shorter than the
	// minimum nonce-plus-tag length. Such a frame cannot contain a
	// valid ciphertext and is rejected before the AEAD runs.
	ErrPayloadTooShort = errors.New("encrypted payload too short")

	// ErrAuthenticationFailure indicates a frame whose Poly1305 tag
	// did not verify: wrong key, corruption, or tampering. The error
	// does not distinguish the three causes.
	ErrAuthenticationFailure = errors.New("message authentication failed")
)

// minFrameSize is the smallest decodable frame: a 12-byte nonce plus a
// 16-byte tag around an empty ciphertext.
const minFrameSize = chacha20poly1305.NonceSize + chacha20poly1305.Overhead

// Channel is a bidirectional authenticated-encryption codec bound to
// one session key. It is stateless per frame (every Seal draws a fresh
// nonce) and safe for concurrent use by multiple goroutines.
type Channel struct {
	aead cipher.AEAD
}

// NewChannel constructs a Channel from a 32-byte session key. Any
// other key length fails with [ErrInvalidKeyLength].
func NewChannel(key []byte) (*Channel, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidKeyLength, len(key))
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("constructing AEAD: %w", err)
	}
	return &Channel{aead: aead}, nil
}

// Seal encrypts plaintext into a wire frame: a fresh random 12-byte
// nonce, the ciphertext, and the authentication tag, concatenated and
// base64-encoded. No associated data is used.
func (c *Channel) Seal(plaintext string) (string, error) {
	frame := make([]byte, chacha20poly1305.NonceSize, minFrameSize+len(plaintext))
	if _, err := rand.Read(frame); err != nil {
		return "", fmt.Errorf("drawing nonce: %w", err)
	}
	frame = c.aead.Seal(frame, frame[:chacha20poly1305.NonceSize], []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(frame), nil
}

// Open decodes and authenticates a wire frame produced by Seal on a
// channel holding the same key. It fails with [ErrMalformedEncoding]
// on invalid base64, [ErrPayloadTooShort] if the decoded frame cannot
// hold a nonce and tag, and [ErrAuthenticationFailure] if the tag does
// not verify. Plaintext is only ever returned for a verified frame.
func (c *Channel) Open(frame string) (string, error) {
	decoded, err := base64.StdEncoding.DecodeString(frame)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedEncoding, err)
	}
	if len(decoded) < minFrameSize {
		return "", fmt.Errorf("%w: %d bytes, need at least %d", ErrPayloadTooShort, len(decoded), minFrameSize)
	}
	nonce := decoded[:chacha20poly1305.NonceSize]
	ciphertext := decoded[chacha20poly1305.NonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrAuthenticationFailure
	}
	return string(plaintext), nil
}
