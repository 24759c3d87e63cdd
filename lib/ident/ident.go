// Copyright 2026 The TermTalk Authors
// SPDX-License-Identifier: Apache-2.0

// Package ident generates the anonymous identifiers TermTalk uses for
// rooms and peers. Identifiers come exclusively from crypto/rand: no
// MAC address, hostname, clock, or other machine identity contributes,
// so an identifier reveals nothing about who generated it or when.
package ident

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// peerAlphabet is the peer identifier character set: lowercase
// alphanumerics, 36 characters.
const peerAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// RoomID returns a 16-character lowercase hex room identifier (64 bits
// of entropy).
func RoomID() (string, error) {
	raw := make([]byte, 8)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	return hex.EncodeToString(raw), nil
}

// PeerID returns a 6-character lowercase alphanumeric peer identifier.
//
// Each character is drawn by rejection sampling so the distribution is
// uniform over the alphabet (a plain modulo over 256 would bias toward
// the first 256 mod 36 characters).
func PeerID() (string, error) {
	id := make([]byte, 0, 6)
	buf := make([]byte, 16)
	for len(id) < 6 {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("reading random bytes: %w", err)
		}
		for _, b := range buf {
			// Accept only bytes below the largest multiple of the
			// alphabet size; the rest would bias the distribution.
			if b >= byte(256-256%len(peerAlphabet)) {
				continue
			}
			id = append(id, peerAlphabet[int(b)%len(peerAlphabet)])
			if len(id) == 6 {
				break
			}
		}
	}
	return string(id), nil
}
