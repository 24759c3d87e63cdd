// Copyright 2026 The TermTalk Authors
// SPDX-License-Identifier: Apache-2.0

package ident

import (
	"strings"
	"testing"
)

func TestRoomID_Format(t *testing.T) {
	seen := make(map[string]bool)
	for n := 0; n < 100; n++ {
		id, err := RoomID()
		if err != nil {
			t.Fatalf("RoomID() error: %v", err)
		}
		if len(id) != 16 {
			t.Fatalf("RoomID() = %q, want 16 characters", id)
		}
		for _, r := range id {
			if !strings.ContainsRune("0123456789abcdef", r) {
				t.Fatalf("RoomID() = %q contains non-hex character %q", id, r)
			}
		}
		if seen[id] {
			t.Fatalf("RoomID() collision on %q within 100 draws", id)
		}
		seen[id] = true
	}
}

func TestPeerID_Format(t *testing.T) {
	seen := make(map[string]bool)
	for n := 0; n < 100; n++ {
		id, err := PeerID()
		if err != nil {
			t.Fatalf("PeerID() error: %v", err)
		}
		if len(id) != 6 {
			t.Fatalf("PeerID() = %q, want 6 characters", id)
		}
		for _, r := range id {
			if !strings.ContainsRune(peerAlphabet, r) {
				t.Fatalf("PeerID() = %q contains character %q outside the alphabet", id, r)
			}
		}
		seen[id] = true
	}
	// 100 draws from 36^6 should essentially never all collide down to
	// a handful of values; a tiny distinct count means a broken RNG path.
	if len(seen) < 90 {
		t.Errorf("only %d distinct peer IDs in 100 draws", len(seen))
	}
}
