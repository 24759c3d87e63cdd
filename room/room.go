// Copyright 2026 The TermTalk Authors
// SPDX-License-Identifier: Apache-2.0

// Package room implements the room lifecycle: a Room owns a hosted
// session's identity, optional password hash, TTL, and the reference
// to its host endpoint; a [Manager] owns the rooms, the cross-process
// directory registration, and one background expiry timer per room.
package room

import (
	"crypto/subtle"
	"fmt"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"github.com/xzyqiu/TermTalk/lib/clock"
	"github.com/xzyqiu/TermTalk/lib/ident"
)

// Endpoint is the slice of the host session endpoint the lifecycle
// needs: expiry stops it. Satisfied by *transport.Host.
type Endpoint interface {
	Shutdown() error
}

// Room is one time-bounded hosting session. The zero value is not
// usable; construct through [New] or [Manager.CreateRoom].
type Room struct {
	// ID is the anonymous 16-hex-character room identifier.
	ID string

	// Host and Port locate the hosting endpoint.
	Host string
	Port int

	// Duration is the room's TTL. Zero for detached rooms resolved
	// from the directory, which are not locally lifecycle-managed.
	Duration time.Duration

	// StartTime is when the room was created.
	StartTime time.Time

	// passwordHash is the blake3 digest of the room password, or nil
	// for an open room.
	passwordHash []byte

	// endpoint is the owned host endpoint, set at most once at
	// construction completion. Nil for detached rooms.
	endpoint Endpoint

	mu     sync.Mutex
	active bool
	peers  map[string]struct{}
}

// New creates an active Room with a fresh anonymous identifier. The
// password is hashed immediately and the plaintext discarded; an empty
// password leaves the room open. endpoint may be nil.
func New(host string, port int, duration time.Duration, password string, endpoint Endpoint, c clock.Clock) (*Room, error) {
	id, err := ident.RoomID()
	if err != nil {
		return nil, fmt.Errorf("generating room id: %w", err)
	}
	room := &Room{
		ID:        id,
		Host:      host,
		Port:      port,
		Duration:  duration,
		StartTime: c.Now(),
		endpoint:  endpoint,
		active:    true,
		peers:     make(map[string]struct{}),
	}
	if password != "" {
		digest := blake3.Sum256([]byte(password))
		room.passwordHash = digest[:]
	}
	return room, nil
}

// detached builds a Room value for an entry resolved from the
// directory: address only, no TTL, no endpoint, not locally managed.
func detached(id, host string, port int) *Room {
	return &Room{
		ID:     id,
		Host:   host,
		Port:   port,
		active: true,
		peers:  make(map[string]struct{}),
	}
}

// HasPassword reports whether the room requires a password.
func (r *Room) HasPassword() bool { return r.passwordHash != nil }

// CheckPassword compares password against the stored hash in constant
// time. Always false for a room without a password: such rooms skip
// the gate entirely rather than accepting arbitrary input here.
func (r *Room) CheckPassword(password string) bool {
	if r.passwordHash == nil {
		return false
	}
	digest := blake3.Sum256([]byte(password))
	return subtle.ConstantTimeCompare(digest[:], r.passwordHash) == 1
}

// Active reports whether the room is live. The flag transitions
// true to false exactly once, at expiry or removal, never back.
func (r *Room) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Managed reports whether this process owns the room's lifecycle.
// Detached rooms resolved from the directory are not managed: the
// remote host process is authoritative for their expiry.
func (r *Room) Managed() bool { return r.Duration > 0 }

// AddPeer records a peer in the room's registry.
func (r *Room) AddPeer(peerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[peerID] = struct{}{}
}

// RemovePeer removes a peer from the registry. Unknown IDs are a
// no-op.
func (r *Room) RemovePeer(peerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, peerID)
}

// PeerCount returns the number of registered peers.
func (r *Room) PeerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

// deactivate flips active to false. Returns whether this call did the
// flip, so exactly one caller performs teardown.
func (r *Room) deactivate() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return false
	}
	r.active = false
	return true
}

// expired reports whether the room's TTL has elapsed at now.
func (r *Room) expired(now time.Time) bool {
	return now.Sub(r.StartTime) >= r.Duration
}
