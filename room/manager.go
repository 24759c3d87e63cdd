// Copyright 2026 The TermTalk Authors
// SPDX-License-Identifier: Apache-2.0

package room

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xzyqiu/TermTalk/directory"
	"github.com/xzyqiu/TermTalk/lib/clock"
)

// Directory is the slice of the cross-process room directory the
// manager uses. Satisfied by *directory.Store.
type Directory interface {
	Register(ctx context.Context, record directory.Record) error
	Lookup(ctx context.Context, roomID string) (directory.Record, bool, error)
	Unregister(ctx context.Context, roomID string) error
}

// Manager owns the rooms hosted by this process: the id-to-room map,
// the directory registrations, and one expiry timer goroutine per
// room.
type Manager struct {
	directory Directory
	clock     clock.Clock
	logger    *slog.Logger

	mu    sync.Mutex
	rooms map[string]*Room

	timers sync.WaitGroup
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClock overrides the time source. Tests use clock.Fake.
func WithClock(c clock.Clock) ManagerOption {
	return func(m *Manager) { m.clock = c }
}

// WithLogger sets the logger. Nil means slog.Default().
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager builds a Manager over the given directory.
func NewManager(dir Directory, options ...ManagerOption) *Manager {
	m := &Manager{
		directory: dir,
		clock:     clock.Real(),
		logger:    slog.Default(),
		rooms:     make(map[string]*Room),
	}
	for _, option := range options {
		option(m)
	}
	return m
}

// CreateRoom builds a Room, registers it locally and in the directory,
// and starts its expiry timer. The endpoint reference (may be nil) is
// fixed at creation; expiry shuts it down.
func (m *Manager) CreateRoom(ctx context.Context, host string, port int, duration time.Duration, password string, endpoint Endpoint) (*Room, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("room duration must be positive")
	}
	room, err := New(host, port, duration, password, endpoint, m.clock)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.rooms[room.ID] = room
	m.mu.Unlock()

	record := directory.Record{
		RoomID:    room.ID,
		Host:      host,
		Port:      port,
		ExpiresAt: room.StartTime.Add(duration).Unix(),
	}
	if err := m.directory.Register(ctx, record); err != nil {
		m.mu.Lock()
		delete(m.rooms, room.ID)
		m.mu.Unlock()
		return nil, fmt.Errorf("publishing room to directory: %w", err)
	}

	m.timers.Add(1)
	go func() {
		defer m.timers.Done()
		m.expiryTimer(room)
	}()

	m.logger.Info("room created", "room", room.ID, "ttl", duration)
	return room, nil
}

// expiryTimer polls once per second until the room's TTL elapses or
// the room is deactivated by removal, then tears it down. This
// goroutine is the only expiry-driven writer of the active flag.
func (m *Manager) expiryTimer(room *Room) {
	ticker := m.clock.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		if !room.Active() {
			// Removed out from under the timer; teardown already ran.
			return
		}
		if room.expired(m.clock.Now()) {
			break
		}
	}

	if !room.deactivate() {
		return
	}
	m.logger.Info("room expired", "room", room.ID)
	if room.endpoint != nil {
		if err := room.endpoint.Shutdown(); err != nil {
			m.logger.Warn("stopping expired room's endpoint", "room", room.ID, "error", err)
		}
	}

	m.mu.Lock()
	delete(m.rooms, room.ID)
	m.mu.Unlock()

	// Directory cleanup is best-effort: the record's TTL makes a
	// missed unregister self-healing via lazy pruning.
	if err := m.directory.Unregister(context.Background(), room.ID); err != nil {
		m.logger.Warn("unregistering expired room", "room", room.ID, "error", err)
	}
}

// GetRoom resolves a room identifier: the local map first, then the
// directory. A directory hit yields a detached Room carrying only the
// connection endpoint: duration zero, no timer, not locally managed.
// Returns nil if the room is unknown or its registration expired.
func (m *Manager) GetRoom(ctx context.Context, roomID string) (*Room, error) {
	m.mu.Lock()
	if room, found := m.rooms[roomID]; found {
		m.mu.Unlock()
		return room, nil
	}
	m.mu.Unlock()

	record, found, err := m.directory.Lookup(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("resolving room %s: %w", roomID, err)
	}
	if !found {
		return nil, nil
	}
	return detached(record.RoomID, record.Host, record.Port), nil
}

// RemoveRoom removes a room from the local map and the directory.
// Idempotent. The room's expiry timer observes the deactivation on
// its next tick and exits without re-running teardown.
func (m *Manager) RemoveRoom(ctx context.Context, roomID string) error {
	m.mu.Lock()
	room, found := m.rooms[roomID]
	delete(m.rooms, roomID)
	m.mu.Unlock()

	if found {
		room.deactivate()
	}
	if err := m.directory.Unregister(ctx, roomID); err != nil {
		return fmt.Errorf("unregistering room %s: %w", roomID, err)
	}
	return nil
}

// RoomCount returns the number of locally managed rooms.
func (m *Manager) RoomCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}

// Close deactivates all rooms and waits for their expiry timers to
// exit. The directory entries are removed best-effort.
func (m *Manager) Close() {
	m.mu.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		rooms = append(rooms, room)
	}
	m.rooms = make(map[string]*Room)
	m.mu.Unlock()

	for _, room := range rooms {
		if room.deactivate() {
			if room.endpoint != nil {
				_ = room.endpoint.Shutdown()
			}
			_ = m.directory.Unregister(context.Background(), room.ID)
		}
	}
	m.timers.Wait()
}
