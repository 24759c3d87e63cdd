// Copyright 2026 The TermTalk Authors
// SPDX-License-Identifier: Apache-2.0

// Package directory implements the cross-process room directory: a
// keyed store mapping room identifiers to connection endpoints, with
// lazy TTL pruning. A hosting process registers its room here so that
// a joining process, possibly started later on the same machine, can
// resolve the room identifier to a host address and port.
//
// The store is backed by SQLite (lib/sqlitepool) so concurrent host
// and join processes see consistent state without file-locking
// gymnastics. Expiry is enforced lazily: [Store.Lookup] treats a
// record whose expires_at has passed as absent and deletes it.
package directory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/xzyqiu/TermTalk/lib/clock"
	"github.com/xzyqiu/TermTalk/lib/sqlitepool"
)

// schema creates the rooms table. Applied once per pooled connection;
// IF NOT EXISTS makes that idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS rooms (
	id         TEXT PRIMARY KEY,
	host       TEXT NOT NULL,
	port       INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);
`

// Record is one directory entry: where a room's host listens and when
// the registration lapses.
type Record struct {
	RoomID    string
	Host      string
	Port      int
	ExpiresAt int64 // Unix seconds.
}

// Store is the SQLite-backed directory. Safe for concurrent use, both
// within a process and across processes sharing the database file.
type Store struct {
	pool  *sqlitepool.Pool
	clock clock.Clock
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for expiry decisions.
// Tests use clock.Fake.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// DefaultPath returns the per-user default database location,
// ~/.termtalk/rooms.db, creating the parent directory if needed.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	dir := filepath.Join(home, ".termtalk")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("creating %s: %w", dir, err)
	}
	return filepath.Join(dir, "rooms.db"), nil
}

// Open opens (creating if necessary) the directory database at path.
// Use ":memory:" in tests. The caller must Close the store.
func Open(path string, options ...Option) (*Store, error) {
	poolSize := 0
	if path == ":memory:" {
		// Each in-memory connection is an independent database; the
		// pool must not hand out more than one.
		poolSize = 1
	}
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     path,
		PoolSize: poolSize,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("opening directory: %w", err)
	}
	store := &Store{pool: pool, clock: clock.Real()}
	for _, option := range options {
		option(store)
	}
	return store, nil
}

// Register inserts or replaces the record for a room.
func (s *Store) Register(ctx context.Context, record Record) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO rooms (id, host, port, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET host = excluded.host,
		   port = excluded.port, expires_at = excluded.expires_at`,
		&sqlitex.ExecOptions{
			Args: []any{record.RoomID, record.Host, record.Port, record.ExpiresAt},
		})
	if err != nil {
		return fmt.Errorf("registering room %s: %w", record.RoomID, err)
	}
	return nil
}

// Lookup resolves a room identifier. A record whose expiry has passed
// is treated as absent and pruned. The second return value reports
// whether a live record was found.
func (s *Store) Lookup(ctx context.Context, roomID string) (Record, bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Record{}, false, err
	}
	defer s.pool.Put(conn)

	var record Record
	found := false
	err = sqlitex.Execute(conn,
		`SELECT id, host, port, expires_at FROM rooms WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{roomID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				record = Record{
					RoomID:    stmt.ColumnText(0),
					Host:      stmt.ColumnText(1),
					Port:      stmt.ColumnInt(2),
					ExpiresAt: stmt.ColumnInt64(3),
				}
				found = true
				return nil
			},
		})
	if err != nil {
		return Record{}, false, fmt.Errorf("looking up room %s: %w", roomID, err)
	}
	if !found {
		return Record{}, false, nil
	}

	if s.clock.Now().Unix() > record.ExpiresAt {
		// Lazy pruning: the host process that registered this room may
		// have died without unregistering.
		err = sqlitex.Execute(conn, `DELETE FROM rooms WHERE id = ?`,
			&sqlitex.ExecOptions{Args: []any{roomID}})
		if err != nil {
			return Record{}, false, fmt.Errorf("pruning expired room %s: %w", roomID, err)
		}
		return Record{}, false, nil
	}
	return record, true, nil
}

// Unregister removes a room's record. Idempotent: removing an absent
// room is not an error.
func (s *Store) Unregister(ctx context.Context, roomID string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `DELETE FROM rooms WHERE id = ?`,
		&sqlitex.ExecOptions{Args: []any{roomID}})
	if err != nil {
		return fmt.Errorf("unregistering room %s: %w", roomID, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}
