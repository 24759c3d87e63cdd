// Copyright 2026 The TermTalk Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides the SQLite connection pool backing the
// room directory. It wraps zombiezen.com/go/sqlite with the pragmas a
// small cross-process store wants: WAL journal mode so a host process
// registering rooms never blocks a joining process resolving them, and
// a busy timeout so concurrent writers wait instead of failing with
// SQLITE_BUSY.
//
// The package is intentionally thin: callers [Pool.Take] a connection,
// write plain SQL with sqlitex, and [Pool.Put] the connection back.
// Connections are not safe for concurrent use; each goroutine holds
// its own for the duration of its work.
package sqlitepool

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Config holds the parameters for opening a pool. Path is required.
type Config struct {
	// Path is the filesystem path to the database file, created if it
	// does not exist (the parent directory must exist). Use ":memory:"
	// in tests with PoolSize 1, since each in-memory connection is an
	// independent database.
	Path string

	// PoolSize is the number of connections. Zero or negative defaults
	// to 2: the directory is a low-churn store and SQLite serializes
	// writes regardless of pool size.
	PoolSize int

	// Logger receives operational messages. Nil means discard.
	Logger *slog.Logger

	// OnConnect runs once per connection after the standard pragmas.
	// Use it for schema creation. An error discards the connection.
	OnConnect func(conn *sqlite.Conn) error
}

// Pool is a fixed-size pool of SQLite connections. The Pool is safe
// for concurrent use; individual connections are not.
type Pool struct {
	inner  *sqlitex.Pool
	logger *slog.Logger
	path   string
}

// Open creates a pool and applies the standard pragmas to every
// connection (lazily, on first Take). The caller must Close the pool
// when done.
func Open(cfg Config) (*Pool, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlitepool: Path is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 2
	}

	inner, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize: poolSize,
		PrepareConn: func(conn *sqlite.Conn) error {
			return prepareConnection(conn, cfg.OnConnect)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: opening %s: %w", cfg.Path, err)
	}

	logger.Debug("sqlite pool opened", "path", cfg.Path, "pool_size", poolSize)
	return &Pool{inner: inner, logger: logger, path: cfg.Path}, nil
}

// Take borrows a connection. Blocks until one is available or ctx is
// cancelled. The caller must Put the connection back, typically via
// defer.
func (p *Pool) Take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := p.inner.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: take: %w", err)
	}
	return conn, nil
}

// Put returns a connection to the pool. Safe to call with nil.
func (p *Pool) Put(conn *sqlite.Conn) {
	p.inner.Put(conn)
}

// Close closes all connections. Blocks until borrowed connections are
// returned; after Close, Take fails.
func (p *Pool) Close() error {
	if err := p.inner.Close(); err != nil {
		return fmt.Errorf("sqlitepool: closing %s: %w", p.path, err)
	}
	return nil
}

// prepareConnection applies the standard pragmas, then the optional
// OnConnect callback.
func prepareConnection(conn *sqlite.Conn, onConnect func(*sqlite.Conn) error) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlitepool: %s: %w", pragma, err)
		}
	}
	if onConnect != nil {
		if err := onConnect(conn); err != nil {
			return fmt.Errorf("sqlitepool: OnConnect: %w", err)
		}
	}
	return nil
}
