// Package store implements the homeserver's storage engine: five tables
// (users, sessions, entries, blobs, events) in a single SQLite database,
// all writes serialized through a single-writer queue, content-addressed
// blob deduplication with reference counting, and the hierarchical
// listing engine.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	pubky BLOB PRIMARY KEY,
	value BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS sessions (
	secret TEXT PRIMARY KEY,
	value BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS entries (
	key TEXT PRIMARY KEY,
	value BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS blobs (
	hash BLOB PRIMARY KEY,
	value BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
	ts TEXT PRIMARY KEY,
	value BLOB NOT NULL
);
`

// Store is the homeserver's storage engine. All writes go through a single
// WriteQueue worker so that SQLite never sees concurrent writers; reads use
// the *sql.DB's own connection pool directly, since SQLite's WAL-free
// default journal still gives readers a consistent snapshot against a
// single in-flight writer.
type Store struct {
	db     *sql.DB
	writer *WriteQueue
}

// Open opens (creating if absent) the SQLite database at path and
// initializes the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}

	return &Store{
		db:     db,
		writer: NewWriteQueue(DefaultWriteQueueConfig()),
	}, nil
}

// Close stops the write queue and closes the database.
func (s *Store) Close() error {
	s.writer.Close()
	return s.db.Close()
}

// WriteStats reports the write queue's current load, surfaced for health
// and metrics endpoints.
func (s *Store) WriteStats() WriteStats {
	return s.writer.Stats()
}

// write runs fn inside a serialized SQL transaction, submitted through the
// single-writer queue so concurrent callers never collide on SQLite's one
// writer.
func (s *Store) write(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return s.writer.Write(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return &StorageError{Op: "begin", Cause: err}
		}
		if err := fn(tx); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return &StorageError{Op: "commit", Cause: err}
		}
		return nil
	})
}

// read runs fn against a read-only snapshot. SQLite doesn't expose explicit
// read transactions through database/sql the way an MVCC KV would, but
// since all writes are serialized through the single writer, any read here
// observes either the pre- or post-commit state of every write, never a
// partial one.
func (s *Store) read(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return &StorageError{Op: "begin_read", Cause: err}
	}
	defer tx.Rollback()
	return fn(tx)
}
