package store

import (
	"context"
	"crypto/ed25519"
	"database/sql"

	"github.com/pubky/homeserver/internal/clock"
)

// UpsertUser creates a user row for pubky if absent. It never updates an
// existing row: signup is idempotent, and re-running it must not reset
// CreatedAt.
func (s *Store) UpsertUser(ctx context.Context, pubky ed25519.PublicKey) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRow(`SELECT 1 FROM users WHERE pubky = ?`, []byte(pubky)).Scan(&exists)
		if err == nil {
			return nil
		}
		if err != sql.ErrNoRows {
			return &StorageError{Op: "upsert_user", Cause: err}
		}

		u := User{Version: 0, CreatedAt: clock.NowMicros()}
		_, err = tx.Exec(`INSERT INTO users (pubky, value) VALUES (?, ?)`, []byte(pubky), encodeUser(u))
		if err != nil {
			return &StorageError{Op: "upsert_user", Cause: err}
		}
		return nil
	})
}

// GetUser returns the user record for pubky, or ok=false if none exists.
func (s *Store) GetUser(ctx context.Context, pubky ed25519.PublicKey) (user User, ok bool, err error) {
	err = s.read(ctx, func(tx *sql.Tx) error {
		var raw []byte
		e := tx.QueryRow(`SELECT value FROM users WHERE pubky = ?`, []byte(pubky)).Scan(&raw)
		if e == sql.ErrNoRows {
			return nil
		}
		if e != nil {
			return &StorageError{Op: "get_user", Cause: e}
		}
		u, decErr := decodeUser(raw)
		if decErr != nil {
			return &StorageError{Op: "get_user", Cause: decErr}
		}
		user, ok = u, true
		return nil
	})
	return user, ok, err
}
