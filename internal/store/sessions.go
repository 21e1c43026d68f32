package store

import (
	"context"
	"database/sql"

	"github.com/pubky/homeserver/internal/clock"
	"github.com/pubky/homeserver/internal/cryptoutil"
)

// CreateSession generates a fresh 16-byte random session secret (encoded as
// 26-char base32-Crockford), writes the Session record, and returns the
// secret to use as the cookie value.
func (s *Store) CreateSession(ctx context.Context, sess Session) (secret string, err error) {
	raw, err := cryptoutil.RandomBytes(16)
	if err != nil {
		return "", &StorageError{Op: "create_session", Cause: err}
	}
	secret = clock.EncodeBytes(raw)
	sess.CreatedAt = clock.NowMicros()

	err = s.write(ctx, func(tx *sql.Tx) error {
		_, e := tx.Exec(`INSERT INTO sessions (secret, value) VALUES (?, ?)`, secret, encodeSession(sess))
		if e != nil {
			return &StorageError{Op: "create_session", Cause: e}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return secret, nil
}

// GetSession looks up a session by its cookie secret.
func (s *Store) GetSession(ctx context.Context, secret string) (sess Session, ok bool, err error) {
	err = s.read(ctx, func(tx *sql.Tx) error {
		var raw []byte
		e := tx.QueryRow(`SELECT value FROM sessions WHERE secret = ?`, secret).Scan(&raw)
		if e == sql.ErrNoRows {
			return nil
		}
		if e != nil {
			return &StorageError{Op: "get_session", Cause: e}
		}
		decoded, decErr := decodeSession(raw)
		if decErr != nil {
			return &StorageError{Op: "get_session", Cause: decErr}
		}
		sess, ok = decoded, true
		return nil
	})
	return sess, ok, err
}

// DeleteSession removes a session by its cookie secret, reporting whether a
// row was actually deleted.
func (s *Store) DeleteSession(ctx context.Context, secret string) (deleted bool, err error) {
	err = s.write(ctx, func(tx *sql.Tx) error {
		res, e := tx.Exec(`DELETE FROM sessions WHERE secret = ?`, secret)
		if e != nil {
			return &StorageError{Op: "delete_session", Cause: e}
		}
		n, e := res.RowsAffected()
		if e != nil {
			return &StorageError{Op: "delete_session", Cause: e}
		}
		deleted = n > 0
		return nil
	})
	return deleted, err
}
