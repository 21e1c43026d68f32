package store

import (
	"context"
	"crypto/ed25519"
	"database/sql"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/pubky/homeserver/internal/clock"
	"github.com/pubky/homeserver/internal/cryptoutil"
	"github.com/pubky/homeserver/internal/zbase32"
)

const publicPrefix = "pub/"

func entryKey(pubky ed25519.PublicKey, path string) string {
	return zbase32.Encode(pubky) + "/" + path
}

// PutEntry stores data at <pubky>/<path>, content-addressing it into the
// blobs table and incrementing its refcount, and (for pub/-prefixed paths)
// appending a Put event. All of this runs inside one write transaction, per
// the storage engine's single-writer discipline.
func (s *Store) PutEntry(ctx context.Context, pubky ed25519.PublicKey, path string, data []byte, contentType string) error {
	hash := cryptoutil.Hash(data)

	return s.write(ctx, func(tx *sql.Tx) error {
		if err := incrementBlobRefcount(tx, hash, data); err != nil {
			return err
		}

		entry := Entry{
			Version:       0,
			Timestamp:     clock.NowMicros(),
			ContentHash:   hash,
			ContentLength: int64(len(data)),
			ContentType:   contentType,
		}
		key := entryKey(pubky, path)
		if _, err := tx.Exec(`
			INSERT INTO entries (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, key, encodeEntry(entry)); err != nil {
			return &StorageError{Op: "put_entry", Cause: err}
		}

		if strings.HasPrefix(path, publicPrefix) {
			url := fmt.Sprintf("pubky://%s/%s", zbase32.Encode(pubky), path)
			return appendEvent(tx, entry.Timestamp, Event{Op: EventPut, URL: url})
		}
		return nil
	})
}

// DeleteEntry removes <pubky>/<path> if present, decrementing (and
// possibly dropping) the backing blob, and appending a Delete event for
// pub/-prefixed paths. Returns false if no such entry existed.
func (s *Store) DeleteEntry(ctx context.Context, pubky ed25519.PublicKey, path string) (deleted bool, err error) {
	err = s.write(ctx, func(tx *sql.Tx) error {
		key := entryKey(pubky, path)

		var raw []byte
		e := tx.QueryRow(`SELECT value FROM entries WHERE key = ?`, key).Scan(&raw)
		if e == sql.ErrNoRows {
			return nil
		}
		if e != nil {
			return &StorageError{Op: "delete_entry", Cause: e}
		}

		entry, decErr := decodeEntry(raw)
		if decErr != nil {
			return &StorageError{Op: "delete_entry", Cause: decErr}
		}

		if err := decrementBlobRefcount(tx, entry.ContentHash); err != nil {
			return err
		}

		if _, e := tx.Exec(`DELETE FROM entries WHERE key = ?`, key); e != nil {
			return &StorageError{Op: "delete_entry", Cause: e}
		}

		deleted = true

		if strings.HasPrefix(path, publicPrefix) {
			url := fmt.Sprintf("pubky://%s/%s", zbase32.Encode(pubky), path)
			return appendEvent(tx, clock.NowMicros(), Event{Op: EventDelete, URL: url})
		}
		return nil
	})
	return deleted, err
}

// GetBlob returns the live payload at <pubky>/<path>, or ok=false if there
// is no live entry for that path.
func (s *Store) GetBlob(ctx context.Context, pubky ed25519.PublicKey, path string) (data []byte, ok bool, err error) {
	err = s.read(ctx, func(tx *sql.Tx) error {
		key := entryKey(pubky, path)
		var raw []byte
		e := tx.QueryRow(`SELECT value FROM entries WHERE key = ?`, key).Scan(&raw)
		if e == sql.ErrNoRows {
			return nil
		}
		if e != nil {
			return &StorageError{Op: "get_blob", Cause: e}
		}
		entry, decErr := decodeEntry(raw)
		if decErr != nil {
			return &StorageError{Op: "get_blob", Cause: decErr}
		}

		var blobRaw []byte
		e = tx.QueryRow(`SELECT value FROM blobs WHERE hash = ?`, entry.ContentHash[:]).Scan(&blobRaw)
		if e == sql.ErrNoRows {
			return &StorageError{Op: "get_blob", Cause: fmt.Errorf("entry references missing blob")}
		}
		if e != nil {
			return &StorageError{Op: "get_blob", Cause: e}
		}
		if len(blobRaw) < 8 {
			return &StorageError{Op: "get_blob", Cause: fmt.Errorf("malformed blob record")}
		}
		data = append([]byte(nil), blobRaw[8:]...)
		ok = true
		return nil
	})
	return data, ok, err
}

// ContainsDirectory reports whether any entry key sorts strictly greater
// than pathPrefix and begins with it, answering "does this directory
// exist?" when a listing is requested.
func (s *Store) ContainsDirectory(ctx context.Context, pathPrefix string) (bool, error) {
	var found bool
	err := s.read(ctx, func(tx *sql.Tx) error {
		var key string
		e := tx.QueryRow(`SELECT key FROM entries WHERE key > ? ORDER BY key ASC LIMIT 1`, pathPrefix).Scan(&key)
		if e == sql.ErrNoRows {
			return nil
		}
		if e != nil {
			return &StorageError{Op: "contains_directory", Cause: e}
		}
		found = strings.HasPrefix(key, pathPrefix)
		return nil
	})
	return found, err
}

func incrementBlobRefcount(tx *sql.Tx, hash [32]byte, payload []byte) error {
	refcount, existingPayload, found, err := readBlob(tx, hash)
	if err != nil {
		return err
	}
	if !found {
		existingPayload = payload
	}
	refcount++
	return writeBlob(tx, hash, refcount, existingPayload)
}

func decrementBlobRefcount(tx *sql.Tx, hash [32]byte) error {
	refcount, payload, found, err := readBlob(tx, hash)
	if err != nil {
		return err
	}
	if !found {
		return &StorageError{Op: "decrement_blob", Cause: fmt.Errorf("blob not found for hash")}
	}
	refcount--
	if refcount > 0 {
		return writeBlob(tx, hash, refcount, payload)
	}
	if _, err := tx.Exec(`DELETE FROM blobs WHERE hash = ?`, hash[:]); err != nil {
		return &StorageError{Op: "decrement_blob", Cause: err}
	}
	return nil
}

func readBlob(tx *sql.Tx, hash [32]byte) (refcount uint64, payload []byte, found bool, err error) {
	var raw []byte
	e := tx.QueryRow(`SELECT value FROM blobs WHERE hash = ?`, hash[:]).Scan(&raw)
	if e == sql.ErrNoRows {
		return 0, nil, false, nil
	}
	if e != nil {
		return 0, nil, false, &StorageError{Op: "read_blob", Cause: e}
	}
	if len(raw) < 8 {
		return 0, nil, false, &StorageError{Op: "read_blob", Cause: fmt.Errorf("malformed blob record")}
	}
	return binary.BigEndian.Uint64(raw[:8]), raw[8:], true, nil
}

func writeBlob(tx *sql.Tx, hash [32]byte, refcount uint64, payload []byte) error {
	buf := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint64(buf[:8], refcount)
	copy(buf[8:], payload)
	_, err := tx.Exec(`
		INSERT INTO blobs (hash, value) VALUES (?, ?)
		ON CONFLICT(hash) DO UPDATE SET value = excluded.value
	`, hash[:], buf)
	if err != nil {
		return &StorageError{Op: "write_blob", Cause: err}
	}
	return nil
}

func appendEvent(tx *sql.Tx, ts int64, ev Event) error {
	key := clock.Encode(ts)
	if _, err := tx.Exec(`INSERT INTO events (ts, value) VALUES (?, ?)`, key, encodeEvent(ev)); err != nil {
		return &StorageError{Op: "append_event", Cause: err}
	}
	return nil
}
