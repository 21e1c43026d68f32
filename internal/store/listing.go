package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pubky/homeserver/internal/clock"
)

// ListParams configures one call to List.
type ListParams struct {
	PathPrefix   string // absolute, e.g. "<pubky>/pub/dir/"
	Reverse      bool
	Limit        uint16 // 0 means "use DefaultLimit"
	Cursor       string
	Shallow      bool
	DefaultLimit uint16
	MaxLimit     uint16
}

// clampLimit applies min(limit ?? default, max).
func (p ListParams) clampLimit() int {
	limit := p.Limit
	if limit == 0 {
		limit = p.DefaultLimit
	}
	if limit > p.MaxLimit {
		limit = p.MaxLimit
	}
	return int(limit)
}

// normalizeCursor strips a pubky:// URL down to the path-prefix-relative
// suffix, or a leading '/' from an absolute path; a plain relative cursor
// passes through unchanged.
func normalizeCursor(cursor, pathPrefix string) string {
	if cursor == "" {
		return ""
	}
	if strings.HasPrefix(cursor, "pubky://") {
		if idx := strings.Index(cursor, pathPrefix); idx >= 0 {
			return cursor[idx+len(pathPrefix):]
		}
		return cursor
	}
	return strings.TrimPrefix(cursor, "/")
}

// nextThreshold implements the threshold rule from the listing algorithm:
// it computes the key to seek strictly past in order to skip exactly one
// entry or one directory boundary, in either iteration direction.
func nextThreshold(pathPrefix, name string, isDir, reverse, shallow bool) string {
	if name == "" {
		if reverse {
			return pathPrefix + "\x7f"
		}
		return pathPrefix
	}
	if shallow && isDir {
		if reverse {
			return pathPrefix + name + "\x2e"
		}
		return pathPrefix + name + "\x7f"
	}
	return pathPrefix + name
}

// List walks the entries table under PathPrefix, returning up to
// clampLimit() pubky:// URLs in encounter order.
func (s *Store) List(ctx context.Context, p ListParams) (urls []string, err error) {
	limit := p.clampLimit()
	name := strings.TrimSuffix(normalizeCursor(p.Cursor, p.PathPrefix), "/")
	isDir := strings.HasSuffix(normalizeCursor(p.Cursor, p.PathPrefix), "/") && name != ""
	threshold := nextThreshold(p.PathPrefix, name, isDir, p.Reverse, p.Shallow)

	err = s.read(ctx, func(tx *sql.Tx) error {
		for i := 0; i < limit; i++ {
			key, ok, qerr := seekOne(tx, threshold, p.Reverse)
			if qerr != nil {
				return qerr
			}
			if !ok || !strings.HasPrefix(key, p.PathPrefix) {
				break
			}

			suffix := key[len(p.PathPrefix):]
			if p.Shallow {
				segName, dir := firstSegment(suffix)
				threshold = nextThreshold(p.PathPrefix, segName, dir, p.Reverse, p.Shallow)
				emitted := p.PathPrefix + segName
				if dir {
					emitted += "/"
				}
				urls = append(urls, "pubky://"+emitted)
			} else {
				threshold = key
				urls = append(urls, "pubky://"+key)
			}
		}
		return nil
	})
	return urls, err
}

// firstSegment splits suffix on '/', returning the first path segment and
// whether more segments follow (i.e. it's a directory from this
// viewpoint).
func firstSegment(suffix string) (name string, isDir bool) {
	idx := strings.IndexByte(suffix, '/')
	if idx < 0 {
		return suffix, false
	}
	return suffix[:idx], true
}

func seekOne(tx *sql.Tx, threshold string, reverse bool) (key string, ok bool, err error) {
	query := `SELECT key FROM entries WHERE key > ? ORDER BY key ASC LIMIT 1`
	if reverse {
		query = `SELECT key FROM entries WHERE key < ? ORDER BY key DESC LIMIT 1`
	}
	e := tx.QueryRow(query, threshold).Scan(&key)
	if e == sql.ErrNoRows {
		return "", false, nil
	}
	if e != nil {
		return "", false, &StorageError{Op: "list", Cause: e}
	}
	return key, true, nil
}

// ListEventsParams configures one call to ListEvents.
type ListEventsParams struct {
	Limit  int
	Cursor string // 13-char base32 timestamp; "" means ZeroCursor
}

// ListEvents reads up to Limit events strictly after Cursor, returning the
// "OP url" lines plus a trailing "cursor: <next>" line when any results
// were found.
func (s *Store) ListEvents(ctx context.Context, p ListEventsParams) (lines []string, err error) {
	cursor := p.Cursor
	if cursor == "" {
		cursor = clock.ZeroCursor
	}
	if _, ok := clock.Decode(cursor); !ok {
		return nil, fmt.Errorf("store: malformed events cursor %q", cursor)
	}

	err = s.read(ctx, func(tx *sql.Tx) error {
		next := cursor
		for i := 0; i < p.Limit; i++ {
			var ts string
			var raw []byte
			e := tx.QueryRow(`SELECT ts, value FROM events WHERE ts > ? ORDER BY ts ASC LIMIT 1`, next).Scan(&ts, &raw)
			if e == sql.ErrNoRows {
				break
			}
			if e != nil {
				return &StorageError{Op: "list_events", Cause: e}
			}
			ev, decErr := decodeEvent(raw)
			if decErr != nil {
				return &StorageError{Op: "list_events", Cause: decErr}
			}
			lines = append(lines, fmt.Sprintf("%s %s", ev.Op, ev.URL))
			next = ts
		}
		if len(lines) > 0 {
			lines = append(lines, "cursor: "+next)
		}
		return nil
	})
	return lines, err
}
