package store

import (
	"crypto/ed25519"
	"encoding/binary"
	"fmt"

	"github.com/pubky/homeserver/internal/capability"
)

// These wire encodings aren't pinned down by byte offset anywhere in the
// spec the way AuthToken is; each is a small version-prefixed layout in the
// same style (fixed fields first, variable UTF-8 tail last) for consistency
// with internal/authtoken.

// User is the per-public-key record created on first signup.
type User struct {
	Version   byte
	CreatedAt int64 // microseconds
}

func encodeUser(u User) []byte {
	buf := make([]byte, 9)
	buf[0] = u.Version
	binary.BigEndian.PutUint64(buf[1:9], uint64(u.CreatedAt))
	return buf
}

func decodeUser(b []byte) (User, error) {
	if len(b) != 9 {
		return User{}, fmt.Errorf("store: malformed user record (%d bytes)", len(b))
	}
	return User{
		Version:   b[0],
		CreatedAt: int64(binary.BigEndian.Uint64(b[1:9])),
	}, nil
}

// Session is the server-side record bound to a cookie-delivered secret.
type Session struct {
	Version      byte
	Pubky        ed25519.PublicKey
	CreatedAt    int64
	Name         string
	UserAgent    string
	Capabilities capability.List
}

// Marshal renders the session in its wire layout, the same bytes stored
// under its secret and returned verbatim from the session HTTP routes.
func (s Session) Marshal() []byte {
	return encodeSession(s)
}

// UnmarshalSession parses a Session from its wire layout.
func UnmarshalSession(b []byte) (Session, error) {
	return decodeSession(b)
}

func encodeSession(s Session) []byte {
	name := []byte(s.Name)
	ua := []byte(s.UserAgent)
	caps := []byte(s.Capabilities.String())

	buf := make([]byte, 0, 1+32+8+2+len(name)+2+len(ua)+len(caps))
	buf = append(buf, s.Version)
	buf = append(buf, []byte(s.Pubky)...)
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(s.CreatedAt))
	buf = append(buf, tsBuf[:]...)
	buf = appendLenPrefixed(buf, name)
	buf = appendLenPrefixed(buf, ua)
	buf = append(buf, caps...)
	return buf
}

func decodeSession(b []byte) (Session, error) {
	if len(b) < 1+32+8+2+2 {
		return Session{}, fmt.Errorf("store: malformed session record (%d bytes)", len(b))
	}
	off := 0
	version := b[off]
	off++
	pubky := append(ed25519.PublicKey(nil), b[off:off+32]...)
	off += 32
	createdAt := int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8

	name, off, err := readLenPrefixed(b, off)
	if err != nil {
		return Session{}, err
	}
	ua, off, err := readLenPrefixed(b, off)
	if err != nil {
		return Session{}, err
	}
	caps := capability.ParseList(string(b[off:]))

	return Session{
		Version:      version,
		Pubky:        pubky,
		CreatedAt:    createdAt,
		Name:         string(name),
		UserAgent:    string(ua),
		Capabilities: caps,
	}, nil
}

// Entry is the metadata record for one live path within one pubky's
// namespace.
type Entry struct {
	Version       byte
	Timestamp     int64
	ContentHash   [32]byte
	ContentLength int64
	ContentType   string
}

func encodeEntry(e Entry) []byte {
	ct := []byte(e.ContentType)
	buf := make([]byte, 0, 1+8+32+8+len(ct))
	buf = append(buf, e.Version)
	var tsBuf, lenBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(e.Timestamp))
	buf = append(buf, tsBuf[:]...)
	buf = append(buf, e.ContentHash[:]...)
	binary.BigEndian.PutUint64(lenBuf[:], uint64(e.ContentLength))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, ct...)
	return buf
}

func decodeEntry(b []byte) (Entry, error) {
	if len(b) < 1+8+32+8 {
		return Entry{}, fmt.Errorf("store: malformed entry record (%d bytes)", len(b))
	}
	off := 0
	e := Entry{Version: b[off]}
	off++
	e.Timestamp = int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8
	copy(e.ContentHash[:], b[off:off+32])
	off += 32
	e.ContentLength = int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8
	e.ContentType = string(b[off:])
	return e, nil
}

// EventOp distinguishes a Put from a Delete event.
type EventOp byte

const (
	EventPut    EventOp = 0
	EventDelete EventOp = 1
)

func (op EventOp) String() string {
	if op == EventDelete {
		return "DEL"
	}
	return "PUT"
}

// Event is an append-only record of a PUT or DELETE on a pub/ path.
type Event struct {
	Op  EventOp
	URL string
}

func encodeEvent(e Event) []byte {
	buf := make([]byte, 0, 1+len(e.URL))
	buf = append(buf, byte(e.Op))
	buf = append(buf, []byte(e.URL)...)
	return buf
}

func decodeEvent(b []byte) (Event, error) {
	if len(b) < 1 {
		return Event{}, fmt.Errorf("store: malformed event record (%d bytes)", len(b))
	}
	return Event{Op: EventOp(b[0]), URL: string(b[1:])}, nil
}

func appendLenPrefixed(buf, data []byte) []byte {
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(data)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, data...)
}

func readLenPrefixed(b []byte, off int) ([]byte, int, error) {
	if off+2 > len(b) {
		return nil, 0, fmt.Errorf("store: truncated length prefix at offset %d", off)
	}
	n := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	if off+n > len(b) {
		return nil, 0, fmt.Errorf("store: truncated field at offset %d (want %d bytes)", off, n)
	}
	return b[off : off+n], off + n, nil
}
