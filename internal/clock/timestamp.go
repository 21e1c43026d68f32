// Package clock provides the homeserver's microsecond timestamp ids:
// a 64-bit microsecond clock reading encoded as 13 Crockford-base32
// characters, used as the sort keys of the events table and the events
// feed cursor.
package clock

import (
	"encoding/binary"
	"strings"
	"sync"
	"time"
)

// crockfordAlphabet is the Crockford base32 alphabet (no I, L, O, U) used
// throughout the wire formats for human-safe, case-insensitive encoding.
const crockfordAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// EncodedLen is the fixed width of a base32-Crockford-encoded timestamp.
const EncodedLen = 13

var (
	mu        sync.Mutex
	lastMicro int64
)

// NowMicros returns the current time as microseconds since the Unix epoch,
// guaranteed to be strictly greater than the previous value returned by this
// function within the same process, even under rapid repeated calls.
func NowMicros() int64 {
	mu.Lock()
	defer mu.Unlock()

	now := time.Now().UnixMicro()
	if now <= lastMicro {
		now = lastMicro + 1
	}
	lastMicro = now
	return now
}

// Encode renders a microsecond timestamp as 13 Crockford-base32 characters,
// most-significant first, so that lexicographic ordering of the encoded
// strings matches numeric ordering of the timestamps.
func Encode(micros int64) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(micros))
	return encodeBytes(buf[:])
}

// Decode parses a 13-character Crockford-base32 timestamp back into
// microseconds since the epoch. Returns false if s is not a well-formed
// encoded timestamp.
func Decode(s string) (int64, bool) {
	if len(s) != EncodedLen {
		return 0, false
	}
	var v uint64
	for i := 0; i < len(s); i++ {
		idx := strings.IndexByte(crockfordAlphabet, upper(s[i]))
		if idx < 0 {
			return 0, false
		}
		// 13 chars * 5 bits = 65 bits; the top bit must be zero for a valid
		// 64-bit timestamp (64 bits fit in 13 chars with one spare bit), so
		// the first character may only carry 4 bits.
		if i == 0 && idx >= 16 {
			return 0, false
		}
		v = v<<5 | uint64(idx)
	}
	return int64(v), true
}

// encodeBytes base32-Crockford encodes an 8-byte big-endian value into the
// fixed 13-character representation (65 bits of room for 64 bits of data).
func encodeBytes(b []byte) string {
	v := binary.BigEndian.Uint64(b)
	out := make([]byte, EncodedLen)
	for i := EncodedLen - 1; i >= 0; i-- {
		out[i] = crockfordAlphabet[v&0x1f]
		v >>= 5
	}
	return string(out)
}

func upper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - 'a' + 'A'
	}
	return c
}

// ZeroCursor is the all-zeros 13-char cursor used as the default starting
// point for the events feed.
var ZeroCursor = Encode(0)
