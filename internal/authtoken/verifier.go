package authtoken

import (
	"bytes"
	"errors"
	"sort"
	"sync"

	"github.com/pubky/homeserver/internal/clock"
)

// gcIntervalMicros is the bucket width used to decide which replay IDs are
// old enough to drop; ids are kept for two buckets so a token right at a
// bucket boundary still gets its full timestamp window.
const gcIntervalMicros = 30_000_000

// ErrAlreadyUsed is returned when an AuthToken's replay ID has already been
// accepted by this verifier.
var ErrAlreadyUsed = errors.New("authtoken: already used")

// AuthVerifier tracks AuthToken replay IDs until they age out, rejecting any
// AuthToken that reuses an ID still in the window. It is safe for concurrent
// use; of two concurrent Verify calls for the same bytes, exactly one
// succeeds.
type AuthVerifier struct {
	mu   sync.Mutex
	seen [][]byte // sorted ascending, each a replayIDLen-byte id
}

// NewAuthVerifier returns an empty replay-tracking verifier.
func NewAuthVerifier() *AuthVerifier {
	return &AuthVerifier{}
}

// Verify runs Verify on bytes and, if the token checks out, atomically
// checks and records its replay ID. A second call with the same bytes (or
// any token sharing the replay ID) fails with ErrAlreadyUsed.
func (v *AuthVerifier) Verify(bytes_ []byte) (AuthToken, error) {
	v.gc()

	tok, err := Verify(bytes_)
	if err != nil {
		return AuthToken{}, err
	}

	id, err := ReplayID(bytes_)
	if err != nil {
		return AuthToken{}, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	i := sort.Search(len(v.seen), func(i int) bool {
		return bytes.Compare(v.seen[i], id) >= 0
	})
	if i < len(v.seen) && bytes.Equal(v.seen[i], id) {
		return AuthToken{}, ErrAlreadyUsed
	}
	v.seen = append(v.seen, nil)
	copy(v.seen[i+1:], v.seen[i:])
	v.seen[i] = id
	return tok, nil
}

// gc drops every replay ID older than two gcIntervalMicros buckets in the
// past, bounding the cache's memory to the recent past regardless of
// traffic volume.
func (v *AuthVerifier) gc() {
	threshold := clock.NowMicros() - 2*gcIntervalMicros
	thresholdBytes := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		thresholdBytes[i] = byte(threshold)
		threshold >>= 8
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	i := sort.Search(len(v.seen), func(i int) bool {
		return bytes.Compare(v.seen[i][:8], thresholdBytes) >= 0
	})
	v.seen = v.seen[i:]
}

// Count reports how many replay IDs are currently tracked. Test helper.
func (v *AuthVerifier) Count() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.seen)
}
