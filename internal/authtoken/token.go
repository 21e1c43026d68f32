// Package authtoken implements the signed, versioned, timestamped capability
// grant that a client presents to sign up or sign in: AuthToken.
package authtoken

import (
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/pubky/homeserver/internal/capability"
	"github.com/pubky/homeserver/internal/clock"
	"github.com/pubky/homeserver/internal/cryptoutil"
)

// Wire layout (version 0), fixed prefix then variable tail:
//
//	signature[0..64] || namespace[64..74] || version[74] || timestamp[75..83] || pubky[83..115] || capabilities[115..]
//
// Byte indices 65.. (inclusive of the last nine bytes of namespace) form the
// signed region; the first namespace byte sits in the buffer but outside of
// what gets signed. Byte indices 75..115 (timestamp || pubky) form the
// 40-byte replay ID.
const (
	sigLen        = 64
	namespaceLen  = 10
	versionOffset = sigLen + namespaceLen // 74
	versionLen    = 1
	tsOffset      = versionOffset + versionLen // 75
	tsLen         = 8
	pubkyOffset   = tsOffset + tsLen // 83
	pubkyLen      = ed25519.PublicKeySize
	headerLen     = pubkyOffset + pubkyLen // 115
	signedFrom    = 65
	replayIDFrom  = tsOffset // 75
	replayIDLen   = tsLen + pubkyLen

	// CurrentVersion is the only AuthToken version understood today.
	CurrentVersion byte = 0

	// TimestampWindowMicros bounds how far an AuthToken's timestamp may
	// drift from the verifier's clock, in either direction.
	TimestampWindowMicros = 45_000_000
)

// namespace separates AuthToken signatures from every other signature domain
// in the system so a signature can't be replayed as some other structure.
var namespace = [namespaceLen]byte{'p', 'u', 'b', 'k', 'y', ':', 'a', 'u', 't', 'h'}

var (
	ErrTooShort        = errors.New("authtoken: buffer shorter than fixed header")
	ErrUnknownVersion  = errors.New("authtoken: unknown version")
	ErrTooFarInFuture  = errors.New("authtoken: timestamp too far in the future")
	ErrExpired         = errors.New("authtoken: timestamp too far in the past")
	ErrInvalidSignature = errors.New("authtoken: invalid signature")
)

// AuthToken is a signed capability grant scoped to a single owner (Pubky).
type AuthToken struct {
	Signature    [sigLen]byte
	Version      byte
	Timestamp    int64 // microseconds, see internal/clock
	Pubky        ed25519.PublicKey
	Capabilities capability.List
}

// Sign builds and signs a version-0 AuthToken for the given capabilities,
// timestamped with the current strictly-increasing clock value.
func Sign(kp cryptoutil.KeyPair, caps capability.List) AuthToken {
	tok := AuthToken{
		Version:      CurrentVersion,
		Timestamp:    clock.NowMicros(),
		Pubky:        kp.Public,
		Capabilities: caps,
	}
	serialized := tok.serializeUnsigned()
	sig := kp.Sign(serialized[signedFrom:])
	copy(tok.Signature[:], sig)
	return tok
}

// Marshal renders the token in its version-0 wire layout.
func (t AuthToken) Marshal() []byte {
	buf := t.serializeUnsigned()
	copy(buf[:sigLen], t.Signature[:])
	return buf
}

// serializeUnsigned renders the wire layout with a zeroed signature field,
// which is what gets signed (from byte 65 on) and what Marshal overwrites.
func (t AuthToken) serializeUnsigned() []byte {
	capsBytes := []byte(t.Capabilities.String())
	buf := make([]byte, headerLen+len(capsBytes))
	copy(buf[sigLen:sigLen+namespaceLen], namespace[:])
	buf[versionOffset] = t.Version
	binary.BigEndian.PutUint64(buf[tsOffset:tsOffset+tsLen], uint64(t.Timestamp))
	copy(buf[pubkyOffset:pubkyOffset+pubkyLen], t.Pubky)
	copy(buf[headerLen:], capsBytes)
	return buf
}

// Parse decodes the fixed header and capability tail without checking the
// signature, timestamp window, or namespace. Use Verify for a fully checked
// token.
func Parse(bytes []byte) (AuthToken, error) {
	if len(bytes) < headerLen {
		return AuthToken{}, ErrTooShort
	}
	version := bytes[versionOffset]
	if version > CurrentVersion {
		return AuthToken{}, ErrUnknownVersion
	}
	var tok AuthToken
	copy(tok.Signature[:], bytes[:sigLen])
	tok.Version = version
	tok.Timestamp = int64(binary.BigEndian.Uint64(bytes[tsOffset : tsOffset+tsLen]))
	tok.Pubky = append(ed25519.PublicKey(nil), bytes[pubkyOffset:pubkyOffset+pubkyLen]...)
	tok.Capabilities = capability.ParseList(string(bytes[headerLen:]))
	return tok, nil
}

// Verify parses bytes, checks the signature over the signed region and the
// timestamp window, and returns the decoded token. It does not consult a
// replay cache; see AuthVerifier for that.
func Verify(bytes []byte) (AuthToken, error) {
	tok, err := Parse(bytes)
	if err != nil {
		return AuthToken{}, err
	}

	now := clock.NowMicros()
	diff := tok.Timestamp - now
	if diff > TimestampWindowMicros {
		return AuthToken{}, ErrTooFarInFuture
	}
	if diff < -TimestampWindowMicros {
		return AuthToken{}, ErrExpired
	}

	if len(bytes) < signedFrom {
		return AuthToken{}, ErrTooShort
	}
	if !cryptoutil.Verify(tok.Pubky, bytes[signedFrom:], tok.Signature[:]) {
		return AuthToken{}, ErrInvalidSignature
	}

	return tok, nil
}

// ReplayID returns the 40-byte timestamp||pubky suffix used to detect reuse.
func ReplayID(bytes []byte) ([]byte, error) {
	if len(bytes) < replayIDFrom+replayIDLen {
		return nil, ErrTooShort
	}
	id := make([]byte, replayIDLen)
	copy(id, bytes[replayIDFrom:replayIDFrom+replayIDLen])
	return id, nil
}

func (t AuthToken) String() string {
	return fmt.Sprintf("AuthToken{pubky=%x version=%d ts=%d caps=%s}", t.Pubky, t.Version, t.Timestamp, t.Capabilities.String())
}
