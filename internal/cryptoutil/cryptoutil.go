// Package cryptoutil collects the primitives the homeserver signs, hashes,
// and encrypts with: Ed25519 identity keys, BLAKE3 content hashing,
// XSalsa20-Poly1305 (nacl secretbox) for the recovery file and pubkyauth
// relay, and Argon2id for passphrase-derived keys.
package cryptoutil

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
)

// KeyPair is an Ed25519 identity keypair.
type KeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateKeyPair creates a new random Ed25519 identity keypair.
func GenerateKeyPair() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("generate keypair: %w", err)
	}
	return KeyPair{Public: pub, Private: priv}, nil
}

// KeyPairFromSeed reconstructs a keypair from a 32-byte Ed25519 seed, as
// stored in a recovery file.
func KeyPairFromSeed(seed []byte) (KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return KeyPair{}, fmt.Errorf("cryptoutil: seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return KeyPair{Public: priv.Public().(ed25519.PublicKey), Private: priv}, nil
}

// Sign signs msg with the identity's private key.
func (k KeyPair) Sign(msg []byte) []byte {
	return ed25519.Sign(k.Private, msg)
}

// Verify reports whether sig is a valid Ed25519 signature over msg under pub.
func Verify(pub ed25519.PublicKey, msg, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, msg, sig)
}

// HashLen is the BLAKE3 digest size used for content addressing.
const HashLen = 32

// Hash computes the BLAKE3 digest of data, as used to content-address blobs.
func Hash(data []byte) [HashLen]byte {
	return blake3.Sum256(data)
}

// Hasher wraps blake3 for incremental hashing of a streamed request body,
// so the homeserver never needs the whole payload in memory twice.
type Hasher struct {
	h *blake3.Hasher
}

// NewHasher returns a fresh incremental BLAKE3 hasher.
func NewHasher() *Hasher {
	return &Hasher{h: blake3.New()}
}

// Write implements io.Writer.
func (h *Hasher) Write(p []byte) (int, error) {
	return h.h.Write(p)
}

// Sum returns the current 32-byte digest without mutating hasher state.
func (h *Hasher) Sum() [HashLen]byte {
	var out [HashLen]byte
	copy(out[:], h.h.Sum(nil))
	return out
}

// RandomBytes returns n cryptographically secure random bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, fmt.Errorf("cryptoutil: generate random bytes: %w", err)
	}
	return b, nil
}

// Argon2Params captures the tunable Argon2id cost parameters. Defaults
// match the library's own recommended defaults for interactive use.
type Argon2Params struct {
	Time    uint32
	MemoryKB uint32
	Threads uint8
	KeyLen  uint32
}

// DefaultArgon2Params returns the library-default Argon2id parameters used
// to derive the recovery file's encryption key.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Time:     1,
		MemoryKB: 64 * 1024,
		Threads:  4,
		KeyLen:   32,
	}
}

// DeriveKey derives a key from passphrase and salt using Argon2id.
func DeriveKey(passphrase, salt []byte, p Argon2Params) []byte {
	return argon2.IDKey(passphrase, salt, p.Time, p.MemoryKB, p.Threads, p.KeyLen)
}

const (
	secretboxKeySize   = 32
	secretboxNonceSize = 24
)

var errSecretboxOpen = errors.New("cryptoutil: decryption failed (bad key or corrupt ciphertext)")

// SealSecretbox encrypts plaintext under key with a fresh random nonce,
// returning nonce||ciphertext as a single buffer (the wire format used by
// both the recovery file and the pubkyauth relay payload).
func SealSecretbox(key *[secretboxKeySize]byte, plaintext []byte) ([]byte, error) {
	var nonce [secretboxNonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("cryptoutil: generate nonce: %w", err)
	}
	out := make([]byte, 0, secretboxNonceSize+len(plaintext)+secretbox.Overhead)
	out = append(out, nonce[:]...)
	out = secretbox.Seal(out, plaintext, &nonce, key)
	return out, nil
}

// OpenSecretbox decrypts a nonce||ciphertext buffer produced by
// SealSecretbox.
func OpenSecretbox(key *[secretboxKeySize]byte, sealed []byte) ([]byte, error) {
	if len(sealed) < secretboxNonceSize {
		return nil, errSecretboxOpen
	}
	var nonce [secretboxNonceSize]byte
	copy(nonce[:], sealed[:secretboxNonceSize])

	plaintext, ok := secretbox.Open(nil, sealed[secretboxNonceSize:], &nonce, key)
	if !ok {
		return nil, errSecretboxOpen
	}
	return plaintext, nil
}

// KeyFrom32 copies a 32-byte slice into the fixed-size array secretbox
// requires.
func KeyFrom32(b []byte) (*[secretboxKeySize]byte, error) {
	if len(b) != secretboxKeySize {
		return nil, fmt.Errorf("cryptoutil: key must be %d bytes, got %d", secretboxKeySize, len(b))
	}
	var key [secretboxKeySize]byte
	copy(key[:], b)
	return &key, nil
}
