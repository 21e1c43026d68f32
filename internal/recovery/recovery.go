// Package recovery implements the passphrase-encrypted secret-key envelope
// clients download as a recovery file, and can later decrypt to recover
// their Ed25519 identity.
package recovery

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/pubky/homeserver/internal/cryptoutil"
)

// specLine is the current spec header; legacy is accepted on decode for
// backward compatibility with files written under the pkarr.org name.
const (
	specLine       = "pubky.org/recovery"
	legacySpecLine = "pkarr.org/recovery"
)

var kdfSalt = []byte("recovery")

// RecoveryError classifies why a recovery file failed to decode or decrypt.
type RecoveryError struct {
	Kind string
	N    int // populated for InvalidSecretKeyLength
}

func (e *RecoveryError) Error() string {
	if e.Kind == "InvalidSecretKeyLength" {
		return fmt.Sprintf("recovery: invalid secret key length: %d", e.N)
	}
	return "recovery: " + e.Kind
}

var (
	ErrMissingSpecLine           = &RecoveryError{Kind: "MissingSpecLine"}
	ErrVersionNotSupported       = &RecoveryError{Kind: "VersionNotSupported"}
	ErrMissingEncryptedSecretKey = &RecoveryError{Kind: "MissingEncryptedSecretKey"}
	ErrKdf                       = &RecoveryError{Kind: "KdfError"}
	ErrCipher                    = &RecoveryError{Kind: "CipherError"}
)

func errInvalidSecretKeyLength(n int) *RecoveryError {
	return &RecoveryError{Kind: "InvalidSecretKeyLength", N: n}
}

// Create builds a recovery file envelope for seed (an Ed25519 seed,
// ed25519.SeedSize bytes) encrypted under a key derived from passphrase.
func Create(seed, passphrase []byte) ([]byte, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, errInvalidSecretKeyLength(len(seed))
	}

	key := cryptoutil.DeriveKey(passphrase, kdfSalt, cryptoutil.DefaultArgon2Params())
	keyArr, err := cryptoutil.KeyFrom32(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKdf, err)
	}

	sealed, err := cryptoutil.SealSecretbox(keyArr, seed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCipher, err)
	}

	var buf bytes.Buffer
	buf.WriteString(specLine)
	buf.WriteByte('\n')
	buf.Write(sealed)
	return buf.Bytes(), nil
}

// Open decrypts a recovery file envelope with passphrase, returning the
// 32-byte Ed25519 seed it protects.
func Open(envelope, passphrase []byte) ([]byte, error) {
	nl := bytes.IndexByte(envelope, '\n')
	if nl < 0 {
		return nil, ErrMissingSpecLine
	}
	header := string(envelope[:nl])
	if header != specLine && header != legacySpecLine {
		return nil, ErrVersionNotSupported
	}

	sealed := envelope[nl+1:]
	if len(sealed) == 0 {
		return nil, ErrMissingEncryptedSecretKey
	}

	key := cryptoutil.DeriveKey(passphrase, kdfSalt, cryptoutil.DefaultArgon2Params())
	keyArr, err := cryptoutil.KeyFrom32(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKdf, err)
	}

	seed, err := cryptoutil.OpenSecretbox(keyArr, sealed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCipher, err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, errInvalidSecretKeyLength(len(seed))
	}
	return seed, nil
}

// KeyPairFromEnvelope decrypts envelope and reconstructs the Ed25519
// keypair it protects in one step.
func KeyPairFromEnvelope(envelope, passphrase []byte) (cryptoutil.KeyPair, error) {
	seed, err := Open(envelope, passphrase)
	if err != nil {
		return cryptoutil.KeyPair{}, err
	}
	return cryptoutil.KeyPairFromSeed(seed)
}

// Is reports whether err is (or wraps) a RecoveryError of the given kind,
// following the standard errors.Is convention for sentinel comparisons.
func Is(err error, target *RecoveryError) bool {
	var re *RecoveryError
	if !errors.As(err, &re) {
		return false
	}
	return re.Kind == target.Kind
}
