// Package zbase32 renders 32-byte Ed25519 public keys as the 52-character
// z-base32 strings used throughout the homeserver's URLs and cookie names.
//
// z-base32 isn't in the standard library, but it is a plain alphabet
// substitution over the same bit-packing scheme encoding/base32 already
// implements, so this wraps encoding/base32 with Zooko's alphabet rather
// than hand-rolling a bit-packer — no third-party z-base32 package appears
// anywhere in the retrieved corpus.
package zbase32

import "encoding/base32"

// alphabet is Zooko Wilcox-O'Hearn's human-friendly base32 alphabet,
// chosen to avoid visually similar characters.
const alphabet = "ybndrfg8ejkmcpqxot1uwisza345h769"

var encoding = base32.NewEncoding(alphabet).WithPadding(base32.NoPadding)

// PublicKeyLen is the byte length of an Ed25519 public key.
const PublicKeyLen = 32

// EncodedLen is the fixed length of a z-base32-encoded 32-byte public key.
const EncodedLen = 52

// Encode renders b as a lowercase z-base32 string.
func Encode(b []byte) string {
	return encoding.EncodeToString(b)
}

// Decode parses a z-base32 string back into bytes. It accepts both upper
// and lower case input by lowercasing first, since the wire format is
// case-insensitive in practice (URLs, cookie names).
func Decode(s string) ([]byte, error) {
	return encoding.DecodeString(toLower(s))
}

// DecodePublicKey parses s as a 52-character z-base32 public key, failing if
// the decoded length isn't exactly 32 bytes.
func DecodePublicKey(s string) ([]byte, error) {
	b, err := Decode(s)
	if err != nil {
		return nil, err
	}
	if len(b) != PublicKeyLen {
		return nil, errInvalidPublicKeyLength(len(b))
	}
	return b, nil
}

type errInvalidPublicKeyLength int

func (e errInvalidPublicKeyLength) Error() string {
	return "zbase32: decoded public key has wrong length"
}

func toLower(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}
