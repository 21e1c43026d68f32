package clock

import "encoding/base32"

// crockfordEncoding is the general-purpose Crockford base32 codec used for
// variable-length values (session secrets); timestamp ids use the
// fixed-width Encode/Decode in timestamp.go instead, since they must always be
// exactly EncodedLen characters.
var crockfordEncoding = base32.NewEncoding(crockfordAlphabet).WithPadding(base32.NoPadding)

// EncodeBytes renders an arbitrary byte slice as Crockford base32, used for
// session secrets (16 random bytes -> 26 characters).
func EncodeBytes(b []byte) string {
	return crockfordEncoding.EncodeToString(b)
}

// DecodeBytes parses a Crockford base32 string back into bytes.
func DecodeBytes(s string) ([]byte, error) {
	return crockfordEncoding.DecodeString(toUpperCrockford(s))
}

func toUpperCrockford(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		out[i] = upper(s[i])
	}
	return string(out)
}
