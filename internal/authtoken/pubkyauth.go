package authtoken

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"

	"github.com/pubky/homeserver/internal/capability"
	"github.com/pubky/homeserver/internal/cryptoutil"
)

// pubkyAuthScheme is the URL scheme the authenticator app and requesting
// client exchange to delegate capabilities (spec.md §6 "pubkyauth URL").
const pubkyAuthScheme = "pubkyauth"

// ErrMalformedPubkyAuthURL is returned when a pubkyauth:// URL is missing
// one of its required query parameters or uses the wrong scheme.
var ErrMalformedPubkyAuthURL = errors.New("authtoken: malformed pubkyauth URL")

// PubkyAuthRequest is the decoded form of a pubkyauth:///?caps=...&secret=
// ...&relay=... URL: the capabilities a requesting client is asking for,
// the one-time secret used to encrypt the relayed AuthToken, and the relay
// base URL the authenticator posts the encrypted token to.
type PubkyAuthRequest struct {
	Capabilities capability.List
	Secret       [32]byte
	Relay        string
}

// BuildPubkyAuthURL renders a pubkyauth:///?caps=...&secret=...&relay=...
// URL for a requesting client to display (as a QR code or deep link) so an
// authenticator app can pick it up.
func BuildPubkyAuthURL(caps capability.List, secret [32]byte, relay string) string {
	q := url.Values{}
	q.Set("caps", caps.String())
	q.Set("secret", base64.RawURLEncoding.EncodeToString(secret[:]))
	q.Set("relay", relay)
	u := url.URL{Scheme: pubkyAuthScheme, Path: "/", RawQuery: q.Encode()}
	return u.String()
}

// ParsePubkyAuthURL parses a pubkyauth:// URL back into its parts.
func ParsePubkyAuthURL(raw string) (PubkyAuthRequest, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != pubkyAuthScheme {
		return PubkyAuthRequest{}, ErrMalformedPubkyAuthURL
	}
	q := u.Query()
	secretStr := q.Get("secret")
	relay := q.Get("relay")
	if secretStr == "" || relay == "" {
		return PubkyAuthRequest{}, ErrMalformedPubkyAuthURL
	}
	secretBytes, err := base64.RawURLEncoding.DecodeString(secretStr)
	if err != nil || len(secretBytes) != 32 {
		return PubkyAuthRequest{}, ErrMalformedPubkyAuthURL
	}
	var secret [32]byte
	copy(secret[:], secretBytes)

	return PubkyAuthRequest{
		Capabilities: capability.ParseList(q.Get("caps")),
		Secret:       secret,
		Relay:        relay,
	}, nil
}

// RelayChannelURL returns the full URL the authenticator POSTs the
// encrypted AuthToken to, and the requesting client GETs it from:
// "<relay>/<base64(blake3(secret))>".
func RelayChannelURL(req PubkyAuthRequest) string {
	channel := cryptoutil.Hash(req.Secret[:])
	return fmt.Sprintf("%s/%s", req.Relay, base64.RawURLEncoding.EncodeToString(channel[:]))
}

// EncryptForRelay seals a signed AuthToken under the pubkyauth secret, as
// the authenticator app POSTs to the relay channel.
func EncryptForRelay(req PubkyAuthRequest, tok AuthToken) ([]byte, error) {
	key, err := cryptoutil.KeyFrom32(req.Secret[:])
	if err != nil {
		return nil, err
	}
	return cryptoutil.SealSecretbox(key, tok.Marshal())
}

// DecryptFromRelay opens a relayed payload and verifies the AuthToken it
// contains, as the requesting client does after GETing the relay channel.
func DecryptFromRelay(req PubkyAuthRequest, sealed []byte) (AuthToken, error) {
	key, err := cryptoutil.KeyFrom32(req.Secret[:])
	if err != nil {
		return AuthToken{}, err
	}
	plain, err := cryptoutil.OpenSecretbox(key, sealed)
	if err != nil {
		return AuthToken{}, err
	}
	return Verify(plain)
}
