// Package session provides the HTTP-facing half of session handling: the
// cookie name/value convention (the cookie's name is the owner's z-base32
// public key, its value the opaque session secret) and helpers to set,
// read, and clear it.
package session

import (
	"errors"
	"net/http"

	"github.com/pubky/homeserver/internal/zbase32"
)

// ErrNoCookie is returned when the expected session cookie is absent.
var ErrNoCookie = errors.New("session: no session cookie")

// CookieName returns the cookie name for pubky's z-base32 encoding.
func CookieName(pubky []byte) string {
	return zbase32.Encode(pubky)
}

// SetCookie sets the session cookie for pubky with the given secret value.
// Secure and SameSite=None are only set when the request arrived over
// HTTPS, matching spec.md's "HttpOnly; Secure; SameSite=None under HTTPS".
func SetCookie(w http.ResponseWriter, r *http.Request, pubky []byte, secret string) {
	cookie := &http.Cookie{
		Name:     CookieName(pubky),
		Value:    secret,
		Path:     "/",
		HttpOnly: true,
	}
	if isHTTPS(r) {
		cookie.Secure = true
		cookie.SameSite = http.SameSiteNoneMode
	}
	http.SetCookie(w, cookie)
}

// ClearCookie expires the session cookie for pubky.
func ClearCookie(w http.ResponseWriter, r *http.Request, pubky []byte) {
	cookie := &http.Cookie{
		Name:     CookieName(pubky),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	}
	if isHTTPS(r) {
		cookie.Secure = true
		cookie.SameSite = http.SameSiteNoneMode
	}
	http.SetCookie(w, cookie)
}

// SecretFromRequest reads the session secret from the cookie named after
// pubky's z-base32 encoding.
func SecretFromRequest(r *http.Request, pubky []byte) (string, error) {
	cookie, err := r.Cookie(CookieName(pubky))
	if err != nil {
		return "", ErrNoCookie
	}
	return cookie.Value, nil
}

func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return r.Header.Get("X-Forwarded-Proto") == "https"
}
