// Package authz implements the capability-scoped PUT/DELETE authorization
// gate described in spec.md §4.5: a write succeeds only when the
// cookie-bound session belongs to the path's own owner, some session
// capability grants Write over the path, and the path is under pub/.
package authz

import (
	"bytes"
	"errors"
	"strings"

	"github.com/pubky/homeserver/internal/capability"
)

// Reason classifies why a write was denied.
type Reason int

const (
	// ReasonWrongOwner: the session's pubky doesn't match the path's pubky.
	ReasonWrongOwner Reason = iota
	// ReasonNoCapability: no session capability grants Write over the path.
	ReasonNoCapability
	// ReasonNotPublic: the path isn't under the writable "pub/" prefix.
	ReasonNotPublic
)

// Error reports why a write request was denied.
type Error struct {
	Reason  Reason
	Message string
}

func (e *Error) Error() string { return e.Message }

var errWrongOwner = &Error{Reason: ReasonWrongOwner, Message: "session does not belong to the requested path's owner"}
var errNotPublic = &Error{Reason: ReasonNotPublic, Message: "Writing to directories other than '/pub/' is forbidden"}

func errNoCapability() *Error {
	return &Error{Reason: ReasonNoCapability, Message: "no session capability grants write access to this path"}
}

// CheckWrite authorizes a PUT or DELETE at path (relative to the pubky
// namespace, e.g. "pub/app/file") by a session belonging to sessionPubky
// acting on resources owned by pathPubky, per the rule in spec.md §4.5:
// owner match, a Write-granting capability whose scope (minus its leading
// '/') prefixes path, and path itself under "pub/".
func CheckWrite(sessionPubky, pathPubky []byte, caps capability.List, path string) error {
	if !bytes.Equal(sessionPubky, pathPubky) {
		return errWrongOwner
	}
	if _, ok := caps.FindWritable(path); !ok {
		return errNoCapability()
	}
	if !strings.HasPrefix(path, "pub/") {
		return errNotPublic
	}
	return nil
}

// As reports whether err is an *Error with the given Reason.
func As(err error, reason Reason) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Reason == reason
}
