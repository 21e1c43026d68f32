// Package capability implements the pubky capability grammar:
// "<scope>:<actions>", where scope is an absolute path and actions is an
// ordered, deduplicated set drawn from {Read, Write, Unknown(c)}.
package capability

import (
	"errors"
	"sort"
	"strings"
)

// Action is a single granted action letter.
type Action byte

const (
	// Read grants GET-style access to the capability's scope.
	Read Action = 'r'
	// Write grants PUT/DELETE access to the capability's scope.
	Write Action = 'w'
)

var (
	// ErrInvalidFormat is returned when a capability string doesn't have
	// exactly one ':' separator.
	ErrInvalidFormat = errors.New("capability: invalid format, expected \"<scope>:<actions>\"")
	// ErrInvalidScope is returned when the scope half doesn't start with '/'.
	ErrInvalidScope = errors.New("capability: scope must start with '/'")
)

// Capability is a (scope, actions) pair. Unknown action characters are
// preserved verbatim so that tokens issued by a newer client round-trip
// through an older server unchanged.
type Capability struct {
	Scope   string
	Actions []Action
}

// RootCapability is the full-access capability granted to a user's own root.
func RootCapability() Capability {
	return Capability{Scope: "/", Actions: []Action{Read, Write}}
}

// Parse parses a single "<scope>:<actions>" capability string. Parsing is
// strict: exactly one ':' is required, and the scope must start with '/'.
func Parse(s string) (Capability, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return Capability{}, ErrInvalidFormat
	}
	scope, actionsPart := parts[0], parts[1]
	if !strings.HasPrefix(scope, "/") {
		return Capability{}, ErrInvalidScope
	}

	seen := make(map[Action]bool, len(actionsPart))
	var actions []Action
	for i := 0; i < len(actionsPart); i++ {
		a := Action(actionsPart[i])
		if seen[a] {
			continue
		}
		seen[a] = true
		actions = append(actions, a)
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })

	return Capability{Scope: scope, Actions: actions}, nil
}

// String renders the canonical textual form: actions sorted and deduped.
func (c Capability) String() string {
	var sb strings.Builder
	sb.WriteString(c.Scope)
	sb.WriteByte(':')
	for _, a := range c.Actions {
		sb.WriteByte(byte(a))
	}
	return sb.String()
}

// Has reports whether the capability grants the given action.
func (c Capability) Has(a Action) bool {
	for _, have := range c.Actions {
		if have == a {
			return true
		}
	}
	return false
}

// CoversPath reports whether this capability's scope is a prefix of path,
// per the authorization rule in spec.md §4.5: the scope's leading '/' is
// stripped before the prefix comparison, so a capability scope of
// "/pub/app/" matches a request path "pub/app/file".
func (c Capability) CoversPath(path string) bool {
	scope := strings.TrimPrefix(c.Scope, "/")
	return strings.HasPrefix(path, scope)
}

// List is an ordered collection of Capabilities, serialized as a
// comma-joined string.
type List []Capability

// ParseList parses a comma-separated capability list. Decoding is lenient:
// entries that fail to parse are silently dropped so that a token carrying
// a forward-compatible capability syntax still round-trips the entries it
// does understand. This is an intentional asymmetry with String, which is
// strict about emitting only well-formed entries (it always can, since
// they were parsed or constructed as valid Capability values).
func ParseList(s string) List {
	if s == "" {
		return nil
	}
	var out List
	for _, part := range strings.Split(s, ",") {
		if part == "" {
			continue
		}
		cap, err := Parse(part)
		if err != nil {
			continue
		}
		out = append(out, cap)
	}
	return out
}

// String renders the canonical comma-joined form.
func (l List) String() string {
	parts := make([]string, len(l))
	for i, c := range l {
		parts[i] = c.String()
	}
	return strings.Join(parts, ",")
}

// FindWritable returns the first capability in the list whose scope covers
// path and which grants Write, per the authorization gate in spec.md §4.5.
func (l List) FindWritable(path string) (Capability, bool) {
	for _, c := range l {
		if c.Has(Write) && c.CoversPath(path) {
			return c, true
		}
	}
	return Capability{}, false
}
