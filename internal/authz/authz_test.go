package authz

import (
	"testing"

	"github.com/pubky/homeserver/internal/capability"
)

func TestCheckWriteAllows(t *testing.T) {
	pub := []byte("01234567890123456789012345678901")
	caps := capability.List{mustParse(t, "/pub/pubky.app/:rw")}
	if err := CheckWrite(pub, pub, caps, "pub/pubky.app/foo"); err != nil {
		t.Fatalf("expected allow, got %v", err)
	}
}

func TestCheckWriteRejectsWrongOwner(t *testing.T) {
	a := []byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	b := []byte("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	caps := capability.List{capability.RootCapability()}
	err := CheckWrite(a, b, caps, "pub/foo")
	if !As(err, ReasonWrongOwner) {
		t.Fatalf("expected ReasonWrongOwner, got %v", err)
	}
}

func TestCheckWriteRejectsOutsideScope(t *testing.T) {
	pub := []byte("01234567890123456789012345678901")
	caps := capability.List{mustParse(t, "/pub/pubky.app/:rw")}
	err := CheckWrite(pub, pub, caps, "pub/foo.bar/file")
	if !As(err, ReasonNoCapability) {
		t.Fatalf("expected ReasonNoCapability, got %v", err)
	}
}

func TestCheckWriteRejectsNonPublicPath(t *testing.T) {
	pub := []byte("01234567890123456789012345678901")
	caps := capability.List{capability.RootCapability()}
	err := CheckWrite(pub, pub, caps, "priv/foo")
	if !As(err, ReasonNotPublic) {
		t.Fatalf("expected ReasonNotPublic, got %v", err)
	}
}

func mustParse(t *testing.T, s string) capability.Capability {
	t.Helper()
	c, err := capability.Parse(s)
	if err != nil {
		t.Fatalf("Parse(%q): %v", s, err)
	}
	return c
}
