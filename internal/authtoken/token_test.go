package authtoken

import (
	"testing"

	"github.com/pubky/homeserver/internal/capability"
	"github.com/pubky/homeserver/internal/cryptoutil"
)

func mustKeyPair(t *testing.T) cryptoutil.KeyPair {
	t.Helper()
	kp, err := cryptoutil.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	return kp
}

func TestSignVerifyRoundTrip(t *testing.T) {
	kp := mustKeyPair(t)
	caps := capability.List{capability.RootCapability()}

	tok := Sign(kp, caps)
	marshaled := tok.Marshal()

	got, err := Verify(marshaled)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !got.Pubky.Equal(kp.Public) {
		t.Fatal("pubky mismatch after verify")
	}
	if got.Capabilities.String() != caps.String() {
		t.Fatalf("capabilities mismatch: got %q want %q", got.Capabilities.String(), caps.String())
	}
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	kp := mustKeyPair(t)
	tok := Sign(kp, capability.List{capability.RootCapability()})
	marshaled := tok.Marshal()
	marshaled[0] ^= 0xFF

	if _, err := Verify(marshaled); err != ErrInvalidSignature {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyRejectsTooShort(t *testing.T) {
	if _, err := Verify([]byte("short")); err != ErrTooShort {
		t.Fatalf("expected ErrTooShort, got %v", err)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	kp := mustKeyPair(t)
	tok := Sign(kp, capability.List{capability.RootCapability()})
	tok.Timestamp -= TimestampWindowMicros + 1_000_000
	serialized := tok.serializeUnsigned()
	sig := kp.Sign(serialized[signedFrom:])
	copy(tok.Signature[:], sig)

	if _, err := Verify(tok.Marshal()); err != ErrExpired {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestVerifyRejectsTooFarInFuture(t *testing.T) {
	kp := mustKeyPair(t)
	tok := Sign(kp, capability.List{capability.RootCapability()})
	tok.Timestamp += TimestampWindowMicros + 1_000_000
	serialized := tok.serializeUnsigned()
	sig := kp.Sign(serialized[signedFrom:])
	copy(tok.Signature[:], sig)

	if _, err := Verify(tok.Marshal()); err != ErrTooFarInFuture {
		t.Fatalf("expected ErrTooFarInFuture, got %v", err)
	}
}

func TestReplayIDIsTimestampThenPubky(t *testing.T) {
	kp := mustKeyPair(t)
	tok := Sign(kp, capability.List{capability.RootCapability()})
	marshaled := tok.Marshal()

	id, err := ReplayID(marshaled)
	if err != nil {
		t.Fatalf("ReplayID: %v", err)
	}
	if len(id) != replayIDLen {
		t.Fatalf("replay id length = %d, want %d", len(id), replayIDLen)
	}
	if string(id[8:]) != string([]byte(kp.Public)) {
		t.Fatal("replay id tail should equal pubky")
	}
}

func TestVerifyRejectsUnknownVersion(t *testing.T) {
	kp := mustKeyPair(t)
	tok := Sign(kp, capability.List{capability.RootCapability()})
	marshaled := tok.Marshal()
	marshaled[versionOffset] = CurrentVersion + 1

	if _, err := Verify(marshaled); err != ErrUnknownVersion {
		t.Fatalf("expected ErrUnknownVersion, got %v", err)
	}
}
