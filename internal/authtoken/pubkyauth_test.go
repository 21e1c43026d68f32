package authtoken

import (
	"strings"
	"testing"

	"github.com/pubky/homeserver/internal/capability"
	"github.com/pubky/homeserver/internal/cryptoutil"
)

func testSecret(t *testing.T) [32]byte {
	t.Helper()
	b, err := cryptoutil.RandomBytes(32)
	if err != nil {
		t.Fatalf("RandomBytes: %v", err)
	}
	var secret [32]byte
	copy(secret[:], b)
	return secret
}

func TestBuildAndParsePubkyAuthURLRoundTrip(t *testing.T) {
	scoped, err := capability.Parse("/pub/pubky.app/:rw")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	caps := capability.List{scoped}
	secret := testSecret(t)
	relay := "https://relay.example.com/link"

	raw := BuildPubkyAuthURL(caps, secret, relay)
	if !strings.HasPrefix(raw, "pubkyauth:///?") {
		t.Fatalf("unexpected URL shape: %q", raw)
	}

	req, err := ParsePubkyAuthURL(raw)
	if err != nil {
		t.Fatalf("ParsePubkyAuthURL: %v", err)
	}
	if req.Relay != relay {
		t.Errorf("Relay = %q, want %q", req.Relay, relay)
	}
	if req.Secret != secret {
		t.Errorf("Secret mismatch")
	}
	if req.Capabilities.String() != caps.String() {
		t.Errorf("Capabilities = %q, want %q", req.Capabilities.String(), caps.String())
	}
}

func TestParsePubkyAuthURLRejectsWrongScheme(t *testing.T) {
	_, err := ParsePubkyAuthURL("https:///?secret=x&relay=y")
	if err != ErrMalformedPubkyAuthURL {
		t.Fatalf("err = %v, want ErrMalformedPubkyAuthURL", err)
	}
}

func TestParsePubkyAuthURLRejectsMissingFields(t *testing.T) {
	cases := []string{
		"pubkyauth:///?relay=https://r",
		"pubkyauth:///?secret=abc",
		"pubkyauth:///?secret=not-valid-base64!!&relay=https://r",
	}
	for _, raw := range cases {
		if _, err := ParsePubkyAuthURL(raw); err != ErrMalformedPubkyAuthURL {
			t.Errorf("ParsePubkyAuthURL(%q) err = %v, want ErrMalformedPubkyAuthURL", raw, err)
		}
	}
}

func TestRelayChannelURLIsDeterministic(t *testing.T) {
	secret := testSecret(t)
	req := PubkyAuthRequest{Secret: secret, Relay: "https://relay.example.com/link"}
	a := RelayChannelURL(req)
	b := RelayChannelURL(req)
	if a != b {
		t.Fatalf("RelayChannelURL not deterministic: %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, "https://relay.example.com/link/") {
		t.Fatalf("unexpected channel URL: %q", a)
	}
}

func TestEncryptDecryptForRelayRoundTrip(t *testing.T) {
	kp, err := cryptoutil.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	caps := capability.List{capability.RootCapability()}
	tok := Sign(kp, caps)

	req := PubkyAuthRequest{Capabilities: caps, Secret: testSecret(t), Relay: "https://relay.example.com/link"}

	sealed, err := EncryptForRelay(req, tok)
	if err != nil {
		t.Fatalf("EncryptForRelay: %v", err)
	}

	got, err := DecryptFromRelay(req, sealed)
	if err != nil {
		t.Fatalf("DecryptFromRelay: %v", err)
	}
	if string(got.Pubky) != string(tok.Pubky) {
		t.Errorf("Pubky mismatch")
	}
	if got.Capabilities.String() != tok.Capabilities.String() {
		t.Errorf("Capabilities mismatch: got %q want %q", got.Capabilities.String(), tok.Capabilities.String())
	}
}

func TestDecryptFromRelayRejectsWrongSecret(t *testing.T) {
	kp, err := cryptoutil.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	caps := capability.List{capability.RootCapability()}
	tok := Sign(kp, caps)

	req := PubkyAuthRequest{Capabilities: caps, Secret: testSecret(t), Relay: "https://relay.example.com/link"}
	sealed, err := EncryptForRelay(req, tok)
	if err != nil {
		t.Fatalf("EncryptForRelay: %v", err)
	}

	wrongReq := req
	wrongReq.Secret = testSecret(t)
	if _, err := DecryptFromRelay(wrongReq, sealed); err == nil {
		t.Fatal("expected decryption to fail under the wrong secret")
	}
}
