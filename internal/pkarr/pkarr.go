// Package pkarr implements the homeserver's side of the pkarr relay: the
// signed-packet envelope exchanged over PUT/GET /pkarr/:pubky, and the SVCB
// record set the homeserver publishes under its own identity key so
// clients can discover it. The actual publish(signed_packet)/
// resolve(public_key) distributed-DHT oracle is treated as an external
// collaborator per spec.md and has no counterpart in this package; the
// Relay interface and its InMemoryRelay implementation are a local
// stand-in used for the homeserver's own /pkarr/:pubky relay endpoints,
// not a DHT client.
package pkarr

import (
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/miekg/dns"
	"github.com/pubky/homeserver/internal/clock"
	"github.com/pubky/homeserver/internal/cryptoutil"
)

// ErrInvalidSignature is returned when a signed packet's signature doesn't
// verify under the claimed public key.
var ErrInvalidSignature = errors.New("pkarr: invalid signature")

// ErrTooShort is returned when a relay payload is shorter than the fixed
// signature+timestamp header.
var ErrTooShort = errors.New("pkarr: payload shorter than fixed header")

const (
	sigLen = 64
	tsLen  = 8
	hdrLen = sigLen + tsLen
)

// SignedPacket is a timestamped, signed DNS resource record set published
// under an identity key.
type SignedPacket struct {
	PublicKey  ed25519.PublicKey
	Timestamp  int64
	PacketData []byte // wire-format DNS message (see BuildIdentityPacket)
}

// Sign builds and signs a SignedPacket wrapping packetData, timestamped
// with the current clock reading.
func Sign(kp cryptoutil.KeyPair, packetData []byte) SignedPacket {
	return SignedPacket{
		PublicKey:  kp.Public,
		Timestamp:  clock.NowMicros(),
		PacketData: packetData,
	}
}

// Marshal renders the relay wire payload: signature[64] || timestamp[8 BE]
// || packet bytes. The public key isn't included since the relay routes
// (PUT/GET /pkarr/:pubky) already carry it in the URL.
func Marshal(kp cryptoutil.KeyPair, sp SignedPacket) []byte {
	signable := make([]byte, tsLen+len(sp.PacketData))
	binary.BigEndian.PutUint64(signable[:tsLen], uint64(sp.Timestamp))
	copy(signable[tsLen:], sp.PacketData)
	sig := kp.Sign(signable)

	out := make([]byte, 0, hdrLen+len(sp.PacketData))
	out = append(out, sig...)
	out = append(out, signable...)
	return out
}

// Verify parses and verifies a relay payload under pubky, as produced by
// Marshal.
func Verify(pubky ed25519.PublicKey, payload []byte) (SignedPacket, error) {
	if len(payload) < hdrLen {
		return SignedPacket{}, ErrTooShort
	}
	sig := payload[:sigLen]
	signable := payload[sigLen:]
	if !cryptoutil.Verify(pubky, signable, sig) {
		return SignedPacket{}, ErrInvalidSignature
	}
	ts := int64(binary.BigEndian.Uint64(signable[:tsLen]))
	return SignedPacket{
		PublicKey:  pubky,
		Timestamp:  ts,
		PacketData: append([]byte(nil), signable[tsLen:]...),
	}, nil
}

// BuildIdentityPacket builds the wire-format DNS message the homeserver
// publishes under its own identity key on startup (spec.md §4.6): a
// single SVCB record at the zone apex ("@", packed as the root name "."
// since the DNS wire format only carries fully qualified names) pointing at
// domain, with priority 1 and an explicit port only when domain is
// "localhost" (otherwise the homeserver relies on conventional ports
// behind a reverse proxy).
func BuildIdentityPacket(domain string, port uint16) ([]byte, error) {
	svcb := &dns.SVCB{
		Hdr: dns.RR_Header{
			Name:   ".",
			Rrtype: dns.TypeSVCB,
			Class:  dns.ClassINET,
			Ttl:    3600,
		},
		Priority: 1,
		Target:   dns.Fqdn(domain),
	}
	if domain == "localhost" {
		svcb.Value = []dns.SVCBKeyValue{&dns.SVCBPort{Port: port}}
	}

	msg := new(dns.Msg)
	msg.Id = 0
	msg.Response = true
	msg.Answer = []dns.RR{svcb}

	packed, err := msg.Pack()
	if err != nil {
		return nil, fmt.Errorf("pkarr: pack identity packet: %w", err)
	}
	return packed, nil
}
