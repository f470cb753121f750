package crypto

import (
	"testing"

	"github.com/btcsuite/btcutil/bech32"
)

func TestDecodeAddressRoundTrip(t *testing.T) {
	raw := make([]byte, 20)
	for i := range raw {
		raw[i] = byte(i + 1)
	}
	addr := NewAddress(BondPrefix, raw)

	decoded, err := DecodeAddress(addr.String())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded.Equal(addr) {
		t.Fatalf("round trip mismatch: %s != %s", decoded, addr)
	}
	if decoded.Prefix() != BondPrefix {
		t.Fatalf("unexpected prefix %q", decoded.Prefix())
	}
}

func TestDecodeAddressRejectsGarbage(t *testing.T) {
	if _, err := DecodeAddress("not-an-address"); err == nil {
		t.Fatal("expected error for malformed string")
	}
}

func TestDecodeAddressRejectsShortPayload(t *testing.T) {
	// Well-formed bech32, but the payload is 10 bytes instead of 20.
	conv, err := bech32.ConvertBits(make([]byte, 10), 8, 5, true)
	if err != nil {
		t.Fatalf("convert bits: %v", err)
	}
	encoded, err := bech32.Encode(string(BondPrefix), conv)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeAddress(encoded); err == nil {
		t.Fatal("expected error for short payload")
	}
}
