package signer

import "testing"

func TestResolveAddressKnownVectors(t *testing.T) {
	tests := []struct {
		name    string
		address string
		kind    AddrType
	}{
		{"mainnet P2WPKH", "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4", AddrP2WPKH},
		{"testnet P2WPKH", "tb1qw508d6qejxtdg4y5r3zarvary0c5xw7kxpjzsx", AddrP2WPKH},
		{"mainnet P2PKH", "1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2", AddrP2PKH},
		{"mainnet P2SH", "3P14159f73E4gFr7JterCCQh9QjiTjiZrG", AddrP2SH},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, kind, err := ResolveAddress(tt.address)
			if err != nil {
				t.Fatalf("ResolveAddress(%q): %v", tt.address, err)
			}
			if kind != tt.kind {
				t.Errorf("kind = %v, want %v", kind, tt.kind)
			}
		})
	}
}

func TestResolveAddressRejectsUnknownPrefix(t *testing.T) {
	if _, _, err := ResolveAddress("xyz123"); err == nil {
		t.Error("expected error for unrecognized prefix")
	}
}

func TestResolveAddressRejectsNetworkMismatch(t *testing.T) {
	// A testnet-prefixed string that is not actually a valid testnet address.
	if _, _, err := ResolveAddress("tb1qnotarealaddressatall00000000000000000"); err == nil {
		t.Error("expected error for malformed testnet address")
	}
}
