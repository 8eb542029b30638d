package bitcoinutil

import "testing"

func TestDoubleSHA256(t *testing.T) {
	// Known Bitcoin double-SHA256 of "hello"
	data := []byte("hello")
	hash := DoubleSHA256(data)
	hex := BytesToHex(hash[:])
	expected := "9595c9df90075148eb06860365df33584b75bff782a510c6cd4883a419833d50"
	if hex != expected {
		t.Errorf("DoubleSHA256(\"hello\") = %s, want %s", hex, expected)
	}
}

func TestReverseBytes(t *testing.T) {
	input := []byte{0x01, 0x02, 0x03, 0x04}
	result := ReverseBytes(input)
	expected := []byte{0x04, 0x03, 0x02, 0x01}
	for i := range result {
		if result[i] != expected[i] {
			t.Errorf("ReverseBytes byte %d = %x, want %x", i, result[i], expected[i])
		}
	}
	if input[0] != 0x01 {
		t.Error("ReverseBytes modified original slice")
	}
}

func TestHashHexRoundTrip(t *testing.T) {
	var h [32]byte
	for i := range h {
		h[i] = byte(i)
	}
	s := HashToHex(h)
	back, err := HexToHash(s)
	if err != nil {
		t.Fatalf("HexToHash: %v", err)
	}
	if back != h {
		t.Errorf("round trip mismatch: got %x want %x", back, h)
	}
}

func TestHexToHashBadLength(t *testing.T) {
	if _, err := HexToHash("deadbeef"); err == nil {
		t.Error("expected error for short hash")
	}
}
