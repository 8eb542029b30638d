package bitcoinutil

import "testing"

func TestBytesToHex(t *testing.T) {
	original := []byte{0xde, 0xad, 0xbe, 0xef}
	if got := BytesToHex(original); got != "deadbeef" {
		t.Errorf("BytesToHex = %s, want deadbeef", got)
	}
}

func TestUint64ToBytesLE(t *testing.T) {
	got := Uint64ToBytesLE(0x0102030405060708)
	want := []byte{0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("byte %d = %x, want %x", i, got[i], want[i])
		}
	}
}
