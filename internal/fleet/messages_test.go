package fleet

import "testing"

func TestRoundEventRoundTrip(t *testing.T) {
	original := &RoundEvent{
		Type:    EventRoundWon,
		Height:  123456,
		PeerTag: "12D3KooWExample",
	}
	original.ParentHash[0] = 0xab

	data, err := Encode(original)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if decoded.Type != original.Type {
		t.Errorf("type mismatch: %d != %d", decoded.Type, original.Type)
	}
	if decoded.Height != original.Height {
		t.Errorf("height mismatch: %d != %d", decoded.Height, original.Height)
	}
	if decoded.ParentHash != original.ParentHash {
		t.Error("parent hash mismatch")
	}
	if decoded.PeerTag != original.PeerTag {
		t.Error("peer tag mismatch")
	}
}

func TestDecodeTruncatesOversizedPeerTag(t *testing.T) {
	longTag := make([]byte, maxPeerTagLen+50)
	for i := range longTag {
		longTag[i] = 'a'
	}
	original := &RoundEvent{Type: EventRoundStart, PeerTag: string(longTag)}

	data, err := Encode(original)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded.PeerTag) != maxPeerTagLen {
		t.Errorf("peer tag length = %d, want %d", len(decoded.PeerTag), maxPeerTagLen)
	}
}
