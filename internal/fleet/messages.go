package fleet

import (
	"github.com/fxamacker/cbor/v2"
)

const (
	// ProtocolVersion is the current fleet gossip protocol version.
	ProtocolVersion = "1.0.0"

	// RoundTopicName is the GossipSub topic carrying round lifecycle events.
	RoundTopicName = "/dodmine/rounds/" + ProtocolVersion
)

// EventType identifies the kind of round lifecycle event being gossiped.
type EventType uint8

const (
	EventRoundStart   EventType = 1
	EventRoundWon     EventType = 2
	EventRoundExpired EventType = 3
)

const maxPeerTagLen = 128

// RoundEvent announces that a sibling miner process has started,
// claimed, or abandoned a round for a given parent hash. It is purely
// advisory: the coordinator remains the sole authority on round state.
type RoundEvent struct {
	Type       EventType `cbor:"1,keyasint"`
	Height     uint64    `cbor:"2,keyasint"`
	ParentHash [32]byte  `cbor:"3,keyasint"`
	PeerTag    string    `cbor:"4,keyasint"`
}

// Encode serializes a RoundEvent to CBOR.
func Encode(ev *RoundEvent) ([]byte, error) {
	return cbor.Marshal(ev)
}

// Decode deserializes a CBOR-encoded RoundEvent, truncating oversized
// peer tags from misbehaving or malicious peers to maxPeerTagLen bytes.
func Decode(data []byte) (*RoundEvent, error) {
	var ev RoundEvent
	if err := cbor.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	if len(ev.PeerTag) > maxPeerTagLen {
		ev.PeerTag = ev.PeerTag[:maxPeerTagLen]
	}
	return &ev, nil
}
