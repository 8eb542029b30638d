// Package envelope builds and parses the taproot-leaf envelope that
// carries the CBOR-encoded mining payload between OP_IF/OP_ENDIF markers,
// per spec §4.B.
package envelope

// ProtocolID is the literal 3-byte protocol tag embedded in every envelope.
var ProtocolID = []byte("dod")

// OpTag identifies the operation carried by an envelope.
type OpTag byte

// Recognized op tags (spec §9 "Envelope extensibility"). Only OpMine is
// interpreted; the others parse to an empty payload.
const (
	OpNote     OpTag = 15
	OpMetadata OpTag = 21
	OpMine     OpTag = 89
	OpVersion  OpTag = 99
	OpNop      OpTag = 255
)

// AssetTag is the payload's declared content type.
type AssetTag string

// AssetDMT is the only asset tag the core interprets.
const AssetDMT AssetTag = "DMT"

// DMTFields carries the winning timestamp and worker nonce seed.
type DMTFields struct {
	Time  uint32 `cbor:"time"`
	Nonce uint32 `cbor:"nonce"`
}

// MinePayload is the CBOR-encoded body of an OpMine envelope.
type MinePayload struct {
	N   *string    `cbor:"n,omitempty"`
	T   AssetTag   `cbor:"t"`
	DMT *DMTFields `cbor:"dmt,omitempty"`
}
