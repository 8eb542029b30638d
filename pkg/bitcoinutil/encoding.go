package bitcoinutil

import (
	"encoding/binary"
	"encoding/hex"
)

// BytesToHex encodes bytes to a hex string. Used for the coordinator
// registration payload and the commit/reveal PSBT hex signer output.
func BytesToHex(b []byte) string {
	return hex.EncodeToString(b)
}

// Uint64ToBytesLE converts a uint64 to 8-byte little-endian, the
// nonce-count encoding of the commit transaction's OP_RETURN push
// (spec §4.E).
func Uint64ToBytesLE(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}
