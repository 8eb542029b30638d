package signer

import (
	"bytes"

	"github.com/btcsuite/btcd/wire"
)

// serializeWitnessStack renders a witness stack in the wire format a
// PSBT's final_script_witness field expects: a compact-size item count
// followed by each compact-size-prefixed item.
func serializeWitnessStack(stack [][]byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := wire.WriteVarInt(&buf, 0, uint64(len(stack))); err != nil {
		return nil, err
	}
	for _, item := range stack {
		if err := wire.WriteVarBytes(&buf, 0, item); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
