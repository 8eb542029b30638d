package envelope

import (
	"fmt"

	"github.com/btcsuite/btcd/txscript"
	"github.com/fxamacker/cbor/v2"
)

// BuildMineLeaf composes the taproot leaf script carrying a Mine envelope,
// per spec §4.B:
//
//	<x_only_pubkey> OP_CHECKSIG OP_FALSE OP_IF "dod" [89] <cbor(payload)> OP_ENDIF
func BuildMineLeaf(xOnlyPubKey []byte, payload MinePayload) ([]byte, error) {
	if len(xOnlyPubKey) != 32 {
		return nil, fmt.Errorf("envelope: x-only pubkey must be 32 bytes, got %d", len(xOnlyPubKey))
	}
	if payload.T != AssetDMT {
		return nil, fmt.Errorf("envelope: mine payload must declare asset tag %q", AssetDMT)
	}

	cborPayload, err := cbor.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("envelope: marshal payload: %w", err)
	}

	builder := txscript.NewScriptBuilder()
	builder.AddData(xOnlyPubKey)
	builder.AddOp(txscript.OP_CHECKSIG)
	builder.AddOp(txscript.OP_FALSE)
	builder.AddOp(txscript.OP_IF)
	builder.AddData(ProtocolID)
	builder.AddData([]byte{byte(OpMine)})
	builder.AddData(cborPayload)
	builder.AddOp(txscript.OP_ENDIF)

	script, err := builder.Script()
	if err != nil {
		return nil, fmt.Errorf("envelope: build script: %w", err)
	}
	return script, nil
}
