package envelope

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/txscript"
)

func mustPubKey() []byte {
	pk := make([]byte, 32)
	// The first bytes of 02afee55... (without the 02 prefix), zero-padded to 32 bytes of x-only material.
	copy(pk, []byte{0xaf, 0xee, 0x55})
	return pk
}

func TestBuildParseRoundTrip(t *testing.T) {
	pubKey := mustPubKey()
	nonce := "1"
	_ = nonce

	payload := MinePayload{
		T: AssetDMT,
		DMT: &DMTFields{
			Time:  1,
			Nonce: 1,
		},
	}

	script, err := BuildMineLeaf(pubKey, payload)
	if err != nil {
		t.Fatalf("BuildMineLeaf: %v", err)
	}

	parsed, err := ParseScript(script)
	if err != nil {
		t.Fatalf("ParseScript: %v", err)
	}
	if len(parsed.Envelopes) != 1 {
		t.Fatalf("expected 1 envelope, got %d", len(parsed.Envelopes))
	}

	env := parsed.Envelopes[0]
	if len(env.Key) != 1 || env.Key[0] != byte(OpMine) {
		t.Fatalf("unexpected key: %x", env.Key)
	}
	if env.Payload == nil {
		t.Fatal("expected decoded Mine payload")
	}
	if env.Payload.T != AssetDMT {
		t.Errorf("asset tag = %q, want DMT", env.Payload.T)
	}
	if env.Payload.DMT == nil || env.Payload.DMT.Time != 1 || env.Payload.DMT.Nonce != 1 {
		t.Errorf("DMT fields = %+v, want {Time:1 Nonce:1}", env.Payload.DMT)
	}

	if len(parsed.StakerKeys) != 1 || !bytes.Equal(parsed.StakerKeys[0], pubKey) {
		t.Errorf("expected leaf pubkey recognized as a staker key")
	}
}

func TestParseScriptIgnoresNonEnvelope(t *testing.T) {
	builder := txscript.NewScriptBuilder()
	builder.AddData(mustPubKey())
	builder.AddOp(txscript.OP_CHECKSIG)
	script, err := builder.Script()
	if err != nil {
		t.Fatalf("build script: %v", err)
	}

	parsed, err := ParseScript(script)
	if err != nil {
		t.Fatalf("ParseScript: %v", err)
	}
	if len(parsed.Envelopes) != 0 {
		t.Errorf("expected no envelopes, got %d", len(parsed.Envelopes))
	}
	if len(parsed.StakerKeys) != 1 {
		t.Errorf("expected 1 staker key, got %d", len(parsed.StakerKeys))
	}
}

func TestParseScriptMissingEndIfIsMalformed(t *testing.T) {
	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_0)
	builder.AddOp(txscript.OP_IF)
	builder.AddData(ProtocolID)
	builder.AddData([]byte{byte(OpMine)})
	builder.AddData([]byte{0x01, 0x02})
	// No OP_ENDIF.
	script, err := builder.Script()
	if err != nil {
		t.Fatalf("build script: %v", err)
	}

	parsed, err := ParseScript(script)
	if err != nil {
		t.Fatalf("ParseScript: %v", err)
	}
	if len(parsed.Envelopes) != 0 {
		t.Errorf("expected no envelopes for malformed script, got %d", len(parsed.Envelopes))
	}
}

func TestParseScriptDuplicateKeyRejected(t *testing.T) {
	builder := txscript.NewScriptBuilder()
	for i := 0; i < 2; i++ {
		builder.AddOp(txscript.OP_0)
		builder.AddOp(txscript.OP_IF)
		builder.AddData(ProtocolID)
		builder.AddData([]byte{byte(OpNote)})
		builder.AddData([]byte("hello"))
		builder.AddOp(txscript.OP_ENDIF)
	}
	script, err := builder.Script()
	if err != nil {
		t.Fatalf("build script: %v", err)
	}

	if _, err := ParseScript(script); err == nil {
		t.Error("expected duplicate-key rejection")
	}
}

func TestParseScriptCBORErrorLeavesPayloadEmpty(t *testing.T) {
	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_0)
	builder.AddOp(txscript.OP_IF)
	builder.AddData(ProtocolID)
	builder.AddData([]byte{byte(OpMine)})
	builder.AddData([]byte{0xff, 0xff, 0xff}) // not valid CBOR
	builder.AddOp(txscript.OP_ENDIF)
	script, err := builder.Script()
	if err != nil {
		t.Fatalf("build script: %v", err)
	}

	parsed, err := ParseScript(script)
	if err != nil {
		t.Fatalf("ParseScript: %v", err)
	}
	if len(parsed.Envelopes) != 1 {
		t.Fatalf("expected 1 envelope, got %d", len(parsed.Envelopes))
	}
	if parsed.Envelopes[0].Payload != nil {
		t.Error("expected nil payload on CBOR decode failure")
	}
}
