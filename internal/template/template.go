// Package template builds the unsigned commit transaction that workers
// patch and hash, per spec §4.C.
package template

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/djkazic/dodmine/internal/envelope"
	"github.com/djkazic/dodmine/pkg/bitcoinutil"
)

// Protocol-level wire constants (spec §6).
const (
	MagicValue     = 87960
	RevealDust     = 546
	CommitEnvelope = 1200
)

// Sentinel marks the mutable 8-byte nonce window inside the serialized
// commit transaction. It must never occur elsewhere in the serialized
// bytes.
var Sentinel = [8]byte{0x9d, 0x4b, 0x12, 0x12, 0xd0, 0xc9, 0x17, 0xe6}

// Leaf bundles the envelope leaf script together with the taproot keys
// derived from it, so the signer can reconstruct the exact same P2TR
// commitment the template used without duplicating the derivation.
type Leaf struct {
	Script      []byte
	Hash        chainhash.Hash
	InternalKey *btcec.PublicKey
	OutputKey   *btcec.PublicKey
}

// BuildLeaf derives the envelope leaf and its taproot output key for a
// given miner key and envelope payload. Build and the signer both call
// this so the commit output's P2TR script is always byte-identical
// between templating and signing for the same inputs.
func BuildLeaf(minerPubKey []byte, timestamp uint32, nonceSeed uint32) (*Leaf, error) {
	if len(minerPubKey) != 32 {
		return nil, fmt.Errorf("template: miner pubkey must be 32 bytes, got %d", len(minerPubKey))
	}

	payload := envelope.MinePayload{
		T: envelope.AssetDMT,
		DMT: &envelope.DMTFields{
			Time:  timestamp,
			Nonce: nonceSeed,
		},
	}
	leafScript, err := envelope.BuildMineLeaf(minerPubKey, payload)
	if err != nil {
		return nil, fmt.Errorf("template: build envelope leaf: %w", err)
	}

	internalKey, err := schnorr.ParsePubKey(minerPubKey)
	if err != nil {
		return nil, fmt.Errorf("template: parse miner pubkey: %w", err)
	}

	leaf := txscript.NewBaseTapLeaf(leafScript)
	leafHash := leaf.TapHash()
	outputKey := txscript.ComputeTaprootOutputKey(internalKey, leafHash[:])

	return &Leaf{
		Script:      leafScript,
		Hash:        leafHash,
		InternalKey: internalKey,
		OutputKey:   outputKey,
	}, nil
}

// Build produces the unsigned commit transaction and the byte offset of
// the mutable nonce window within its serialized form.
//
// parentHash and minerPubKey are both 32 bytes; minerPubKey is the
// x-only taproot internal key. timestamp is the Unix-seconds stamped
// into the envelope at round start; nonceSeed is the worker index.
func Build(parentHash [32]byte, minerPubKey []byte, timestamp uint32, nonceSeed uint32) ([]byte, int, error) {
	leaf, err := BuildLeaf(minerPubKey, timestamp, nonceSeed)
	if err != nil {
		return nil, 0, err
	}

	envelopeScript, err := txscript.PayToTaprootScript(leaf.OutputKey)
	if err != nil {
		return nil, 0, fmt.Errorf("template: build P2TR script: %w", err)
	}

	opReturnScript, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_RETURN).
		AddData(Sentinel[:]).
		Script()
	if err != nil {
		return nil, 0, fmt.Errorf("template: build OP_RETURN script: %w", err)
	}

	tx, err := commitSkeleton(parentHash, envelopeScript, opReturnScript)
	if err != nil {
		return nil, 0, err
	}

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, 0, fmt.Errorf("template: serialize tx: %w", err)
	}
	txBytes := buf.Bytes()

	offset := bytes.Index(txBytes, Sentinel[:])
	if offset < 0 {
		return nil, 0, fmt.Errorf("template: sentinel not found in serialized tx")
	}
	if bytes.Count(txBytes, Sentinel[:]) != 1 {
		return nil, 0, fmt.Errorf("template: sentinel must appear exactly once")
	}

	return txBytes, offset, nil
}

// CommitOutpoint derives the commit input's outpoint from the parent
// hash: the hash is endian-flipped to form a txid, per spec §3.
func CommitOutpoint(parentHash [32]byte) (*wire.OutPoint, error) {
	txidBytes := bitcoinutil.ReverseBytes(parentHash[:])
	txid, err := chainhash.NewHash(txidBytes)
	if err != nil {
		return nil, fmt.Errorf("template: derive commit outpoint: %w", err)
	}
	return wire.NewOutPoint(txid, 0), nil
}

func commitSkeleton(parentHash [32]byte, envelopeScript, opReturnScript []byte) (*wire.MsgTx, error) {
	outpoint, err := CommitOutpoint(parentHash)
	if err != nil {
		return nil, err
	}

	tx := wire.NewMsgTx(1)
	tx.LockTime = 0
	tx.AddTxIn(wire.NewTxIn(outpoint, nil, nil))
	tx.AddTxOut(wire.NewTxOut(CommitEnvelope, envelopeScript))
	tx.AddTxOut(wire.NewTxOut(0, opReturnScript))
	return tx, nil
}
