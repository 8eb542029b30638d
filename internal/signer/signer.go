// Package signer builds and taproot-signs the commit/reveal transaction
// pair for a winning mining round, per spec §4.E.
package signer

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/djkazic/dodmine/internal/template"
	"github.com/djkazic/dodmine/pkg/bitcoinutil"
)

// SigningFailureError wraps an internal taproot construction error that
// should be impossible given validated inputs; per spec §7 it is
// treated as fatal by the caller.
type SigningFailureError struct {
	Stage string
	Err   error
}

func (e *SigningFailureError) Error() string {
	return fmt.Sprintf("signer: %s: %v", e.Stage, e.Err)
}

func (e *SigningFailureError) Unwrap() error { return e.Err }

// Winning is the output of a successful mining round.
type Winning struct {
	Time      uint32
	NonceSeed uint32
	NumBytes  uint64
}

// ComposeAndSign builds and signs the commit (key-path) and reveal
// (script-path) transactions for a winning round, returning both as
// hex-encoded PSBTs.
func ComposeAndSign(
	parentHash [32]byte,
	minerPubKey []byte,
	winning Winning,
	minerAddress string,
	privKey *btcec.PrivateKey,
) (commitPSBTHex string, revealPSBTHex string, err error) {
	leaf, err := template.BuildLeaf(minerPubKey, winning.Time, winning.NonceSeed)
	if err != nil {
		return "", "", &SigningFailureError{Stage: "build envelope leaf", Err: err}
	}

	envelopeScript, err := txscript.PayToTaprootScript(leaf.OutputKey)
	if err != nil {
		return "", "", &SigningFailureError{Stage: "build P2TR script", Err: err}
	}

	nonceBytes := bitcoinutil.Uint64ToBytesLE(winning.NumBytes)
	opReturnScript, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_RETURN).
		AddData(nonceBytes).
		Script()
	if err != nil {
		return "", "", &SigningFailureError{Stage: "build OP_RETURN script", Err: err}
	}

	outpoint, err := template.CommitOutpoint(parentHash)
	if err != nil {
		return "", "", &SigningFailureError{Stage: "derive commit outpoint", Err: err}
	}

	commitTx := wire.NewMsgTx(1)
	commitTx.LockTime = 0
	commitTx.AddTxIn(wire.NewTxIn(outpoint, nil, nil))
	commitTx.AddTxOut(wire.NewTxOut(template.CommitEnvelope, envelopeScript))
	commitTx.AddTxOut(wire.NewTxOut(0, opReturnScript))

	commitWitnessUTXO := &wire.TxOut{
		Value:    template.MagicValue,
		PkScript: envelopeScript,
	}

	commitHex, err := signCommit(commitTx, commitWitnessUTXO, privKey)
	if err != nil {
		return "", "", err
	}

	destAddr, _, err := ResolveAddress(minerAddress)
	if err != nil {
		return "", "", err
	}
	destScript, err := txscript.PayToAddrScript(destAddr)
	if err != nil {
		return "", "", &SigningFailureError{Stage: "build destination script", Err: err}
	}

	commitTxHash := commitTx.TxHash()
	revealTx := wire.NewMsgTx(1)
	revealTx.LockTime = 0
	revealTx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&commitTxHash, 0), nil, nil))
	revealTx.AddTxOut(wire.NewTxOut(template.RevealDust, destScript))

	revealWitnessUTXO := &wire.TxOut{
		Value:    template.CommitEnvelope,
		PkScript: envelopeScript,
	}

	revealHex, err := signReveal(revealTx, revealWitnessUTXO, leaf, privKey)
	if err != nil {
		return "", "", err
	}

	return commitHex, revealHex, nil
}

func signCommit(tx *wire.MsgTx, witnessUTXO *wire.TxOut, privKey *btcec.PrivateKey) (string, error) {
	packet, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return "", &SigningFailureError{Stage: "wrap commit tx in PSBT", Err: err}
	}
	packet.Inputs[0].WitnessUtxo = witnessUTXO

	prevOutFetcher := txscript.NewCannedPrevOutputFetcher(witnessUTXO.PkScript, witnessUTXO.Value)
	sigHashes := txscript.NewTxSigHashes(tx, prevOutFetcher)
	sigHash, err := txscript.CalcTaprootSignatureHash(sigHashes, txscript.SigHashAll, tx, 0, prevOutFetcher)
	if err != nil {
		return "", &SigningFailureError{Stage: "compute commit sighash", Err: err}
	}

	tweaked := txscript.TweakTaprootPrivKey(*privKey, nil)
	sig, err := schnorr.Sign(tweaked, sigHash, schnorr.FastSign())
	if err != nil {
		return "", &SigningFailureError{Stage: "sign commit", Err: err}
	}

	witness, err := serializeWitnessStack([][]byte{append(sig.Serialize(), byte(txscript.SigHashAll))})
	if err != nil {
		return "", &SigningFailureError{Stage: "serialize commit witness", Err: err}
	}
	packet.Inputs[0].FinalScriptWitness = witness

	clearIntermediateFields(&packet.Inputs[0])

	var buf bytes.Buffer
	if err := packet.Serialize(&buf); err != nil {
		return "", &SigningFailureError{Stage: "serialize commit PSBT", Err: err}
	}
	return bitcoinutil.BytesToHex(buf.Bytes()), nil
}

func signReveal(tx *wire.MsgTx, witnessUTXO *wire.TxOut, leaf *template.Leaf, privKey *btcec.PrivateKey) (string, error) {
	packet, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return "", &SigningFailureError{Stage: "wrap reveal tx in PSBT", Err: err}
	}
	packet.Inputs[0].WitnessUtxo = witnessUTXO

	prevOutFetcher := txscript.NewCannedPrevOutputFetcher(witnessUTXO.PkScript, witnessUTXO.Value)
	sigHashes := txscript.NewTxSigHashes(tx, prevOutFetcher)
	tapLeaf := txscript.NewBaseTapLeaf(leaf.Script)
	sigHash, err := txscript.CalcTapscriptSignaturehash(sigHashes, txscript.SigHashAll, tx, 0, prevOutFetcher, tapLeaf)
	if err != nil {
		return "", &SigningFailureError{Stage: "compute reveal sighash", Err: err}
	}

	sig, err := schnorr.Sign(privKey, sigHash, schnorr.FastSign())
	if err != nil {
		return "", &SigningFailureError{Stage: "sign reveal", Err: err}
	}

	controlBlock := &txscript.ControlBlock{
		LeafVersion: txscript.BaseLeafVersion,
		InternalKey: leaf.InternalKey,
	}
	if leaf.OutputKey.SerializeCompressed()[0] == secp256k1OddByte {
		controlBlock.OutputKeyYIsOdd = true
	}
	controlBlockBytes, err := controlBlock.ToBytes()
	if err != nil {
		return "", &SigningFailureError{Stage: "serialize control block", Err: err}
	}

	witness, err := serializeWitnessStack([][]byte{append(sig.Serialize(), byte(txscript.SigHashAll)), leaf.Script, controlBlockBytes})
	if err != nil {
		return "", &SigningFailureError{Stage: "serialize reveal witness", Err: err}
	}
	packet.Inputs[0].FinalScriptWitness = witness

	clearIntermediateFields(&packet.Inputs[0])

	var buf bytes.Buffer
	if err := packet.Serialize(&buf); err != nil {
		return "", &SigningFailureError{Stage: "serialize reveal PSBT", Err: err}
	}
	return bitcoinutil.BytesToHex(buf.Bytes()), nil
}

// secp256k1OddByte is the compressed-key prefix byte indicating an odd
// Y coordinate.
const secp256k1OddByte = 0x03

func clearIntermediateFields(in *psbt.PInput) {
	in.PartialSigs = nil
	in.SighashType = 0
	in.RedeemScript = nil
	in.WitnessScript = nil
	in.Bip32Derivation = nil
	in.TaprootKeySpendSig = nil
	in.TaprootScriptSpendSig = nil
	in.TaprootLeafScript = nil
	in.TaprootBip32Derivation = nil
	in.TaprootInternalKey = nil
	in.TaprootMerkleRoot = nil
}
