package envelope

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/txscript"
	"github.com/fxamacker/cbor/v2"
)

// Envelope is a single parsed OP_IF...OP_ENDIF payload.
type Envelope struct {
	Key   []byte
	Value []byte

	// Payload is non-nil only when Key is OpMine and Value CBOR-decodes
	// into a MinePayload whose asset tag is DMT.
	Payload *MinePayload
}

// ParsedScript is everything the parser recognizes in a candidate tapscript.
type ParsedScript struct {
	Envelopes  []Envelope
	StakerKeys [][]byte // 32-byte x-only keys pushed before OP_CHECKSIG
	LockTime   *uint32  // from a 2-byte push before OP_CHECKLOCKTIMEVERIFY
}

type instruction struct {
	op     byte
	data   []byte
	isPush bool
}

func disassemble(script []byte) ([]instruction, error) {
	var out []instruction
	tok := txscript.MakeScriptTokenizer(0, script)
	for tok.Next() {
		op := tok.Opcode()
		switch {
		case op == txscript.OP_1NEGATE:
			out = append(out, instruction{op: op, data: []byte{0x81}, isPush: true})
		case op >= txscript.OP_1 && op <= txscript.OP_16:
			v := byte(op-txscript.OP_1) + 1
			out = append(out, instruction{op: op, data: []byte{v}, isPush: true})
		case op <= txscript.OP_PUSHDATA4:
			out = append(out, instruction{op: op, data: tok.Data(), isPush: true})
		default:
			out = append(out, instruction{op: op})
		}
	}
	if err := tok.Err(); err != nil {
		return nil, fmt.Errorf("envelope: tokenize script: %w", err)
	}
	return out, nil
}

// ParseScript recognizes staker-key pushes, a lock-time hint, and any
// number of OP_IF/"dod"/.../OP_ENDIF envelopes in a candidate tapscript,
// per spec §4.B.
func ParseScript(script []byte) (*ParsedScript, error) {
	instrs, err := disassemble(script)
	if err != nil {
		return nil, err
	}

	result := &ParsedScript{}
	seenKeys := make(map[string]bool)

	i := 0
	for i < len(instrs) {
		cur := instrs[i]

		// 32-byte push followed by OP_CHECKSIG: additional staker key.
		if cur.isPush && len(cur.data) == 32 && i+1 < len(instrs) && instrs[i+1].op == txscript.OP_CHECKSIG {
			result.StakerKeys = append(result.StakerKeys, cur.data)
			i += 2
			continue
		}

		// 2-byte push followed by OP_CHECKLOCKTIMEVERIFY: lock-time hint.
		if cur.isPush && len(cur.data) == 2 && i+1 < len(instrs) && instrs[i+1].op == txscript.OP_CHECKLOCKTIMEVERIFY {
			v := uint32(binary.LittleEndian.Uint16(cur.data))
			result.LockTime = &v
			i += 2
			continue
		}

		// Empty push: attempt to open an envelope.
		if cur.isPush && len(cur.data) == 0 {
			if i+2 < len(instrs) &&
				instrs[i+1].op == txscript.OP_IF &&
				instrs[i+2].isPush && bytes.Equal(instrs[i+2].data, ProtocolID) {

				env, next, ok := collectEnvelope(instrs, i+3)
				if !ok {
					// A non-push opcode or the end of the script came
					// before OP_ENDIF: the whole script is malformed.
					return &ParsedScript{}, nil
				}
				if env != nil {
					key := string(env.Key)
					if seenKeys[key] {
						return nil, fmt.Errorf("envelope: duplicate key %x", env.Key)
					}
					seenKeys[key] = true
					result.Envelopes = append(result.Envelopes, *env)
				}
				i = next
				continue
			}
			// Not followed by OP_IF "dod": a stutter, keep scanning.
			i++
			continue
		}

		i++
	}

	return result, nil
}

// collectEnvelope gathers pushes starting at idx until OP_ENDIF. Returns
// the parsed envelope (nil if there were no pushes at all), the index
// just past OP_ENDIF, and whether OP_ENDIF was reached; that is false
// when a non-push opcode or the end of the script comes first.
func collectEnvelope(instrs []instruction, idx int) (*Envelope, int, bool) {
	var pushes [][]byte
	i := idx
	for i < len(instrs) {
		if instrs[i].op == txscript.OP_ENDIF {
			i++
			if len(pushes) == 0 {
				return nil, i, true
			}
			value := bytes.Join(pushes[1:], nil)
			env := &Envelope{Key: pushes[0], Value: value}
			decodeMinePayload(env)
			return env, i, true
		}
		if !instrs[i].isPush {
			// Unexpected non-push, non-ENDIF opcode inside the envelope body.
			return nil, i, false
		}
		pushes = append(pushes, instrs[i].data)
		i++
	}
	return nil, i, false
}

func decodeMinePayload(env *Envelope) {
	if len(env.Key) != 1 || env.Key[0] != byte(OpMine) {
		return
	}
	var payload MinePayload
	if err := cbor.Unmarshal(env.Value, &payload); err != nil {
		return
	}
	if payload.T != AssetDMT {
		return
	}
	env.Payload = &payload
}
