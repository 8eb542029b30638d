package signer

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// AddrType is the payout script type resolved from a textual address.
type AddrType int

const (
	AddrUnknown AddrType = iota
	AddrP2WPKH
	AddrP2TR
	AddrP2PKH
	AddrP2SH
)

// InvalidAddressError reports an address that could not be resolved to
// a known network/type combination, per spec §7.
type InvalidAddressError struct {
	Address string
	Reason  string
}

func (e *InvalidAddressError) Error() string {
	return fmt.Sprintf("signer: invalid address %q: %s", e.Address, e.Reason)
}

type prefixRule struct {
	prefix string
	params *chaincfg.Params
	kind   AddrType
}

// prefixTable implements the lookup from spec §4.E. The four-character
// bech32 prefixes are listed before the one-character base58 ones; no
// two entries match the same address, so the first match is the only one.
var prefixTable = []prefixRule{
	{"bc1q", &chaincfg.MainNetParams, AddrP2WPKH},
	{"bc1p", &chaincfg.MainNetParams, AddrP2TR},
	{"tb1q", &chaincfg.TestNet3Params, AddrP2WPKH},
	{"tb1p", &chaincfg.TestNet3Params, AddrP2TR},
	{"1", &chaincfg.MainNetParams, AddrP2PKH},
	{"3", &chaincfg.MainNetParams, AddrP2SH},
	{"m", &chaincfg.TestNet3Params, AddrP2PKH},
	{"n", &chaincfg.TestNet3Params, AddrP2PKH},
	{"2", &chaincfg.TestNet3Params, AddrP2SH},
}

// ResolveAddress derives the network and address type from an address's
// textual prefix, then fails fast if the address does not actually
// parse against that network.
func ResolveAddress(address string) (btcutil.Address, AddrType, error) {
	var rule *prefixRule
	for i := range prefixTable {
		if strings.HasPrefix(address, prefixTable[i].prefix) {
			rule = &prefixTable[i]
			break
		}
	}
	if rule == nil {
		return nil, AddrUnknown, &InvalidAddressError{Address: address, Reason: "unrecognized prefix"}
	}

	addr, err := btcutil.DecodeAddress(address, rule.params)
	if err != nil {
		return nil, AddrUnknown, &InvalidAddressError{Address: address, Reason: fmt.Sprintf("network mismatch: %v", err)}
	}
	if !addr.IsForNet(rule.params) {
		return nil, AddrUnknown, &InvalidAddressError{Address: address, Reason: "decoded address does not match derived network"}
	}

	return addr, rule.kind, nil
}
