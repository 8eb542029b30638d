// Package coordinator talks to the external round coordinator: fetch
// the current parent block, register the miner, and submit signed
// commit/reveal pairs, per spec §6.
package coordinator

import (
	"context"
	"math/big"

	"github.com/djkazic/dodmine/internal/bitwork"
)

// BlockSummary is the coordinator's view of the current parent block.
// Fields beyond these three are transport passthrough and not
// interpreted by the core.
type BlockSummary struct {
	Hash          [32]byte
	Difficulty    bitwork.Bitwork
	NextBlockTime uint64 // nanoseconds since epoch
}

// MinerInfo is returned by a successful registration.
type MinerInfo struct {
	BtcAddress   string
	PublicKeyHex string
}

// SubmitRequest carries a signed commit/reveal pair to the coordinator.
type SubmitRequest struct {
	BtcAddress       string
	SignedCommitPSBT string
	SignedRevealPSBT string
	CyclesPrice      *big.Int
}

// SubmitResponse is the coordinator's acknowledgment of a submission.
type SubmitResponse struct {
	BlockHeight uint64
	CyclesPrice *big.Int
}

// Coordinator is the external RPC surface the orchestrator depends on.
type Coordinator interface {
	// GetLastBlock returns the current parent block's height and
	// summary. summary is nil if the coordinator has nothing to report.
	GetLastBlock(ctx context.Context) (height uint64, summary *BlockSummary, err error)

	// Register is idempotent: the coordinator's "already existed"
	// response is treated as success.
	Register(ctx context.Context, btcAddress, publicKeyHex string) (*MinerInfo, error)

	Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error)
}
