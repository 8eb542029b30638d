// Package testutil holds fixtures shared across the mining client's
// package-level test suites, so each package doesn't hand-roll its own
// copy of a sample parent block or winning round.
package testutil

import (
	"math/big"

	"github.com/djkazic/dodmine/internal/bitwork"
	"github.com/djkazic/dodmine/internal/coordinator"
	"github.com/djkazic/dodmine/internal/roundlog"
	"github.com/djkazic/dodmine/internal/signer"
)

// SampleParentHash returns a deterministic, non-zero 32-byte hash
// suitable for tests that need a stand-in for a real block hash.
func SampleParentHash() [32]byte {
	var h [32]byte
	for i := range h {
		h[i] = byte(i + 1)
	}
	return h
}

// SampleBlockSummary returns a minimal coordinator.BlockSummary for
// tests exercising the orchestrator's tick loop.
func SampleBlockSummary(height uint64) *coordinator.BlockSummary {
	target, _ := bitwork.New(4, 0x0)
	return &coordinator.BlockSummary{
		Hash:          SampleParentHash(),
		Difficulty:    target,
		NextBlockTime: height * uint64(600_000_000_000), // ~10 minutes apart, in ns
	}
}

// SampleWinning returns a plausible engine result for tests that need
// to feed something into signer.ComposeAndSign without running the
// miner.
func SampleWinning() signer.Winning {
	return signer.Winning{
		Time:      1_700_000_000,
		NonceSeed: 42,
		NumBytes:  1 << 20,
	}
}

// SampleOutcome returns a round-history entry for roundlog tests.
func SampleOutcome(height uint64, won bool) roundlog.Outcome {
	target, _ := bitwork.New(4, 0x0)
	return roundlog.Outcome{
		Height:     height,
		ParentHash: SampleParentHash(),
		Difficulty: target,
		Won:        won,
	}
}

// SampleCyclesPrice returns a representative scaled cycles price
// (1.5 cycles, scaled by 10^12), matching internal/config's encoding.
func SampleCyclesPrice() *big.Int {
	return big.NewInt(1_500_000_000_000)
}
