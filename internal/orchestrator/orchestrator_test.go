package orchestrator

import (
	"context"
	"encoding/hex"
	"math/big"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"go.uber.org/zap"

	"github.com/djkazic/dodmine/internal/bitwork"
	"github.com/djkazic/dodmine/internal/coordinator"
)

const generatorXHex = "79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"

func testPrivKey(t *testing.T) *btcec.PrivateKey {
	t.Helper()
	raw, err := hex.DecodeString(generatorXHex[:64])
	if err != nil {
		t.Fatalf("decode priv key: %v", err)
	}
	priv, _ := btcec.PrivKeyFromBytes(raw)
	return priv
}

func testPubKey(t *testing.T) []byte {
	t.Helper()
	raw, err := hex.DecodeString(generatorXHex[:64])
	if err != nil {
		t.Fatalf("decode pub key: %v", err)
	}
	return raw
}

func TestTickStartsRoundOnNewHeight(t *testing.T) {
	mock := coordinator.NewMock()
	mock.Height = 100
	mock.Summary = &coordinator.BlockSummary{
		Hash:          [32]byte{1, 2, 3},
		Difficulty:    bitwork.Zero,
		NextBlockTime: uint64(time.Now().Add(5 * time.Second).UnixNano()),
	}

	priv := testPrivKey(t)
	o := New(mock, nil, nil, Config{
		MaxWorkers:   1,
		MinerPubKey:  testPubKey(t),
		MinerAddress: "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4",
		PrivKey:      priv,
		CyclesPrice:  big.NewInt(1),
	}, zap.NewNop())

	o.tick(context.Background())

	if !o.haveHeight || o.lastHeight != 100 {
		t.Fatalf("expected lastHeight to be updated to 100, got %d (have=%v)", o.lastHeight, o.haveHeight)
	}

	select {
	case ev := <-o.submissions:
		if ev.ParentHash != mock.Summary.Hash {
			t.Error("submission event carries wrong parent hash")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected a submission event for an easy target")
	}
}

func TestTickSkipsWhenAlreadyRunning(t *testing.T) {
	mock := coordinator.NewMock()
	mock.Height = 1
	mock.Summary = &coordinator.BlockSummary{Hash: [32]byte{9}, Difficulty: bitwork.Zero, NextBlockTime: uint64(time.Now().UnixNano())}

	o := New(mock, nil, nil, Config{MaxWorkers: 1, MinerPubKey: testPubKey(t), MinerAddress: "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4", PrivKey: testPrivKey(t), CyclesPrice: big.NewInt(1)}, zap.NewNop())
	o.running = true
	o.tick(context.Background())

	if o.haveHeight {
		t.Error("tick should have returned immediately without touching lastHeight")
	}
}

func TestTickSkipsWhenHeightNotNew(t *testing.T) {
	mock := coordinator.NewMock()
	mock.Height = 5
	mock.Summary = &coordinator.BlockSummary{Hash: [32]byte{2}, Difficulty: bitwork.Zero, NextBlockTime: uint64(time.Now().UnixNano())}

	o := New(mock, nil, nil, Config{MaxWorkers: 1, MinerPubKey: testPubKey(t), MinerAddress: "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4", PrivKey: testPrivKey(t), CyclesPrice: big.NewInt(1)}, zap.NewNop())
	o.lastHeight = 5
	o.haveHeight = true

	o.tick(context.Background())

	select {
	case <-o.submissions:
		t.Fatal("unexpected submission for an already-observed height")
	default:
	}
}

func TestSubmissionWorkerSubmitsToCoordinator(t *testing.T) {
	mock := coordinator.NewMock()
	o := New(mock, nil, nil, Config{
		MaxWorkers:   1,
		MinerPubKey:  testPubKey(t),
		MinerAddress: "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4",
		PrivKey:      testPrivKey(t),
		CyclesPrice:  big.NewInt(42),
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.submissionWorker(ctx)

	o.submissions <- submissionEvent{
		ParentHash: [32]byte{7},
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(mock.Submissions) == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected submission worker to call coordinator.Submit")
}
