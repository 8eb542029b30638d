package coordinator

import (
	"context"
	"math/big"
	"testing"
)

func TestMockRegisterIsIdempotent(t *testing.T) {
	m := NewMock()
	ctx := context.Background()

	first, err := m.Register(ctx, "bc1qexample", "02aa")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	second, err := m.Register(ctx, "bc1qexample", "02bb")
	if err != nil {
		t.Fatalf("Register (already existed): %v", err)
	}
	if first.PublicKeyHex != second.PublicKeyHex {
		t.Error("expected idempotent registration to return the original record")
	}
}

func TestMockGetLastBlockEmpty(t *testing.T) {
	m := NewMock()
	height, summary, err := m.GetLastBlock(context.Background())
	if err != nil {
		t.Fatalf("GetLastBlock: %v", err)
	}
	if height != 0 || summary != nil {
		t.Error("expected no block summary from a fresh mock")
	}
}

func TestMockSubmitRecordsRequest(t *testing.T) {
	m := NewMock()
	req := SubmitRequest{
		BtcAddress:       "bc1qexample",
		SignedCommitPSBT: "aa",
		SignedRevealPSBT: "bb",
		CyclesPrice:      big.NewInt(1_000_000),
	}
	resp, err := m.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if resp.CyclesPrice.Cmp(req.CyclesPrice) != 0 {
		t.Errorf("CyclesPrice = %v, want %v", resp.CyclesPrice, req.CyclesPrice)
	}
	if len(m.Submissions) != 1 {
		t.Errorf("expected 1 recorded submission, got %d", len(m.Submissions))
	}
}
