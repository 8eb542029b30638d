package coordinator

import (
	"context"
	"math/big"
	"sync"
)

// Mock implements Coordinator for tests.
type Mock struct {
	mu sync.Mutex

	Height  uint64
	Summary *BlockSummary

	RegisteredMiners map[string]*MinerInfo
	Submissions      []SubmitRequest

	GetLastBlockErr error
	RegisterErr     error
	SubmitErr       error
}

// NewMock creates a mock coordinator with no block yet reported.
func NewMock() *Mock {
	return &Mock{
		RegisteredMiners: make(map[string]*MinerInfo),
	}
}

func (m *Mock) GetLastBlock(_ context.Context) (uint64, *BlockSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetLastBlockErr != nil {
		return 0, nil, m.GetLastBlockErr
	}
	return m.Height, m.Summary, nil
}

func (m *Mock) Register(_ context.Context, btcAddress, publicKeyHex string) (*MinerInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RegisterErr != nil {
		return nil, m.RegisterErr
	}
	if info, ok := m.RegisteredMiners[btcAddress]; ok {
		return info, nil // idempotent: "already existed" is success
	}
	info := &MinerInfo{BtcAddress: btcAddress, PublicKeyHex: publicKeyHex}
	m.RegisteredMiners[btcAddress] = info
	return info, nil
}

func (m *Mock) Submit(_ context.Context, req SubmitRequest) (*SubmitResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SubmitErr != nil {
		return nil, m.SubmitErr
	}
	m.Submissions = append(m.Submissions, req)
	return &SubmitResponse{BlockHeight: m.Height, CyclesPrice: new(big.Int).Set(req.CyclesPrice)}, nil
}
