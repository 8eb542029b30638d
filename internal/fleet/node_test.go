package fleet

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestNewNodeJoinsRoundTopic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n, err := NewNode(ctx, 0, t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("NewNode: %v", err)
	}
	defer n.Close()

	if n.PeerCount() != 0 {
		t.Errorf("fresh node should have no peers, got %d", n.PeerCount())
	}
}

func TestClaimedReflectsRecentWonEvent(t *testing.T) {
	n := &Node{
		claims: make(map[[32]byte]claim),
	}
	hash := [32]byte{1, 2, 3}

	if n.Claimed(hash) {
		t.Error("no claim recorded yet")
	}

	n.claims[hash] = claim{kind: EventRoundWon, seenAt: time.Now()}
	if !n.Claimed(hash) {
		t.Error("expected claim to be reported as won")
	}

	n.claims[hash] = claim{kind: EventRoundWon, seenAt: time.Now().Add(-claimTTL - time.Second)}
	if n.Claimed(hash) {
		t.Error("expected a stale claim to be forgotten")
	}
}

func TestClaimedReflectsInFlightStart(t *testing.T) {
	n := &Node{
		claims: make(map[[32]byte]claim),
	}
	hash := [32]byte{4, 5, 6}

	n.claims[hash] = claim{kind: EventRoundStart, seenAt: time.Now()}
	if !n.Claimed(hash) {
		t.Error("expected an in-flight round start to be reported as claimed")
	}
}

func TestConsumeEventsClearsClaimOnExpiry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n := &Node{
		Logger:   zap.NewNop(),
		incoming: make(chan *RoundEvent, 2),
		claims:   make(map[[32]byte]claim),
	}
	go n.consumeEvents(ctx)

	hash := [32]byte{7}
	n.incoming <- &RoundEvent{Type: EventRoundStart, ParentHash: hash, PeerTag: "peer-a"}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && !n.Claimed(hash) {
		time.Sleep(5 * time.Millisecond)
	}
	if !n.Claimed(hash) {
		t.Fatal("expected the round start to be recorded as claimed")
	}

	n.incoming <- &RoundEvent{Type: EventRoundExpired, ParentHash: hash, PeerTag: "peer-a"}

	deadline = time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if !n.Claimed(hash) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected an expired round to clear the claim")
}

func TestConsumeEventsRecordsClaims(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n := &Node{
		Logger:   zap.NewNop(),
		incoming: make(chan *RoundEvent, 1),
		claims:   make(map[[32]byte]claim),
	}
	go n.consumeEvents(ctx)

	hash := [32]byte{9}
	n.incoming <- &RoundEvent{Type: EventRoundWon, ParentHash: hash, PeerTag: "peer-a"}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if n.Claimed(hash) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected consumeEvents to record the incoming claim")
}
