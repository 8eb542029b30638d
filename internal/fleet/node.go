// Package fleet gossips round lifecycle events (start/won/expired)
// between sibling miner processes sharing one coordinator, so they can
// skip a round another process already has in flight or has just won.
// It is advisory only: the coordinator is still the sole authority on
// round state, and a miner with fleet disabled behaves exactly as
// spec.md describes a single-process miner.
package fleet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/p2p/muxer/yamux"
	"github.com/libp2p/go-libp2p/p2p/net/connmgr"
	"github.com/libp2p/go-libp2p/p2p/security/noise"

	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"
)

// claimTTL is how long a peer's round claim is honored before it is
// assumed stale (the peer crashed, or the round moved on).
const claimTTL = 30 * time.Second

// Node manages the libp2p host, GossipSub mesh, and the locally
// observed table of in-flight peer claims.
type Node struct {
	Host    host.Host
	Logger  *zap.Logger
	dataDir string

	pubsub    *PubSub
	discovery *Discovery

	incoming chan *RoundEvent

	claimsMu sync.Mutex
	claims   map[[32]byte]claim
}

type claim struct {
	peerTag string
	kind    EventType
	seenAt  time.Time
}

// NewNode creates a libp2p host with GossipSub joined to the round
// topic, but does not start discovery; call StartDiscovery once the
// caller is ready to receive connections.
func NewNode(ctx context.Context, listenPort int, dataDir string, logger *zap.Logger) (*Node, error) {
	listenAddr := fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", listenPort)

	privKey, err := LoadOrCreateIdentity(dataDir)
	if err != nil {
		return nil, fmt.Errorf("load fleet identity: %w", err)
	}

	cm, err := connmgr.NewConnManager(10, 40, connmgr.WithGracePeriod(time.Minute))
	if err != nil {
		return nil, fmt.Errorf("create fleet connection manager: %w", err)
	}

	h, err := libp2p.New(
		libp2p.Identity(privKey),
		libp2p.ListenAddrStrings(listenAddr),
		libp2p.Security(noise.ID, noise.New),
		libp2p.Muxer(yamux.ID, yamux.DefaultTransport),
		libp2p.ConnectionManager(cm),
	)
	if err != nil {
		return nil, fmt.Errorf("create fleet libp2p host: %w", err)
	}

	n := &Node{
		Host:     h,
		Logger:   logger,
		dataDir:  dataDir,
		incoming: make(chan *RoundEvent, 64),
		claims:   make(map[[32]byte]claim),
	}

	h.Network().Notify(&peerNotifiee{})

	n.pubsub, err = NewPubSub(ctx, h, n.incoming, logger)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("setup fleet pubsub: %w", err)
	}

	go n.consumeEvents(ctx)

	logger.Info("fleet node started",
		zap.String("peer_id", h.ID().String()),
		zap.Int("port", listenPort),
	)

	return n, nil
}

// StartDiscovery begins mDNS and DHT peer discovery.
func (n *Node) StartDiscovery(ctx context.Context, enableMDNS bool, bootnodes []string) error {
	var err error
	n.discovery, err = NewDiscovery(ctx, n.Host, n.dataDir, enableMDNS, bootnodes, n.Logger)
	if err != nil {
		return fmt.Errorf("setup fleet discovery: %w", err)
	}
	return nil
}

// Announce publishes a round lifecycle event for this process.
func (n *Node) Announce(kind EventType, height uint64, parentHash [32]byte) {
	ev := &RoundEvent{
		Type:       kind,
		Height:     height,
		ParentHash: parentHash,
		PeerTag:    n.Host.ID().String(),
	}
	if err := n.pubsub.Publish(ev); err != nil {
		n.Logger.Warn("fleet publish failed", zap.Error(err))
	}
}

// Claimed reports whether a sibling process already has the round for
// parentHash in flight or has just won it, per the most recent event
// seen within claimTTL. Callers use this purely as a hint to skip
// duplicate work; the coordinator remains authoritative.
func (n *Node) Claimed(parentHash [32]byte) bool {
	n.claimsMu.Lock()
	defer n.claimsMu.Unlock()

	c, ok := n.claims[parentHash]
	if !ok {
		return false
	}
	if time.Since(c.seenAt) > claimTTL {
		delete(n.claims, parentHash)
		return false
	}
	return c.kind == EventRoundStart || c.kind == EventRoundWon
}

// PeerCount returns the number of connected fleet peers.
func (n *Node) PeerCount() int {
	return len(n.Host.Network().Peers())
}

// Close shuts down the fleet host.
func (n *Node) Close() error {
	return n.Host.Close()
}

func (n *Node) consumeEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-n.incoming:
			n.claimsMu.Lock()
			if ev.Type == EventRoundExpired {
				// No winner; nothing left for a sibling to skip.
				delete(n.claims, ev.ParentHash)
			} else {
				n.claims[ev.ParentHash] = claim{
					peerTag: ev.PeerTag,
					kind:    ev.Type,
					seenAt:  time.Now(),
				}
			}
			n.claimsMu.Unlock()
		}
	}
}

type peerNotifiee struct{}

func (peerNotifiee) Connected(network.Network, network.Conn)    {}
func (peerNotifiee) Disconnected(network.Network, network.Conn) {}
func (peerNotifiee) Listen(network.Network, ma.Multiaddr)       {}
func (peerNotifiee) ListenClose(network.Network, ma.Multiaddr) {}
