package fleet

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"

	leveldb "github.com/ipfs/go-ds-leveldb"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	drouting "github.com/libp2p/go-libp2p/p2p/discovery/routing"

	"go.uber.org/zap"
)

const (
	// MDNSServiceTag is the mDNS service tag for LAN fleet discovery.
	MDNSServiceTag = "dodmine-fleet.local"

	// DHTNamespace is the Kademlia DHT namespace fleet peers advertise under.
	DHTNamespace = "dodmine-fleet"
)

// Discovery finds sibling miner processes via mDNS (LAN) and a
// Kademlia DHT (WAN), mirroring how a share-gossip network would
// discover peers, but scoped to a single operator's own fleet.
type Discovery struct {
	host   host.Host
	logger *zap.Logger
	dht    *dht.IpfsDHT
}

// NewDiscovery starts mDNS (if enabled) and DHT-based peer discovery.
// The DHT's peerstore and provider records are backed by a leveldb
// datastore under dataDir so known peers survive a restart instead of
// requiring a full bootstrap/advertise cycle every time.
func NewDiscovery(ctx context.Context, h host.Host, dataDir string, enableMDNS bool, bootnodes []string, logger *zap.Logger) (*Discovery, error) {
	d := &Discovery{host: h, logger: logger}

	if enableMDNS {
		mdnsService := mdns.NewMdnsService(h, MDNSServiceTag, d)
		if err := mdnsService.Start(); err != nil {
			logger.Warn("fleet mDNS setup failed", zap.Error(err))
		} else {
			logger.Info("fleet mDNS discovery enabled")
		}
	}

	ds, err := leveldb.NewDatastore(filepath.Join(dataDir, "fleet-dht"), nil)
	if err != nil {
		return nil, fmt.Errorf("open fleet DHT datastore: %w", err)
	}

	kadDHT, err := dht.New(ctx, h, dht.Mode(dht.ModeAutoServer), dht.DatastoreOption(ds))
	if err != nil {
		return nil, fmt.Errorf("create fleet DHT: %w", err)
	}
	d.dht = kadDHT

	if err := kadDHT.Bootstrap(ctx); err != nil {
		return nil, fmt.Errorf("bootstrap fleet DHT: %w", err)
	}

	for _, bn := range bootnodes {
		addr, err := peer.AddrInfoFromString(bn)
		if err != nil {
			logger.Warn("invalid fleet bootnode address", zap.String("addr", bn), zap.Error(err))
			continue
		}
		if err := h.Connect(ctx, *addr); err != nil {
			logger.Warn("failed to connect to fleet bootnode", zap.String("addr", bn), zap.Error(err))
		} else {
			logger.Info("connected to fleet bootnode", zap.String("peer", addr.ID.String()))
		}
	}

	routingDiscovery := drouting.NewRoutingDiscovery(kadDHT)
	go d.advertiseLoop(ctx, routingDiscovery)
	go d.discoverLoop(ctx, routingDiscovery)

	return d, nil
}

// HandlePeerFound is invoked by mDNS when a new LAN peer is found.
func (d *Discovery) HandlePeerFound(pi peer.AddrInfo) {
	if pi.ID == d.host.ID() {
		return
	}
	d.logger.Info("fleet mDNS peer found", zap.String("peer", pi.ID.String()))
	if err := d.host.Connect(context.Background(), pi); err != nil {
		d.logger.Debug("failed to connect to fleet mDNS peer", zap.Error(err))
	}
}

func (d *Discovery) advertiseLoop(ctx context.Context, rd *drouting.RoutingDiscovery) {
	for {
		_, err := rd.Advertise(ctx, DHTNamespace)
		if err != nil {
			d.logger.Debug("fleet DHT advertise error", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (d *Discovery) discoverLoop(ctx context.Context, rd *drouting.RoutingDiscovery) {
	peerCh, err := rd.FindPeers(ctx, DHTNamespace)
	if err != nil {
		d.logger.Error("fleet DHT find peers error", zap.Error(err))
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case pi, ok := <-peerCh:
			if !ok {
				return
			}
			if pi.ID == d.host.ID() || pi.ID == "" {
				continue
			}
			if err := d.host.Connect(ctx, pi); err != nil {
				d.logger.Debug("failed to connect to fleet DHT peer", zap.String("peer", pi.ID.String()), zap.Error(err))
			} else {
				d.logger.Info("connected to fleet DHT peer", zap.String("peer", pi.ID.String()))
			}
		}
	}
}
