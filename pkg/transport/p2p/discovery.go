package p2p

import (
	"context"
	"fmt"
	"time"

	dht "github.com/libp2p/go-libp2p-kad-dht"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	drouting "github.com/libp2p/go-libp2p/p2p/discovery/routing"
	dutil "github.com/libp2p/go-libp2p/p2p/discovery/util"
	"github.com/multiformats/go-multiaddr"
)

// mdnsNotifee connects to peers found on the local network
type mdnsNotifee struct {
	h   host.Host
	ctx context.Context
}

func (n *mdnsNotifee) HandlePeerFound(pi peer.AddrInfo) {
	if pi.ID == n.h.ID() {
		return
	}
	if err := n.h.Connect(n.ctx, pi); err != nil {
		log.Debugf("failed to connect to mDNS peer %s: %v", pi.ID, err)
		return
	}
	log.Infof("✅ mDNS peer connected: %s", pi.ID)
}

func (t *Transport) setupMDNS() {
	svc := mdns.NewMdnsService(t.host, t.cfg.Rendezvous, &mdnsNotifee{h: t.host, ctx: t.ctx})
	if err := svc.Start(); err != nil {
		log.Warnf("⚠️  mDNS failed to start: %v", err)
		return
	}

	go func() {
		<-t.ctx.Done()
		svc.Close()
	}()
	log.Infof("mDNS local discovery enabled (%s)", t.cfg.Rendezvous)
}

func (t *Transport) setupDHT() error {
	kad, err := dht.New(t.ctx, t.host,
		dht.Mode(dht.ModeAuto),
		dht.BootstrapPeers(),
	)
	if err != nil {
		return fmt.Errorf("failed to create DHT: %w", err)
	}
	t.dht = kad

	t.wg.Add(1)
	go t.discoveryLoop(drouting.NewRoutingDiscovery(kad))
	return nil
}

// discoveryLoop advertises the rendezvous and dials peers found under it
func (t *Transport) discoveryLoop(rd *drouting.RoutingDiscovery) {
	defer t.wg.Done()

	dutil.Advertise(t.ctx, rd, t.cfg.Rendezvous)

	ticker := time.NewTicker(t.cfg.DiscoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
		}

		peers, err := rd.FindPeers(t.ctx, t.cfg.Rendezvous)
		if err != nil {
			log.Debugf("rendezvous discovery: %v", err)
			continue
		}
		for p := range peers {
			if p.ID == "" || p.ID == t.host.ID() || len(p.Addrs) == 0 {
				continue
			}
			if err := t.host.Connect(t.ctx, p); err == nil {
				log.Debugf("connected to rendezvous peer %s", p.ID)
			}
		}
	}
}

// Bootstrap connects to bootstrap peers and joins the DHT network
func (t *Transport) Bootstrap(bootstrapPeers []string) error {
	var connected int
	for _, peerStr := range bootstrapPeers {
		maddr, err := multiaddr.NewMultiaddr(peerStr)
		if err != nil {
			log.Warnf("⚠️  invalid bootstrap peer address %s: %v", peerStr, err)
			continue
		}

		info, err := peer.AddrInfoFromP2pAddr(maddr)
		if err != nil {
			log.Warnf("⚠️  failed to parse peer info from %s: %v", peerStr, err)
			continue
		}

		if err := t.host.Connect(t.ctx, *info); err != nil {
			log.Warnf("⚠️  failed to connect to bootstrap peer %s: %v", info.ID, err)
			continue
		}

		log.Infof("✅ connected to bootstrap peer: %s", info.ID)
		connected++
	}

	if connected == 0 {
		return fmt.Errorf("failed to connect to any bootstrap peers")
	}

	if t.dht != nil {
		if err := t.dht.Bootstrap(t.ctx); err != nil {
			return fmt.Errorf("failed to bootstrap DHT: %w", err)
		}
	}

	log.Infof("bootstrapped with %d peers", connected)
	return nil
}
