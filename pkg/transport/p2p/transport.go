// Package p2p implements the mesh transport on top of libp2p.
//
// Links are libp2p streams carrying varint delimited frames. Announces are
// signed by the destination identity and flooded over a GossipSub topic.
// Peers are found on the LAN through mDNS and on the WAN through a Kademlia
// DHT rendezvous.
package p2p

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/multiformats/go-multiaddr"

	"github.com/ZentaChain/zentalk-messenger/pkg/identity"
	"github.com/ZentaChain/zentalk-messenger/pkg/transport"
)

var log = logging.Logger("transport/p2p")

const (
	// LinkProtocol is the stream protocol carrying link frames
	LinkProtocol = protocol.ID("/zentalk/messenger/link/1.0.0")

	// AnnounceTopic is the GossipSub topic carrying destination announces
	AnnounceTopic = "zentalk/announce/1"

	// DefaultMDU is the maximum payload of one link frame
	DefaultMDU = 16 * 1024
)

// Config contains configuration for creating a libp2p transport
type Config struct {
	ListenAddrs       []string      `yaml:"listen_addrs"`
	BootstrapPeers    []string      `yaml:"bootstrap_peers"`
	EnableMDNS        bool          `yaml:"enable_mdns"`
	EnableDHT         bool          `yaml:"enable_dht"`
	EnableNAT         bool          `yaml:"enable_nat"`
	Rendezvous        string        `yaml:"rendezvous"`
	DiscoveryInterval time.Duration `yaml:"discovery_interval"`
	MDU               int           `yaml:"mdu"`
}

// DefaultConfig returns default transport configuration
func DefaultConfig() Config {
	return Config{
		ListenAddrs:       []string{"/ip4/0.0.0.0/tcp/4242", "/ip4/0.0.0.0/udp/4242/quic-v1"},
		EnableMDNS:        true,
		EnableDHT:         true,
		Rendezvous:        "zentalk/messenger",
		DiscoveryInterval: 30 * time.Second,
		MDU:               DefaultMDU,
	}
}

// Transport is a libp2p backed mesh transport
type Transport struct {
	cfg    Config
	host   host.Host
	dht    *dht.IpfsDHT
	ps     *pubsub.PubSub
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	dests  map[identity.Address]*transport.Destination
	links  map[transport.LinkID]*link
	closed bool

	nextLink atomic.Uint64

	announces *transport.Hub[transport.Announce]
	inEvents  *transport.Hub[transport.LinkEvent]
	outEvents *transport.Hub[transport.LinkEvent]

	wg sync.WaitGroup
}

var _ transport.Transport = (*Transport)(nil)

// New creates a libp2p host keyed by the transport identity and joins the mesh
func New(ctx context.Context, id *identity.Identity, cfg Config) (*Transport, error) {
	if cfg.MDU <= 0 {
		cfg.MDU = DefaultMDU
	}
	if cfg.DiscoveryInterval <= 0 {
		cfg.DiscoveryInterval = DefaultConfig().DiscoveryInterval
	}

	opts := []libp2p.Option{
		libp2p.Identity(id.PrivKey()),
		libp2p.ListenAddrStrings(cfg.ListenAddrs...),
		libp2p.DefaultTransports,
		libp2p.DefaultMuxers,
		libp2p.DefaultSecurity,
	}
	if cfg.EnableNAT {
		opts = append(opts, libp2p.NATPortMap(), libp2p.EnableNATService())
	}

	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create libp2p host: %w", err)
	}

	tctx, cancel := context.WithCancel(ctx)
	t := &Transport{
		cfg:       cfg,
		host:      h,
		ctx:       tctx,
		cancel:    cancel,
		dests:     make(map[identity.Address]*transport.Destination),
		links:     make(map[transport.LinkID]*link),
		announces: transport.NewHub[transport.Announce]("announces", 0),
		inEvents:  transport.NewHub[transport.LinkEvent]("in-links", 0),
		outEvents: transport.NewHub[transport.LinkEvent]("out-links", 0),
	}

	if err := t.setupAnnounces(); err != nil {
		t.Close()
		return nil, err
	}

	if cfg.EnableDHT {
		if err := t.setupDHT(); err != nil {
			t.Close()
			return nil, err
		}
	}

	if cfg.EnableMDNS {
		t.setupMDNS()
	}

	h.SetStreamHandler(LinkProtocol, t.handleStream)

	if len(cfg.BootstrapPeers) > 0 {
		if err := t.Bootstrap(cfg.BootstrapPeers); err != nil {
			log.Warnf("⚠️  bootstrap: %v", err)
		}
	}

	log.Infof("✅ libp2p transport started: %s", h.ID())
	for _, addr := range h.Addrs() {
		log.Infof("   listening on %s/p2p/%s", addr, h.ID())
	}

	return t, nil
}

// ID returns the host peer ID
func (t *Transport) ID() peer.ID {
	return t.host.ID()
}

// Host returns the libp2p host
func (t *Transport) Host() host.Host {
	return t.host
}

// Addrs returns full p2p multiaddrs of this host
func (t *Transport) Addrs() []string {
	info := peer.AddrInfo{ID: t.host.ID(), Addrs: t.host.Addrs()}
	maddrs, err := peer.AddrInfoToP2pAddrs(&info)
	if err != nil {
		return nil
	}

	addrs := make([]string, len(maddrs))
	for i, addr := range maddrs {
		addrs[i] = addr.String()
	}
	return addrs
}

// PeerCount returns the number of connected peers
func (t *Transport) PeerCount() int {
	return len(t.host.Network().Peers())
}

// Connect connects to a peer given its multiaddr
func (t *Transport) Connect(ctx context.Context, peerAddr string) error {
	maddr, err := multiaddr.NewMultiaddr(peerAddr)
	if err != nil {
		return fmt.Errorf("invalid peer address: %w", err)
	}

	info, err := peer.AddrInfoFromP2pAddr(maddr)
	if err != nil {
		return fmt.Errorf("failed to parse peer info: %w", err)
	}

	if err := t.host.Connect(ctx, *info); err != nil {
		return fmt.Errorf("failed to connect to peer: %w", err)
	}
	return nil
}

func (t *Transport) AddDestination(dest *transport.Destination) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return transport.ErrClosed
	}
	t.dests[dest.Address] = dest
	log.Debugf("destination %s (%s) added", dest.Address, dest.Name)
	return nil
}

func (t *Transport) destination(addr identity.Address) (*transport.Destination, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	dest, ok := t.dests[addr]
	return dest, ok
}

func (t *Transport) Announces(ctx context.Context) <-chan transport.Announce {
	return t.announces.Subscribe(ctx)
}

func (t *Transport) InLinkEvents(ctx context.Context) <-chan transport.LinkEvent {
	return t.inEvents.Subscribe(ctx)
}

func (t *Transport) OutLinkEvents(ctx context.Context) <-chan transport.LinkEvent {
	return t.outEvents.Subscribe(ctx)
}

func (t *Transport) MDU() int {
	return t.cfg.MDU
}

// Close gracefully shuts down the transport
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	links := make([]*link, 0, len(t.links))
	for _, l := range t.links {
		links = append(links, l)
	}
	t.mu.Unlock()

	t.cancel()

	for _, l := range links {
		l.stream.Reset()
	}

	if t.sub != nil {
		t.sub.Cancel()
	}
	if t.topic != nil {
		if err := t.topic.Close(); err != nil {
			log.Debugf("closing topic: %v", err)
		}
	}
	if t.dht != nil {
		if err := t.dht.Close(); err != nil {
			log.Warnf("⚠️  error closing DHT: %v", err)
		}
	}
	if err := t.host.Close(); err != nil {
		log.Warnf("⚠️  error closing host: %v", err)
	}

	t.wg.Wait()

	t.announces.Close()
	t.inEvents.Close()
	t.outEvents.Close()
	return nil
}
