// Package memory implements an in-process mesh network used by tests and local simulations
package memory

import (
	"fmt"
	"sync"
	"sync/atomic"

	logging "github.com/ipfs/go-log/v2"

	"github.com/ZentaChain/zentalk-messenger/pkg/identity"
	"github.com/ZentaChain/zentalk-messenger/pkg/transport"
)

var log = logging.Logger("transport/memory")

// DefaultMDU matches the payload size of a single mesh packet
const DefaultMDU = 464

// Direction of a frame relative to the link opener
type Direction int

const (
	// ToTarget frames travel from the opener to the linked destination
	ToTarget Direction = iota
	// ToOpener frames travel back to the node that opened the link
	ToOpener
)

// Frame is one payload in flight
type Frame struct {
	LinkID    transport.LinkID
	Direction Direction
	Data      []byte
}

// FrameFilter decides whether a frame is delivered
type FrameFilter func(f Frame) bool

// Option configures a Network
type Option func(*Network)

// WithMDU overrides the frame size reported by every node
func WithMDU(mdu int) Option {
	return func(n *Network) { n.mdu = mdu }
}

// Network connects in-process transports
type Network struct {
	mdu      int
	nextLink atomic.Uint64

	mu     sync.RWMutex
	nodes  map[*Transport]struct{}
	owners map[identity.Address]*Transport
	filter FrameFilter
}

// NewNetwork creates an empty network
func NewNetwork(opts ...Option) *Network {
	n := &Network{
		mdu:    DefaultMDU,
		nodes:  make(map[*Transport]struct{}),
		owners: make(map[identity.Address]*Transport),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// SetFilter installs a frame filter; nil delivers everything
func (n *Network) SetFilter(f FrameFilter) {
	n.mu.Lock()
	n.filter = f
	n.mu.Unlock()
}

func (n *Network) deliverable(f Frame) bool {
	n.mu.RLock()
	filter := n.filter
	n.mu.RUnlock()

	return filter == nil || filter(f)
}

// NewTransport attaches a new node to the network
func (n *Network) NewTransport(name string) *Transport {
	t := newTransport(n, name)

	n.mu.Lock()
	n.nodes[t] = struct{}{}
	n.mu.Unlock()

	return t
}

func (n *Network) register(addr identity.Address, t *Transport) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if owner, ok := n.owners[addr]; ok && owner != t {
		return fmt.Errorf("destination %s already registered by %s", addr, owner.name)
	}
	n.owners[addr] = t
	return nil
}

func (n *Network) owner(addr identity.Address) *Transport {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.owners[addr]
}

func (n *Network) peers(except *Transport) []*Transport {
	n.mu.RLock()
	defer n.mu.RUnlock()

	peers := make([]*Transport, 0, len(n.nodes))
	for t := range n.nodes {
		if t != except {
			peers = append(peers, t)
		}
	}
	return peers
}

func (n *Network) detach(t *Transport) {
	n.mu.Lock()
	defer n.mu.Unlock()

	delete(n.nodes, t)
	for addr, owner := range n.owners {
		if owner == t {
			delete(n.owners, addr)
		}
	}
}

func (n *Network) newLinkID() transport.LinkID {
	return transport.LinkID(fmt.Sprintf("mem-%d", n.nextLink.Add(1)))
}
