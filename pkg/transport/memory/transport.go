package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/ZentaChain/zentalk-messenger/pkg/identity"
	"github.com/ZentaChain/zentalk-messenger/pkg/transport"
)

type link struct {
	id     transport.LinkID
	opener *Transport
	target *Transport
	remote identity.Address
}

// Transport is one node of an in-process Network
type Transport struct {
	net  *Network
	name string

	mu       sync.Mutex
	dests    map[identity.Address]*transport.Destination
	outLinks map[transport.LinkID]*link
	inLinks  map[transport.LinkID]*link
	closed   bool

	announces *transport.Hub[transport.Announce]
	inEvents  *transport.Hub[transport.LinkEvent]
	outEvents *transport.Hub[transport.LinkEvent]
}

var _ transport.Transport = (*Transport)(nil)

func newTransport(n *Network, name string) *Transport {
	return &Transport{
		net:       n,
		name:      name,
		dests:     make(map[identity.Address]*transport.Destination),
		outLinks:  make(map[transport.LinkID]*link),
		inLinks:   make(map[transport.LinkID]*link),
		announces: transport.NewHub[transport.Announce](name+" announces", 0),
		inEvents:  transport.NewHub[transport.LinkEvent](name+" in-links", 0),
		outEvents: transport.NewHub[transport.LinkEvent](name+" out-links", 0),
	}
}

func (t *Transport) AddDestination(dest *transport.Destination) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return transport.ErrClosed
	}
	if err := t.net.register(dest.Address, t); err != nil {
		return err
	}
	t.dests[dest.Address] = dest
	log.Debugf("%s: destination %s (%s) added", t.name, dest.Address, dest.Name)
	return nil
}

func (t *Transport) Link(ctx context.Context, desc transport.Descriptor) (transport.LinkID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return "", transport.ErrClosed
	}
	for id, l := range t.outLinks {
		if l.remote == desc.Address {
			t.mu.Unlock()
			return id, nil
		}
	}
	t.mu.Unlock()

	target := t.net.owner(desc.Address)
	if target == nil {
		return "", fmt.Errorf("%w: %s", transport.ErrUnknownDestination, desc.Address)
	}

	l := &link{id: t.net.newLinkID(), opener: t, target: target, remote: desc.Address}

	target.mu.Lock()
	if target.closed {
		target.mu.Unlock()
		return "", fmt.Errorf("%w: %s", transport.ErrUnknownDestination, desc.Address)
	}
	target.inLinks[l.id] = l
	target.mu.Unlock()

	t.mu.Lock()
	t.outLinks[l.id] = l
	t.mu.Unlock()

	log.Debugf("%s: link %s to %s activated", t.name, l.id, desc.Address)

	target.inEvents.Publish(transport.LinkEvent{LinkID: l.id, Address: l.remote, Kind: transport.LinkActivated})
	t.outEvents.Publish(transport.LinkEvent{LinkID: l.id, Address: l.remote, Kind: transport.LinkActivated})

	return l.id, nil
}

// CloseLink tears down a link on both ends
func (t *Transport) CloseLink(id transport.LinkID) error {
	t.mu.Lock()
	l, ok := t.outLinks[id]
	if !ok {
		l, ok = t.inLinks[id]
	}
	t.mu.Unlock()

	if !ok {
		return transport.ErrNoLink
	}
	closeLink(l)
	return nil
}

func closeLink(l *link) {
	l.opener.mu.Lock()
	_, openerHad := l.opener.outLinks[l.id]
	delete(l.opener.outLinks, l.id)
	l.opener.mu.Unlock()

	l.target.mu.Lock()
	_, targetHad := l.target.inLinks[l.id]
	delete(l.target.inLinks, l.id)
	l.target.mu.Unlock()

	event := transport.LinkEvent{LinkID: l.id, Address: l.remote, Kind: transport.LinkClosed}
	if openerHad {
		l.opener.outEvents.Publish(event)
	}
	if targetHad {
		l.target.inEvents.Publish(event)
	}
}

func (t *Transport) SendToOutLinks(ctx context.Context, address identity.Address, payload []byte) error {
	links := t.collect(func(l *link, out bool) bool { return out && l.remote == address })
	if len(links) == 0 {
		return fmt.Errorf("%w: out-link to %s", transport.ErrNoLink, address)
	}
	for _, l := range links {
		t.send(l, ToTarget, payload)
	}
	return nil
}

func (t *Transport) SendToInLinks(ctx context.Context, address identity.Address, payload []byte) error {
	links := t.collect(func(l *link, out bool) bool { return !out && l.remote == address })
	if len(links) == 0 {
		return fmt.Errorf("%w: in-link to %s", transport.ErrNoLink, address)
	}
	for _, l := range links {
		t.send(l, ToOpener, payload)
	}
	return nil
}

func (t *Transport) SendToAllOutLinks(ctx context.Context, payload []byte) error {
	for _, l := range t.collect(func(_ *link, out bool) bool { return out }) {
		t.send(l, ToTarget, payload)
	}
	return nil
}

func (t *Transport) SendToLink(ctx context.Context, id transport.LinkID, payload []byte) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return transport.ErrClosed
	}
	if l, ok := t.outLinks[id]; ok {
		t.mu.Unlock()
		t.send(l, ToTarget, payload)
		return nil
	}
	l, ok := t.inLinks[id]
	t.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", transport.ErrNoLink, id)
	}
	t.send(l, ToOpener, payload)
	return nil
}

func (t *Transport) collect(match func(l *link, out bool) bool) []*link {
	t.mu.Lock()
	defer t.mu.Unlock()

	var links []*link
	for _, l := range t.outLinks {
		if match(l, true) {
			links = append(links, l)
		}
	}
	for _, l := range t.inLinks {
		if match(l, false) {
			links = append(links, l)
		}
	}
	return links
}

func (t *Transport) send(l *link, dir Direction, payload []byte) {
	data := make([]byte, len(payload))
	copy(data, payload)

	if !t.net.deliverable(Frame{LinkID: l.id, Direction: dir, Data: data}) {
		log.Debugf("%s: frame on %s dropped by filter", t.name, l.id)
		return
	}

	event := transport.LinkEvent{LinkID: l.id, Address: l.remote, Kind: transport.LinkData, Data: data}
	if dir == ToTarget {
		l.target.inEvents.Publish(event)
	} else {
		l.opener.outEvents.Publish(event)
	}
}

func (t *Transport) SendAnnounce(ctx context.Context, dest *transport.Destination, appData []byte) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return transport.ErrClosed
	}

	announce := transport.Announce{
		Destination: transport.Descriptor{
			Address:   dest.Address,
			Name:      dest.Name,
			PublicKey: dest.Identity.PublicKey(),
			Route:     t.name,
		},
		AppData: appData,
	}
	for _, peer := range t.net.peers(t) {
		peer.announces.Publish(announce)
	}
	return nil
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
	return t.net.mdu
}

func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	links := make([]*link, 0, len(t.outLinks)+len(t.inLinks))
	for _, l := range t.outLinks {
		links = append(links, l)
	}
	for _, l := range t.inLinks {
		links = append(links, l)
	}
	t.mu.Unlock()

	t.net.detach(t)
	for _, l := range links {
		closeLink(l)
	}

	t.announces.Close()
	t.inEvents.Close()
	t.outEvents.Close()
	return nil
}
