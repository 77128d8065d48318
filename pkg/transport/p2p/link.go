package p2p

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-msgio"

	"github.com/ZentaChain/zentalk-messenger/pkg/identity"
	"github.com/ZentaChain/zentalk-messenger/pkg/transport"
)

// frameOverhead leaves room for the event envelope around an MDU sized payload
const frameOverhead = 4096

// writeTimeout bounds a frame write when the caller's context has no deadline
const writeTimeout = 10 * time.Second

// linkStream is the part of a libp2p stream a link writes through
type linkStream interface {
	SetWriteDeadline(time.Time) error
	Reset() error
	Close() error
}

type link struct {
	id     transport.LinkID
	remote identity.Address
	out    bool
	stream linkStream

	wmu    sync.Mutex
	writer msgio.WriteCloser
}

// write sends one frame. A peer that stops reading fails the write at the
// deadline, and cancelling ctx resets the stream.
func (l *link) write(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.wmu.Lock()
	defer l.wmu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(writeTimeout)
	}
	if err := l.stream.SetWriteDeadline(deadline); err != nil {
		log.Debugf("link %s write deadline: %v", l.id, err)
	}

	stop := context.AfterFunc(ctx, func() { l.stream.Reset() })
	err := l.writer.WriteMsg(payload)
	if !stop() {
		return ctx.Err()
	}
	return err
}

func (t *Transport) newLinkID() transport.LinkID {
	return transport.LinkID(fmt.Sprintf("p2p-%d", t.nextLink.Add(1)))
}

// Link opens a stream to the peer announcing desc. The first frame names the
// destination so the remote side can route the link.
func (t *Transport) Link(ctx context.Context, desc transport.Descriptor) (transport.LinkID, error) {
	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		return "", transport.ErrClosed
	}
	for id, l := range t.links {
		if l.out && l.remote == desc.Address {
			t.mu.RUnlock()
			return id, nil
		}
	}
	t.mu.RUnlock()

	pid, err := peer.Decode(desc.Route)
	if err != nil {
		return "", fmt.Errorf("%w: bad route %q: %v", transport.ErrUnknownDestination, desc.Route, err)
	}

	s, err := t.host.NewStream(ctx, pid, LinkProtocol)
	if err != nil {
		return "", fmt.Errorf("failed to open link to %s: %w", pid, err)
	}

	l := &link{
		id:     t.newLinkID(),
		remote: desc.Address,
		out:    true,
		stream: s,
		writer: msgio.NewVarintWriter(s),
	}

	if err := l.write(ctx, desc.Address[:]); err != nil {
		s.Reset()
		return "", fmt.Errorf("failed to send link request: %w", err)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		s.Reset()
		return "", transport.ErrClosed
	}
	t.links[l.id] = l
	t.wg.Add(1)
	t.mu.Unlock()

	log.Infof("🔗 link %s to %s via %s", l.id, desc.Address.Short(), pid)
	t.outEvents.Publish(transport.LinkEvent{LinkID: l.id, Address: l.remote, Kind: transport.LinkActivated})

	go t.readLoop(l, msgio.NewVarintReaderSize(s, t.cfg.MDU+frameOverhead))

	return l.id, nil
}

func (t *Transport) handleStream(s network.Stream) {
	reader := msgio.NewVarintReaderSize(s, t.cfg.MDU+frameOverhead)

	req, err := reader.ReadMsg()
	if err != nil {
		log.Debugf("link request from %s: %v", s.Conn().RemotePeer(), err)
		s.Reset()
		return
	}

	var addr identity.Address
	if len(req) != identity.AddressLength {
		log.Warnf("⚠️  malformed link request from %s", s.Conn().RemotePeer())
		reader.ReleaseMsg(req)
		s.Reset()
		return
	}
	copy(addr[:], req)
	reader.ReleaseMsg(req)

	if _, ok := t.destination(addr); !ok {
		log.Warnf("⚠️  link request for unknown destination %s from %s", addr.Short(), s.Conn().RemotePeer())
		s.Reset()
		return
	}

	l := &link{
		id:     t.newLinkID(),
		remote: addr,
		stream: s,
		writer: msgio.NewVarintWriter(s),
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		s.Reset()
		return
	}
	t.links[l.id] = l
	t.wg.Add(1)
	t.mu.Unlock()

	log.Debugf("in-link %s to %s from %s", l.id, addr.Short(), s.Conn().RemotePeer())
	t.inEvents.Publish(transport.LinkEvent{LinkID: l.id, Address: addr, Kind: transport.LinkActivated})

	t.readLoop(l, reader)
}

func (t *Transport) readLoop(l *link, reader msgio.ReadCloser) {
	defer t.wg.Done()

	hub := t.inEvents
	if l.out {
		hub = t.outEvents
	}

	for {
		msg, err := reader.ReadMsg()
		if err != nil {
			t.dropLink(l)
			hub.Publish(transport.LinkEvent{LinkID: l.id, Address: l.remote, Kind: transport.LinkClosed})
			return
		}

		data := make([]byte, len(msg))
		copy(data, msg)
		reader.ReleaseMsg(msg)

		hub.Publish(transport.LinkEvent{LinkID: l.id, Address: l.remote, Kind: transport.LinkData, Data: data})
	}
}

func (t *Transport) dropLink(l *link) {
	t.mu.Lock()
	delete(t.links, l.id)
	t.mu.Unlock()

	l.stream.Reset()
	log.Debugf("link %s closed", l.id)
}

// CloseLink tears down a single link
func (t *Transport) CloseLink(id transport.LinkID) error {
	t.mu.RLock()
	l, ok := t.links[id]
	t.mu.RUnlock()

	if !ok {
		return transport.ErrNoLink
	}
	return l.stream.Close()
}

func (t *Transport) matching(match func(l *link) bool) []*link {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var links []*link
	for _, l := range t.links {
		if match(l) {
			links = append(links, l)
		}
	}
	return links
}

func (t *Transport) sendAll(ctx context.Context, links []*link, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var errs []error
	sent := 0
	for _, l := range links {
		if err := l.write(ctx, payload); err != nil {
			errs = append(errs, fmt.Errorf("link %s: %w", l.id, err))
			t.dropLink(l)
			continue
		}
		sent++
	}
	if sent == 0 && len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func (t *Transport) SendToOutLinks(ctx context.Context, address identity.Address, payload []byte) error {
	links := t.matching(func(l *link) bool { return l.out && l.remote == address })
	if len(links) == 0 {
		return fmt.Errorf("%w: out-link to %s", transport.ErrNoLink, address)
	}
	return t.sendAll(ctx, links, payload)
}

func (t *Transport) SendToInLinks(ctx context.Context, address identity.Address, payload []byte) error {
	links := t.matching(func(l *link) bool { return !l.out && l.remote == address })
	if len(links) == 0 {
		return fmt.Errorf("%w: in-link to %s", transport.ErrNoLink, address)
	}
	return t.sendAll(ctx, links, payload)
}

func (t *Transport) SendToAllOutLinks(ctx context.Context, payload []byte) error {
	return t.sendAll(ctx, t.matching(func(l *link) bool { return l.out }), payload)
}

func (t *Transport) SendToLink(ctx context.Context, id transport.LinkID, payload []byte) error {
	t.mu.RLock()
	l, ok := t.links[id]
	t.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", transport.ErrNoLink, id)
	}
	return t.sendAll(ctx, []*link{l}, payload)
}
