package messenger

import (
	"context"
	"time"

	"github.com/ZentaChain/zentalk-messenger/pkg/identity"
	"github.com/ZentaChain/zentalk-messenger/pkg/protocol"
	"github.com/ZentaChain/zentalk-messenger/pkg/transport"
)

// advertiseTask announces the contact destination every AnnounceInterval
func (m *Messenger) advertiseTask(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.AnnounceInterval)
	defer ticker.Stop()

	for {
		if err := m.Announce(ctx); err != nil && ctx.Err() == nil {
			log.Warnf("⚠️  announce failed: %v", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// announceTask links to every contact that announces itself
func (m *Messenger) announceTask(ctx context.Context, announces <-chan transport.Announce) error {
	for {
		var ann transport.Announce
		select {
		case <-ctx.Done():
			return nil
		case a, ok := <-announces:
			if !ok {
				return nil
			}
			ann = a
		}

		desc := ann.Destination
		if desc.Name != ContactDestinationName || desc.Address == m.dest.Address {
			continue
		}

		var data protocol.AnnounceData
		if err := protocol.Unmarshal(ann.AppData, &data); err != nil {
			log.Debugf("dropping announce from %s: %v", desc.Address.Short(), err)
			continue
		}

		link, err := m.transport.Link(ctx, desc)
		if err != nil {
			if ctx.Err() == nil {
				log.Warnf("⚠️  link to '%s' %s failed: %v", data.Contact.Name, desc.Address.Short(), err)
			}
			continue
		}

		log.Debugf("📨 announce contact '%s'=%s link=%s", data.Contact.Name, desc.Address, link)

		m.deliver(&protocol.Contact{
			Address: desc.Address.String(),
			Contact: data.Contact,
		})
	}
}

// inLinkTask handles requests arriving over links opened by peers
func (m *Messenger) inLinkTask(ctx context.Context, events <-chan transport.LinkEvent) error {
	for {
		var ev transport.LinkEvent
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			ev = e
		}

		switch ev.Kind {
		case transport.LinkData:
			event, err := protocol.Decode(ev.Data)
			if err != nil {
				log.Errorf("invalid in-link event on %s: %v", ev.LinkID, err)
				continue
			}
			m.handleRequest(ctx, ev.LinkID, event)
		case transport.LinkActivated:
			log.Debugf("in-link %s activated", ev.LinkID)
		case transport.LinkClosed:
			m.unbindLink(ev.LinkID)
			log.Debugf("in-link %s closed", ev.LinkID)
		}
	}
}

func (m *Messenger) handleRequest(ctx context.Context, link transport.LinkID, event protocol.Event) {
	switch e := event.(type) {
	case *protocol.CallAudioData:
		m.deliver(e)
	case *protocol.Acknowledge:
		m.resolve(e)
	case *protocol.ContactConnect:
		addr, err := identity.ParseAddress(e.Address)
		if err != nil {
			log.Warnf("⚠️  contact connect on %s: %v", link, err)
			return
		}
		m.bindLink(link, addr)
		log.Debugf("link %s belongs to %s", link, addr.Short())
	case *protocol.Broadcast:
		if m.markKnown(e.ID) {
			m.deliver(e)
		}
	case *protocol.Contact:
		// only produced locally
	default:
		if protocol.IsRequest(event) {
			m.ackAndDeliver(ctx, link, event)
		}
	}
}

// ackAndDeliver forwards a new request to the platform and acknowledges it.
// Duplicates are acknowledged again since the previous ack may have been lost.
func (m *Messenger) ackAndDeliver(ctx context.Context, link transport.LinkID, event protocol.Event) {
	id := event.EventID()

	if m.markKnown(id) {
		m.deliver(event)
	} else {
		log.Warnf("⚠️  duplicate '%s' detected", id)
	}

	m.acks.HandleAck(id)

	ack := &protocol.Acknowledge{ID: id, Kind: event.AckKind()}
	if err := m.sendAck(ctx, link, event.PeerAddress(), ack); err != nil {
		log.Warnf("⚠️  ack %s: %v", id, err)
	}
}

// outLinkTask handles traffic on links opened by us
func (m *Messenger) outLinkTask(ctx context.Context, events <-chan transport.LinkEvent) error {
	for {
		var ev transport.LinkEvent
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			ev = e
		}

		switch ev.Kind {
		case transport.LinkData:
			event, err := protocol.Decode(ev.Data)
			if err != nil {
				log.Errorf("invalid out-link event on %s: %v", ev.LinkID, err)
				continue
			}
			if _, ok := event.(*protocol.ContactConnect); ok {
				log.Debugf("ignoring contact connect on out-link %s", ev.LinkID)
				continue
			}
			// acks, and requests from peers that reach us over our own link
			m.handleRequest(ctx, ev.LinkID, event)
		case transport.LinkActivated:
			m.connect(ctx, ev.LinkID)
		case transport.LinkClosed:
			log.Debugf("out-link %s to %s closed", ev.LinkID, ev.Address.Short())
		}
	}
}

// connect tells the peer which contact owns a new out-link
func (m *Messenger) connect(ctx context.Context, link transport.LinkID) {
	payload, err := protocol.Encode(&protocol.ContactConnect{Address: m.dest.Address.String()})
	if err != nil {
		log.Errorf("encode contact connect: %v", err)
		return
	}
	if err := m.transport.SendToLink(ctx, link, payload); err != nil {
		log.Warnf("⚠️  contact connect on %s: %v", link, err)
	}
}

func (m *Messenger) resolve(ack *protocol.Acknowledge) {
	if m.acks.HandleAck(ack.ID) {
		log.Debugf("ack %s(%s)", ack.Kind, ack.ID)
	}
}

// commandTask processes local commands one at a time
func (m *Messenger) commandTask(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-m.commands:
			cmdCtx, cancel := mergeCancel(req.ctx, ctx)
			req.result <- m.handleCommand(cmdCtx, req.cmd)
			cancel()
		}
	}
}

// mergeCancel returns a context cancelled when either parent is done
func mergeCancel(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stop := context.AfterFunc(b, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
