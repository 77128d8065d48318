package messenger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZentaChain/zentalk-messenger/pkg/identity"
	"github.com/ZentaChain/zentalk-messenger/pkg/protocol"
	"github.com/ZentaChain/zentalk-messenger/pkg/transport"
)

func (m *Messenger) handleCommand(ctx context.Context, cmd Command) error {
	event := cmd.event
	protocol.FillIDs(event)

	if b, ok := event.(*protocol.Broadcast); ok {
		b.Address = m.dest.Address.String()
		payload, err := protocol.Encode(b)
		if err != nil {
			return err
		}
		log.Debugf("📤 broadcast %s(%s)", b.Topic, b.ID)
		return m.transport.SendToAllOutLinks(ctx, payload)
	}

	target, err := identity.ParseAddress(event.PeerAddress())
	if err != nil {
		log.Warnf("⚠️  %s rejected: %v", event.Type(), err)
		return err
	}
	event.SetPeerAddress(m.dest.Address.String())

	if audio, ok := event.(*protocol.CallAudioData); ok {
		payload, err := protocol.Encode(audio)
		if err != nil {
			return err
		}
		return m.sendTo(ctx, target, payload)
	}

	log.Debugf("📤 send %s(%s) to %s", event.Type(), event.EventID(), target.Short())

	if err := m.sendReliable(ctx, target, event); err != nil {
		return err
	}

	switch e := event.(type) {
	case *protocol.FileStart:
		m.requestFileChunk(target.String(), e.FileID, m.transport.MDU()/2)
	case *protocol.FileChunk:
		m.requestFileChunk(target.String(), e.FileID, m.transport.MDU()/4)
	}
	return nil
}

// sendReliable transmits event until the peer acknowledges it or the attempts run out.
// One correlator registration covers every attempt.
func (m *Messenger) sendReliable(ctx context.Context, target identity.Address, event protocol.Event) error {
	id := event.EventID()

	payload, err := protocol.Encode(event)
	if err != nil {
		return err
	}

	acked, err := m.acks.WaitForAck(id)
	if err != nil {
		return fmt.Errorf("%s(%s): %w", event.Type(), id, err)
	}
	defer m.acks.Cancel(id, acked)

	for attempt := 1; attempt <= m.cfg.MaxAttempts; attempt++ {
		if err := m.sendTo(ctx, target, payload); err != nil {
			log.Debugf("message(%s) attempt %d: %v", id, attempt, err)
		}

		timer := time.NewTimer(m.cfg.AckTimeout)
		select {
		case <-acked:
			timer.Stop()
			log.Debugf("message(%s) delivered after %d attempt(s)", id, attempt)
			return nil
		case <-timer.C:
			log.Warnf("⚠️  message(%s) = %d nack", id, attempt)
		case <-ctx.Done():
			timer.Stop()
			if m.ctx.Err() != nil {
				return ErrClosed
			}
			return ctx.Err()
		}
	}

	log.Errorf("❌ %s(%s) to %s not delivered", event.Type(), id, target.Short())
	return fmt.Errorf("%w: %s(%s) after %d attempts", ErrTimeout, event.Type(), id, m.cfg.MaxAttempts)
}

// sendTo prefers our out-links to target and falls back to an in-link the
// target bound with ContactConnect
func (m *Messenger) sendTo(ctx context.Context, target identity.Address, payload []byte) error {
	err := m.transport.SendToOutLinks(ctx, target, payload)
	if err == nil || !errors.Is(err, transport.ErrNoLink) {
		return err
	}
	if link, ok := m.linkFor(target, ""); ok {
		return m.transport.SendToLink(ctx, link, payload)
	}
	return err
}

// sendAck answers over the link the request arrived on, falling back to
// another link of the same contact.
func (m *Messenger) sendAck(ctx context.Context, link transport.LinkID, peer string, ack *protocol.Acknowledge) error {
	payload, err := protocol.Encode(ack)
	if err != nil {
		return err
	}

	err = m.transport.SendToLink(ctx, link, payload)
	if err == nil || !errors.Is(err, transport.ErrNoLink) {
		return err
	}

	addr, perr := identity.ParseAddress(peer)
	if perr != nil {
		return err
	}
	if other, ok := m.linkFor(addr, link); ok {
		return m.transport.SendToLink(ctx, other, payload)
	}
	return m.transport.SendToOutLinks(ctx, addr, payload)
}
