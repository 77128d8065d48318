package p2p

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/ugorji/go/codec"

	"github.com/ZentaChain/zentalk-messenger/pkg/identity"
	"github.com/ZentaChain/zentalk-messenger/pkg/transport"
)

var (
	ErrBadAnnounce       = errors.New("bad announce")
	ErrAnnounceSignature = errors.New("announce signature mismatch")
)

var msgpackHandle = func() *codec.MsgpackHandle {
	h := &codec.MsgpackHandle{}
	h.WriteExt = true
	return h
}()

// signedAnnounce is the GossipSub payload announcing a destination
type signedAnnounce struct {
	Address   []byte `codec:"address"`
	App       string `codec:"app"`
	Aspects   string `codec:"aspects"`
	PublicKey []byte `codec:"public_key"`
	PeerID    string `codec:"peer_id"`
	AppData   []byte `codec:"app_data"`
	Signature []byte `codec:"signature"`
}

func (a *signedAnnounce) signedBytes() []byte {
	var buf bytes.Buffer
	buf.Write(a.Address)
	buf.WriteString(a.App)
	buf.WriteByte(0)
	buf.WriteString(a.Aspects)
	buf.WriteByte(0)
	buf.WriteString(a.PeerID)
	buf.WriteByte(0)
	buf.Write(a.AppData)
	return buf.Bytes()
}

func newSignedAnnounce(dest *transport.Destination, pid peer.ID, appData []byte) (*signedAnnounce, error) {
	a := &signedAnnounce{
		Address:   dest.Address[:],
		App:       dest.Name.App,
		Aspects:   dest.Name.Aspects,
		PublicKey: dest.Identity.PublicKey(),
		PeerID:    pid.String(),
		AppData:   appData,
	}

	sig, err := dest.Identity.Sign(a.signedBytes())
	if err != nil {
		return nil, fmt.Errorf("failed to sign announce: %w", err)
	}
	a.Signature = sig
	return a, nil
}

// verify checks that the address belongs to the public key and the signature is valid
func (a *signedAnnounce) verify() (transport.Announce, error) {
	var addr identity.Address
	if len(a.Address) != identity.AddressLength {
		return transport.Announce{}, fmt.Errorf("%w: address length %d", ErrBadAnnounce, len(a.Address))
	}
	copy(addr[:], a.Address)

	name := identity.NewDestinationName(a.App, a.Aspects)
	derived, err := identity.DestinationAddress(a.PublicKey, name)
	if err != nil {
		return transport.Announce{}, fmt.Errorf("%w: %v", ErrBadAnnounce, err)
	}
	if derived != addr {
		return transport.Announce{}, fmt.Errorf("%w: address %s does not match key", ErrBadAnnounce, addr.Short())
	}

	ok, err := identity.Verify(a.PublicKey, a.signedBytes(), a.Signature)
	if err != nil || !ok {
		return transport.Announce{}, ErrAnnounceSignature
	}

	return transport.Announce{
		Destination: transport.Descriptor{
			Address:   addr,
			Name:      name,
			PublicKey: a.PublicKey,
			Route:     a.PeerID,
		},
		AppData: a.AppData,
	}, nil
}

func encodeAnnounce(a *signedAnnounce) ([]byte, error) {
	var out []byte
	if err := codec.NewEncoderBytes(&out, msgpackHandle).Encode(a); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeAnnounce(data []byte) (transport.Announce, error) {
	var a signedAnnounce
	if err := codec.NewDecoderBytes(data, msgpackHandle).Decode(&a); err != nil {
		return transport.Announce{}, fmt.Errorf("%w: %v", ErrBadAnnounce, err)
	}
	return a.verify()
}

func (t *Transport) setupAnnounces() error {
	ps, err := pubsub.NewGossipSub(t.ctx, t.host,
		pubsub.WithMessageSigning(true),
		pubsub.WithStrictSignatureVerification(true),
	)
	if err != nil {
		return fmt.Errorf("gossipsub: %w", err)
	}

	validator := func(ctx context.Context, from peer.ID, msg *pubsub.Message) pubsub.ValidationResult {
		ann, err := decodeAnnounce(msg.Data)
		if err != nil {
			log.Debugf("rejecting announce from %s: %v", from, err)
			return pubsub.ValidationReject
		}
		if msg.GetFrom().String() != ann.Destination.Route {
			return pubsub.ValidationReject
		}
		return pubsub.ValidationAccept
	}
	if err := ps.RegisterTopicValidator(AnnounceTopic, validator); err != nil {
		return fmt.Errorf("announce validator: %w", err)
	}

	topic, err := ps.Join(AnnounceTopic)
	if err != nil {
		return fmt.Errorf("join %s: %w", AnnounceTopic, err)
	}

	sub, err := topic.Subscribe()
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", AnnounceTopic, err)
	}

	t.ps = ps
	t.topic = topic
	t.sub = sub

	t.wg.Add(1)
	go t.announceLoop()
	return nil
}

func (t *Transport) announceLoop() {
	defer t.wg.Done()

	for {
		msg, err := t.sub.Next(t.ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Debugf("announce subscription ended: %v", err)
			}
			return
		}
		if msg.GetFrom() == t.host.ID() {
			continue
		}

		ann, err := decodeAnnounce(msg.Data)
		if err != nil {
			continue
		}

		log.Debugf("📨 announce %s from %s", ann.Destination.Address.Short(), msg.GetFrom())
		t.announces.Publish(ann)
	}
}

// SendAnnounce publishes a signed announce for dest
func (t *Transport) SendAnnounce(ctx context.Context, dest *transport.Destination, appData []byte) error {
	t.mu.RLock()
	closed := t.closed
	t.mu.RUnlock()
	if closed {
		return transport.ErrClosed
	}

	ann, err := newSignedAnnounce(dest, t.host.ID(), appData)
	if err != nil {
		return err
	}

	data, err := encodeAnnounce(ann)
	if err != nil {
		return fmt.Errorf("encode announce: %w", err)
	}

	if err := t.topic.Publish(ctx, data); err != nil {
		return fmt.Errorf("publish announce: %w", err)
	}
	return nil
}
