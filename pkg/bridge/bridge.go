// Package bridge connects the messenger to a Go host application. It persists what
// the messenger delivers, streams events to UI subscribers, pumps outgoing files
// chunk by chunk and assembles incoming ones.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	logging "github.com/ipfs/go-log/v2"

	"github.com/ZentaChain/zentalk-messenger/pkg/identity"
	"github.com/ZentaChain/zentalk-messenger/pkg/messenger"
	"github.com/ZentaChain/zentalk-messenger/pkg/protocol"
	"github.com/ZentaChain/zentalk-messenger/pkg/storage"
	"github.com/ZentaChain/zentalk-messenger/pkg/transport"
)

var log = logging.Logger("bridge")

var (
	ErrNotAttached = errors.New("bridge not attached to a messenger")
	ErrUnknownFile = errors.New("unknown file transfer")
)

// Sender is the part of the messenger the bridge drives
type Sender interface {
	Send(ctx context.Context, cmd messenger.Command) error
	Address() identity.Address
	MDU() int
}

var _ messenger.Platform = (*Bridge)(nil)

// Bridge is the messenger.Platform of a Go host
type Bridge struct {
	db       *storage.MessageDB
	filesDir string
	events   *transport.Hub[[]byte]

	mu       sync.Mutex
	sender   Sender
	outgoing map[string]*outgoingFile
	incoming map[string]*incomingFile

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a bridge storing into db and writing received files under filesDir
func New(db *storage.MessageDB, filesDir string) (*Bridge, error) {
	if err := os.MkdirAll(filesDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create files dir: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		db:       db,
		filesDir: filesDir,
		events:   transport.NewHub[[]byte]("bridge events", 0),
		outgoing: make(map[string]*outgoingFile),
		incoming: make(map[string]*incomingFile),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Attach sets the messenger used for outgoing commands. The messenger is created
// with the bridge as its platform, so it can only be attached afterwards.
func (b *Bridge) Attach(s Sender) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sender = s
}

func (b *Bridge) attached() (Sender, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sender == nil {
		return nil, ErrNotAttached
	}
	return b.sender, nil
}

func (b *Bridge) selfAddress() string {
	s, err := b.attached()
	if err != nil {
		return ""
	}
	return s.Address().String()
}

// DB returns the host store
func (b *Bridge) DB() *storage.MessageDB {
	return b.db
}

// Events subscribes to the JSON documents of every event surfaced to the host.
// The channel closes when ctx is done or the bridge closes.
func (b *Bridge) Events(ctx context.Context) <-chan []byte {
	return b.events.Subscribe(ctx)
}

// Close stops pending file pumps and closes event subscribers
func (b *Bridge) Close() error {
	b.cancel()

	b.mu.Lock()
	for id, of := range b.outgoing {
		of.file.Close()
		delete(b.outgoing, id)
	}
	for id, in := range b.incoming {
		in.file.Close()
		delete(b.incoming, id)
	}
	b.mu.Unlock()

	b.events.Close()
	return nil
}

func (b *Bridge) publish(event protocol.Event) {
	data, err := protocol.EncodeJSON(event)
	if err != nil {
		log.Errorf("❌ failed to encode %s for subscribers: %v", event.Type(), err)
		return
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		log.Errorf("❌ failed to compact %s: %v", event.Type(), err)
		return
	}
	b.events.Publish(buf.Bytes())
}

// SendEvent stores the event and forwards it to subscribers
func (b *Bridge) SendEvent(event protocol.Event) {
	var err error

	switch e := event.(type) {
	case *protocol.Contact:
		now := protocol.NowUnixMilli()
		err = b.db.SaveContact(&storage.Contact{
			Address:   e.Address,
			Name:      e.Contact.Name,
			FirstSeen: now,
			LastSeen:  now,
		})
	case *protocol.Message:
		err = b.db.SaveMessage(&storage.StoredMessage{
			MessageID:   e.ID,
			ChatID:      e.ChatID,
			FromAddress: e.Address,
			ToAddress:   b.selfAddress(),
			Text:        e.Text,
			Timestamp:   e.Timestamp,
			Status:      storage.MessageStatusReceived,
		})
	case *protocol.ChatCreate:
		err = b.db.SaveChat(&storage.Chat{
			ChatID:         e.ChatID,
			ChatName:       e.ChatName,
			ContactAddress: e.Address,
			CreatedAt:      protocol.NowUnixMilli(),
		})
	case *protocol.FileStart:
		err = b.startIncoming(e)
	}

	if err != nil {
		log.Errorf("❌ failed to store %s from %s: %v", event.Type(), event.PeerAddress(), err)
	}

	b.publish(event)
}

// FeedAudio forwards call audio to subscribers
func (b *Bridge) FeedAudio(address, callID string, data []byte) {
	b.publish(&protocol.CallAudioData{Address: address, CallID: callID, Data: data})
}

// ReceiveBroadcast stores a broadcast and forwards it to subscribers
func (b *Bridge) ReceiveBroadcast(address, id, topic string, data []byte) {
	err := b.db.SaveBroadcast(&storage.StoredBroadcast{
		ID:         id,
		Address:    address,
		Topic:      topic,
		Data:       data,
		ReceivedAt: protocol.NowUnixMilli(),
	})
	if err != nil {
		log.Errorf("❌ failed to store broadcast %s: %v", id, err)
	}

	b.publish(&protocol.Broadcast{ID: id, Address: address, Topic: topic, Data: data})
}
