package messenger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ZentaChain/zentalk-messenger/pkg/identity"
	"github.com/ZentaChain/zentalk-messenger/pkg/protocol"
	"github.com/ZentaChain/zentalk-messenger/pkg/transport/memory"
)

const waitFor = 5 * time.Second

type receivedChunk struct {
	address string
	fileID  string
	data    []byte
}

// testPlatform records everything the messenger delivers
type testPlatform struct {
	mu         sync.Mutex
	events     []protocol.Event
	chunks     []receivedChunk
	broadcasts []*protocol.Broadcast
	audio      []*protocol.CallAudioData

	onRequest func(address, fileID string, chunkSize int)
}

func (p *testPlatform) SendEvent(event protocol.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *testPlatform) FeedAudio(address, callID string, data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.audio = append(p.audio, &protocol.CallAudioData{Address: address, CallID: callID, Data: data})
}

func (p *testPlatform) RequestFileChunk(address, fileID string, chunkSize int) {
	p.mu.Lock()
	fn := p.onRequest
	p.mu.Unlock()

	if fn != nil {
		fn(address, fileID, chunkSize)
	}
}

func (p *testPlatform) ReceiveFileChunk(address, fileID string, data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chunks = append(p.chunks, receivedChunk{address: address, fileID: fileID, data: data})
}

func (p *testPlatform) ReceiveBroadcast(address, id, topic string, data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.broadcasts = append(p.broadcasts, &protocol.Broadcast{ID: id, Address: address, Topic: topic, Data: data})
}

func (p *testPlatform) eventsOf(typ protocol.EventType) []protocol.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []protocol.Event
	for _, e := range p.events {
		if e.Type() == typ {
			out = append(out, e)
		}
	}
	return out
}

func (p *testPlatform) contactsFound(address string) int {
	n := 0
	for _, e := range p.eventsOf(protocol.TypeContactFound) {
		if e.PeerAddress() == address {
			n++
		}
	}
	return n
}

func (p *testPlatform) receivedChunks() []receivedChunk {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]receivedChunk(nil), p.chunks...)
}

func (p *testPlatform) receivedBroadcasts() []*protocol.Broadcast {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*protocol.Broadcast(nil), p.broadcasts...)
}

func (p *testPlatform) receivedAudio() []*protocol.CallAudioData {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*protocol.CallAudioData(nil), p.audio...)
}

type testNode struct {
	m         *Messenger
	platform  *testPlatform
	transport *memory.Transport
}

func (n *testNode) address() string {
	return n.m.Address().String()
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.AnnounceInterval = time.Hour
	cfg.AckTimeout = 100 * time.Millisecond
	return cfg
}

func startNode(t *testing.T, net *memory.Network, name string, cfg Config) *testNode {
	t.Helper()

	tr := net.NewTransport(name)
	platform := &testPlatform{}

	m, err := New(context.Background(), tr, identity.FromName(name), protocol.ContactData{Name: name}, platform, cfg)
	require.NoError(t, err)

	t.Cleanup(func() {
		m.Close()
		tr.Close()
	})

	return &testNode{m: m, platform: platform, transport: tr}
}

// discover makes from link to to by announcing to
func discover(t *testing.T, from, to *testNode) {
	t.Helper()

	require.NoError(t, to.m.Announce(context.Background()))
	require.Eventually(t, func() bool {
		return from.platform.contactsFound(to.address()) > 0
	}, waitFor, 5*time.Millisecond)
}

// frameEvent decodes a memory frame, ignoring undecodable payloads
func frameEvent(f memory.Frame) protocol.Event {
	event, err := protocol.Decode(f.Data)
	if err != nil {
		return nil
	}
	return event
}
