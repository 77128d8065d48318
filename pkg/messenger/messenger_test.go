package messenger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZentaChain/zentalk-messenger/pkg/identity"
	"github.com/ZentaChain/zentalk-messenger/pkg/protocol"
	"github.com/ZentaChain/zentalk-messenger/pkg/transport"
	"github.com/ZentaChain/zentalk-messenger/pkg/transport/memory"
)

func TestNewValidatesConfig(t *testing.T) {
	net := memory.NewNetwork()
	cfg := DefaultConfig()
	cfg.MaxAttempts = 0

	_, err := New(context.Background(), net.NewTransport("x"), identity.FromName("x"), protocol.ContactData{}, &testPlatform{}, cfg)
	assert.Error(t, err)
}

func TestContactDiscovery(t *testing.T) {
	net := memory.NewNetwork()
	b := startNode(t, net, "b", testConfig())
	a := startNode(t, net, "a", testConfig())

	require.Eventually(t, func() bool {
		return b.platform.contactsFound(a.address()) == 1
	}, waitFor, 5*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, b.platform.contactsFound(a.address()))

	found := b.platform.eventsOf(protocol.TypeContactFound)[0].(*protocol.Contact)
	assert.Equal(t, "a", found.Contact.Name)
	t.Logf("✅ b discovered a at %s", found.Address)
}

func TestAnnounceWithBadPayloadIgnored(t *testing.T) {
	net := memory.NewNetwork()
	a := startNode(t, net, "a", testConfig())

	raw := net.NewTransport("raw")
	defer raw.Close()

	dest := transport.NewDestination(identity.FromName("raw"), ContactDestinationName)
	require.NoError(t, raw.AddDestination(dest))
	require.NoError(t, raw.SendAnnounce(context.Background(), dest, []byte{0xc1, 0x00}))

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, a.platform.contactsFound(dest.Address.String()))
}

func TestSendMessage(t *testing.T) {
	net := memory.NewNetwork()
	b := startNode(t, net, "b", testConfig())
	a := startNode(t, net, "a", testConfig())
	discover(t, a, b)

	err := a.m.Send(context.Background(), SendMessage(protocol.Message{
		ID:      "m1",
		ChatID:  "chat",
		Address: b.address(),
		Text:    "hello",
	}))
	require.NoError(t, err)

	messages := b.platform.eventsOf(protocol.TypeMessage)
	require.Len(t, messages, 1)

	msg := messages[0].(*protocol.Message)
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, a.address(), msg.Address)
	assert.Equal(t, "hello", msg.Text)
	assert.NotZero(t, msg.Timestamp)
	assert.Zero(t, a.m.acks.Pending())
}

func TestSendRequests(t *testing.T) {
	net := memory.NewNetwork()
	b := startNode(t, net, "b", testConfig())
	a := startNode(t, net, "a", testConfig())
	discover(t, a, b)

	tests := []struct {
		name string
		cmd  Command
		typ  protocol.EventType
	}{
		{"chat", CreateChat(protocol.ChatCreate{ChatName: "team", Address: b.address()}), protocol.TypeChatCreate},
		{"file start", SendFileStart(protocol.FileStart{ChatID: "c", Address: b.address(), FileName: "a.txt", FileSize: 3}), protocol.TypeFileStart},
		{"call invoke", InvokeCall(protocol.CallInvoke{CallID: "call", Address: b.address()}), protocol.TypeCallInvoke},
		{"call answer", AnswerCall(protocol.CallAnswer{CallID: "call", Address: b.address()}), protocol.TypeCallAnswer},
		{"call reject", RejectCall(protocol.CallReject{CallID: "call", Address: b.address()}), protocol.TypeCallReject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, a.m.Send(context.Background(), tt.cmd))

			events := b.platform.eventsOf(tt.typ)
			require.Len(t, events, 1)
			assert.Equal(t, a.address(), events[0].PeerAddress())
			assert.NotEmpty(t, events[0].EventID())
		})
	}
}

func TestSendRetries(t *testing.T) {
	cfg := testConfig()

	tests := []struct {
		droppedAcks int
		wantErr     error
		wantCopies  int
	}{
		{0, nil, 1},
		{1, nil, 2},
		{3, nil, 4},
		{cfg.MaxAttempts - 1, nil, cfg.MaxAttempts},
		{cfg.MaxAttempts, ErrTimeout, cfg.MaxAttempts},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("drop %d acks", tt.droppedAcks), func(t *testing.T) {
			net := memory.NewNetwork()
			b := startNode(t, net, "b", cfg)
			a := startNode(t, net, "a", cfg)
			discover(t, a, b)

			id := fmt.Sprintf("retry-%d", tt.droppedAcks)

			var mu sync.Mutex
			copies, dropped := 0, 0
			net.SetFilter(func(f memory.Frame) bool {
				mu.Lock()
				defer mu.Unlock()

				switch e := frameEvent(f).(type) {
				case *protocol.Message:
					if e.ID == id {
						copies++
					}
				case *protocol.Acknowledge:
					if e.ID == id && dropped < tt.droppedAcks {
						dropped++
						return false
					}
				}
				return true
			})

			err := a.m.Send(context.Background(), SendMessage(protocol.Message{ID: id, Address: b.address(), Text: "retry"}))
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			} else {
				require.NoError(t, err)
			}

			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, tt.wantCopies, copies)
			assert.Len(t, b.platform.eventsOf(protocol.TypeMessage), 1)
			t.Logf("✅ %d copies transmitted for %d dropped acks", copies, tt.droppedAcks)
		})
	}
}

func TestDuplicateDeliveredOnceAndAckedTwice(t *testing.T) {
	ctx := context.Background()
	net := memory.NewNetwork()
	b := startNode(t, net, "b", testConfig())

	raw := net.NewTransport("raw")
	defer raw.Close()
	rawOut := raw.OutLinkEvents(ctx)

	_, err := raw.Link(ctx, transport.Descriptor{Address: b.m.Address()})
	require.NoError(t, err)

	sender := identity.FromName("raw").Address(ContactDestinationName)
	payload, err := protocol.Encode(&protocol.Message{ID: "dup", Address: sender.String(), Text: "twice"})
	require.NoError(t, err)

	require.NoError(t, raw.SendToOutLinks(ctx, b.m.Address(), payload))
	require.NoError(t, raw.SendToOutLinks(ctx, b.m.Address(), payload))

	acks := 0
	require.Eventually(t, func() bool {
		for {
			select {
			case ev := <-rawOut:
				if ev.Kind != transport.LinkData {
					continue
				}
				event, err := protocol.Decode(ev.Data)
				if err != nil {
					continue
				}
				if ack, ok := event.(*protocol.Acknowledge); ok {
					assert.Equal(t, "dup", ack.ID)
					assert.Equal(t, protocol.AckMessage, ack.Kind)
					acks++
				}
			default:
				return acks == 2
			}
		}
	}, waitFor, 5*time.Millisecond)

	assert.Len(t, b.platform.eventsOf(protocol.TypeMessage), 1)
}

func TestInvalidAddressFailsOnlyCommand(t *testing.T) {
	net := memory.NewNetwork()
	b := startNode(t, net, "b", testConfig())
	a := startNode(t, net, "a", testConfig())
	discover(t, a, b)

	err := a.m.Send(context.Background(), SendMessage(protocol.Message{Address: "not-hex", Text: "x"}))
	assert.True(t, errors.Is(err, identity.ErrInvalidAddress), "got %v", err)

	require.NoError(t, a.m.Send(context.Background(), SendMessage(protocol.Message{Address: b.address(), Text: "still alive"})))
	assert.Len(t, b.platform.eventsOf(protocol.TypeMessage), 1)
}

func TestSendWithoutLinkTimesOut(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttempts = 2
	cfg.AckTimeout = 20 * time.Millisecond

	net := memory.NewNetwork()
	a := startNode(t, net, "a", cfg)

	ghost := identity.FromName("ghost").Address(ContactDestinationName)
	err := a.m.Send(context.Background(), SendMessage(protocol.Message{Address: ghost.String()}))
	assert.True(t, errors.Is(err, ErrTimeout), "got %v", err)
	assert.Zero(t, a.m.acks.Pending())
}

func TestBroadcast(t *testing.T) {
	net := memory.NewNetwork()
	b := startNode(t, net, "b", testConfig())
	c := startNode(t, net, "c", testConfig())
	a := startNode(t, net, "a", testConfig())
	discover(t, a, b)
	discover(t, a, c)

	require.NoError(t, a.m.Send(context.Background(), SendBroadcast(protocol.Broadcast{ID: "b1", Topic: "news", Data: []byte("hi all")})))

	for _, n := range []*testNode{b, c} {
		require.Eventually(t, func() bool { return len(n.platform.receivedBroadcasts()) == 1 }, waitFor, 5*time.Millisecond)
		got := n.platform.receivedBroadcasts()[0]
		assert.Equal(t, a.address(), got.Address)
		assert.Equal(t, "news", got.Topic)
		assert.Equal(t, []byte("hi all"), got.Data)
	}

	// the same broadcast id is delivered once
	require.NoError(t, a.m.Send(context.Background(), SendBroadcast(protocol.Broadcast{ID: "b1", Topic: "news", Data: []byte("hi all")})))
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, b.platform.receivedBroadcasts(), 1)
}

func TestCallAudio(t *testing.T) {
	net := memory.NewNetwork()
	b := startNode(t, net, "b", testConfig())
	a := startNode(t, net, "a", testConfig())
	discover(t, a, b)

	for i := 0; i < 3; i++ {
		require.NoError(t, a.m.Send(context.Background(), SendCallAudio(protocol.CallAudioData{
			Address: b.address(),
			CallID:  "call",
			Data:    []byte{byte(i)},
		})))
	}

	require.Eventually(t, func() bool { return len(b.platform.receivedAudio()) == 3 }, waitFor, 5*time.Millisecond)
	frame := b.platform.receivedAudio()[0]
	assert.Equal(t, a.address(), frame.Address)
	assert.Equal(t, "call", frame.CallID)
}

func TestFileTransfer(t *testing.T) {
	ctx := context.Background()
	net := memory.NewNetwork()
	b := startNode(t, net, "b", testConfig())
	a := startNode(t, net, "a", testConfig())
	discover(t, a, b)

	file := make([]byte, 1000)
	for i := range file {
		file[i] = byte(i * 7)
	}

	// drop the first ack of every chunk to force one retransmission each
	var mu sync.Mutex
	transmitted := make(map[string]int)
	droppedAck := make(map[string]bool)
	net.SetFilter(func(f memory.Frame) bool {
		mu.Lock()
		defer mu.Unlock()

		switch e := frameEvent(f).(type) {
		case *protocol.FileChunk:
			transmitted[e.ID]++
		case *protocol.Acknowledge:
			if e.Kind == protocol.AckFileChunk && !droppedAck[e.ID] {
				droppedAck[e.ID] = true
				return false
			}
		}
		return true
	})

	done := make(chan struct{})
	sendErrs := make(chan error, 1)
	offset := 0
	sizes := []int{}

	a.platform.onRequest = func(address, fileID string, chunkSize int) {
		sizes = append(sizes, chunkSize)
		if offset >= len(file) {
			close(done)
			return
		}

		end := min(offset+chunkSize, len(file))
		chunk := file[offset:end]
		offset = end

		err := a.m.Send(ctx, SendFileChunk(protocol.FileChunk{ChatID: "c", Address: address, FileID: fileID, Data: chunk}))
		if err != nil {
			sendErrs <- err
		}
	}

	require.NoError(t, a.m.Send(ctx, SendFileStart(protocol.FileStart{
		ChatID:   "c",
		Address:  b.address(),
		FileID:   "file-1",
		FileName: "blob.bin",
		FileSize: uint64(len(file)),
	})))

	select {
	case <-done:
	case err := <-sendErrs:
		t.Fatalf("chunk send failed: %v", err)
	case <-time.After(20 * time.Second):
		t.Fatal("file transfer did not finish")
	}

	mdu := a.m.MDU()
	assert.Equal(t, mdu/2, sizes[0])
	assert.Equal(t, mdu/4, sizes[1])

	chunks := b.platform.receivedChunks()
	var assembled []byte
	for _, c := range chunks {
		assert.Equal(t, "file-1", c.fileID)
		assert.Equal(t, a.address(), c.address)
		assembled = append(assembled, c.data...)
	}
	assert.Equal(t, file, assembled)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, transmitted, len(chunks))
	for id, n := range transmitted {
		assert.Equal(t, 2, n, "chunk %s", id)
	}

	starts := b.platform.eventsOf(protocol.TypeFileStart)
	require.Len(t, starts, 1)
	assert.Equal(t, "blob.bin", starts[0].(*protocol.FileStart).FileName)
	t.Logf("✅ %d chunks delivered once each despite retransmissions", len(chunks))
}

func TestContactConnectBindsLink(t *testing.T) {
	net := memory.NewNetwork()
	b := startNode(t, net, "b", testConfig())
	a := startNode(t, net, "a", testConfig())
	discover(t, a, b)

	var link transport.LinkID
	require.Eventually(t, func() bool {
		l, ok := b.m.linkFor(a.m.Address(), "")
		link = l
		return ok
	}, waitFor, 5*time.Millisecond)

	require.NoError(t, b.transport.CloseLink(link))
	require.Eventually(t, func() bool {
		_, ok := b.m.linkFor(a.m.Address(), "")
		return !ok
	}, waitFor, 5*time.Millisecond)
}

// startLinkedByPeer starts b and then a, so only b hears an announce and
// a can reach b solely over the in-link b opened
func startLinkedByPeer(t *testing.T, cfg Config) (a, b *testNode) {
	t.Helper()

	net := memory.NewNetwork()
	b = startNode(t, net, "b", cfg)
	// let b's startup announce pass before a joins
	time.Sleep(100 * time.Millisecond)
	a = startNode(t, net, "a", cfg)

	require.Eventually(t, func() bool {
		_, ok := a.m.linkFor(b.m.Address(), "")
		return ok
	}, waitFor, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return b.platform.contactsFound(a.address()) > 0
	}, waitFor, 5*time.Millisecond)

	err := a.transport.SendToOutLinks(context.Background(), b.m.Address(), []byte("ping"))
	require.ErrorIs(t, err, transport.ErrNoLink)
	return a, b
}

func TestSendFallsBackToInLink(t *testing.T) {
	a, b := startLinkedByPeer(t, testConfig())

	err := a.m.Send(context.Background(), SendMessage(protocol.Message{
		ID:      "fb",
		Address: b.address(),
		Text:    "over your link",
	}))
	require.NoError(t, err)

	messages := b.platform.eventsOf(protocol.TypeMessage)
	require.Len(t, messages, 1)
	assert.Equal(t, a.address(), messages[0].PeerAddress())
	assert.Zero(t, a.m.acks.Pending())

	require.NoError(t, a.m.Send(context.Background(), SendCallAudio(protocol.CallAudioData{
		CallID:  "call",
		Address: b.address(),
		Data:    []byte{1, 2, 3},
	})))
	require.Eventually(t, func() bool {
		return len(b.platform.receivedAudio()) == 1
	}, waitFor, 5*time.Millisecond)
	t.Logf("✅ message and audio delivered over the in-link bound by the peer")
}

func TestAckFallback(t *testing.T) {
	a, b := startLinkedByPeer(t, testConfig())
	ghost := startNode(t, memory.NewNetwork(), "ghost", testConfig())

	tests := []struct {
		name     string
		from, to *testNode
		wantErr  error
	}{
		// a holds no out-link to b, only the in-link b bound
		{"bound in-link", a, b, nil},
		// b has no in-link from a, only its own out-link
		{"out-link", b, a, nil},
		{"no link", a, ghost, transport.ErrNoLink},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := "ack-" + tt.name
			acked, err := tt.to.m.acks.WaitForAck(id)
			require.NoError(t, err)
			defer tt.to.m.acks.Cancel(id, acked)

			ack := &protocol.Acknowledge{ID: id, Kind: protocol.AckMessage}
			err = tt.from.m.sendAck(context.Background(), "closed-link", tt.to.address(), ack)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)

			select {
			case <-acked:
			case <-time.After(waitFor):
				t.Fatalf("ack %s never arrived", id)
			}
		})
	}
}

func TestSendAfterClose(t *testing.T) {
	net := memory.NewNetwork()
	a := startNode(t, net, "a", testConfig())
	require.NoError(t, a.m.Close())

	err := a.m.Send(context.Background(), SendMessage(protocol.Message{Address: a.address()}))
	assert.True(t, errors.Is(err, ErrClosed), "got %v", err)
}

func TestSendRespectsContext(t *testing.T) {
	cfg := testConfig()
	cfg.AckTimeout = time.Second

	net := memory.NewNetwork()
	a := startNode(t, net, "a", cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	ghost := identity.FromName("ghost").Address(ContactDestinationName)
	err := a.m.Send(ctx, SendMessage(protocol.Message{Address: ghost.String()}))
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}

func TestNewCommand(t *testing.T) {
	_, err := NewCommand(&protocol.Acknowledge{ID: "x"})
	assert.True(t, errors.Is(err, ErrInvalidCommand))

	_, err = NewCommand(nil)
	assert.True(t, errors.Is(err, ErrInvalidCommand))

	msg := &protocol.Message{ID: "m", Address: "peer"}
	cmd, err := NewCommand(msg)
	require.NoError(t, err)
	assert.Equal(t, "m", cmd.Event().EventID())

	cmd.Event().SetPeerAddress("me")
	assert.Equal(t, "peer", msg.Address)
}
