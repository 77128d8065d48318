// Package messenger implements the ZenTalk messenger protocol engine.
//
// The engine turns the best effort delivery of a mesh transport into a
// request/acknowledge protocol. Outgoing requests are retransmitted until the
// peer acknowledges them, incoming requests are deduplicated before they reach
// the host application and are acknowledged every time they arrive.
//
// Five tasks run for the lifetime of a Messenger: the advertise loop, announce
// processing, in-link data, out-link data and the command queue.
package messenger

import (
	"context"
	"sync"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/sync/errgroup"

	"github.com/ZentaChain/zentalk-messenger/pkg/identity"
	"github.com/ZentaChain/zentalk-messenger/pkg/protocol"
	"github.com/ZentaChain/zentalk-messenger/pkg/transport"
)

var log = logging.Logger("messenger")

// Messenger is a running protocol engine
type Messenger struct {
	cfg       Config
	identity  *identity.Identity
	contact   protocol.ContactData
	dest      *transport.Destination
	transport transport.Transport

	platformMu sync.Mutex
	platform   Platform

	// mu guards knownIDs and links
	mu       sync.Mutex
	knownIDs *CacheSet[string]
	links    map[transport.LinkID]identity.Address

	acks     *AckManager[string]
	commands chan *commandRequest

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
}

// New registers the contact destination on t and starts the protocol tasks.
// The messenger runs until Close is called or ctx is cancelled.
func New(ctx context.Context, t transport.Transport, id *identity.Identity, contact protocol.ContactData, platform Platform, cfg Config) (*Messenger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dest := transport.NewDestination(id, ContactDestinationName)
	if err := t.AddDestination(dest); err != nil {
		return nil, err
	}

	mctx, cancel := context.WithCancel(ctx)
	group, gctx := errgroup.WithContext(mctx)

	m := &Messenger{
		cfg:       cfg,
		identity:  id,
		contact:   contact,
		dest:      dest,
		transport: t,
		platform:  platform,
		knownIDs:  NewCacheSet[string](cfg.KnownIDsCapacity),
		links:     make(map[transport.LinkID]identity.Address),
		acks:      NewAckManager[string](),
		commands:  make(chan *commandRequest, cfg.CommandQueueDepth),
		ctx:       gctx,
		cancel:    cancel,
		group:     group,
	}

	// subscribe before the tasks start so no event is missed
	announces := t.Announces(gctx)
	inEvents := t.InLinkEvents(gctx)
	outEvents := t.OutLinkEvents(gctx)

	group.Go(func() error { return m.advertiseTask(gctx) })
	group.Go(func() error { return m.announceTask(gctx, announces) })
	group.Go(func() error { return m.inLinkTask(gctx, inEvents) })
	group.Go(func() error { return m.outLinkTask(gctx, outEvents) })
	group.Go(func() error { return m.commandTask(gctx) })

	log.Infof("✅ messenger started: contact '%s' at %s", contact.Name, dest.Address)
	return m, nil
}

// Address returns the contact destination address
func (m *Messenger) Address() identity.Address {
	return m.dest.Address
}

// Contact returns the announced profile
func (m *Messenger) Contact() protocol.ContactData {
	return m.contact
}

// Creds exports the contact identity
func (m *Messenger) Creds() (identity.Creds, error) {
	return m.identity.Creds(ContactDestinationName)
}

// MDU returns the transport frame size
func (m *Messenger) MDU() int {
	return m.transport.MDU()
}

// Send queues a command and waits for its outcome. Requests return nil once the
// peer acknowledged them, ErrTimeout when the retry budget is exhausted.
// Broadcasts and audio frames return as soon as they were handed to the transport.
func (m *Messenger) Send(ctx context.Context, cmd Command) error {
	if cmd.event == nil {
		return ErrInvalidCommand
	}

	req := &commandRequest{ctx: ctx, cmd: cmd, result: make(chan error, 1)}

	select {
	case m.commands <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.ctx.Done():
		return ErrClosed
	}

	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-m.ctx.Done():
		return ErrClosed
	}
}

// Announce sends a contact announce immediately
func (m *Messenger) Announce(ctx context.Context) error {
	data, err := protocol.Marshal(protocol.AnnounceData{Contact: m.contact})
	if err != nil {
		return err
	}
	return m.transport.SendAnnounce(ctx, m.dest, data)
}

// Close stops all tasks and waits for them to exit
func (m *Messenger) Close() error {
	m.cancel()
	err := m.group.Wait()
	log.Infof("messenger %s stopped", m.dest.Address.Short())
	return err
}

// markKnown reports whether id is seen for the first time
func (m *Messenger) markKnown(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.knownIDs.Insert(id)
}

func (m *Messenger) bindLink(link transport.LinkID, addr identity.Address) {
	m.mu.Lock()
	m.links[link] = addr
	m.mu.Unlock()
}

func (m *Messenger) unbindLink(link transport.LinkID) {
	m.mu.Lock()
	delete(m.links, link)
	m.mu.Unlock()
}

// linkFor returns an in-link bound to addr by a ContactConnect
func (m *Messenger) linkFor(addr identity.Address, except transport.LinkID) (transport.LinkID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for link, a := range m.links {
		if a == addr && link != except {
			return link, true
		}
	}
	return "", false
}

// deliver hands an event to the platform
func (m *Messenger) deliver(event protocol.Event) {
	m.platformMu.Lock()
	defer m.platformMu.Unlock()

	switch e := event.(type) {
	case *protocol.FileChunk:
		m.platform.ReceiveFileChunk(e.Address, e.FileID, e.Data)
	case *protocol.Broadcast:
		m.platform.ReceiveBroadcast(e.Address, e.ID, e.Topic, e.Data)
	case *protocol.CallAudioData:
		m.platform.FeedAudio(e.Address, e.CallID, e.Data)
	default:
		m.platform.SendEvent(event)
	}
}

func (m *Messenger) requestFileChunk(address, fileID string, chunkSize int) {
	go m.platform.RequestFileChunk(address, fileID, chunkSize)
}
