// Package transport defines the mesh transport the messenger runs on.
//
// A transport carries opaque payloads between destinations over links. Links
// are directional relative to the local node: an out-link was opened by us,
// an in-link was opened by a peer toward one of our destinations. Delivery is
// best effort: payloads may be lost, duplicated or reordered.
package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/ZentaChain/zentalk-messenger/pkg/identity"
)

var (
	ErrNoLink             = errors.New("no active link")
	ErrClosed             = errors.New("transport closed")
	ErrUnknownDestination = errors.New("unknown destination")
)

// LinkID identifies one link on the local node
type LinkID string

// LinkEventKind tells what happened on a link
type LinkEventKind int

const (
	LinkData LinkEventKind = iota
	LinkActivated
	LinkClosed
)

func (k LinkEventKind) String() string {
	switch k {
	case LinkData:
		return "data"
	case LinkActivated:
		return "activated"
	case LinkClosed:
		return "closed"
	default:
		return fmt.Sprintf("LinkEventKind(%d)", int(k))
	}
}

// LinkEvent is emitted on the in-link and out-link streams.
// Address is the local destination for in-links and the remote one for out-links.
type LinkEvent struct {
	LinkID  LinkID
	Address identity.Address
	Kind    LinkEventKind
	Data    []byte
}

// Destination is a local addressable endpoint
type Destination struct {
	Address  identity.Address
	Name     identity.DestinationName
	Identity *identity.Identity
}

// NewDestination derives the destination of id under name
func NewDestination(id *identity.Identity, name identity.DestinationName) *Destination {
	return &Destination{
		Address:  id.Address(name),
		Name:     name,
		Identity: id,
	}
}

// Descriptor describes a remote destination learned from an announce.
// Route is transport specific routing information.
type Descriptor struct {
	Address   identity.Address
	Name      identity.DestinationName
	PublicKey []byte
	Route     string
}

// Announce is a received destination announcement
type Announce struct {
	Destination Descriptor
	AppData     []byte
}

// Transport is the mesh transport contract consumed by the messenger
type Transport interface {
	// AddDestination registers a local destination so peers can link to it
	AddDestination(dest *Destination) error

	// Link opens a link to a remote destination or returns the existing one
	Link(ctx context.Context, desc Descriptor) (LinkID, error)

	// SendToOutLinks sends payload over every out-link to address
	SendToOutLinks(ctx context.Context, address identity.Address, payload []byte) error

	// SendToInLinks sends payload over every in-link attached to the local destination address
	SendToInLinks(ctx context.Context, address identity.Address, payload []byte) error

	// SendToAllOutLinks sends payload over every active out-link
	SendToAllOutLinks(ctx context.Context, payload []byte) error

	// SendToLink sends payload over a single link in either direction
	SendToLink(ctx context.Context, link LinkID, payload []byte) error

	// SendAnnounce announces a local destination with optional app data
	SendAnnounce(ctx context.Context, dest *Destination, appData []byte) error

	// Announces streams received announces until ctx is done or the transport closes
	Announces(ctx context.Context) <-chan Announce

	// InLinkEvents streams events of peer-opened links
	InLinkEvents(ctx context.Context) <-chan LinkEvent

	// OutLinkEvents streams events of locally opened links
	OutLinkEvents(ctx context.Context) <-chan LinkEvent

	// MDU is the maximum payload size of one frame
	MDU() int

	Close() error
}
