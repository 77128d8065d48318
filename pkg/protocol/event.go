package protocol

// EventType is the discriminant of an Event variant
type EventType string

const (
	TypeContactFound   EventType = "ContactFound"
	TypeMessage        EventType = "Message"
	TypeAcknowledge    EventType = "Acknowledge"
	TypeFileStart      EventType = "FileStart"
	TypeFileChunk      EventType = "FileChunk"
	TypeContactConnect EventType = "ContactConnect"
	TypeChatCreate     EventType = "ChatCreate"
	TypeBroadcast      EventType = "Broadcast"
	TypeCallInvoke     EventType = "CallInvoke"
	TypeCallAnswer     EventType = "CallAnswer"
	TypeCallReject     EventType = "CallReject"
	TypeCallAudioData  EventType = "CallAudioData"
)

// AcknowledgeKind tells which logical operation an Acknowledge confirms.
// It is informational only.
type AcknowledgeKind string

const (
	AckGeneric    AcknowledgeKind = "Generic"
	AckMessage    AcknowledgeKind = "Message"
	AckChat       AcknowledgeKind = "Chat"
	AckFileStart  AcknowledgeKind = "FileStart"
	AckFileChunk  AcknowledgeKind = "FileChunk"
	AckCallInvoke AcknowledgeKind = "CallInvoke"
	AckCallAnswer AcknowledgeKind = "CallAnswer"
	AckCallReject AcknowledgeKind = "CallReject"
)

// Event is one protocol message
type Event interface {
	// Type returns the variant discriminant
	Type() EventType
	// EventID is the dedup and correlation key
	EventID() string
	// PeerAddress is the sender or target contact address
	PeerAddress() string
	SetPeerAddress(address string)
	// AckKind is the kind carried by the Acknowledge answering this event
	AckKind() AcknowledgeKind
}

// ContactData is the profile announced by a messenger
type ContactData struct {
	Name string `json:"name"`
}

// AnnounceData is the application payload attached to announces
type AnnounceData struct {
	Contact ContactData `json:"contact"`
}

// Contact is a discovered peer
type Contact struct {
	Address string      `json:"address"`
	Contact ContactData `json:"contact"`
}

type Message struct {
	ID        string `json:"id"`
	ChatID    string `json:"chat_id"`
	Address   string `json:"address"`
	Timestamp int64  `json:"timestamp"`
	Text      string `json:"text"`
}

type Acknowledge struct {
	ID   string          `json:"id"`
	Kind AcknowledgeKind `json:"kind"`
}

type FileStart struct {
	ID        string `json:"id"`
	ChatID    string `json:"chat_id"`
	Address   string `json:"address"`
	Timestamp int64  `json:"timestamp"`
	FileID    string `json:"file_id"`
	FileName  string `json:"file_name"`
	FileSize  uint64 `json:"file_size"`
}

type FileChunk struct {
	ID      string `json:"id"`
	ChatID  string `json:"chat_id"`
	Address string `json:"address"`
	FileID  string `json:"file_id"`
	Data    []byte `json:"data"`
}

// ContactConnect announces the sender address over a freshly opened link
type ContactConnect struct {
	Address string `json:"address"`
}

type ChatCreate struct {
	ChatID   string `json:"chat_id"`
	ChatName string `json:"chat_name"`
	Address  string `json:"address"`
}

type Broadcast struct {
	ID      string `json:"id"`
	Address string `json:"address"`
	Topic   string `json:"topic"`
	Data    []byte `json:"data"`
}

type CallInvoke struct {
	ID      string `json:"id"`
	CallID  string `json:"call_id"`
	Address string `json:"address"`
}

type CallAnswer struct {
	ID      string `json:"id"`
	CallID  string `json:"call_id"`
	Address string `json:"address"`
}

type CallReject struct {
	ID      string `json:"id"`
	CallID  string `json:"call_id"`
	Address string `json:"address"`
}

type CallAudioData struct {
	Address string `json:"address"`
	CallID  string `json:"call_id"`
	Data    []byte `json:"data"`
}

func (*Contact) Type() EventType { return TypeContactFound }
func (e *Contact) EventID() string { return e.Address }
func (e *Contact) PeerAddress() string { return e.Address }
func (e *Contact) SetPeerAddress(a string) { e.Address = a }
func (*Contact) AckKind() AcknowledgeKind { return AckGeneric }

func (*Message) Type() EventType { return TypeMessage }
func (e *Message) EventID() string { return e.ID }
func (e *Message) PeerAddress() string { return e.Address }
func (e *Message) SetPeerAddress(a string) { e.Address = a }
func (*Message) AckKind() AcknowledgeKind { return AckMessage }

// Acknowledge carries no address; the receiving link identifies the peer.
func (*Acknowledge) Type() EventType { return TypeAcknowledge }
func (e *Acknowledge) EventID() string { return e.ID }
func (*Acknowledge) PeerAddress() string { return "" }
func (*Acknowledge) SetPeerAddress(string) {}
func (*Acknowledge) AckKind() AcknowledgeKind { return AckGeneric }

func (*FileStart) Type() EventType { return TypeFileStart }
func (e *FileStart) EventID() string { return e.ID }
func (e *FileStart) PeerAddress() string { return e.Address }
func (e *FileStart) SetPeerAddress(a string) { e.Address = a }
func (*FileStart) AckKind() AcknowledgeKind { return AckFileStart }

func (*FileChunk) Type() EventType { return TypeFileChunk }
func (e *FileChunk) EventID() string { return e.ID }
func (e *FileChunk) PeerAddress() string { return e.Address }
func (e *FileChunk) SetPeerAddress(a string) { e.Address = a }
func (*FileChunk) AckKind() AcknowledgeKind { return AckFileChunk }

func (*ContactConnect) Type() EventType { return TypeContactConnect }
func (e *ContactConnect) EventID() string { return e.Address }
func (e *ContactConnect) PeerAddress() string { return e.Address }
func (e *ContactConnect) SetPeerAddress(a string) { e.Address = a }
func (*ContactConnect) AckKind() AcknowledgeKind { return AckGeneric }

func (*ChatCreate) Type() EventType { return TypeChatCreate }
func (e *ChatCreate) EventID() string { return e.ChatID }
func (e *ChatCreate) PeerAddress() string { return e.Address }
func (e *ChatCreate) SetPeerAddress(a string) { e.Address = a }
func (*ChatCreate) AckKind() AcknowledgeKind { return AckChat }

func (*Broadcast) Type() EventType { return TypeBroadcast }
func (e *Broadcast) EventID() string { return e.ID }
func (e *Broadcast) PeerAddress() string { return e.Address }
func (e *Broadcast) SetPeerAddress(a string) { e.Address = a }
func (*Broadcast) AckKind() AcknowledgeKind { return AckGeneric }

func (*CallInvoke) Type() EventType { return TypeCallInvoke }
func (e *CallInvoke) EventID() string { return e.ID }
func (e *CallInvoke) PeerAddress() string { return e.Address }
func (e *CallInvoke) SetPeerAddress(a string) { e.Address = a }
func (*CallInvoke) AckKind() AcknowledgeKind { return AckCallInvoke }

func (*CallAnswer) Type() EventType { return TypeCallAnswer }
func (e *CallAnswer) EventID() string { return e.ID }
func (e *CallAnswer) PeerAddress() string { return e.Address }
func (e *CallAnswer) SetPeerAddress(a string) { e.Address = a }
func (*CallAnswer) AckKind() AcknowledgeKind { return AckCallAnswer }

func (*CallReject) Type() EventType { return TypeCallReject }
func (e *CallReject) EventID() string { return e.ID }
func (e *CallReject) PeerAddress() string { return e.Address }
func (e *CallReject) SetPeerAddress(a string) { e.Address = a }
func (*CallReject) AckKind() AcknowledgeKind { return AckCallReject }

func (*CallAudioData) Type() EventType { return TypeCallAudioData }
func (e *CallAudioData) EventID() string { return e.CallID }
func (e *CallAudioData) PeerAddress() string { return e.Address }
func (e *CallAudioData) SetPeerAddress(a string) { e.Address = a }
func (*CallAudioData) AckKind() AcknowledgeKind { return AckGeneric }

// IsRequest reports whether the event must be acknowledged by its receiver
func IsRequest(e Event) bool {
	switch e.Type() {
	case TypeMessage, TypeChatCreate, TypeFileStart, TypeFileChunk,
		TypeCallInvoke, TypeCallAnswer, TypeCallReject:
		return true
	}
	return false
}
