// Package protocol defines the ZenTalk messenger event model and its encodings.
//
// # Events
//
// Every message exchanged between two messengers is an Event. Events form a
// closed set of variants, each identified by an EventType discriminant:
//
//   - ContactFound: a peer was discovered through its announce
//   - Message: a chat text message
//   - Acknowledge: confirms receipt of a request event by id
//   - FileStart/FileChunk: file transfer header and payload chunks
//   - ContactConnect: tells a peer which address owns a link
//   - ChatCreate: opens a chat on the remote side
//   - Broadcast: best-effort fan-out to every linked peer
//   - CallInvoke/CallAnswer/CallReject: call signaling
//   - CallAudioData: real-time audio frames
//
// Each variant exposes an identifier used both for deduplication and for
// acknowledgment correlation, and a peer address that the sender rewrites to
// its own contact address before transmission.
//
// # Encodings
//
// On the wire events are MessagePack maps of the form {"type": ..., "data": {...}}.
// Towards the host application the same shape is produced as JSON.
//
//	payload, err := protocol.Encode(&protocol.Message{
//	    ID:     protocol.NewID(),
//	    ChatID: chatID,
//	    Text:   "Hello!",
//	})
//
//	event, err := protocol.Decode(payload)
package protocol
