package messenger

import (
	"github.com/ZentaChain/zentalk-messenger/pkg/protocol"
)

// Platform receives everything the messenger surfaces to the host application.
//
// Calls other than RequestFileChunk are serialized by the messenger. RequestFileChunk
// runs on its own goroutine and may call Messenger.Send to push the next chunk.
type Platform interface {
	// SendEvent delivers a Message, ChatCreate, FileStart, call signaling
	// or ContactFound event
	SendEvent(event protocol.Event)

	FeedAudio(address, callID string, data []byte)

	// RequestFileChunk asks for the next chunk of an outgoing file
	RequestFileChunk(address, fileID string, chunkSize int)

	ReceiveFileChunk(address, fileID string, data []byte)

	ReceiveBroadcast(address, id, topic string, data []byte)
}
