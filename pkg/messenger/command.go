package messenger

import (
	"context"
	"fmt"

	"github.com/ZentaChain/zentalk-messenger/pkg/protocol"
)

// Command is a request from the local client. The event address names the target peer.
type Command struct {
	event protocol.Event
}

// Event returns the event carried by the command
func (c Command) Event() protocol.Event {
	return c.event
}

func SendMessage(msg protocol.Message) Command { return Command{event: &msg} }
func CreateChat(chat protocol.ChatCreate) Command { return Command{event: &chat} }
func SendFileStart(file protocol.FileStart) Command { return Command{event: &file} }
func SendFileChunk(chunk protocol.FileChunk) Command { return Command{event: &chunk} }
func SendBroadcast(b protocol.Broadcast) Command { return Command{event: &b} }
func InvokeCall(call protocol.CallInvoke) Command { return Command{event: &call} }
func AnswerCall(call protocol.CallAnswer) Command { return Command{event: &call} }
func RejectCall(call protocol.CallReject) Command { return Command{event: &call} }
func SendCallAudio(audio protocol.CallAudioData) Command { return Command{event: &audio} }

// NewCommand wraps a copy of an event decoded from the host application
func NewCommand(event protocol.Event) (Command, error) {
	switch e := event.(type) {
	case *protocol.Message:
		return SendMessage(*e), nil
	case *protocol.ChatCreate:
		return CreateChat(*e), nil
	case *protocol.FileStart:
		return SendFileStart(*e), nil
	case *protocol.FileChunk:
		return SendFileChunk(*e), nil
	case *protocol.Broadcast:
		return SendBroadcast(*e), nil
	case *protocol.CallInvoke:
		return InvokeCall(*e), nil
	case *protocol.CallAnswer:
		return AnswerCall(*e), nil
	case *protocol.CallReject:
		return RejectCall(*e), nil
	case *protocol.CallAudioData:
		return SendCallAudio(*e), nil
	case nil:
		return Command{}, fmt.Errorf("%w: nil event", ErrInvalidCommand)
	default:
		return Command{}, fmt.Errorf("%w: %s", ErrInvalidCommand, event.Type())
	}
}

type commandRequest struct {
	ctx    context.Context
	cmd    Command
	result chan error
}
