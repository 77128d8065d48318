package bridge

import (
	"context"
	"fmt"

	"github.com/ZentaChain/zentalk-messenger/pkg/messenger"
	"github.com/ZentaChain/zentalk-messenger/pkg/protocol"
	"github.com/ZentaChain/zentalk-messenger/pkg/storage"
)

// SendMessage stores msg as outgoing and sends it. The stored status follows the
// delivery result. Empty id and timestamp are filled in place.
func (b *Bridge) SendMessage(ctx context.Context, msg *protocol.Message) (*storage.StoredMessage, error) {
	sender, err := b.attached()
	if err != nil {
		return nil, err
	}

	protocol.FillIDs(msg)

	stored := &storage.StoredMessage{
		MessageID:   msg.ID,
		ChatID:      msg.ChatID,
		FromAddress: sender.Address().String(),
		ToAddress:   msg.Address,
		Text:        msg.Text,
		Timestamp:   msg.Timestamp,
		Status:      storage.MessageStatusSending,
		IsOutgoing:  true,
	}
	if err := b.db.SaveMessage(stored); err != nil {
		return nil, err
	}

	sendErr := sender.Send(ctx, messenger.SendMessage(*msg))

	stored.Status = storage.MessageStatusDelivered
	if sendErr != nil {
		stored.Status = storage.MessageStatusFailed
		log.Warnf("⚠️  message %s to %s failed: %v", msg.ID, msg.Address, sendErr)
	}
	if err := b.db.UpdateMessageStatus(msg.ID, stored.Status); err != nil {
		log.Errorf("❌ failed to update status of %s: %v", msg.ID, err)
	}

	return stored, sendErr
}

// CreateChat sends a chat invitation and stores the chat once accepted
func (b *Bridge) CreateChat(ctx context.Context, chat *protocol.ChatCreate) error {
	if err := b.dispatch(ctx, chat); err != nil {
		return err
	}

	return b.db.SaveChat(&storage.Chat{
		ChatID:         chat.ChatID,
		ChatName:       chat.ChatName,
		ContactAddress: chat.Address,
		CreatedAt:      protocol.NowUnixMilli(),
	})
}

// Dispatch sends a command decoded from the host. Files go through SendFile
// because the chunk pump needs the local file.
func (b *Bridge) Dispatch(ctx context.Context, event protocol.Event) error {
	switch e := event.(type) {
	case *protocol.Message:
		_, err := b.SendMessage(ctx, e)
		return err
	case *protocol.ChatCreate:
		return b.CreateChat(ctx, e)
	case *protocol.FileStart, *protocol.FileChunk:
		return fmt.Errorf("%w: %s must be sent as a file upload", messenger.ErrInvalidCommand, event.Type())
	default:
		return b.dispatch(ctx, event)
	}
}

// dispatch fills the generated ids of event and sends a copy of it
func (b *Bridge) dispatch(ctx context.Context, event protocol.Event) error {
	sender, err := b.attached()
	if err != nil {
		return err
	}

	protocol.FillIDs(event)
	cmd, err := messenger.NewCommand(event)
	if err != nil {
		return err
	}
	return sender.Send(ctx, cmd)
}
