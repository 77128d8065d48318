package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/ZentaChain/zentalk-messenger/pkg/crypto"
)

// SaveMessage stores a message. Saving an already stored message id is a no-op.
func (db *MessageDB) SaveMessage(msg *StoredMessage) error {
	encryptedContent, err := crypto.AESEncrypt([]byte(msg.Text), db.encryptionKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt content: %w", err)
	}

	query := `
		INSERT INTO messages (
			message_id, chat_id, from_address, to_address,
			content, timestamp, status, is_outgoing
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(message_id) DO NOTHING
	`

	result, err := db.db.Exec(
		query,
		msg.MessageID,
		msg.ChatID,
		msg.FromAddress,
		msg.ToAddress,
		encryptedContent,
		msg.Timestamp,
		msg.Status,
		boolToInt(msg.IsOutgoing),
	)
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return nil
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	msg.ID = id

	if err := db.updateChat(msg); err != nil {
		return fmt.Errorf("failed to update chat: %w", err)
	}
	return nil
}

const messageColumns = `
	id, message_id, chat_id, from_address, to_address,
	content, timestamp, status, is_outgoing
`

func (db *MessageDB) scanMessage(scan func(dest ...any) error) (*StoredMessage, error) {
	var msg StoredMessage
	var encryptedContent []byte
	var isOutgoing int

	err := scan(
		&msg.ID,
		&msg.MessageID,
		&msg.ChatID,
		&msg.FromAddress,
		&msg.ToAddress,
		&encryptedContent,
		&msg.Timestamp,
		&msg.Status,
		&isOutgoing,
	)
	if err != nil {
		return nil, err
	}

	msg.IsOutgoing = intToBool(isOutgoing)

	content, err := crypto.AESDecrypt(encryptedContent, db.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt content: %w", err)
	}
	msg.Text = string(content)

	return &msg, nil
}

// GetMessage retrieves a message by its protocol id
func (db *MessageDB) GetMessage(messageID string) (*StoredMessage, error) {
	msg, err := db.scanMessage(db.db.QueryRow(`SELECT `+messageColumns+` FROM messages WHERE message_id = ?`, messageID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return msg, err
}

// GetChatMessages retrieves messages of a chat, newest first
func (db *MessageDB) GetChatMessages(chatID string, limit, offset int) ([]*StoredMessage, error) {
	query := `SELECT ` + messageColumns + `
		FROM messages
		WHERE chat_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := db.db.Query(query, chatID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*StoredMessage
	for rows.Next() {
		msg, err := db.scanMessage(rows.Scan)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// UpdateMessageStatus updates the delivery status of a message
func (db *MessageDB) UpdateMessageStatus(messageID string, status MessageStatus) error {
	result, err := db.db.Exec(`UPDATE messages SET status = ? WHERE message_id = ?`, status, messageID)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteMessage deletes a message
func (db *MessageDB) DeleteMessage(messageID string) error {
	_, err := db.db.Exec(`DELETE FROM messages WHERE message_id = ?`, messageID)
	return err
}
