package storage

import (
	"database/sql"
	"errors"
)

// SaveChat creates a chat; an existing chat keeps its metadata
func (db *MessageDB) SaveChat(chat *Chat) error {
	query := `
		INSERT INTO chats (chat_id, chat_name, contact_address, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			chat_name = CASE WHEN excluded.chat_name != '' THEN excluded.chat_name ELSE chats.chat_name END
	`
	_, err := db.db.Exec(query, chat.ChatID, chat.ChatName, chat.ContactAddress, chat.CreatedAt)
	return err
}

// updateChat updates chat metadata after a new message
func (db *MessageDB) updateChat(msg *StoredMessage) error {
	query := `
		INSERT INTO chats (
			chat_id, chat_name, contact_address, created_at,
			last_message_id, last_message, last_timestamp, unread_count
		) VALUES (?, '', ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			last_message_id = excluded.last_message_id,
			last_message = excluded.last_message,
			last_timestamp = excluded.last_timestamp,
			unread_count = CASE
				WHEN ? = 0 THEN chats.unread_count + 1
				ELSE chats.unread_count
			END
	`

	unread := 1 - boolToInt(msg.IsOutgoing)
	_, err := db.db.Exec(
		query,
		msg.ChatID,
		otherParty(msg),
		msg.Timestamp,
		msg.MessageID,
		preview(msg.Text),
		msg.Timestamp,
		unread,
		boolToInt(msg.IsOutgoing),
	)
	return err
}

const chatColumns = `
	chat_id, chat_name, contact_address, created_at,
	COALESCE(last_message_id, ''), COALESCE(last_message, ''),
	COALESCE(last_timestamp, 0), unread_count
`

func scanChat(scan func(dest ...any) error) (*Chat, error) {
	var c Chat
	err := scan(&c.ChatID, &c.ChatName, &c.ContactAddress, &c.CreatedAt,
		&c.LastMessageID, &c.LastMessage, &c.LastTimestamp, &c.UnreadCount)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetChat retrieves a chat by id
func (db *MessageDB) GetChat(chatID string) (*Chat, error) {
	chat, err := scanChat(db.db.QueryRow(`SELECT `+chatColumns+` FROM chats WHERE chat_id = ?`, chatID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return chat, err
}

// GetChats retrieves all chats, most recent first
func (db *MessageDB) GetChats() ([]*Chat, error) {
	rows, err := db.db.Query(`SELECT ` + chatColumns + ` FROM chats ORDER BY COALESCE(last_timestamp, created_at) DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []*Chat
	for rows.Next() {
		chat, err := scanChat(rows.Scan)
		if err != nil {
			return nil, err
		}
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}

// MarkChatRead resets the unread counter
func (db *MessageDB) MarkChatRead(chatID string) error {
	_, err := db.db.Exec(`UPDATE chats SET unread_count = 0 WHERE chat_id = ?`, chatID)
	return err
}
