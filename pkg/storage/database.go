// Package storage persists what the messenger surfaces to the host: contacts,
// chats, messages, file transfers and broadcasts. Message bodies are encrypted at rest.
package storage

import (
	"database/sql"
	"errors"
	"fmt"

	logging "github.com/ipfs/go-log/v2"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ZentaChain/zentalk-messenger/pkg/crypto"
)

var log = logging.Logger("storage")

var (
	ErrNotFound   = errors.New("not found")
	ErrInvalidKey = errors.New("invalid storage key")
)

// MessageStatus represents message delivery status
type MessageStatus string

const (
	MessageStatusSending   MessageStatus = "sending"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusReceived  MessageStatus = "received"
	MessageStatusFailed    MessageStatus = "failed"
)

// storageKeyContext separates the at-rest key from other uses of the secret
const storageKeyContext = "zentalk-messenger storage v1"

// MessageDB manages encrypted local message storage
type MessageDB struct {
	db            *sql.DB
	encryptionKey []byte
}

// StoredMessage represents a message in the database
type StoredMessage struct {
	ID          int64         `json:"-"`
	MessageID   string        `json:"id"`
	ChatID      string        `json:"chat_id"`
	FromAddress string        `json:"from_address"`
	ToAddress   string        `json:"to_address"`
	Text        string        `json:"text"`
	Timestamp   int64         `json:"timestamp"`
	Status      MessageStatus `json:"status"`
	IsOutgoing  bool          `json:"is_outgoing"`
}

// Contact represents a discovered contact
type Contact struct {
	Address   string `json:"address"`
	Name      string `json:"name"`
	FirstSeen int64  `json:"first_seen"`
	LastSeen  int64  `json:"last_seen"`
}

// Chat represents a chat thread with one contact
type Chat struct {
	ChatID         string `json:"chat_id"`
	ChatName       string `json:"chat_name"`
	ContactAddress string `json:"contact_address"`
	CreatedAt      int64  `json:"created_at"`
	LastMessageID  string `json:"last_message_id,omitempty"`
	LastMessage    string `json:"last_message,omitempty"`
	LastTimestamp  int64  `json:"last_timestamp,omitempty"`
	UnreadCount    int    `json:"unread_count"`
}

// NewMessageDB opens or creates the database at dbPath. The encryption key is
// derived from secret, normally the identity secret.
func NewMessageDB(dbPath string, secret []byte) (*MessageDB, error) {
	if len(secret) == 0 {
		return nil, ErrInvalidKey
	}

	key, err := crypto.DeriveKey(secret, storageKeyContext)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	mdb := &MessageDB{
		db:            db,
		encryptionKey: key,
	}

	if err := mdb.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	log.Debugf("database opened: %s", dbPath)
	return mdb, nil
}

func (db *MessageDB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS contacts (
		address TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		first_seen INTEGER NOT NULL,
		last_seen INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chats (
		chat_id TEXT PRIMARY KEY,
		chat_name TEXT NOT NULL,
		contact_address TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		last_message_id TEXT,
		last_message TEXT,
		last_timestamp INTEGER,
		unread_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id TEXT UNIQUE NOT NULL,
		chat_id TEXT NOT NULL,
		from_address TEXT NOT NULL,
		to_address TEXT NOT NULL,
		content BLOB NOT NULL,
		timestamp INTEGER NOT NULL,
		status TEXT NOT NULL,
		is_outgoing INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS files (
		file_id TEXT PRIMARY KEY,
		chat_id TEXT NOT NULL,
		address TEXT NOT NULL,
		file_name TEXT NOT NULL,
		file_size INTEGER NOT NULL,
		path TEXT NOT NULL,
		transferred INTEGER NOT NULL DEFAULT 0,
		is_outgoing INTEGER NOT NULL,
		status TEXT NOT NULL,
		timestamp INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS broadcasts (
		id TEXT PRIMARY KEY,
		address TEXT NOT NULL,
		topic TEXT NOT NULL,
		data BLOB NOT NULL,
		received_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id, timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_chats_last_timestamp ON chats(last_timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_broadcasts_topic ON broadcasts(topic, received_at DESC);
	`

	if _, err := db.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (db *MessageDB) Close() error {
	return db.db.Close()
}
