package storage

import (
	"database/sql"
	"errors"
)

// FileStatus tracks a file transfer
type FileStatus string

const (
	FileStatusTransferring FileStatus = "transferring"
	FileStatusComplete     FileStatus = "complete"
	FileStatusFailed       FileStatus = "failed"
)

// FileTransfer is the metadata of an incoming or outgoing file
type FileTransfer struct {
	FileID      string     `json:"file_id"`
	ChatID      string     `json:"chat_id"`
	Address     string     `json:"address"`
	FileName    string     `json:"file_name"`
	FileSize    int64      `json:"file_size"`
	Path        string     `json:"-"`
	Transferred int64      `json:"transferred"`
	IsOutgoing  bool       `json:"is_outgoing"`
	Status      FileStatus `json:"status"`
	Timestamp   int64      `json:"timestamp"`
}

// SaveFile records a new transfer
func (db *MessageDB) SaveFile(f *FileTransfer) error {
	query := `
		INSERT INTO files (
			file_id, chat_id, address, file_name, file_size, path,
			transferred, is_outgoing, status, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_id) DO NOTHING
	`
	_, err := db.db.Exec(query, f.FileID, f.ChatID, f.Address, f.FileName, f.FileSize, f.Path,
		f.Transferred, boolToInt(f.IsOutgoing), f.Status, f.Timestamp)
	return err
}

// GetFile retrieves a transfer by file id
func (db *MessageDB) GetFile(fileID string) (*FileTransfer, error) {
	query := `
		SELECT file_id, chat_id, address, file_name, file_size, path,
		       transferred, is_outgoing, status, timestamp
		FROM files WHERE file_id = ?
	`

	var f FileTransfer
	var isOutgoing int
	err := db.db.QueryRow(query, fileID).Scan(&f.FileID, &f.ChatID, &f.Address, &f.FileName, &f.FileSize,
		&f.Path, &f.Transferred, &isOutgoing, &f.Status, &f.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	f.IsOutgoing = intToBool(isOutgoing)
	return &f, nil
}

// AdvanceFile adds n transferred bytes and completes the transfer when all bytes moved
func (db *MessageDB) AdvanceFile(fileID string, n int64) error {
	query := `
		UPDATE files SET
			transferred = transferred + ?,
			status = CASE WHEN transferred + ? >= file_size THEN ? ELSE status END
		WHERE file_id = ?
	`
	result, err := db.db.Exec(query, n, n, FileStatusComplete, fileID)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

// SetFileStatus overrides the status of a transfer
func (db *MessageDB) SetFileStatus(fileID string, status FileStatus) error {
	_, err := db.db.Exec(`UPDATE files SET status = ? WHERE file_id = ?`, status, fileID)
	return err
}
