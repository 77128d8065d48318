package storage

// StoredBroadcast is a received broadcast
type StoredBroadcast struct {
	ID         string `json:"id"`
	Address    string `json:"address"`
	Topic      string `json:"topic"`
	Data       []byte `json:"data"`
	ReceivedAt int64  `json:"received_at"`
}

// SaveBroadcast stores a broadcast once
func (db *MessageDB) SaveBroadcast(b *StoredBroadcast) error {
	query := `
		INSERT INTO broadcasts (id, address, topic, data, received_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`
	_, err := db.db.Exec(query, b.ID, b.Address, b.Topic, b.Data, b.ReceivedAt)
	return err
}

// GetBroadcasts returns the latest broadcasts of a topic, or of all topics when topic is empty
func (db *MessageDB) GetBroadcasts(topic string, limit int) ([]*StoredBroadcast, error) {
	query := `
		SELECT id, address, topic, data, received_at FROM broadcasts
		WHERE ? = '' OR topic = ?
		ORDER BY received_at DESC
		LIMIT ?
	`

	rows, err := db.db.Query(query, topic, topic, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*StoredBroadcast
	for rows.Next() {
		var b StoredBroadcast
		if err := rows.Scan(&b.ID, &b.Address, &b.Topic, &b.Data, &b.ReceivedAt); err != nil {
			return nil, err
		}
		out = append(out, &b)
	}
	return out, rows.Err()
}
