package storage

import (
	"database/sql"
	"errors"
)

// SaveContact adds a contact or refreshes its name and last seen time
func (db *MessageDB) SaveContact(contact *Contact) error {
	query := `
		INSERT INTO contacts (address, name, first_seen, last_seen)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			name = excluded.name,
			last_seen = excluded.last_seen
	`

	firstSeen := contact.FirstSeen
	if firstSeen == 0 {
		firstSeen = contact.LastSeen
	}

	_, err := db.db.Exec(query, contact.Address, contact.Name, firstSeen, contact.LastSeen)
	return err
}

// GetContact retrieves a contact by address
func (db *MessageDB) GetContact(address string) (*Contact, error) {
	row := db.db.QueryRow(`SELECT address, name, first_seen, last_seen FROM contacts WHERE address = ?`, address)

	var c Contact
	err := row.Scan(&c.Address, &c.Name, &c.FirstSeen, &c.LastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetAllContacts retrieves all contacts ordered by name
func (db *MessageDB) GetAllContacts() ([]*Contact, error) {
	rows, err := db.db.Query(`SELECT address, name, first_seen, last_seen FROM contacts ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []*Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.Address, &c.Name, &c.FirstSeen, &c.LastSeen); err != nil {
			return nil, err
		}
		contacts = append(contacts, &c)
	}
	return contacts, rows.Err()
}

// DeleteContact removes a contact
func (db *MessageDB) DeleteContact(address string) error {
	_, err := db.db.Exec(`DELETE FROM contacts WHERE address = ?`, address)
	return err
}
