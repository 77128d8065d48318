package identity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SaveFile writes the creds of id for the destination name to path, readable by the owner only
func SaveFile(path string, id *Identity, name DestinationName) error {
	creds, err := id.Creds(name)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create identity dir: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// LoadFile reads creds written by SaveFile
func LoadFile(path string) (*Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var creds Creds
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}
	return FromHex(creds.Secret)
}

// LoadOrCreateFile loads the identity at path or creates and saves a new one
func LoadOrCreateFile(path string, name DestinationName) (*Identity, bool, error) {
	id, err := LoadFile(path)
	if err == nil {
		return id, false, nil
	}
	if !os.IsNotExist(err) {
		return nil, false, err
	}

	id, err = New()
	if err != nil {
		return nil, false, err
	}
	if err := SaveFile(path, id, name); err != nil {
		return nil, false, err
	}
	return id, true, nil
}
