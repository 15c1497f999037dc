package state

import (
	"encoding/json"
	"errors"
	"fmt"

	"stayer/storage"
)

var errNilDatabase = errors.New("state: database not configured")

// Manager adapts a raw key-value database to the typed accessors the protocol
// engines expect. Values are stored as JSON so big integers and structs round
// trip without custom codecs.
type Manager struct {
	db storage.Database
}

// NewManager wraps the given database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// KVGet loads the value stored under key into out. The boolean reports whether
// the key existed.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if m == nil || m.db == nil {
		return false, errNilDatabase
	}
	raw, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("state: get %q: %w", key, err)
	}
	if out == nil {
		return true, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return true, nil
}

// KVPut stores value under key, replacing any previous value.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if m == nil || m.db == nil {
		return errNilDatabase
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", key, err)
	}
	if err := m.db.Put(key, raw); err != nil {
		return fmt.Errorf("state: put %q: %w", key, err)
	}
	return nil
}

// KVDelete removes key from the store. Deleting a missing key is not an error.
func (m *Manager) KVDelete(key []byte) error {
	if m == nil || m.db == nil {
		return errNilDatabase
	}
	if err := m.db.Delete(key); err != nil {
		return fmt.Errorf("state: delete %q: %w", key, err)
	}
	return nil
}
