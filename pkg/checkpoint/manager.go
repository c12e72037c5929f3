package checkpoint

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
)

// Manager persists a Store as a single JSON document at a fixed path.
//
// The store is read and rewritten as a whole unit. A single writer is
// assumed: there is no file locking and no multi-process coordination, so
// concurrent runs against the same path produce undefined interleaving.
type Manager struct {
	path string
}

// NewManager creates a manager for the store at path. The file does not
// need to exist yet.
func NewManager(path string) (*Manager, error) {
	if path == "" {
		return nil, fmt.Errorf("checkpoint store path cannot be empty")
	}
	return &Manager{path: path}, nil
}

// Path returns the store file location.
func (m *Manager) Path() string {
	return m.path
}

// Load reads the store from disk. A missing file is not an error: it
// returns an empty store so a first run needs no special casing. A file
// that exists but cannot be parsed is an error.
func (m *Manager) Load() (*Store, error) {
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return NewStore(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint store: %w", err)
	}

	var store Store
	if err := json.Unmarshal(data, &store); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint store (possibly corrupted): %w", err)
	}
	if store.Data == nil {
		store.Data = make(map[string]*RunRecord)
	}
	if store.Version != StoreVersion {
		log.Printf("[WARN] Checkpoint store version %q differs from current %q", store.Version, StoreVersion)
	}
	return &store, nil
}

// Save writes the store to disk atomically (write to a temp file, fsync,
// rename). Interrupting the process mid-save leaves the previous store
// intact.
func (m *Manager) Save(store *Store) error {
	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint store: %w", err)
	}
	if err := WriteAtomic(m.path, data); err != nil {
		return fmt.Errorf("failed to write checkpoint store: %w", err)
	}
	return nil
}
