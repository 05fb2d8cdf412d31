// Package persist stores filesystem snapshots as JSON. The on-disk layout
// matches the node wire format, so a snapshot file is also the payload a
// frontend would keep in its own storage.
package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/deskfs/deskfs/config"
	"github.com/deskfs/deskfs/filesystem"
)

// ErrNotFound is returned by Load when no snapshot has been saved yet.
var ErrNotFound = errors.New("no stored snapshot")

// Snapshot is everything that survives a restart. Key identifies the
// payload as ours; Load refuses files carrying a different key.
type Snapshot struct {
	Key          string            `json:"key"`
	Version      int               `json:"version"`
	Root         *filesystem.Node  `json:"root"`
	TrashOrigins map[string]string `json:"trashOrigins,omitempty"`
}

// Store loads and saves snapshots.
type Store interface {
	Load() (*Snapshot, error)
	Save(*Snapshot) error
}

// FileStore keeps the snapshot in a single JSON file, written atomically
// via a rename so a crash mid-save never truncates the previous snapshot.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (s *FileStore) Load() (*Snapshot, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", s.Path, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot %s: %w", s.Path, err)
	}
	if snap.Key != config.StorageKey {
		return nil, fmt.Errorf("snapshot %s has key %q, want %q", s.Path, snap.Key, config.StorageKey)
	}
	return &snap, nil
}

func (s *FileStore) Save(snap *Snapshot) error {
	out := *snap
	out.Key = config.StorageKey
	data, err := json.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	tmp := s.Path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// MemStore holds the snapshot in memory, for tests and ephemeral runs.
type MemStore struct {
	snap *Snapshot
}

func NewMemStore() *MemStore {
	return &MemStore{}
}

func (s *MemStore) Load() (*Snapshot, error) {
	if s.snap == nil {
		return nil, ErrNotFound
	}
	return s.snap, nil
}

func (s *MemStore) Save(snap *Snapshot) error {
	s.snap = snap
	return nil
}
