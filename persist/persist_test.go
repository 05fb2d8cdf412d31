package persist

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskfs/deskfs/config"
	"github.com/deskfs/deskfs/filesystem"
)

func sampleSnapshot() *Snapshot {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	root := filesystem.NewDir("/", "root", "root", now)
	root.Children = append(root.Children, filesystem.NewFile("motd", "hello", "root", "root", now))
	return &Snapshot{
		Version:      3,
		Root:         root,
		TrashOrigins: map[string]string{"some-id": "/home/user"},
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "deskfs-state.json")
	store := NewFileStore(path)

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrNotFound)

	snap := sampleSnapshot()
	require.NoError(t, store.Save(snap))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, snap.Version, loaded.Version)
	assert.Equal(t, snap.TrashOrigins, loaded.TrashOrigins)
	assert.Equal(t, "hello", loaded.Root.Child("motd").Content)
}

func TestFileStoreStampsStorageKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := NewFileStore(path)
	require.NoError(t, store.Save(sampleSnapshot()))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, config.StorageKey, loaded.Key)
}

func TestFileStoreRejectsForeignKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"key":"someapp:cache","version":1}`), 0o644))

	_, err := NewFileStore(path).Load()
	assert.ErrorContains(t, err, "key")
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{truncated"), 0o644))

	_, err := NewFileStore(path).Load()
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestMemStore(t *testing.T) {
	store := NewMemStore()

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrNotFound)

	snap := sampleSnapshot()
	require.NoError(t, store.Save(snap))
	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Same(t, snap, loaded)
}

func TestDebouncerCoalesces(t *testing.T) {
	store := NewMemStore()
	var builds atomic.Int32
	d := NewDebouncer(store, 30*time.Millisecond, func() *Snapshot {
		builds.Add(1)
		return sampleSnapshot()
	})

	// a burst of triggers fires once
	for i := 0; i < 10; i++ {
		d.Trigger()
	}
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), builds.Load())

	_, err := store.Load()
	assert.NoError(t, err)
}

func TestDebouncerFlush(t *testing.T) {
	store := NewMemStore()
	var builds atomic.Int32
	d := NewDebouncer(store, time.Hour, func() *Snapshot {
		builds.Add(1)
		return sampleSnapshot()
	})

	d.Trigger()
	d.Flush()
	assert.Equal(t, int32(1), builds.Load(), "flush preempts the pending timer")

	_, err := store.Load()
	assert.NoError(t, err)
}
