package checkpoint

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartridge/prioritized-replay/internal/metrics"
	"github.com/cartridge/prioritized-replay/internal/storage"
)

func newBackend(t *testing.T, capacity int) *storage.MemoryBackend {
	t.Helper()
	opts := storage.DefaultOptions()
	opts.Capacity = capacity
	opts.StateShape = []int{3}
	opts.ActionSize = 2
	opts.Seed = 7

	backend, err := storage.NewMemoryBackend(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })
	return backend
}

func fill(t *testing.T, backend storage.Backend, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		v := float32(i)
		require.NoError(t, backend.Push(ctx, storage.Experience{
			State:     storage.NewTensor([]int{3}, []float32{v, v, v}),
			Action:    []float32{v, -v},
			Reward:    0.1,
			NextState: storage.NewTensor([]int{3}, []float32{v + 1, v + 1, v + 1}),
			Done:      i%3 == 0,
		}))
	}
}

func testSnapshot(t *testing.T) *storage.Snapshot {
	t.Helper()
	backend := newBackend(t, 4)
	fill(t, backend, 6)
	require.NoError(t, backend.UpdatePriorities(context.Background(), []int{0, 2}, []float64{3, 0.5}))

	snap, err := backend.Snapshot(context.Background())
	require.NoError(t, err)
	return snap
}

func TestEncodeDecodeSnapshot(t *testing.T) {
	snap := testSnapshot(t)

	decoded, err := DecodeSnapshot(EncodeSnapshot(snap))
	require.NoError(t, err)
	assert.Equal(t, snap, decoded)
}

func TestDecodeSnapshot_Errors(t *testing.T) {
	_, err := DecodeSnapshot(nil)
	assert.ErrorIs(t, err, storage.ErrCorruptRecord)

	data := EncodeSnapshot(testSnapshot(t))

	wrongSchema := append([]byte(nil), data...)
	wrongSchema[0] = CurrentSchemaVersion + 1
	_, err = DecodeSnapshot(wrongSchema)
	assert.ErrorIs(t, err, storage.ErrVersionMismatch)

	_, err = DecodeSnapshot(data[:len(data)-5])
	assert.Error(t, err)
}

func TestDecodeSnapshot_Empty(t *testing.T) {
	backend := newBackend(t, 4)
	snap, err := backend.Snapshot(context.Background())
	require.NoError(t, err)

	decoded, err := DecodeSnapshot(EncodeSnapshot(snap))
	require.NoError(t, err)
	assert.Equal(t, 0, decoded.Size)
	assert.Empty(t, decoded.Records)
}

func storeRoundTrip(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.Init(ctx))
	t.Cleanup(func() { _ = store.Close() })

	_, ok, err := store.Load(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	snap := testSnapshot(t)
	savedAt := time.Unix(1700000000, 0).UTC()
	require.NoError(t, store.Save(ctx, Checkpoint{ID: "run-1", SavedAt: savedAt, Snapshot: snap}))

	cp, ok, err := store.Load(ctx, "run-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "run-1", cp.ID)
	assert.True(t, savedAt.Equal(cp.SavedAt))
	assert.Equal(t, snap, cp.Snapshot)

	// Saving the same ID replaces the checkpoint
	empty := newBackend(t, 4)
	emptySnap, err := empty.Snapshot(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, Checkpoint{ID: "run-1", SavedAt: savedAt, Snapshot: emptySnap}))
	cp, ok, err = store.Load(ctx, "run-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, cp.Snapshot.Size)

	require.NoError(t, store.Delete(ctx, "run-1"))
	_, ok, err = store.Load(ctx, "run-1")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Error(t, store.Save(ctx, Checkpoint{Snapshot: snap}), "empty id")
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	storeRoundTrip(t, NewMemoryStore())
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	storeRoundTrip(t, NewSQLiteStore(filepath.Join(t.TempDir(), "replay.db")))
}

func TestSQLiteStore_NotInitialized(t *testing.T) {
	store := NewSQLiteStore(filepath.Join(t.TempDir(), "replay.db"))
	_, _, err := store.Load(context.Background(), "x")
	assert.Error(t, err)

	assert.Error(t, NewSQLiteStore("").Init(context.Background()))
}

func TestNewStore(t *testing.T) {
	store, err := NewStore("memory", "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	store, err = NewStore("sqlite", "replay.db")
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, store)

	store, err = NewStore("none", "")
	require.NoError(t, err)
	assert.Nil(t, store)

	_, err = NewStore("redis", "")
	assert.Error(t, err)
}

func TestManager_SaveRestore(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.Nop()
	collector := metrics.NewCollector(logger)
	store := NewSQLiteStore(filepath.Join(t.TempDir(), "replay.db"))
	require.NoError(t, store.Init(ctx))
	t.Cleanup(func() { _ = store.Close() })

	source := newBackend(t, 8)
	fill(t, source, 5)
	require.NoError(t, source.UpdatePriorities(ctx, []int{1}, []float64{6}))

	saver := NewManager(store, source, "ckpt", logger, collector)
	assert.Equal(t, "ckpt", saver.ID())
	assert.True(t, saver.Enabled())

	cp, err := saver.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, cp.Snapshot.Size)

	target := newBackend(t, 8)
	restored, err := NewManager(store, target, "ckpt", logger, collector).Restore(ctx)
	require.NoError(t, err)
	assert.True(t, restored)
	assert.Equal(t, 5, target.Len())
	assert.Equal(t, source.MaxPriority(), target.MaxPriority())

	restored, err = NewManager(store, newBackend(t, 8), "other", logger, collector).Restore(ctx)
	require.NoError(t, err)
	assert.False(t, restored)
}

func TestManager_GeneratesID(t *testing.T) {
	logger := zerolog.Nop()
	a := NewManager(NewMemoryStore(), newBackend(t, 2), "", logger, metrics.NewCollector(logger))
	b := NewManager(NewMemoryStore(), newBackend(t, 2), "", logger, metrics.NewCollector(logger))
	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestManager_Disabled(t *testing.T) {
	logger := zerolog.Nop()
	manager := NewManager(nil, newBackend(t, 2), "x", logger, metrics.NewCollector(logger))
	assert.False(t, manager.Enabled())

	restored, err := manager.Restore(context.Background())
	require.NoError(t, err)
	assert.False(t, restored)

	_, err = manager.Save(context.Background())
	assert.ErrorIs(t, err, ErrNoStore)
}

func TestManager_Run(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	logger := zerolog.Nop()
	store := NewMemoryStore()
	require.NoError(t, store.Init(ctx))

	backend := newBackend(t, 4)
	fill(t, backend, 2)
	manager := NewManager(store, backend, "periodic", logger, metrics.NewCollector(logger))

	done := make(chan struct{})
	go func() {
		manager.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		_, ok, err := store.Load(context.Background(), "periodic")
		return err == nil && ok
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
