package storage

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBackend_SnapshotRestore(t *testing.T) {
	ctx := context.Background()
	source := newTestBackend(t, testOptions(4))

	for i := 0; i < 6; i++ {
		require.NoError(t, source.Push(ctx, experience(float32(i), 0.5, i%2 == 0)))
	}
	require.NoError(t, source.UpdatePriorities(ctx, []int{1, 3}, []float64{4, 0.2}))

	snap, err := source.Snapshot(ctx)
	require.NoError(t, err)
	require.NoError(t, snap.Validate())
	assert.Equal(t, 4, snap.Size)
	assert.Equal(t, 2, snap.WriteCursor)
	assert.Equal(t, uint64(6), snap.TotalPushes)
	assert.Len(t, snap.Records, 4)

	// Restore into an uncompressed buffer of the same geometry
	opts := testOptions(4)
	opts.Compress = false
	target := newTestBackend(t, opts)
	require.NoError(t, target.Restore(ctx, snap))

	assert.Equal(t, 4, target.Len())
	assert.Equal(t, source.MaxPriority(), target.MaxPriority())
	assert.Equal(t, source.store.populated(), target.store.populated())
	for i := 0; i < 4; i++ {
		assert.Equal(t, slotTag(t, source, i), slotTag(t, target, i))
	}

	stats, err := target.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.WriteCursor)
	assert.Equal(t, uint64(6), stats.TotalPushes)

	// The next push lands on the restored cursor
	require.NoError(t, target.Push(ctx, experience(42, 0, false)))
	assert.Equal(t, float32(42), slotTag(t, target, 2))
}

func TestMemoryBackend_SnapshotPartialRing(t *testing.T) {
	ctx := context.Background()
	source := newTestBackend(t, testOptions(8))
	for i := 0; i < 3; i++ {
		require.NoError(t, source.Push(ctx, experience(float32(i), 0, false)))
	}

	snap, err := source.Snapshot(ctx)
	require.NoError(t, err)

	target := newTestBackend(t, testOptions(8))
	require.NoError(t, target.Restore(ctx, snap))
	assert.Equal(t, 3, target.Len())

	batch, err := target.Sample(ctx, 3, 0.4)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{0, 1, 2}, batch.Indices)
}

func TestMemoryBackend_RestoreRejectsMismatch(t *testing.T) {
	ctx := context.Background()
	source := newTestBackend(t, testOptions(4))
	require.NoError(t, source.Push(ctx, experience(1, 0, false)))

	snap, err := source.Snapshot(ctx)
	require.NoError(t, err)

	bigger := newTestBackend(t, testOptions(8))
	assert.ErrorIs(t, bigger.Restore(ctx, snap), ErrInvalidCapacity)

	opts := testOptions(4)
	opts.StateShape = []int{1, 2}
	reshaped := newTestBackend(t, opts)
	assert.ErrorIs(t, reshaped.Restore(ctx, snap), ErrShapeMismatch)

	target := newTestBackend(t, testOptions(4))
	assert.Error(t, target.Restore(ctx, nil))

	corrupt := *snap
	corrupt.Records = [][]byte{{CodecVersion}}
	assert.ErrorIs(t, target.Restore(ctx, &corrupt), ErrCorruptRecord)
	assert.Equal(t, 0, target.Len(), "failed restore leaves the buffer untouched")
}

func TestSnapshot_Validate(t *testing.T) {
	valid := Snapshot{Capacity: 4, Size: 2, WriteCursor: 2, Priorities: []float64{1, 1}, Records: [][]byte{{}, {}}}
	require.NoError(t, valid.Validate())

	badCursor := valid
	badCursor.WriteCursor = 3
	assert.ErrorIs(t, badCursor.Validate(), ErrIndexOutOfRange)

	short := valid
	short.Priorities = []float64{1}
	assert.ErrorIs(t, short.Validate(), ErrLengthMismatch)

	negative := valid
	negative.Priorities = []float64{1, -1}
	assert.ErrorIs(t, negative.Validate(), ErrDegeneratePriorities)

	for _, maxPriority := range []float64{math.NaN(), math.Inf(1), -1} {
		badMax := valid
		badMax.MaxPriority = maxPriority
		assert.ErrorIs(t, badMax.Validate(), ErrDegeneratePriorities, "max priority %v", maxPriority)
	}

	empty := Snapshot{}
	assert.ErrorIs(t, empty.Validate(), ErrInvalidCapacity)
}

func TestMemoryBackend_RestoreRejectsNonFiniteMaxPriority(t *testing.T) {
	ctx := context.Background()
	source := newTestBackend(t, testOptions(4))
	require.NoError(t, source.Push(ctx, experience(1, 0, false)))

	snap, err := source.Snapshot(ctx)
	require.NoError(t, err)
	snap.MaxPriority = math.NaN()

	target := newTestBackend(t, testOptions(4))
	require.NoError(t, target.Push(ctx, experience(7, 0, false)))
	assert.ErrorIs(t, target.Restore(ctx, snap), ErrDegeneratePriorities)

	assert.Equal(t, 1.0, target.MaxPriority())
	assert.Equal(t, 1, target.Len())
	assert.Equal(t, float32(7), slotTag(t, target, 0))
}
