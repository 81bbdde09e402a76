package storage

import (
	"context"
	"fmt"
	"math"
	"slices"
)

// Snapshot is a point-in-time copy of a buffer. Records holds one codec
// blob per populated slot and Priorities the matching priorities, both in
// slot order. The pending n-step window is not part of a snapshot.
type Snapshot struct {
	Capacity    int
	StateShape  []int
	ActionSize  int
	Compressed  bool
	WriteCursor int
	Size        int
	TotalPushes uint64
	MaxPriority float64
	Priorities  []float64
	Records     [][]byte
}

// Validate checks the internal consistency of the snapshot
func (s *Snapshot) Validate() error {
	if s.Capacity <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidCapacity, s.Capacity)
	}
	if s.Size < 0 || s.Size > s.Capacity {
		return fmt.Errorf("%w: size %d, capacity %d", ErrIndexOutOfRange, s.Size, s.Capacity)
	}
	if s.WriteCursor < 0 || s.WriteCursor >= s.Capacity {
		return fmt.Errorf("%w: cursor %d, capacity %d", ErrIndexOutOfRange, s.WriteCursor, s.Capacity)
	}
	if s.Size < s.Capacity && s.WriteCursor != s.Size {
		return fmt.Errorf("%w: cursor %d of a partially filled ring of size %d", ErrIndexOutOfRange, s.WriteCursor, s.Size)
	}
	if len(s.Priorities) != s.Size || len(s.Records) != s.Size {
		return fmt.Errorf("%w: size %d, %d priorities, %d records",
			ErrLengthMismatch, s.Size, len(s.Priorities), len(s.Records))
	}
	if s.MaxPriority < 0 || math.IsNaN(s.MaxPriority) || math.IsInf(s.MaxPriority, 0) {
		return fmt.Errorf("%w: max priority %v", ErrDegeneratePriorities, s.MaxPriority)
	}
	for i, p := range s.Priorities {
		if p < 0 || math.IsNaN(p) || math.IsInf(p, 0) {
			return fmt.Errorf("%w: priority %v at slot %d", ErrDegeneratePriorities, p, i)
		}
	}
	return nil
}

// Snapshot implements Backend.Snapshot
func (m *MemoryBackend) Snapshot(ctx context.Context) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	size := m.store.size
	snap := &Snapshot{
		Capacity:    m.store.capacity(),
		StateShape:  slices.Clone(m.opts.StateShape),
		ActionSize:  m.opts.ActionSize,
		Compressed:  m.opts.Compress,
		WriteCursor: m.store.cursor,
		Size:        size,
		TotalPushes: m.pushes,
		MaxPriority: m.prio.max,
		Priorities:  slices.Clone(m.store.populated()),
		Records:     make([][]byte, size),
	}
	for i := 0; i < size; i++ {
		if err := ctx.Err(); err != nil {
			return nil, opError("snapshot", err)
		}
		s := m.store.slots[i]
		if s.blob != nil {
			snap.Records[i] = s.blob
			continue
		}
		snap.Records[i] = m.codec.Encode(s.exp)
	}
	return snap, nil
}

// Restore implements Backend.Restore. The snapshot must have been taken
// from a buffer with the same capacity, state shape and action size. Every
// record is decoded and checked before the buffer is touched.
func (m *MemoryBackend) Restore(ctx context.Context, snap *Snapshot) error {
	if snap == nil {
		return opError("restore", fmt.Errorf("%w: nil snapshot", ErrCorruptRecord))
	}
	if err := snap.Validate(); err != nil {
		return opError("restore", err)
	}
	if snap.Capacity != m.store.capacity() {
		return opError("restore", fmt.Errorf("%w: snapshot capacity %d, buffer capacity %d",
			ErrInvalidCapacity, snap.Capacity, m.store.capacity()))
	}
	if !slices.Equal(snap.StateShape, m.opts.StateShape) || snap.ActionSize != m.opts.ActionSize {
		return opError("restore", fmt.Errorf("%w: snapshot state %v action %d, buffer state %v action %d",
			ErrShapeMismatch, snap.StateShape, snap.ActionSize, m.opts.StateShape, m.opts.ActionSize))
	}

	slots := make([]slot, snap.Size)
	for i, blob := range snap.Records {
		if err := ctx.Err(); err != nil {
			return opError("restore", err)
		}
		exp, err := m.codec.Decode(blob)
		if err != nil {
			return opError("restore", fmt.Errorf("record %d: %w", i, err))
		}
		if err := m.validate(exp); err != nil {
			return opError("restore", fmt.Errorf("record %d: %w", i, err))
		}
		if m.opts.Compress {
			slots[i] = slot{blob: m.codec.Encode(exp)}
		} else {
			slots[i] = slot{exp: exp}
		}
	}

	m.aggMu.Lock()
	m.agg.reset()
	m.aggMu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.store.reset()
	copy(m.store.slots, slots)
	copy(m.store.priorities, snap.Priorities)
	m.store.cursor, m.store.size = snap.WriteCursor, snap.Size
	m.pushes = snap.TotalPushes
	m.prio.max = math.Max(snap.MaxPriority, m.opts.InitialMaxPriority)
	return nil
}
