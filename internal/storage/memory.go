package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
)

// Options configures a MemoryBackend
type Options struct {
	// Capacity is the fixed number of slots
	Capacity int

	// StateShape is the shape of every State and NextState tensor
	StateShape []int

	// ActionSize is the length of every Action vector
	ActionSize int

	// Alpha is the priority exponent applied to |TD-error| + Epsilon
	Alpha float64

	// Epsilon keeps every updated priority strictly positive
	Epsilon float64

	// InitialMaxPriority seeds the running maximum priority
	InitialMaxPriority float64

	// ClipReward clips rewards to [-1, 1] on insertion
	ClipReward bool

	// Compress stores records as zstd-compressed codec blobs
	Compress bool

	// Uniform samples uniformly without replacement with unit weights,
	// ignoring priorities
	Uniform bool

	// NStep is the window length used by PushOneStep
	NStep int

	// Gamma is the per-step discount used by PushOneStep
	Gamma float64

	// Seed seeds the sampling random source
	Seed uint64
}

// DefaultOptions returns options with the usual prioritized replay
// hyperparameters. Capacity, StateShape and ActionSize must still be set.
func DefaultOptions() Options {
	return Options{
		Alpha:              0.6,
		Epsilon:            0.01,
		InitialMaxPriority: 1.0,
		ClipReward:         true,
		Compress:           true,
		NStep:              1,
		Gamma:              0.99,
	}
}

func (o Options) validate() error {
	if o.Capacity <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidCapacity, o.Capacity)
	}
	if len(o.StateShape) == 0 {
		return errors.New("state shape is required")
	}
	for _, dim := range o.StateShape {
		if dim <= 0 {
			return fmt.Errorf("state shape %v has a non-positive dimension", o.StateShape)
		}
	}
	if o.ActionSize <= 0 {
		return errors.New("action size must be positive")
	}
	if o.Alpha <= 0 || o.Alpha > 1 {
		return fmt.Errorf("alpha must be in (0, 1], got %v", o.Alpha)
	}
	if o.Epsilon < 0 {
		return fmt.Errorf("epsilon must be non-negative, got %v", o.Epsilon)
	}
	if o.InitialMaxPriority <= 0 {
		return fmt.Errorf("initial max priority must be positive, got %v", o.InitialMaxPriority)
	}
	if o.NStep < 1 {
		return fmt.Errorf("nstep must be at least 1, got %d", o.NStep)
	}
	if o.Gamma < 0 || o.Gamma > 1 {
		return fmt.Errorf("gamma must be in [0, 1], got %v", o.Gamma)
	}
	return nil
}

// MemoryBackend is an in-memory prioritized replay buffer over a fixed
// ring of slots. It is safe for concurrent use: pushes and priority updates
// take the write lock, samples take the read lock for the whole draw and
// decode, so a sample never observes a slot mid-overwrite.
type MemoryBackend struct {
	mu     sync.RWMutex // guards store, prio and pushes
	store  *ring
	prio   prioritizer
	pushes uint64

	aggMu sync.Mutex // guards agg; taken before mu
	agg   *nstepAggregator

	rngMu   sync.Mutex // guards sampler
	sampler *sampler

	codec *Codec
	opts  Options
}

// NewMemoryBackend creates a new in-memory replay buffer
func NewMemoryBackend(opts Options) (*MemoryBackend, error) {
	if err := opts.validate(); err != nil {
		return nil, opError("new", err)
	}
	store, err := newRing(opts.Capacity)
	if err != nil {
		return nil, opError("new", err)
	}
	codec, err := NewCodec(opts.Compress)
	if err != nil {
		return nil, opError("new", err)
	}
	opts.StateShape = slices.Clone(opts.StateShape)

	return &MemoryBackend{
		store: store,
		prio: prioritizer{
			alpha:   opts.Alpha,
			epsilon: opts.Epsilon,
			max:     opts.InitialMaxPriority,
		},
		agg:     newNStepAggregator(opts.NStep, opts.Gamma, opts.ClipReward),
		sampler: newSampler(opts.Seed),
		codec:   codec,
		opts:    opts,
	}, nil
}

// Validate implements Backend.Validate
func (m *MemoryBackend) Validate(exp Experience) error {
	if err := m.validate(exp); err != nil {
		return opError("validate", err)
	}
	return nil
}

// Push implements Backend.Push
func (m *MemoryBackend) Push(ctx context.Context, exp Experience) error {
	if err := m.validate(exp); err != nil {
		return opError("push", err)
	}
	if m.opts.ClipReward {
		exp.Reward = clipReward(exp.Reward)
	}
	m.insert(exp)
	return nil
}

// StoreBatch implements Backend.StoreBatch
func (m *MemoryBackend) StoreBatch(ctx context.Context, exps []Experience) (int, error) {
	for i, exp := range exps {
		if err := m.Push(ctx, exp); err != nil {
			return i, err
		}
	}
	return len(exps), nil
}

// PushOneStep implements Backend.PushOneStep. Rewards are clipped per step
// inside the n-step fold; the aggregate itself is stored unclipped.
// Aggregates reach the ring in the order the window produced them, so
// concurrent callers interleave whole steps.
func (m *MemoryBackend) PushOneStep(ctx context.Context, exp Experience) (bool, error) {
	if err := m.validate(exp); err != nil {
		return false, opError("push_onestep", err)
	}

	m.aggMu.Lock()
	defer m.aggMu.Unlock()

	aggregate, ok := m.agg.push(exp)
	if !ok {
		return false, nil
	}
	m.insert(aggregate)
	return true, nil
}

// Sample implements Backend.Sample
func (m *MemoryBackend) Sample(ctx context.Context, batchSize int, beta float64) (*Batch, error) {
	if math.IsNaN(beta) || beta < 0 || beta > 1 {
		return nil, opError("sample", fmt.Errorf("%w: got %v", ErrInvalidBeta, beta))
	}
	if batchSize <= 0 {
		return nil, opError("sample", fmt.Errorf("batch size must be positive, got %d", batchSize))
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	size := m.store.size
	if batchSize > size {
		return nil, opError("sample", fmt.Errorf("%w: batch size %d exceeds %d stored records",
			ErrInsufficientData, batchSize, size))
	}

	var (
		indices []int
		weights []float64
		err     error
	)
	m.rngMu.Lock()
	if m.opts.Uniform {
		indices, weights = m.sampler.uniform(size, batchSize)
	} else {
		indices, weights, err = m.sampler.prioritized(m.store.populated(), batchSize, beta)
	}
	m.rngMu.Unlock()
	if err != nil {
		return nil, opError("sample", err)
	}

	exps := make([]Experience, len(indices))
	for i, index := range indices {
		exp, err := m.decodeSlot(m.store.slots[index])
		if err != nil {
			return nil, opError("sample", fmt.Errorf("slot %d: %w", index, err))
		}
		exps[i] = exp
	}

	return &Batch{Indices: indices, Weights: weights, Experiences: exps}, nil
}

// UpdatePriorities implements Backend.UpdatePriorities
func (m *MemoryBackend) UpdatePriorities(ctx context.Context, indices []int, tdErrors []float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.prio.update(m.store.priorities, m.store.size, indices, tdErrors); err != nil {
		return opError("update_priorities", err)
	}
	return nil
}

// Len implements Backend.Len
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.size
}

// Capacity returns the fixed number of slots
func (m *MemoryBackend) Capacity() int {
	return m.store.capacity()
}

// MaxPriority returns the priority assigned to newly inserted records
func (m *MemoryBackend) MaxPriority() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.prio.max
}

// Stats implements Backend.Stats
func (m *MemoryBackend) Stats(ctx context.Context) (*Stats, error) {
	m.aggMu.Lock()
	pending := m.agg.pending()
	m.aggMu.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()

	return &Stats{
		Size:         m.store.size,
		Capacity:     m.store.capacity(),
		WriteCursor:  m.store.cursor,
		MaxPriority:  m.prio.max,
		TotalPushes:  m.pushes,
		NStepPending: pending,
		Compressed:   m.opts.Compress,
		StorageBytes: m.store.storageBytes(),
	}, nil
}

// Close implements Backend.Close
func (m *MemoryBackend) Close() error {
	return m.codec.Close()
}

func (m *MemoryBackend) validate(exp Experience) error {
	if err := checkTensor("state", exp.State, m.opts.StateShape); err != nil {
		return err
	}
	if err := checkTensor("next_state", exp.NextState, m.opts.StateShape); err != nil {
		return err
	}
	if len(exp.Action) != m.opts.ActionSize {
		return fmt.Errorf("%w: action has %d values, want %d", ErrShapeMismatch, len(exp.Action), m.opts.ActionSize)
	}
	return nil
}

// insert encodes exp outside the lock, then writes it at the cursor with
// the current maximum priority.
func (m *MemoryBackend) insert(exp Experience) {
	s := slot{exp: exp}
	if m.opts.Compress {
		s = slot{blob: m.codec.Encode(exp)}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.store.put(s, m.prio.max)
	m.pushes++
}

func (m *MemoryBackend) decodeSlot(s slot) (Experience, error) {
	if s.blob == nil {
		return s.exp, nil
	}
	return m.codec.Decode(s.blob)
}
