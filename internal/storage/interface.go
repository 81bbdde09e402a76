package storage

import (
	"context"

	"gorgonia.org/tensor"
)

// Experience is one transition, or an n-step aggregate of consecutive
// transitions. State and NextState are float32 tensors whose shape is fixed
// for the lifetime of a buffer.
//
// Once pushed, an Experience belongs to the buffer: callers must not mutate
// its tensors or action slice, and must treat sampled experiences as
// read-only snapshots.
type Experience struct {
	State     *tensor.Dense
	Action    []float32
	Reward    float64
	NextState *tensor.Dense
	Done      bool
}

// Batch is the result of a single Sample call. Indices, Weights and
// Experiences are index-aligned.
type Batch struct {
	Indices     []int
	Weights     []float64
	Experiences []Experience
}

// Len returns the number of sampled experiences
func (b *Batch) Len() int {
	return len(b.Indices)
}

// Stack flattens the batch into row-major slices in batch order: states and
// next states are Len()*stateSize long, actions Len()*actionSize.
func (b *Batch) Stack() (states, actions []float32, rewards []float64, nextStates []float32, dones []bool) {
	rewards = make([]float64, 0, len(b.Experiences))
	dones = make([]bool, 0, len(b.Experiences))
	for _, exp := range b.Experiences {
		states = append(states, TensorValues(exp.State)...)
		actions = append(actions, exp.Action...)
		nextStates = append(nextStates, TensorValues(exp.NextState)...)
		rewards = append(rewards, exp.Reward)
		dones = append(dones, exp.Done)
	}
	return states, actions, rewards, nextStates, dones
}

// Stats describes the current state of a replay buffer
type Stats struct {
	Size         int
	Capacity     int
	WriteCursor  int
	MaxPriority  float64
	TotalPushes  uint64
	NStepPending int
	Compressed   bool
	StorageBytes uint64
}

// Backend defines the operations a replay buffer exposes to the service
// layer and to training drivers.
type Backend interface {
	// Validate reports whether exp fits the buffer's state shape and
	// action size, without storing it
	Validate(exp Experience) error

	// Push stores a fully formed transition
	Push(ctx context.Context, exp Experience) error

	// StoreBatch pushes transitions in order and returns how many were stored
	StoreBatch(ctx context.Context, exps []Experience) (int, error)

	// PushOneStep feeds a single-step transition through the n-step
	// aggregator and reports whether an aggregated record was stored
	PushOneStep(ctx context.Context, exp Experience) (bool, error)

	// Sample draws a prioritized batch with importance-sampling weights
	Sample(ctx context.Context, batchSize int, beta float64) (*Batch, error)

	// UpdatePriorities rewrites priorities from TD-errors
	UpdatePriorities(ctx context.Context, indices []int, tdErrors []float64) error

	// Len returns the number of populated slots
	Len() int

	// Stats returns buffer statistics
	Stats(ctx context.Context) (*Stats, error)

	// Snapshot captures the buffer as a consistent checkpoint
	Snapshot(ctx context.Context) (*Snapshot, error)

	// Restore replaces the buffer contents with a checkpoint
	Restore(ctx context.Context, snap *Snapshot) error

	// Close releases codec resources
	Close() error
}
