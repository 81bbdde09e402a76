package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cartridge/prioritized-replay/internal/metrics"
	"github.com/cartridge/prioritized-replay/internal/storage"
)

// ErrNoStore is returned by a Manager built without a store
var ErrNoStore = errors.New("checkpointing is disabled")

// Manager saves and restores one buffer under a fixed checkpoint ID
type Manager struct {
	store   Store
	backend storage.Backend
	id      string
	logger  zerolog.Logger
	metrics *metrics.Collector

	mu sync.Mutex // serializes saves
}

// NewManager creates a Manager. An empty id gets a random one, so every
// run writes its own checkpoint unless an ID is configured. A nil store
// disables checkpointing.
func NewManager(store Store, backend storage.Backend, id string, logger zerolog.Logger, collector *metrics.Collector) *Manager {
	if id == "" {
		id = uuid.NewString()
	}
	return &Manager{
		store:   store,
		backend: backend,
		id:      id,
		logger:  logger.With().Str("component", "checkpoint").Str("checkpoint_id", id).Logger(),
		metrics: collector,
	}
}

// ID returns the checkpoint ID this manager writes
func (m *Manager) ID() string {
	return m.id
}

// Enabled reports whether the manager has a store
func (m *Manager) Enabled() bool {
	return m.store != nil
}

// Restore loads the checkpoint into the buffer. It reports false when no
// checkpoint with this ID exists yet.
func (m *Manager) Restore(ctx context.Context) (bool, error) {
	if m.store == nil {
		return false, nil
	}
	start := time.Now()

	cp, ok, err := m.store.Load(ctx, m.id)
	if err != nil {
		m.metrics.Checkpoint("restore", m.id, 0, time.Since(start), err)
		return false, fmt.Errorf("load checkpoint: %w", err)
	}
	if !ok {
		m.logger.Info().Msg("No checkpoint found, starting empty")
		return false, nil
	}

	err = m.backend.Restore(ctx, cp.Snapshot)
	m.metrics.Checkpoint("restore", m.id, cp.Snapshot.Size, time.Since(start), err)
	if err != nil {
		return false, fmt.Errorf("restore checkpoint: %w", err)
	}

	m.logger.Info().
		Int("size", cp.Snapshot.Size).
		Time("saved_at", cp.SavedAt).
		Msg("Restored replay buffer from checkpoint")
	return true, nil
}

// Save writes a snapshot of the buffer
func (m *Manager) Save(ctx context.Context) (Checkpoint, error) {
	if m.store == nil {
		return Checkpoint{}, ErrNoStore
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	snap, err := m.backend.Snapshot(ctx)
	if err != nil {
		m.metrics.Checkpoint("save", m.id, 0, time.Since(start), err)
		return Checkpoint{}, fmt.Errorf("snapshot buffer: %w", err)
	}

	cp := Checkpoint{ID: m.id, SavedAt: time.Now().UTC(), Snapshot: snap}
	err = m.store.Save(ctx, cp)
	m.metrics.Checkpoint("save", m.id, snap.Size, time.Since(start), err)
	if err != nil {
		return Checkpoint{}, err
	}
	return cp, nil
}

// Run saves every interval until ctx is cancelled. Failed saves are logged
// and retried on the next tick.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if m.store == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Save(ctx); err != nil && ctx.Err() == nil {
				m.logger.Error().Err(err).Msg("Periodic checkpoint failed")
			}
		}
	}
}
