package checkpoint

import (
	"context"
	"time"

	"github.com/cartridge/prioritized-replay/internal/storage"
)

// Checkpoint is a saved buffer snapshot
type Checkpoint struct {
	ID       string
	SavedAt  time.Time
	Snapshot *storage.Snapshot
}

// Store persists checkpoints by ID. Saving an existing ID replaces it.
type Store interface {
	Init(ctx context.Context) error
	Save(ctx context.Context, cp Checkpoint) error
	Load(ctx context.Context, id string) (Checkpoint, bool, error)
	Delete(ctx context.Context, id string) error
	Close() error
}
