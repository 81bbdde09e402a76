package checkpoint

import (
	"context"
	"errors"
	"sync"
	"time"
)

type memoryRecord struct {
	savedAt time.Time
	payload []byte
}

// MemoryStore keeps encoded checkpoints in process memory. It does not
// survive a restart and exists for tests and for servers that only need
// on-demand snapshots.
type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	records     map[string]memoryRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}
	s.initialized = true
	s.records = make(map[string]memoryRecord)
	return nil
}

func (s *MemoryStore) Save(_ context.Context, cp Checkpoint) error {
	if cp.ID == "" {
		return errors.New("checkpoint id is required")
	}
	payload := EncodeSnapshot(cp.Snapshot)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}
	s.records[cp.ID] = memoryRecord{savedAt: cp.SavedAt, payload: payload}
	return nil
}

func (s *MemoryStore) Load(_ context.Context, id string) (Checkpoint, bool, error) {
	s.mu.RLock()
	record, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return Checkpoint{}, false, nil
	}

	snap, err := DecodeSnapshot(record.payload)
	if err != nil {
		return Checkpoint{}, false, err
	}
	return Checkpoint{ID: id, SavedAt: record.savedAt, Snapshot: snap}, true, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, id)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
