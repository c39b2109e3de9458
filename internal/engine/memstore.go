package engine

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is a SnapshotStore kept in process memory. It is safe for
// concurrent use and loses everything on exit.
type MemoryStore struct {
	mu    sync.Mutex
	snaps map[string][]byte
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: make(map[string][]byte)}
}

func (m *MemoryStore) LoadSnapshot(ctx context.Context, learner string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.snaps[learner]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryStore) SaveSnapshot(ctx context.Context, learner string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[learner] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryStore) ListLearners(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.snaps))
	for l := range m.snaps {
		out = append(out, l)
	}
	sort.Strings(out)
	return out, nil
}
