package cache

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore keeps snapshots in process. Snapshots are stored by pointer and
// swapped under a lock, so readers see either the old or the new snapshot.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]*Snapshot
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string]*Snapshot)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshots[key], nil
}

func (m *MemoryStore) Put(_ context.Context, s *Snapshot) error {
	cp := *s
	cp.Data = append([]byte(nil), s.Data...)
	m.mu.Lock()
	m.snapshots[s.Key] = &cp
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.snapshots, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) List(_ context.Context, prefix string) ([]SnapshotInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []SnapshotInfo
	for k, s := range m.snapshots {
		if strings.HasPrefix(k, prefix) {
			out = append(out, SnapshotInfo{Key: k, FetchedAt: s.FetchedAt, ItemCount: s.ItemCount})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
