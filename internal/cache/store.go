package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
)

// Snapshot is an immutable, timestamped copy of one fetched collection.
// A newer snapshot replaces it whole; it is never edited in place.
type Snapshot struct {
	Key       string          `json:"key"`
	FetchedAt time.Time       `json:"fetched_at"`
	ItemCount int             `json:"item_count"`
	Data      json.RawMessage `json:"data"`
}

// NewSnapshot encodes items into a snapshot stamped with fetchedAt.
func NewSnapshot[T any](key string, items []T, fetchedAt time.Time) (*Snapshot, error) {
	if items == nil {
		items = []T{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return nil, eris.Wrapf(err, "cache: encode snapshot %s", key)
	}
	return &Snapshot{Key: key, FetchedAt: fetchedAt.UTC(), ItemCount: len(items), Data: data}, nil
}

// Decode unmarshals a snapshot's items.
func Decode[T any](s *Snapshot) ([]T, error) {
	var items []T
	if err := json.Unmarshal(s.Data, &items); err != nil {
		return nil, eris.Wrapf(err, "cache: decode snapshot %s", s.Key)
	}
	return items, nil
}

// Key builds the cache key of a collection kind for a tenant domain.
func Key(domain, kind string) string {
	return domain + ":" + kind
}

// Store persists snapshots by key. Get returns nil, nil for a missing key.
// Put replaces any existing snapshot atomically; concurrent writers resolve
// last-writer-wins.
type Store interface {
	Get(ctx context.Context, key string) (*Snapshot, error)
	Put(ctx context.Context, s *Snapshot) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]SnapshotInfo, error)
	Close() error
}

// SnapshotInfo describes a stored snapshot without its payload.
type SnapshotInfo struct {
	Key       string    `json:"key"`
	FetchedAt time.Time `json:"fetched_at"`
	ItemCount int       `json:"item_count"`
}
