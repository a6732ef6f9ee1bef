package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

const redisKeyPrefix = "flw-audit:snapshot:"

// RedisStore keeps each snapshot as one JSON value, so SET replaces it
// atomically.
type RedisStore struct {
	rdb *goredis.Client
	ttl time.Duration
}

// NewRedis connects to addr and verifies the connection. Snapshots expire
// after ttl (0 keeps them until replaced).
func NewRedis(ctx context.Context, addr string, ttl time.Duration) (*RedisStore, error) {
	if addr == "" {
		return nil, eris.New("redis: missing address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, eris.Wrap(err, "redis: ping")
	}
	return &RedisStore{rdb: rdb, ttl: ttl}, nil
}

func redisKey(key string) string {
	return redisKeyPrefix + key
}

func (r *RedisStore) Get(ctx context.Context, key string) (*Snapshot, error) {
	raw, err := r.rdb.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "redis: get snapshot %s", key)
	}
	return unmarshalEnvelope(raw)
}

func (r *RedisStore) Put(ctx context.Context, s *Snapshot) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return eris.Wrapf(err, "redis: encode snapshot %s", s.Key)
	}
	return eris.Wrapf(r.rdb.Set(ctx, redisKey(s.Key), raw, r.ttl).Err(), "redis: put snapshot %s", s.Key)
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return eris.Wrapf(r.rdb.Del(ctx, redisKey(key)).Err(), "redis: delete snapshot %s", key)
}

func (r *RedisStore) List(ctx context.Context, prefix string) ([]SnapshotInfo, error) {
	var out []SnapshotInfo
	iter := r.rdb.Scan(ctx, 0, escapeGlob(redisKey(prefix))+"*", 100).Iterator()
	for iter.Next(ctx) {
		raw, err := r.rdb.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, goredis.Nil) {
			continue
		}
		if err != nil {
			return nil, eris.Wrap(err, "redis: list snapshots")
		}
		s, err := unmarshalEnvelope(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, SnapshotInfo{Key: s.Key, FetchedAt: s.FetchedAt, ItemCount: s.ItemCount})
	}
	if err := iter.Err(); err != nil {
		return nil, eris.Wrap(err, "redis: scan snapshots")
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// escapeGlob quotes the SCAN MATCH metacharacters in a literal prefix.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (r *RedisStore) Close() error {
	return r.rdb.Close()
}

func unmarshalEnvelope(raw []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, eris.Wrap(err, "redis: decode snapshot")
	}
	return &s, nil
}
