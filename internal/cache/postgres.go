package cache

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

// Pool is the subset of pgxpool.Pool used by PostgresStore. pgxmock pools
// satisfy it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 5
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS snapshots (
	key        TEXT PRIMARY KEY,
	fetched_at TIMESTAMPTZ NOT NULL,
	item_count INTEGER NOT NULL,
	data       JSONB NOT NULL
);
`

// Migrate creates the snapshot table.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (*Snapshot, error) {
	var snap Snapshot
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT key, fetched_at, item_count, data FROM snapshots WHERE key = $1`, key,
	).Scan(&snap.Key, &snap.FetchedAt, &snap.ItemCount, &data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get snapshot %s", key)
	}
	snap.Data = data
	return &snap, nil
}

func (s *PostgresStore) Put(ctx context.Context, snap *Snapshot) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO snapshots (key, fetched_at, item_count, data) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (key) DO UPDATE SET
			fetched_at = EXCLUDED.fetched_at,
			item_count = EXCLUDED.item_count,
			data = EXCLUDED.data`,
		snap.Key, snap.FetchedAt.UTC(), snap.ItemCount, []byte(snap.Data),
	)
	return eris.Wrapf(err, "postgres: put snapshot %s", snap.Key)
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM snapshots WHERE key = $1`, key)
	return eris.Wrapf(err, "postgres: delete snapshot %s", key)
}

func (s *PostgresStore) List(ctx context.Context, prefix string) ([]SnapshotInfo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key, fetched_at, item_count FROM snapshots WHERE starts_with(key, $1) ORDER BY key`, prefix)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list snapshots")
	}
	defer rows.Close()

	var out []SnapshotInfo
	for rows.Next() {
		var info SnapshotInfo
		if err := rows.Scan(&info.Key, &info.FetchedAt, &info.ItemCount); err != nil {
			return nil, eris.Wrap(err, "postgres: scan snapshot info")
		}
		out = append(out, info)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list snapshots iterate")
}
