package cache

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas are per connection; a single connection keeps them applied.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS snapshots (
	key        TEXT PRIMARY KEY,
	fetched_at DATETIME NOT NULL,
	item_count INTEGER NOT NULL,
	data       BLOB NOT NULL
);
`

// Migrate creates the snapshot table.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT key, fetched_at, item_count, data FROM snapshots WHERE key = ?`, key)

	var snap Snapshot
	var data []byte
	err := row.Scan(&snap.Key, &snap.FetchedAt, &snap.ItemCount, &data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get snapshot %s", key)
	}
	snap.Data = data
	return &snap, nil
}

// Put replaces the snapshot in a single statement, so a reader never sees a
// row with a new timestamp and an old payload.
func (s *SQLiteStore) Put(ctx context.Context, snap *Snapshot) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (key, fetched_at, item_count, data) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
			fetched_at = excluded.fetched_at,
			item_count = excluded.item_count,
			data = excluded.data`,
		snap.Key, snap.FetchedAt.UTC(), snap.ItemCount, []byte(snap.Data),
	)
	return eris.Wrapf(err, "sqlite: put snapshot %s", snap.Key)
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE key = ?`, key)
	return eris.Wrapf(err, "sqlite: delete snapshot %s", key)
}

// prefixCeiling sorts after every valid UTF-8 key starting with prefix under
// BINARY collation.
const prefixCeiling = "\U0010FFFF"

// List matches keys by byte range, so multi-byte prefixes compare the same
// way Go strings do.
func (s *SQLiteStore) List(ctx context.Context, prefix string) ([]SnapshotInfo, error) {
	query := `SELECT key, fetched_at, item_count FROM snapshots ORDER BY key`
	var args []any
	if prefix != "" {
		query = `SELECT key, fetched_at, item_count FROM snapshots WHERE key >= ? AND key < ? ORDER BY key`
		args = []any{prefix, prefix + prefixCeiling}
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list snapshots")
	}
	defer rows.Close()

	var out []SnapshotInfo
	for rows.Next() {
		var info SnapshotInfo
		var fetchedAt time.Time
		if err := rows.Scan(&info.Key, &fetchedAt, &info.ItemCount); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan snapshot info")
		}
		info.FetchedAt = fetchedAt
		out = append(out, info)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list snapshots iterate")
}
