package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements DurableStore using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
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
CREATE TABLE IF NOT EXISTS kv (
	profile    TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	expires_at DATETIME,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (profile, key)
);

CREATE INDEX IF NOT EXISTS idx_kv_expires_at ON kv(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Tier returns a durable tier scoped to one visitor profile.
func (s *SQLiteStore) Tier(profile string) Tier {
	return &sqliteTier{db: s.db, profile: profile}
}

// PurgeExpired deletes rows past their expiry and reports how many went.
func (s *SQLiteStore) PurgeExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM kv WHERE expires_at IS NOT NULL AND expires_at <= datetime('now')`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: purge expired")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return int(n), nil
}

type sqliteTier struct {
	db      *sql.DB
	profile string
}

func (t *sqliteTier) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := t.db.QueryRowContext(ctx,
		`SELECT value FROM kv
		 WHERE profile = ? AND key = ?
		   AND (expires_at IS NULL OR expires_at > datetime('now'))`,
		t.profile, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: get %s", key)
	}
	return value, nil
}

func (t *sqliteTier) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	var expiresAt any
	if ttl > 0 {
		expiresAt = time.Now().UTC().Add(ttl).Format("2006-01-02 15:04:05")
	}
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO kv (profile, key, value, expires_at, updated_at)
		 VALUES (?, ?, ?, ?, datetime('now'))
		 ON CONFLICT (profile, key) DO UPDATE SET
		   value = excluded.value,
		   expires_at = excluded.expires_at,
		   updated_at = excluded.updated_at`,
		t.profile, key, value, expiresAt,
	)
	return eris.Wrapf(err, "sqlite: set %s", key)
}

func (t *sqliteTier) Delete(ctx context.Context, key string) error {
	_, err := t.db.ExecContext(ctx,
		`DELETE FROM kv WHERE profile = ? AND key = ?`, t.profile, key)
	return eris.Wrapf(err, "sqlite: delete %s", key)
}
