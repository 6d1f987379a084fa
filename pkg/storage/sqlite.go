package storage

import (
	"context"
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// SQLiteStore keeps objects in a local SQLite file. Useful for running the
// pipeline on a single host without a bucket.
type SQLiteStore struct {
	db     *sql.DB
	logger *logrus.Entry
}

func NewSQLiteStore(ctx context.Context, cfg Config) (*SQLiteStore, error) {
	path := cfg.Path
	if path == "" {
		path = "tourdiscovery.sqlite"
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open SQLite")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping SQLite")
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to set SQLite pragmas")
	}
	_, err = db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS objects (
			key        TEXT NOT NULL PRIMARY KEY,
			body       BLOB NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CHECK (length(key) > 0)
		)`)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create objects table")
	}

	return &SQLiteStore{db: db, logger: logrus.WithField("storage", "sqlite")}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM objects WHERE key = ?`, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "failed to select %s", key)
	}
	return body, true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO objects (key, body, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET body = excluded.body, updated_at = CURRENT_TIMESTAMP`, key, data)
	if err != nil {
		return errors.Wrapf(err, "failed to upsert %s", key)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM objects WHERE key = ?`, key); err != nil {
		return errors.Wrapf(err, "failed to delete %s", key)
	}
	return nil
}

func (s *SQLiteStore) Exists(ctx context.Context, key string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM objects WHERE key = ?`, key).Scan(&n); err != nil {
		return false, errors.Wrapf(err, "failed to check %s", key)
	}
	return n > 0, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
