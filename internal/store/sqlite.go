package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS objects (
	key           TEXT PRIMARY KEY,
	body          BLOB NOT NULL,
	last_modified INTEGER NOT NULL
)`

// SQLiteObjects is a single-file ObjectStore for running without S3.
type SQLiteObjects struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteObjects, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// One writer; also keeps ":memory:" databases on a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}
	return &SQLiteObjects{db: db, now: time.Now}, nil
}

func (s *SQLiteObjects) Close() error {
	return s.db.Close()
}

func (s *SQLiteObjects) List(ctx context.Context) ([]Object, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, length(body), last_modified FROM objects ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list: %w", err)
	}
	defer rows.Close()

	var objects []Object
	for rows.Next() {
		var (
			o     Object
			nanos int64
		)
		if err := rows.Scan(&o.Key, &o.Size, &nanos); err != nil {
			return nil, fmt.Errorf("sqlite: list: %w", err)
		}
		o.LastModified = time.Unix(0, nanos).UTC()
		objects = append(objects, o)
	}
	return objects, rows.Err()
}

func (s *SQLiteObjects) Get(ctx context.Context, key string) ([]byte, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM objects WHERE key = ?`, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get %s: %w", key, err)
	}
	return body, nil
}

func (s *SQLiteObjects) Put(ctx context.Context, key string, body []byte) error {
	if body == nil {
		body = []byte{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO objects (key, body, last_modified) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET body = excluded.body, last_modified = excluded.last_modified`,
		key, body, s.now().UnixNano())
	if err != nil {
		return fmt.Errorf("sqlite: put %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteObjects) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM objects WHERE key = ?`, key); err != nil {
		return fmt.Errorf("sqlite: delete %s: %w", key, err)
	}
	return nil
}
