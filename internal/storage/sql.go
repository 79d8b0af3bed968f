package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// SQLBackend stores every namespace in the actor_storage table created by
// db.AutoMigrate. The statements run unchanged on Postgres (pgx) and SQLite.
type SQLBackend struct {
	db *sql.DB
}

func NewSQLBackend(db *sql.DB) *SQLBackend {
	return &SQLBackend{db: db}
}

func (b *SQLBackend) Namespace(name string) Store {
	return &sqlStore{db: b.db, ns: name}
}

func (b *SQLBackend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

func (b *SQLBackend) Close() error {
	return b.db.Close()
}

type sqlStore struct {
	db *sql.DB
	ns string
}

func (s *sqlStore) Put(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal record %q: %w", key, err)
	}
	query := `
		INSERT INTO actor_storage (ns, item_key, item_value) VALUES ($1, $2, $3)
		ON CONFLICT (ns, item_key) DO UPDATE SET item_value = excluded.item_value, updated_at = CURRENT_TIMESTAMP`
	if _, err := s.db.ExecContext(ctx, query, s.ns, key, string(data)); err != nil {
		return fmt.Errorf("failed to write record %q: %w", key, err)
	}
	return nil
}

func (s *sqlStore) Get(ctx context.Context, key string, dst any) (bool, error) {
	var data string
	query := "SELECT item_value FROM actor_storage WHERE ns = $1 AND item_key = $2"
	err := s.db.QueryRowContext(ctx, query, s.ns, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read record %q: %w", key, err)
	}
	if err := json.Unmarshal([]byte(data), dst); err != nil {
		return false, fmt.Errorf("failed to decode record %q: %w", key, err)
	}
	return true, nil
}

func (s *sqlStore) Delete(ctx context.Context, key string) (bool, error) {
	query := "DELETE FROM actor_storage WHERE ns = $1 AND item_key = $2"
	res, err := s.db.ExecContext(ctx, query, s.ns, key)
	if err != nil {
		return false, fmt.Errorf("failed to delete record %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete record %q: %w", key, err)
	}
	return n > 0, nil
}

func (s *sqlStore) List(ctx context.Context, opts ListOptions) ([]json.RawMessage, error) {
	query := "SELECT item_value FROM actor_storage WHERE ns = $1 ORDER BY item_key ASC"
	if opts.Reverse {
		query = "SELECT item_value FROM actor_storage WHERE ns = $1 ORDER BY item_key DESC"
	}
	args := []any{s.ns}
	if opts.Limit > 0 {
		query += " LIMIT $2"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	out := []json.RawMessage{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		out = append(out, json.RawMessage(data))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	return out, nil
}
