package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hamchapman/jottly/internal/sqlitedb"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS jots (
	id          TEXT PRIMARY KEY,
	type        TEXT NOT NULL,
	body        TEXT NOT NULL,
	received_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS jots_type_received ON jots (type, received_at);
`

// Fixed-width so received_at sorts lexically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteRepository stores jots in a SQLite database.
type SQLiteRepository struct {
	db *sql.DB
}

// OpenSQLite opens the database at path and ensures the schema exists.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLiteRepository, error) {
	db, err := sqlitedb.Open(ctx, path, logger)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create jots schema: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Save(ctx context.Context, jot Jot) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO jots (id, type, body, received_at) VALUES (?, ?, ?, ?)`,
		jot.ID.String(), jot.Type, string(jot.Body), jot.ReceivedAt.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert jot: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context, kind string, limit int) ([]Jot, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	query := `SELECT id, type, body, received_at FROM jots`
	args := []any{}
	if kind != "" {
		query += ` WHERE type = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY received_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jots: %w", err)
	}
	defer rows.Close()

	var jots []Jot
	for rows.Next() {
		var id, body, receivedAt string
		var jot Jot
		if err := rows.Scan(&id, &jot.Type, &body, &receivedAt); err != nil {
			return nil, fmt.Errorf("scan jot: %w", err)
		}
		if jot.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse jot id: %w", err)
		}
		if jot.ReceivedAt, err = time.Parse(sqliteTimeLayout, receivedAt); err != nil {
			return nil, fmt.Errorf("parse jot time: %w", err)
		}
		jot.Body = []byte(body)
		jots = append(jots, jot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jots: %w", err)
	}
	return jots, nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

var _ Repository = (*SQLiteRepository)(nil)
