package ingest

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS jots (
	id          UUID PRIMARY KEY,
	type        TEXT NOT NULL,
	body        JSONB NOT NULL,
	received_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS jots_type_received ON jots (type, received_at DESC);
`

// PostgresRepository stores jots in PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to databaseURL and ensures the schema exists.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create jots schema: %w", err)
	}
	return &PostgresRepository{pool: pool}, nil
}

func (r *PostgresRepository) Save(ctx context.Context, jot Jot) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO jots (id, type, body, received_at) VALUES ($1, $2, $3, $4)`,
		jot.ID, jot.Type, string(jot.Body), jot.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("insert jot: %w", err)
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context, kind string, limit int) ([]Jot, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, type, body::text, received_at FROM jots
		 WHERE ($1 = '' OR type = $1)
		 ORDER BY received_at DESC LIMIT $2`,
		kind, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query jots: %w", err)
	}

	jots, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Jot, error) {
		var jot Jot
		var body string
		if err := row.Scan(&jot.ID, &jot.Type, &body, &jot.ReceivedAt); err != nil {
			return Jot{}, err
		}
		jot.Body = []byte(body)
		return jot, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan jots: %w", err)
	}
	return jots, nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

var _ Repository = (*PostgresRepository)(nil)
