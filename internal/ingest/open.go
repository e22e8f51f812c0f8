package ingest

import (
	"context"
	"log/slog"
	"strings"
)

// OpenRepository picks a backend from dsn: postgres:// and postgresql://
// URLs use PostgreSQL, "memory" keeps jots in memory, and anything else is a
// SQLite path (an optional "sqlite://" prefix is stripped).
func OpenRepository(ctx context.Context, dsn string, logger *slog.Logger) (Repository, error) {
	trimmed := strings.TrimSpace(dsn)
	switch {
	case strings.HasPrefix(trimmed, "postgres://"), strings.HasPrefix(trimmed, "postgresql://"):
		repo, err := OpenPostgres(ctx, trimmed)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case trimmed == "memory":
		return NewMemoryRepository(), nil
	default:
		repo, err := OpenSQLite(ctx, strings.TrimPrefix(trimmed, "sqlite://"), logger)
		if err != nil {
			return nil, err
		}
		return repo, nil
	}
}
