package kv

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Options select and configure a backend.
type Options struct {
	Backend string
	Path    string
	Addr    string
	Prefix  string
}

// Open builds the Store named by opts.Backend. An empty backend means file.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", BackendFile:
		return OpenFile(opts.Path, logger)
	case BackendSQLite:
		path, err := resolvePath(opts.Path)
		if err != nil {
			return nil, fmt.Errorf("resolve path: %w", err)
		}
		return OpenSQLite(ctx, path, logger)
	case BackendRedis:
		return NewRedis(ctx, opts.Addr, opts.Prefix)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}
