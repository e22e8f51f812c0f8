package app

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/hamchapman/jottly/internal/config"
	"github.com/hamchapman/jottly/internal/kv"
	"github.com/hamchapman/jottly/internal/logstore"
)

// newLogger writes text logs to w and persists records to the configured log
// store. store may be nil when no key-value store is open, in which case a
// kv log store falls back to the console only.
func newLogger(cfg config.Config, store kv.Store, w io.Writer) (*slog.Logger, error) {
	level, err := logstore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	slogLevel := toSlog(level)
	console := slog.NewTextHandler(w, &slog.HandlerOptions{Level: slogLevel})

	var persisted logstore.Store
	switch cfg.LogStore.Backend {
	case "file":
		persisted = logstore.NewFileStore(cfg.LogStore.Path)
	case "kv":
		if store != nil {
			persisted = logstore.NewKVStore(store, "", cfg.LogStore.MaxEntries)
		}
	}
	if persisted == nil {
		return slog.New(console), nil
	}
	return slog.New(logstore.NewHandler(persisted, console, &logstore.HandlerOptions{Level: slogLevel})), nil
}

func toSlog(l logstore.Level) slog.Level {
	switch l {
	case logstore.LevelVerbose:
		return slog.LevelDebug - 4
	case logstore.LevelDebug:
		return slog.LevelDebug
	case logstore.LevelWarning:
		return slog.LevelWarn
	case logstore.LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
