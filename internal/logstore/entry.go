package logstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Level orders log entries from most to least verbose.
type Level int

const (
	LevelVerbose Level = iota + 1
	LevelDebug
	LevelInfo
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelVerbose:
		return "VERBOSE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseLevel accepts level names case-insensitively; "warn" is an alias.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "VERBOSE":
		return LevelVerbose, nil
	case "DEBUG":
		return LevelDebug, nil
	case "INFO", "":
		return LevelInfo, nil
	case "WARNING", "WARN":
		return LevelWarning, nil
	case "ERROR":
		return LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// FromSlog maps a slog level onto the stored levels.
func FromSlog(l slog.Level) Level {
	switch {
	case l >= slog.LevelError:
		return LevelError
	case l >= slog.LevelWarn:
		return LevelWarning
	case l >= slog.LevelInfo:
		return LevelInfo
	case l >= slog.LevelDebug:
		return LevelDebug
	default:
		return LevelVerbose
	}
}

// Entry is one stored log line.
type Entry struct {
	Time  time.Time         `json:"time"`
	Level Level             `json:"level"`
	Text  string            `json:"text"`
	Attrs map[string]string `json:"attrs,omitempty"`
}

// Store persists entries in append order.
type Store interface {
	Append(ctx context.Context, e Entry) error
	// Fetch returns the newest limit entries, oldest first. A limit <= 0
	// returns everything.
	Fetch(ctx context.Context, limit int) ([]Entry, error)
}
