package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Jot is one stored upload.
type Jot struct {
	ID         uuid.UUID       `json:"id"`
	Type       string          `json:"type"`
	Body       json.RawMessage `json:"body"`
	ReceivedAt time.Time       `json:"received_at"`
}

// Repository stores jots.
type Repository interface {
	Save(ctx context.Context, jot Jot) error
	// List returns the newest jots first, optionally filtered by type.
	List(ctx context.Context, kind string, limit int) ([]Jot, error)
	Ping(ctx context.Context) error
	Close() error
}

// ErrClosed is returned by a repository used after Close.
var ErrClosed = errors.New("ingest: repository closed")

const defaultListLimit = 50
