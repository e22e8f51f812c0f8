package logstore

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hamchapman/jottly/internal/kv"
)

func texts(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Text
	}
	return out
}

func TestFileStoreFetch(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "logs", "jottly.jsonl"))

	var expectedAll []string
	for i := 1; i <= 10; i++ {
		text := fmt.Sprintf("Line %d", i)
		expectedAll = append(expectedAll, text)
		if err := store.Append(ctx, Entry{Time: time.Unix(int64(i), 0), Level: LevelInfo, Text: text}); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	tests := []struct {
		name     string
		limit    int
		expected []string
	}{
		{name: "read all (0)", limit: 0, expected: expectedAll},
		{name: "read all (negative)", limit: -1, expected: expectedAll},
		{name: "read partial (5)", limit: 5, expected: expectedAll[5:]},
		{name: "read exactly all (10)", limit: 10, expected: expectedAll},
		{name: "read more than exists (20)", limit: 20, expected: expectedAll},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.Fetch(ctx, tt.limit)
			if err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}
			if strings.Join(texts(got), ",") != strings.Join(tt.expected, ",") {
				t.Errorf("Fetch() = %v, want %v", texts(got), tt.expected)
			}
		})
	}
}

func TestFileStoreMissingFile(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "absent.jsonl"))
	got, err := store.Fetch(context.Background(), 10)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Fetch() = %v, want empty", got)
	}
}

func TestFileStoreSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jottly.jsonl")
	content := `{"time":"2024-03-09T10:00:00Z","level":"INFO","text":"first"}
not json
{"time":"2024-03-09T10:01:00Z","level":"ERROR","text":"second"}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := NewFileStore(path).Fetch(context.Background(), 0)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[1].Level != LevelError {
		t.Fatalf("level = %v, want %v", got[1].Level, LevelError)
	}
}

func TestKVStoreBounded(t *testing.T) {
	ctx := context.Background()
	store := NewKVStore(kv.NewMemory(), "", 3)

	for i := 1; i <= 5; i++ {
		if err := store.Append(ctx, Entry{Level: LevelDebug, Text: fmt.Sprintf("e%d", i)}); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	all, err := store.Fetch(ctx, 0)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got := strings.Join(texts(all), ","); got != "e3,e4,e5" {
		t.Fatalf("Fetch(0) = %q, want %q", got, "e3,e4,e5")
	}

	last, err := store.Fetch(ctx, 2)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got := strings.Join(texts(last), ","); got != "e4,e5" {
		t.Fatalf("Fetch(2) = %q, want %q", got, "e4,e5")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"verbose", LevelVerbose},
		{"DEBUG", LevelDebug},
		{"", LevelInfo},
		{"warn", LevelWarning},
		{"Warning", LevelWarning},
		{"error", LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil {
			t.Fatalf("ParseLevel(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestFromSlog(t *testing.T) {
	tests := []struct {
		in   slog.Level
		want Level
	}{
		{slog.LevelDebug - 4, LevelVerbose},
		{slog.LevelDebug, LevelDebug},
		{slog.LevelInfo, LevelInfo},
		{slog.LevelWarn, LevelWarning},
		{slog.LevelError + 2, LevelError},
	}
	for _, tt := range tests {
		if got := FromSlog(tt.in); got != tt.want {
			t.Fatalf("FromSlog(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestHandlerPersistsAndForwards(t *testing.T) {
	ctx := context.Background()
	store := NewKVStore(kv.NewMemory(), "logs", 0)
	var buf bytes.Buffer
	next := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})

	logger := slog.New(NewHandler(store, next, nil))
	logger = logger.With("component", "updater").WithGroup("upload")

	logger.Debug("not persisted")
	logger.Info("jot sent", "type", "steps", slog.Group("resp", "status", 200))

	entries, err := store.Fetch(ctx, 0)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Text != "jot sent" || e.Level != LevelInfo {
		t.Fatalf("entry = %+v", e)
	}
	want := map[string]string{
		"component":          "updater",
		"upload.type":        "steps",
		"upload.resp.status": "200",
	}
	for k, v := range want {
		if e.Attrs[k] != v {
			t.Fatalf("attr %q = %q, want %q (attrs %v)", k, e.Attrs[k], v, e.Attrs)
		}
	}

	out := buf.String()
	if !strings.Contains(out, "not persisted") || !strings.Contains(out, "jot sent") {
		t.Fatalf("next handler output missing records: %q", out)
	}
}

func TestHandlerLevel(t *testing.T) {
	store := NewKVStore(kv.NewMemory(), "logs", 0)
	h := NewHandler(store, nil, &HandlerOptions{Level: slog.LevelWarn})

	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("info enabled without next handler")
	}
	logger := slog.New(h)
	logger.Info("dropped")
	logger.Warn("kept")

	entries, err := store.Fetch(context.Background(), 0)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got := strings.Join(texts(entries), ","); got != "kept" {
		t.Fatalf("entries = %q, want %q", got, "kept")
	}
}
