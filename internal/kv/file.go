package kv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	toml "github.com/pelletier/go-toml/v2"
)

const defaultFilePath = "~/.local/state/jottly/store.toml"

type fileContents struct {
	Values map[string]string `toml:"values"`
}

// FileStore keeps every value in a single TOML file that is rewritten on
// each change.
type FileStore struct {
	path   string
	logger *slog.Logger

	mu     sync.Mutex
	values map[string]string
}

// OpenFile loads the store at path. A missing or unreadable file starts an
// empty store; the file is created on the first write.
func OpenFile(path string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}
	s := &FileStore{path: resolved, logger: logger, values: make(map[string]string)}
	s.load()
	return s, nil
}

// Path returns the resolved file path.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) load() {
	file, err := os.Open(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("kv file unreadable, starting empty", "path", s.path, "error", err)
		}
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		s.logger.Warn("kv file unreadable, starting empty", "path", s.path, "error", err)
		return
	}
	var contents fileContents
	if err := toml.Unmarshal(data, &contents); err != nil {
		s.logger.Warn("kv file corrupt, starting empty", "path", s.path, "error", err)
		return
	}
	for k, v := range contents.Values {
		s.values[k] = v
	}
}

func (s *FileStore) Get(_ context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *FileStore) Set(_ context.Context, key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.values[key]
	s.values[key] = value
	if err := s.saveLocked(); err != nil {
		if had {
			s.values[key] = prev
		} else {
			delete(s.values, key)
		}
		return err
	}
	return nil
}

func (s *FileStore) Delete(_ context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.values[key]; !ok {
		return nil
	}
	delete(s.values, key)
	return s.saveLocked()
}

func (s *FileStore) Close() error {
	return nil
}

// saveLocked writes to a temporary file and renames it into place.
func (s *FileStore) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	data, err := toml.Marshal(fileContents{Values: s.values})
	if err != nil {
		return fmt.Errorf("marshal store: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace store: %w", err)
	}
	return nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultFilePath)
	}
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}

var _ Store = (*FileStore)(nil)
