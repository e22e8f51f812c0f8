package kv

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Store is a string-valued key-value store. Missing keys report ok=false with
// a nil error.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// ErrEmptyKey is returned for operations on an empty key.
var ErrEmptyKey = errors.New("kv: empty key")

// GetFloat reads a float stored with SetFloat.
func GetFloat(ctx context.Context, s Store, key string) (float64, bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return 0, false, err
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, true, nil
}

// SetFloat stores v under key.
func SetFloat(ctx context.Context, s Store, key string, v float64) error {
	return s.Set(ctx, key, strconv.FormatFloat(v, 'g', -1, 64))
}

// GetInt reads an integer stored with SetInt.
func GetInt(ctx context.Context, s Store, key string) (int64, bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return 0, false, err
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, true, nil
}

// SetInt stores v under key.
func SetInt(ctx context.Context, s Store, key string, v int64) error {
	return s.Set(ctx, key, strconv.FormatInt(v, 10))
}

// GetTime reads a time stored with SetTime.
func GetTime(ctx context.Context, s Store, key string) (time.Time, bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	v, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, true, nil
}

// SetTime stores v under key with nanosecond precision and its zone offset.
func SetTime(ctx context.Context, s Store, key string, v time.Time) error {
	return s.Set(ctx, key, v.Format(time.RFC3339Nano))
}
