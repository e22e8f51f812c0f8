package logstore

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// HandlerOptions configure a Handler.
type HandlerOptions struct {
	// Level is the minimum level persisted. Defaults to slog.LevelInfo.
	Level slog.Leveler
}

// Handler is a slog.Handler that appends records to a Store and forwards
// them to an optional next handler.
type Handler struct {
	store Store
	next  slog.Handler
	level slog.Leveler

	attrs  []attrPair
	prefix string
}

type attrPair struct {
	key   string
	value string
}

// NewHandler persists records to store. next may be nil.
func NewHandler(store Store, next slog.Handler, opts *HandlerOptions) *Handler {
	var level slog.Leveler = slog.LevelInfo
	if opts != nil && opts.Level != nil {
		level = opts.Level
	}
	return &Handler{store: store, next: next, level: level}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	if level >= h.level.Level() {
		return true
	}
	return h.next != nil && h.next.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	var storeErr error
	if r.Level >= h.level.Level() && h.store != nil {
		entry := Entry{
			Time:  r.Time,
			Level: FromSlog(r.Level),
			Text:  r.Message,
		}
		pairs := make([]attrPair, 0, len(h.attrs)+r.NumAttrs())
		pairs = append(pairs, h.attrs...)
		r.Attrs(func(a slog.Attr) bool {
			pairs = flatten(pairs, h.prefix, a)
			return true
		})
		if len(pairs) > 0 {
			entry.Attrs = make(map[string]string, len(pairs))
			for _, p := range pairs {
				entry.Attrs[p.key] = p.value
			}
		}
		storeErr = h.store.Append(ctx, entry)
	}

	var nextErr error
	if h.next != nil && h.next.Enabled(ctx, r.Level) {
		nextErr = h.next.Handle(ctx, r)
	}
	return errors.Join(storeErr, nextErr)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := h.clone()
	for _, a := range attrs {
		clone.attrs = flatten(clone.attrs, h.prefix, a)
	}
	if h.next != nil {
		clone.next = h.next.WithAttrs(attrs)
	}
	return clone
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := h.clone()
	clone.prefix = h.prefix + name + "."
	if h.next != nil {
		clone.next = h.next.WithGroup(name)
	}
	return clone
}

func (h *Handler) clone() *Handler {
	c := *h
	c.attrs = append([]attrPair(nil), h.attrs...)
	return &c
}

func flatten(pairs []attrPair, prefix string, a slog.Attr) []attrPair {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return pairs
	}
	if a.Value.Kind() == slog.KindGroup {
		groupPrefix := prefix
		if a.Key != "" {
			groupPrefix = prefix + a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			pairs = flatten(pairs, groupPrefix, ga)
		}
		return pairs
	}
	key := strings.TrimSpace(a.Key)
	if key == "" {
		return pairs
	}
	return append(pairs, attrPair{key: prefix + key, value: a.Value.String()})
}

var _ slog.Handler = (*Handler)(nil)
