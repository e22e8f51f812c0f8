// Package logview renders stored log entries for the terminal.
package logview

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/hamchapman/jottly/internal/logstore"
)

// Palette holds the colors used for each part of a line.
type Palette struct {
	Time    string
	Verbose string
	Debug   string
	Info    string
	Warning string
	Error   string
	Key     string
}

// Nightfox is the default palette.
func Nightfox() Palette {
	return Palette{
		Time:    "#738091", // comment
		Verbose: "#71839b", // fg3
		Debug:   "#9d79d6", // magenta
		Info:    "#63cdcf", // cyan
		Warning: "#dbc074", // yellow
		Error:   "#c94f6d", // red
		Key:     "#719cd6", // blue
	}
}

// Options control Render.
type Options struct {
	// Color enables lipgloss styling.
	Color   bool
	Palette Palette
	// MinLevel drops entries below it. Zero keeps everything.
	MinLevel logstore.Level
	// Contains keeps entries whose text includes it, case-insensitively.
	Contains string
	// Location for timestamps; defaults to time.Local.
	Location *time.Location
}

type styles struct {
	time   lipgloss.Style
	key    lipgloss.Style
	levels map[logstore.Level]lipgloss.Style
}

func newStyles(r *lipgloss.Renderer, p Palette) styles {
	level := func(c string) lipgloss.Style {
		return r.NewStyle().Foreground(lipgloss.Color(c)).Bold(true)
	}
	return styles{
		time: r.NewStyle().Foreground(lipgloss.Color(p.Time)),
		key:  r.NewStyle().Foreground(lipgloss.Color(p.Key)),
		levels: map[logstore.Level]lipgloss.Style{
			logstore.LevelVerbose: level(p.Verbose),
			logstore.LevelDebug:   level(p.Debug),
			logstore.LevelInfo:    level(p.Info),
			logstore.LevelWarning: level(p.Warning),
			logstore.LevelError:   level(p.Error),
		},
	}
}

// Render writes one line per entry, plus an indented line per attribute.
func Render(w io.Writer, entries []logstore.Entry, opts Options) error {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Palette == (Palette{}) {
		opts.Palette = Nightfox()
	}
	var st *styles
	if opts.Color {
		s := newStyles(lipgloss.NewRenderer(w), opts.Palette)
		st = &s
	}

	needle := strings.ToLower(strings.TrimSpace(opts.Contains))
	for _, e := range entries {
		if e.Level < opts.MinLevel {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(e.Text), needle) {
			continue
		}
		if _, err := io.WriteString(w, formatEntry(e, opts.Location, st)+"\n"); err != nil {
			return fmt.Errorf("write log entry: %w", err)
		}
	}
	return nil
}

// formatEntry styles the line when st is non-nil.
func formatEntry(e logstore.Entry, loc *time.Location, st *styles) string {
	ts := e.Time.In(loc).Format("2006-01-02 15:04:05")
	level := fmt.Sprintf("%-7s", e.Level.String())
	text := strings.TrimSpace(e.Text)
	if st != nil {
		ts = st.time.Render(ts)
		if ls, ok := st.levels[e.Level]; ok {
			level = ls.Render(level)
		}
	}

	var b strings.Builder
	b.WriteString(ts)
	b.WriteString(" ")
	b.WriteString(level)
	if text != "" {
		b.WriteString(" ")
		b.WriteString(text)
	}

	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := strings.TrimSpace(e.Attrs[k])
		if v == "" {
			continue
		}
		label := k
		if st != nil {
			label = st.key.Render(k)
		}
		b.WriteString("\n    - ")
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(v)
	}
	return b.String()
}
