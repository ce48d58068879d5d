package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// infoAttrLimit caps the fields printed on an info or louder line.
	infoAttrLimit = 8

	consoleTimeLayout = "2006-01-02 15:04:05"
)

// consoleHandler writes one line per record:
//
//	2026-10-19 21:04:05 INFO  [burn] /dev/sr0 (record): recording started  speed=8 flags=eject|dao
//
// The component, drive and task attributes form the line prefix instead of
// being repeated as fields.
type consoleHandler struct {
	mu        *sync.Mutex
	w         io.Writer
	level     *slog.LevelVar
	addSource bool
	group     string
	fields    []field
}

type field struct {
	key   string
	value slog.Value
}

func newPrettyHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return &consoleHandler{mu: new(sync.Mutex), w: w, level: lvl, addSource: addSource}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	fields := make([]field, 0, len(h.fields)+record.NumAttrs())
	fields = append(fields, h.fields...)
	record.Attrs(func(a slog.Attr) bool {
		fields = appendField(fields, h.group, a)
		return true
	})

	var component, drive, task string
	seen := make(map[string]int, len(fields))
	rest := fields[:0]
	for _, f := range fields {
		switch f.key {
		case FieldComponent:
			if component == "" {
				component = plainValue(f.value)
			}
			continue
		case FieldDrive:
			drive = plainValue(f.value)
			continue
		case FieldTask:
			task = plainValue(f.value)
			continue
		}
		if i, ok := seen[f.key]; ok {
			rest[i] = f
			continue
		}
		seen[f.key] = len(rest)
		rest = append(rest, f)
	}

	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	var b strings.Builder
	b.WriteString(ts.Local().Format(consoleTimeLayout))
	fmt.Fprintf(&b, " %-5s", levelLabel(record.Level))
	if component != "" {
		b.WriteString(" [" + component + "]")
	}
	if subject := subjectOf(drive, task); subject != "" {
		b.WriteString(" " + subject + ":")
	}
	message := strings.TrimSpace(record.Message)
	if message == "" {
		message = "(no message)"
	}
	b.WriteString(" " + message)

	shown := rest
	if record.Level >= slog.LevelInfo && len(shown) > infoAttrLimit {
		shown = shown[:infoAttrLimit]
	}
	for i, f := range shown {
		if i == 0 {
			b.WriteByte(' ')
		}
		b.WriteString(" " + f.key + "=" + quotedValue(f.value))
	}
	if hidden := len(rest) - len(shown); hidden > 0 {
		fmt.Fprintf(&b, " (+%d more)", hidden)
	}
	if h.addSource {
		if src := record.Source(); src != nil && src.File != "" {
			fmt.Fprintf(&b, " (%s:%d)", filepath.Base(src.File), src.Line)
		}
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.fields = append([]field(nil), h.fields...)
	for _, a := range attrs {
		next.fields = appendField(next.fields, h.group, a)
	}
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.group = joinKey(h.group, name)
	return &next
}

// appendField flattens a into dotted keys under group.
func appendField(dst []field, group string, a slog.Attr) []field {
	if a.Equal(slog.Attr{}) {
		return dst
	}
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		inner := group
		if a.Key != "" {
			inner = joinKey(group, a.Key)
		}
		for _, ga := range v.Group() {
			dst = appendField(dst, inner, ga)
		}
		return dst
	}
	key := joinKey(group, a.Key)
	if key == "" {
		return dst
	}
	return append(dst, field{key: key, value: v})
}

func joinKey(group, key string) string {
	switch {
	case group == "":
		return key
	case key == "":
		return group
	default:
		return group + "." + key
	}
}

func subjectOf(drive, task string) string {
	drive = strings.TrimSpace(drive)
	task = strings.TrimSpace(task)
	switch {
	case drive != "" && task != "":
		return drive + " (" + task + ")"
	case drive != "":
		return drive
	default:
		return task
	}
}

// plainValue renders v without quoting, for the line prefix.
func plainValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindTime:
		return v.Time().Local().Format(consoleTimeLayout)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	default:
		return v.String()
	}
}

// quotedValue renders v as a field value, quoting anything with spaces or
// separators.
func quotedValue(v slog.Value) string {
	s := plainValue(v)
	if s == "" || strings.ContainsFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) {
		return strconv.Quote(s)
	}
	return s
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
