package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// SessionLogPattern matches the diagnostic files created by OpenSessionLog.
const SessionLogPattern = "discburn-*.log"

// SessionLog is the append-only diagnostic log of one burn operation. Every
// line written through it is valid UTF-8.
type SessionLog struct {
	ID   string
	Path string

	mu     sync.Mutex
	file   *os.File
	writer io.Writer
}

// OpenSessionLog creates a fresh session log in dir (the system temporary
// directory when dir is empty).
func OpenSessionLog(dir string) (*SessionLog, error) {
	if strings.TrimSpace(dir) == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure session log directory: %w", err)
	}
	id := uuid.NewString()
	path := filepath.Join(dir, "discburn-"+id+".log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open session log: %w", err)
	}
	return &SessionLog{
		ID:     id,
		Path:   path,
		file:   file,
		writer: transform.NewWriter(file, runes.ReplaceIllFormed()),
	}, nil
}

// Write appends raw bytes, replacing ill-formed UTF-8 sequences.
func (l *SessionLog) Write(p []byte) (int, error) {
	if l == nil {
		return len(p), nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writer == nil {
		return 0, os.ErrClosed
	}
	if _, err := l.writer.Write(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Printf appends one formatted line.
func (l *SessionLog) Printf(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	_, _ = l.Write([]byte(line))
}

// Handler returns a plain-text slog handler that writes into the session log
// and stamps every record with the session id.
func (l *SessionLog) Handler(level slog.Level) slog.Handler {
	if l == nil {
		return NoopHandler{}
	}
	opts := &slog.HandlerOptions{Level: level}
	return slog.NewTextHandler(l, opts).WithAttrs([]slog.Attr{slog.String(FieldSessionID, l.ID)})
}

// Attach tees base into the session log.
func (l *SessionLog) Attach(base *slog.Logger) *slog.Logger {
	if l == nil {
		if base == nil {
			return NewNop()
		}
		return base
	}
	return TeeLogger(base, l.Handler(slog.LevelDebug))
}

// Close flushes the transformer and closes the file. The file stays on disk.
func (l *SessionLog) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	var firstErr error
	if closer, ok := l.writer.(io.Closer); ok {
		firstErr = closer.Close()
	}
	if err := l.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	l.file = nil
	l.writer = nil
	return firstErr
}
