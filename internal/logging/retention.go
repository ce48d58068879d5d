package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// PruneSessionLogs removes session logs in dir older than maxAge. The file
// at keep (usually the log of the running operation) is never removed. A
// non-positive maxAge disables pruning.
func PruneSessionLogs(logger *slog.Logger, dir string, maxAge time.Duration, keep string) int {
	if maxAge <= 0 {
		return 0
	}
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = os.TempDir()
	}
	matches, err := filepath.Glob(filepath.Join(dir, SessionLogPattern))
	if err != nil {
		return 0
	}
	cutoff := time.Now().Add(-maxAge)
	keepAbs, _ := filepath.Abs(keep)

	removed := 0
	for _, path := range matches {
		if abs, err := filepath.Abs(path); err == nil && abs == keepAbs {
			continue
		}
		info, err := os.Stat(path)
		if err != nil || info.IsDir() || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			WarnWithContext(logger, "session log prune failed; file remains", "session_log_prune_failed",
				String("path", path),
				Error(err),
				String(FieldErrorHint, "check permissions of the temporary directory"),
				String(FieldImpact, "old session log remains on disk"),
			)
			continue
		}
		removed++
		if logger != nil {
			logger.Debug("session log pruned",
				String("path", path),
				String(FieldEventType, "session_log_pruned"),
			)
		}
	}
	return removed
}
