package logging_test

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"discburn/internal/config"
	"discburn/internal/logging"
)

func TestNewFromConfigConsole(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("hello", logging.String(logging.FieldDrive, "/dev/sr0"))

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "discburn.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "/dev/sr0: hello") {
		t.Fatalf("expected drive subject in console output, got %q", content)
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message without caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message with caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), ".go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestConsoleLoggerCapsInfoFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-fields.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	args := make([]any, 0, 10)
	for i := 0; i < 10; i++ {
		args = append(args, logging.Int(string(rune('a'+i)), i))
	}
	logger.Info("many fields", args...)

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "(+2 more)") {
		t.Fatalf("expected hidden field summary, got %q", content)
	}
}

func TestConsoleLoggerSubjectAndGroups(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-subject.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger = logging.NewComponentLogger(logger, "burn").With(
		logging.String(logging.FieldDrive, "/dev/sr1"),
		logging.String(logging.FieldTask, "record"),
	)
	logger.WithGroup("medium").Info("probed",
		logging.String("type", "CD-RW"),
		logging.String("type", "DVD-RW"),
		logging.String("label", "two words"),
	)

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	for _, want := range []string{"[burn] /dev/sr1 (record): probed", "medium.type=DVD-RW", `medium.label="two words"`} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
	if strings.Contains(line, "CD-RW") || strings.Count(line, "\n") != 1 {
		t.Fatalf("expected one line with the last duplicate, got %q", line)
	}
}

func TestNewJSONLogger(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("json message", logging.String("k", "v"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), `"msg":"json message"`) || !strings.Contains(string(content), `"level":"info"`) {
		t.Fatalf("unexpected json output %q", content)
	}
}

func TestJSONLoggerRendersErrorsAndDurations(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Warn("write stalled",
		logging.Error(errors.New("buffer underrun")),
		slog.Duration("rest", 1500*time.Millisecond),
	)

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(content, &record); err != nil {
		t.Fatalf("decode %q: %v", content, err)
	}
	if record["error"] != "buffer underrun" || record["rest"] != 1.5 || record["level"] != "warn" {
		t.Fatalf("unexpected record %v", record)
	}
	if _, err := time.Parse(time.RFC3339Nano, record["time"].(string)); err != nil {
		t.Fatalf("time %v: %v", record["time"], err)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestSessionLogSanitizesAndTagsLines(t *testing.T) {
	dir := t.TempDir()
	sl, err := logging.OpenSessionLog(dir)
	if err != nil {
		t.Fatalf("OpenSessionLog: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(sl.Path), "discburn-") {
		t.Fatalf("unexpected session log name %q", sl.Path)
	}

	sl.Printf("raw \xff bytes")
	logger := sl.Attach(nil)
	logger.Info("burn started", logging.String(logging.FieldDrive, "/dev/sr1"))
	if err := sl.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	content, err := os.ReadFile(sl.Path)
	if err != nil {
		t.Fatalf("read session log: %v", err)
	}
	text := string(content)
	if !strings.Contains(text, "raw � bytes") {
		t.Fatalf("expected ill-formed byte to be replaced, got %q", text)
	}
	if !strings.Contains(text, "session_id="+sl.ID) {
		t.Fatalf("expected session id in %q", text)
	}
	if !strings.Contains(text, "drive=/dev/sr1") {
		t.Fatalf("expected drive attribute in %q", text)
	}
}

func TestPruneSessionLogs(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "discburn-old.log")
	keepPath := filepath.Join(dir, "discburn-keep.log")
	otherPath := filepath.Join(dir, "unrelated.log")
	for _, p := range []string{oldPath, keepPath, otherPath} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		past := time.Now().Add(-48 * time.Hour)
		if err := os.Chtimes(p, past, past); err != nil {
			t.Fatal(err)
		}
	}

	removed := logging.PruneSessionLogs(logging.NewNop(), dir, 24*time.Hour, keepPath)
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Fatal("expected old session log to be removed")
	}
	for _, p := range []string{keepPath, otherPath} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("expected %s to remain: %v", p, err)
		}
	}
}
