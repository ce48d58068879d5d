package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"discburn/internal/burnerr"
)

// Result is the outcome recorded for a run.
type Result string

const (
	ResultRunning     Result = "running"
	ResultSucceeded   Result = "succeeded"
	ResultFailed      Result = "failed"
	ResultCancelled   Result = "cancelled"
	ResultInterrupted Result = "interrupted"
)

// Run is one journaled operation.
type Run struct {
	ID           string
	Kind         string
	Target       string
	StartedAt    time.Time
	FinishedAt   *time.Time
	Result       Result
	ErrorKind    string
	ErrorMessage string
	BytesWritten int64
	LogPath      string
}

// Duration is how long the run took, or has taken so far.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

const runColumns = "id, kind, target, started_at, finished_at, result, error_kind, error_message, bytes_written, log_path"

// Begin inserts a running entry and returns its identifier.
func (s *Store) Begin(ctx context.Context, kind, target, logPath string) (string, error) {
	id := uuid.NewString()
	_, err := s.execWithRetry(ctx,
		`INSERT INTO runs (id, kind, target, started_at, result, log_path) VALUES (?, ?, ?, ?, ?, ?)`,
		id,
		kind,
		nullableString(target),
		time.Now().UTC().Format(time.RFC3339Nano),
		ResultRunning,
		nullableString(logPath),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// Finish records the outcome of a run started with Begin.
func (s *Store) Finish(ctx context.Context, id string, result error, written int64) error {
	outcome := ResultSucceeded
	var kind, message string
	switch {
	case result == nil:
	case burnerr.IsCancel(result):
		outcome = ResultCancelled
	default:
		outcome = ResultFailed
		kind = burnerr.KindOf(result).String()
		message = result.Error()
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE runs
         SET finished_at = ?, result = ?, error_kind = ?, error_message = ?, bytes_written = ?
         WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano),
		outcome,
		nullableString(kind),
		nullableString(message),
		written,
		id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run: %s not found", id)
	}
	return nil
}

// Get returns the run with id, or nil when there is none.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	Kind   string
	Result Result
	Limit  int
}

// List returns runs, newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]*Run, error) {
	var (
		where []string
		args  []any
	)
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, f.Kind)
	}
	if f.Result != "" {
		where = append(where, "result = ?")
		args = append(args, f.Result)
	}
	query := `SELECT ` + runColumns + ` FROM runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// MarkInterrupted closes entries left running by a process that died. It
// returns how many were updated.
func (s *Store) MarkInterrupted(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE runs SET result = ?, finished_at = ? WHERE result = ?`,
		ResultInterrupted,
		time.Now().UTC().Format(time.RFC3339Nano),
		ResultRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("mark interrupted: %w", err)
	}
	return res.RowsAffected()
}

// Prune removes finished runs older than cutoff.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`DELETE FROM runs WHERE result != ? AND started_at < ?`,
		ResultRunning,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes every run.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM runs`)
	if err != nil {
		return 0, fmt.Errorf("clear runs: %w", err)
	}
	return res.RowsAffected()
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		run         Run
		target      sql.NullString
		startedRaw  string
		finishedRaw sql.NullString
		result      string
		errorKind   sql.NullString
		errorMsg    sql.NullString
		logPath     sql.NullString
	)
	if err := scanner.Scan(
		&run.ID,
		&run.Kind,
		&target,
		&startedRaw,
		&finishedRaw,
		&result,
		&errorKind,
		&errorMsg,
		&run.BytesWritten,
		&logPath,
	); err != nil {
		return nil, err
	}
	run.Target = target.String
	run.Result = Result(result)
	run.ErrorKind = errorKind.String
	run.ErrorMessage = errorMsg.String
	run.LogPath = logPath.String
	if started, err := parseTimeString(startedRaw); err == nil {
		run.StartedAt = started
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			run.FinishedAt = &finished
		}
	}
	return &run, nil
}
