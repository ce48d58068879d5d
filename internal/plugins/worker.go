package plugins

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"discburn/internal/burnerr"
	"discburn/internal/pipeline"
)

// copyChunk is the read size of the in-process copy stages.
const copyChunk = 64 * 1024

// Worker runs the body of a stage in the background and reports its result
// through the job. Stages embed one and forward Stop to it.
type Worker struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Go starts body. A nil result finishes the session, an error ends the run.
func (w *Worker) Go(ctx context.Context, j *pipeline.Job, body func(ctx context.Context) error) {
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	w.mu.Lock()
	w.cancel = cancel
	w.done = done
	w.mu.Unlock()

	go func() {
		err := body(runCtx)
		// done closes before reporting: the job may stop this stage while
		// handling the report.
		close(done)
		if err != nil {
			if runCtx.Err() != nil && !burnerr.IsCancel(err) {
				err = burnerr.Cancelled(j.Name())
			}
			j.Error(err)
			return
		}
		j.FinishedSession()
	}()
}

// Stop cancels the body and waits for it to return.
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Sink is where a stage writes its product: the pipe into the next job or
// the output file of the last one.
type Sink struct {
	io.Writer
	file *os.File
	path string
}

// OpenSink returns the writer for j's product.
func OpenSink(j *pipeline.Job) (*Sink, error) {
	if w := j.Output(); w != nil {
		return &Sink{Writer: w}, nil
	}
	path, _ := j.OutputPath()
	if path == "" {
		return nil, burnerr.New(burnerr.KindOutputNone, j.Name(), "no output for stage")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, ClassifyFileError(j.Name(), "open output", err)
	}
	return &Sink{Writer: f, file: f, path: path}, nil
}

// Path is the output file, empty for a pipe.
func (s *Sink) Path() string { return s.path }

// Close closes the output file. Pipes are closed by the job.
func (s *Sink) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}

// ClassifyFileError maps local filesystem failures to the kinds the
// controller can recover from.
func ClassifyFileError(op, message string, err error) error {
	switch {
	case errors.Is(err, os.ErrPermission):
		return burnerr.Wrap(burnerr.KindPermission, op, message, err)
	case isNoSpace(err):
		return burnerr.Wrap(burnerr.KindDiskSpace, op, message, err)
	default:
		return burnerr.Wrap(burnerr.KindGeneral, op, message, err)
	}
}

// CountingWriter forwards writes and reports the running total.
type CountingWriter struct {
	w       io.Writer
	written atomic.Int64
	report  func(int64)
}

// NewCountingWriter wraps w. report may be nil.
func NewCountingWriter(w io.Writer, report func(int64)) *CountingWriter {
	return &CountingWriter{w: w, report: report}
}

func (c *CountingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	total := c.written.Add(int64(n))
	if c.report != nil {
		c.report(total)
	}
	return n, err
}

// Written returns the bytes forwarded so far.
func (c *CountingWriter) Written() int64 { return c.written.Load() }

func isNoSpace(err error) bool {
	return errors.Is(err, unix.ENOSPC) || errors.Is(err, unix.EDQUOT)
}

// Copy moves src into dst in chunks, honouring ctx and reporting the running
// total to progress.
func Copy(ctx context.Context, dst io.Writer, src io.Reader, progress func(written int64)) (int64, error) {
	buf := make([]byte, copyChunk)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			m, writeErr := dst.Write(buf[:n])
			written += int64(m)
			if progress != nil {
				progress(written)
			}
			if writeErr != nil {
				return written, fmt.Errorf("write: %w", writeErr)
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, fmt.Errorf("read: %w", readErr)
		}
	}
}
