package procexec

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"

	"golang.org/x/sync/errgroup"
)

// stderrTail bounds the stderr lines kept for error reports.
const stderrTail = 8

// Command describes one external process invocation.
type Command struct {
	Binary string
	Args   []string
	Dir    string
	// Stdin, when set, is copied into the process.
	Stdin io.Reader
	// Stdout, when set, receives raw stdout bytes and OnStdout is not called.
	Stdout   io.Writer
	OnStdout func(string)
	OnStderr func(string)
}

func (c Command) String() string {
	return strings.TrimSpace(c.Binary + " " + strings.Join(c.Args, " "))
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, cmd Command) error
	Output(ctx context.Context, binary string, args ...string) ([]byte, error)
}

// ExitError reports a process that ran but did not exit cleanly.
type ExitError struct {
	Binary string
	Code   int
	Stderr []string
	Err    error
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Binary, e.Code)
	if len(e.Stderr) > 0 {
		msg += ": " + e.Stderr[len(e.Stderr)-1]
	}
	return msg
}

func (e *ExitError) Unwrap() error { return e.Err }

// New returns an executor that runs real processes.
func New() Executor {
	return commandExecutor{}
}

type commandExecutor struct{}

func (commandExecutor) Output(ctx context.Context, binary string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return out, exitError(binary, err, splitLines(stderr.String()))
	}
	return out, nil
}

func (commandExecutor) Run(ctx context.Context, spec Command) error {
	if strings.TrimSpace(spec.Binary) == "" {
		return errors.New("procexec: binary required")
	}
	cmd := exec.CommandContext(ctx, spec.Binary, spec.Args...) //nolint:gosec
	cmd.Dir = spec.Dir

	var stdin io.WriteCloser
	var err error
	if spec.Stdin != nil {
		if stdin, err = cmd.StdinPipe(); err != nil {
			return fmt.Errorf("stdin pipe: %w", err)
		}
	}
	var stdout io.ReadCloser
	if spec.Stdout != nil {
		cmd.Stdout = spec.Stdout
	} else if stdout, err = cmd.StdoutPipe(); err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", spec.Binary, err)
	}

	var mu sync.Mutex
	var tail []string
	keep := func(line string) {
		mu.Lock()
		tail = append(tail, line)
		if len(tail) > stderrTail {
			tail = tail[len(tail)-stderrTail:]
		}
		mu.Unlock()
		if spec.OnStderr != nil {
			spec.OnStderr(line)
		}
	}

	var g errgroup.Group
	if stdin != nil {
		g.Go(func() error {
			defer stdin.Close()
			if _, err := io.Copy(stdin, spec.Stdin); err != nil && !errors.Is(err, io.ErrClosedPipe) && !errors.Is(err, syscall.EPIPE) {
				return fmt.Errorf("feed stdin: %w", err)
			}
			return nil
		})
	}
	if stdout != nil {
		g.Go(func() error { return scan(stdout, spec.OnStdout) })
	}
	g.Go(func() error { return scan(stderr, keep) })

	if err := g.Wait(); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fmt.Errorf("scan output: %w", err)
	}
	if err := cmd.Wait(); err != nil {
		mu.Lock()
		defer mu.Unlock()
		return exitError(spec.Binary, err, tail)
	}
	return nil
}

func scan(r io.Reader, forward func(string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	// Recorders redraw progress with carriage returns.
	scanner.Split(scanLinesOrCR)
	for scanner.Scan() {
		if forward != nil {
			forward(scanner.Text())
		}
	}
	return scanner.Err()
}

func scanLinesOrCR(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func exitError(binary string, err error, stderr []string) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Binary: binary, Code: exitErr.ExitCode(), Stderr: append([]string(nil), stderr...), Err: err}
	}
	return fmt.Errorf("run %s: %w", binary, err)
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
