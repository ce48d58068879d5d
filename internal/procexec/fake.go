package procexec

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Script is the canned behaviour of one binary inside a Fake.
type Script struct {
	Stdout []string
	Stderr []string
	// Data is written to Command.Stdout when set.
	Data []byte
	Err  error
}

// Fake replays scripted output instead of running processes.
type Fake struct {
	mu      sync.Mutex
	scripts map[string]Script
	Calls   []Command
	// Stdin collects everything fed to scripted processes.
	Stdin []byte
}

// NewFake returns an executor that answers from scripts keyed by binary name.
func NewFake(scripts map[string]Script) *Fake {
	return &Fake{scripts: scripts}
}

// Set replaces the script for binary.
func (f *Fake) Set(binary string, s Script) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scripts == nil {
		f.scripts = map[string]Script{}
	}
	f.scripts[binary] = s
}

func (f *Fake) lookup(cmd Command) (Script, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, cmd)
	s, ok := f.scripts[cmd.Binary]
	if !ok {
		return Script{}, fmt.Errorf("run %s: executable file not found in $PATH", cmd.Binary)
	}
	return s, nil
}

func (f *Fake) Run(ctx context.Context, cmd Command) error {
	s, err := f.lookup(cmd)
	if err != nil {
		return err
	}
	if cmd.Stdin != nil {
		data, err := io.ReadAll(cmd.Stdin)
		if err != nil {
			return err
		}
		f.mu.Lock()
		f.Stdin = append(f.Stdin, data...)
		f.mu.Unlock()
	}
	if cmd.Stdout != nil && len(s.Data) > 0 {
		if _, err := cmd.Stdout.Write(s.Data); err != nil {
			return err
		}
	}
	for _, line := range s.Stdout {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if cmd.OnStdout != nil && cmd.Stdout == nil {
			cmd.OnStdout(line)
		}
	}
	for _, line := range s.Stderr {
		if cmd.OnStderr != nil {
			cmd.OnStderr(line)
		}
	}
	return s.Err
}

func (f *Fake) Output(_ context.Context, binary string, args ...string) ([]byte, error) {
	s, err := f.lookup(Command{Binary: binary, Args: args})
	if err != nil {
		return nil, err
	}
	return []byte(strings.Join(s.Stdout, "\n")), s.Err
}
