package media

import (
	"context"
	"fmt"

	"discburn/internal/procexec"
)

// Ejector defines the fallback eject path used when the ioctl fails.
type Ejector interface {
	Eject(ctx context.Context, device string) error
}

type commandEjector struct {
	exec   procexec.Executor
	binary string
}

// NewEjector creates an ejector that shells out to the eject utility.
func NewEjector(exec procexec.Executor, binary string) Ejector {
	if exec == nil {
		exec = procexec.New()
	}
	if binary == "" {
		binary = "eject"
	}
	return commandEjector{exec: exec, binary: binary}
}

func (e commandEjector) Eject(ctx context.Context, device string) error {
	var args []string
	if device != "" {
		args = append(args, device)
	}
	if _, err := e.exec.Output(ctx, e.binary, args...); err != nil {
		return fmt.Errorf("eject %s: %w", device, err)
	}
	return nil
}
