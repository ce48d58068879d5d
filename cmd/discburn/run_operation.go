package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"discburn/internal/burn"
	"discburn/internal/burnerr"
	"discburn/internal/logging"
	"discburn/internal/media"
	"discburn/internal/session"
)

// operation is one controller entry point: Record, Blank or Check.
type operation func(b *burn.Burn, ctx context.Context, s *session.Session) error

// runOperation runs op under the controller. The first interrupt asks for a
// protected cancel, which is refused while the disc is being fixated; a
// second interrupt forces it.
func runOperation(cmd *cobra.Command, cctx *commandContext, s *session.Session, assumeYes bool, op operation) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	logger := cctx.loggerValue()

	watcher := media.NewWatcher(logger)
	if err := watcher.Start(ctx); err != nil {
		logger.Debug("media watcher unavailable", logging.Error(err))
	}
	defer watcher.Stop()

	interaction := newConsoleInteraction(cmd.InOrStdin(), cmd.OutOrStdout(), assumeYes, watcher, logger)
	b, err := cctx.controller(ctx, interaction)
	if err != nil {
		return err
	}

	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	done := make(chan error, 1)
	go func() { done <- op(b, ctx, s) }()

	forced := false
	for {
		select {
		case err := <-done:
			return reportResult(cmd.OutOrStdout(), b, err)
		case <-signals:
			if err := b.Cancel(!forced); err != nil {
				if errors.Is(err, burnerr.ErrDangerous) {
					interaction.clearBar()
					fmt.Fprintln(cmd.ErrOrStderr(), "The disc is being finalized and cancelling now may ruin it. Press Ctrl-C again to cancel anyway.")
					forced = true
					continue
				}
				logger.Debug("cancel refused", logging.Error(err))
			}
		}
	}
}

func reportResult(out io.Writer, b *burn.Burn, err error) error {
	if err == nil {
		return nil
	}
	if burnerr.IsCancel(err) {
		fmt.Fprintln(out, "Cancelled.")
		return err
	}
	if path := b.SessionLogPath(); path != "" {
		return fmt.Errorf("%w (details in %s)", err, path)
	}
	return err
}
