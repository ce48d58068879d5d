package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"discburn/internal/burn"
	"discburn/internal/session"
)

func newBlankCommand(ctx *commandContext) *cobra.Command {
	var device string
	var full, dummy, noEject, assumeYes bool

	cmd := &cobra.Command{
		Use:   "blank",
		Short: "Erase a rewritable disc",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			drive, err := ctx.drive(cmd.Context(), firstNonEmpty(device, cfg.Drive.Device))
			if err != nil {
				return err
			}
			s := session.New()
			s.SetBurner(drive)
			s.SetTmpDir(cfg.Paths.TmpDir)
			flags := session.FlagNoGrace
			if !full {
				flags |= session.FlagFastBlank
			}
			if dummy {
				flags |= session.FlagDummy
			}
			if cfg.Drive.Eject && !noEject {
				flags |= session.FlagEject
			}
			s.SetFlags(flags)

			err = runOperation(cmd, ctx, s, assumeYes, func(b *burn.Burn, runCtx context.Context, s *session.Session) error {
				return b.Blank(runCtx, s)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s blanked\n", drive.DisplayName())
			return nil
		},
	}

	cmd.Flags().StringVarP(&device, "device", "d", "", "Recorder device (defaults to drive.device)")
	cmd.Flags().BoolVar(&full, "full", false, "Erase the whole disc instead of the table of contents")
	cmd.Flags().BoolVar(&dummy, "dummy", false, "Simulate blanking")
	cmd.Flags().BoolVar(&noEject, "no-eject", false, "Leave the disc in the drive")
	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Accept every warning")
	return cmd
}
