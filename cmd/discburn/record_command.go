package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"discburn/internal/burn"
	"discburn/internal/preflight"
	"discburn/internal/session"
)

func newRecordCommand(ctx *commandContext) *cobra.Command {
	var opts recordOptions

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Write files, an image, audio or a disc copy",
		Long: `Write a session to a disc or to an image file.

The input is one of --data (files and directories), --image (an ISO or a
CUE sheet), --audio (tracks in order) or --copy (another drive). A TOML
session file given with --session replaces all of these.`,
		Example: `  discburn record --data ~/photos --label PHOTOS
  discburn record --image debian.iso --device /dev/sr1 --checksum sha256
  discburn record --copy /dev/sr0 --output copy.iso`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if failed := preflight.Failed(preflight.RunAll(cmd.Context(), cfg)); len(failed) > 0 {
				for _, r := range failed {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", r.Name, r.Detail)
				}
				return fmt.Errorf("preflight failed; run `discburn status` for details")
			}
			s, err := buildRecordSession(cfg, opts, ctx.resolver(cmd.Context()))
			if err != nil {
				return err
			}
			err = runOperation(cmd, ctx, s, opts.assumeYes, func(b *burn.Burn, runCtx context.Context, s *session.Session) error {
				return b.Record(runCtx, s)
			})
			if err != nil {
				return err
			}
			printRecordSummary(cmd, s)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.sessionFile, "session", "", "TOML session description")
	flags.StringArrayVar(&opts.data, "data", nil, "File or directory to write (repeatable)")
	flags.StringVar(&opts.image, "image", "", "ISO image or CUE sheet to write")
	flags.StringVar(&opts.toc, "toc", "", "CUE sheet accompanying a BIN --image")
	flags.StringArrayVar(&opts.audio, "audio", nil, "Audio track to write (repeatable, in order)")
	flags.StringVar(&opts.source, "copy", "", "Drive holding the disc to copy")
	flags.StringVarP(&opts.device, "device", "d", "", "Recorder device (defaults to drive.device)")
	flags.StringVarP(&opts.output, "output", "o", "", "Write an image file instead of a disc")
	flags.StringVar(&opts.format, "format", "", "Image format for --output: iso or cue")
	flags.StringVar(&opts.label, "label", "", "Volume label for data discs")
	flags.Float64Var(&opts.speed, "speed", 0, "Write speed multiplier (0 for the maximum)")
	flags.StringVar(&opts.checksum, "checksum", "", "Verify with md5, sha1, sha256 or none")
	flags.BoolVar(&opts.dummy, "dummy", false, "Simulate the write first")
	flags.BoolVar(&opts.noEject, "no-eject", false, "Leave the disc in the drive")
	flags.BoolVar(&opts.onTheFly, "on-the-fly", false, "Do not build a temporary image")
	flags.BoolVar(&opts.multi, "multi", false, "Leave the disc appendable")
	flags.BoolVar(&opts.appendTo, "append", false, "Add a session after the existing ones")
	flags.BoolVar(&opts.merge, "merge", false, "Add files to the data already on the disc")
	flags.BoolVar(&opts.blank, "blank", false, "Blank a rewritable disc first")
	flags.BoolVar(&opts.overburn, "overburn", false, "Allow writing past the nominal capacity")
	flags.BoolVar(&opts.noCheck, "no-size-check", false, "Do not refuse images larger than the disc")
	flags.BoolVarP(&opts.assumeYes, "yes", "y", false, "Accept every warning")
	return cmd
}

func printRecordSummary(cmd *cobra.Command, s *session.Session) {
	out := cmd.OutOrStdout()
	if s.IsDestFile() {
		image, _ := s.OutputPath()
		fmt.Fprintf(out, "Image written to %s\n", image)
	} else {
		fmt.Fprintf(out, "Disc written in %s\n", s.Burner().DisplayName())
	}
	if tracks := s.Tracks(); len(tracks) == 1 && tracks[0].Checksum.Digest != "" {
		fmt.Fprintf(out, "%s: %s (verified)\n", tracks[0].Checksum.Type, tracks[0].Checksum.Digest)
	}
}
