package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"discburn/internal/burn"
	"discburn/internal/config"
	"discburn/internal/session"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var image, device, algorithm, digest string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Compute or verify the checksum of an image or disc",
		Example: `  discburn check --image debian.iso --checksum sha256 --digest 4f1c...
  discburn check --device /dev/sr0 --checksum md5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			track, err := checkTrack(cmd.Context(), ctx, cfg, image, device)
			if err != nil {
				return err
			}
			kind, err := session.ParseChecksumType(firstNonEmpty(algorithm, cfg.Burn.Checksum, "sha256"))
			if err != nil {
				return err
			}
			if kind == session.ChecksumNone {
				kind = session.ChecksumSHA256
			}
			track.Checksum = session.Checksum{Type: kind, Digest: strings.ToLower(strings.TrimSpace(digest))}

			s := session.New()
			s.SetTmpDir(cfg.Paths.TmpDir)
			if err := s.AddTrack(track); err != nil {
				return err
			}
			err = runOperation(cmd, ctx, s, true, func(b *burn.Burn, runCtx context.Context, s *session.Session) error {
				return b.Check(runCtx, s)
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if digest != "" {
				fmt.Fprintf(out, "%s matches\n", kind)
			} else {
				fmt.Fprintf(out, "%s: %s\n", kind, track.Checksum.Digest)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&image, "image", "", "Image file to check")
	cmd.Flags().StringVarP(&device, "device", "d", "", "Drive holding the disc to check")
	cmd.Flags().StringVar(&algorithm, "checksum", "", "md5, sha1 or sha256")
	cmd.Flags().StringVar(&digest, "digest", "", "Expected digest; without it the digest is printed")
	return cmd
}

func checkTrack(ctx context.Context, cctx *commandContext, cfg *config.Config, image, device string) (*session.Track, error) {
	switch {
	case image != "" && device != "":
		return nil, fmt.Errorf("--image and --device are mutually exclusive")
	case image != "":
		path, err := config.ExpandPath(image)
		if err != nil {
			return nil, err
		}
		return session.NewImageTrack(path, "", session.FormatBIN), nil
	default:
		drive, err := cctx.drive(ctx, firstNonEmpty(device, cfg.Drive.Device))
		if err != nil {
			return nil, err
		}
		return session.NewDiscTrack(drive), nil
	}
}
