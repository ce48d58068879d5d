package burn

import (
	"context"

	"discburn/internal/burnerr"
	"discburn/internal/logging"
	"discburn/internal/media"
	"discburn/internal/pipeline"
)

// unmount unmounts every volume of drive's medium.
func (b *Burn) unmount(ctx context.Context, drive media.Drive) error {
	attempts := 0
	for drive.IsMounted() {
		if attempts > maxEjectAttempts {
			return burnerr.Newf(burnerr.KindDriveBusy, "unmount", "%s stays mounted", drive.DisplayName())
		}
		attempts++
		if err := drive.Unmount(ctx); err != nil {
			b.logger.Debug("unmount attempt failed",
				logging.Int("attempt", attempts),
				logging.String(logging.FieldDrive, drive.Device()),
				logging.Error(err),
			)
		}
		if !drive.IsMounted() {
			break
		}
		if err := b.wait(ctx, "unmount", ejectRetryDelay); err != nil {
			return err
		}
	}
	return nil
}

// eject opens the tray of drive. Past maxEjectAttempts failures the caller
// is asked once whether to keep trying.
func (b *Burn) eject(ctx context.Context, drive media.Drive) error {
	if err := b.unmount(ctx, drive); err != nil {
		return err
	}
	b.releaseDrive(drive)
	b.interaction.ActionChanged(pipeline.ActionEjecting, pipeline.ActionEjecting.String())

	attempts := 0
	for drive.Medium() != nil || drive.Probing() {
		if drive.Probing() {
			if err := b.wait(ctx, "eject", ejectRetryDelay); err != nil {
				return err
			}
			continue
		}
		attempts++
		err := drive.Eject(ctx)
		if err == nil && drive.Medium() == nil {
			break
		}
		if err != nil {
			b.logger.Debug("eject attempt failed",
				logging.Int("attempt", attempts),
				logging.String(logging.FieldDrive, drive.Device()),
				logging.Error(err),
			)
		}
		if attempts >= maxEjectAttempts {
			logging.WarnWithContext(b.logger, "drive will not eject", "eject_failed",
				logging.String(logging.FieldDrive, drive.Device()),
				logging.Int("attempts", attempts),
				logging.String(logging.FieldImpact, "medium must be removed by hand"),
			)
			switch b.interaction.EjectFailure(ctx, drive) {
			case AnswerRetry:
				attempts = 0
				continue
			case AnswerOK:
				return nil
			default:
				return burnerr.Cancelled("eject")
			}
		}
		if err := b.wait(ctx, "eject", ejectRetryDelay); err != nil {
			return err
		}
	}
	return nil
}

// ejectAll ejects the source and the destination.
func (b *Burn) ejectAll(ctx context.Context) error {
	b.mu.Lock()
	src, dest := b.src, b.dest
	b.mu.Unlock()
	if src == nil {
		src = b.session.SrcDrive()
	}
	if dest == nil {
		dest = b.session.Burner()
	}
	if src != nil && !media.SameDrive(src, dest) {
		if err := b.eject(ctx, src); err != nil {
			return err
		}
	}
	if dest != nil {
		return b.eject(ctx, dest)
	}
	return nil
}
