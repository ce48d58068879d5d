package burn

import (
	"context"
	"errors"

	"discburn/internal/burnerr"
	"discburn/internal/logging"
	"discburn/internal/media"
	"discburn/internal/session"
)

const lockReason = "discburn: burn in progress"

// waitProbing blocks while drive is probing its medium.
func (b *Burn) waitProbing(ctx context.Context, drive media.Drive) error {
	for drive.Probing() {
		if err := b.wait(ctx, "wait for probe", probeWaitDelay); err != nil {
			return err
		}
	}
	return nil
}

// askMedia prompts for another medium in drive and reprobes it. A cancel
// answer ends the operation.
func (b *Burn) askMedia(ctx context.Context, drive media.Drive, reason burnerr.Kind) error {
	required := b.caps.RequiredMedia(b.session)
	b.logger.Info("medium refused, asking for another",
		logging.String(logging.FieldEventType, "insert_media"),
		logging.String(logging.FieldDrive, drive.Device()),
		logging.String("reason", reason.String()),
		logging.String("required", required.String()),
	)
	if err := answerErr("insert media", b.interaction.InsertMedia(ctx, drive, required, reason)); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return burnerr.Cancelled("insert media")
	}
	if err := drive.Reprobe(ctx); err != nil {
		b.logger.Debug("reprobe failed", logging.Error(err), logging.String(logging.FieldDrive, drive.Device()))
	}
	return nil
}

// lockDestMedia waits until the burner holds a medium fit for the session
// and locks the drive.
func (b *Burn) lockDestMedia(ctx context.Context) error {
	for {
		drive := b.session.Burner()
		if drive == nil {
			return burnerr.New(burnerr.KindOutputNone, "lock destination", "no burner set")
		}
		if err := b.waitProbing(ctx, drive); err != nil {
			return err
		}
		reason, err := b.classifyDest(drive)
		if err != nil {
			return err
		}
		if reason == nil {
			if lockErr := drive.Lock(lockReason); lockErr != nil {
				if !errors.Is(lockErr, media.ErrLocked) {
					return burnerr.Wrap(burnerr.KindDriveBusy, "lock destination", "lock drive", lockErr)
				}
				kind := burnerr.KindMediumBusy
				reason = &kind
			} else {
				b.setDest(drive)
				return nil
			}
		}
		if err := b.askMedia(ctx, drive, *reason); err != nil {
			return err
		}
	}
}

// classifyDest returns the reason the medium in drive cannot be written, or
// nil when it can. A medium too small for the input is reported as
// MediumSpace unless overburning is allowed.
func (b *Burn) classifyDest(drive media.Drive) (*burnerr.Kind, error) {
	if !drive.CanWrite() {
		return nil, burnerr.Newf(burnerr.KindMediumInvalid, "lock destination", "%s cannot write discs", drive.DisplayName())
	}
	m := drive.Medium()
	if kind, refused := classifyPresence(m); refused {
		return &kind, nil
	}
	if err := b.caps.CanBurn(b.session); err != nil {
		b.logger.Debug("medium does not fit the session", logging.Error(err))
		kind := burnerr.KindMediumInvalid
		return &kind, nil
	}
	if !b.session.Overburn() && b.inputSizeKnown() {
		_, size := b.session.Size()
		available := m.Capacity
		if b.session.AppendOrMerge() {
			available = m.FreeSpace
		}
		if size > 0 && available > 0 && size > available {
			b.logger.Info("medium too small for the session",
				logging.Int64("size_bytes", size),
				logging.Int64("available_bytes", available),
				logging.String(logging.FieldEventType, "medium_too_small"),
			)
			kind := burnerr.KindMediumSpace
			return &kind, nil
		}
	}
	return nil, nil
}

func (b *Burn) inputSizeKnown() bool {
	switch b.session.InputType().Kind {
	case session.KindImage, session.KindDisc:
		return true
	default:
		return false
	}
}

func classifyPresence(m *media.Medium) (burnerr.Kind, bool) {
	status := media.StatusOf(m)
	switch {
	case status == media.StatusNone:
		return burnerr.KindMediumNone, true
	case status.Has(media.StatusBusy):
		return burnerr.KindMediumBusy, true
	case status.Has(media.StatusUnsupported):
		return burnerr.KindMediumInvalid, true
	default:
		return 0, false
	}
}

// lockSrcMedia waits until the source drive holds a disc with data and locks
// it.
func (b *Burn) lockSrcMedia(ctx context.Context) error {
	for {
		drive := b.session.SrcDrive()
		if drive == nil {
			return burnerr.New(burnerr.KindGeneral, "lock source", "no source drive")
		}
		if err := b.waitProbing(ctx, drive); err != nil {
			return err
		}
		kind, refused := classifyPresence(drive.Medium())
		if !refused && drive.Medium().Is(media.StatusBlank) {
			kind, refused = burnerr.KindMediumNoData, true
		}
		if !refused {
			if err := drive.Lock(lockReason); err == nil {
				b.setSrc(drive)
				return nil
			} else if !errors.Is(err, media.ErrLocked) {
				return burnerr.Wrap(burnerr.KindDriveBusy, "lock source", "lock drive", err)
			}
			kind = burnerr.KindMediumBusy
		}
		if err := b.askMedia(ctx, drive, kind); err != nil {
			return err
		}
	}
}

// lockRewritableMedia waits until the burner holds a rewritable disc and
// locks it.
func (b *Burn) lockRewritableMedia(ctx context.Context) error {
	for {
		drive := b.session.Burner()
		if drive == nil {
			return burnerr.New(burnerr.KindOutputNone, "lock rewritable", "no burner set")
		}
		if err := b.waitProbing(ctx, drive); err != nil {
			return err
		}
		if !drive.CanWrite() {
			return burnerr.Newf(burnerr.KindMediumInvalid, "lock rewritable", "%s cannot write discs", drive.DisplayName())
		}
		m := drive.Medium()
		kind, refused := classifyPresence(m)
		if !refused && !m.CanBeRewritten() {
			kind, refused = burnerr.KindMediumNotRewritable, true
		}
		if !refused {
			if err := drive.Lock(lockReason); err == nil {
				b.setDest(drive)
				return nil
			} else if !errors.Is(err, media.ErrLocked) {
				return burnerr.Wrap(burnerr.KindDriveBusy, "lock rewritable", "lock drive", err)
			}
			kind = burnerr.KindMediumBusy
		}
		if err := b.askMedia(ctx, drive, kind); err != nil {
			return err
		}
	}
}

// reloadDestMedia releases and ejects the destination, asks for another
// medium and locks it again.
func (b *Burn) reloadDestMedia(ctx context.Context, reason burnerr.Kind) error {
	drive := b.session.Burner()
	if drive == nil {
		return burnerr.New(burnerr.KindOutputNone, "reload destination", "no burner set")
	}
	b.releaseDrive(drive)
	if err := b.eject(ctx, drive); err != nil {
		return err
	}
	if err := b.askMedia(ctx, drive, reason); err != nil {
		return err
	}
	return b.lockDestMedia(ctx)
}

// reloadSrcMedia does the same for the source drive.
func (b *Burn) reloadSrcMedia(ctx context.Context, reason burnerr.Kind) error {
	drive := b.session.SrcDrive()
	if drive == nil {
		return burnerr.New(burnerr.KindGeneral, "reload source", "no source drive")
	}
	b.releaseDrive(drive)
	if err := b.eject(ctx, drive); err != nil {
		return err
	}
	if err := b.askMedia(ctx, drive, reason); err != nil {
		return err
	}
	return b.lockSrcMedia(ctx)
}

func (b *Burn) setDest(d media.Drive) {
	b.mu.Lock()
	b.dest = d
	b.mu.Unlock()
}

func (b *Burn) setSrc(d media.Drive) {
	b.mu.Lock()
	b.src = d
	b.mu.Unlock()
}

// releaseDrive unlocks d if this controller locked it.
func (b *Burn) releaseDrive(d media.Drive) {
	b.mu.Lock()
	held := false
	if b.dest != nil && media.SameDrive(b.dest, d) {
		b.dest = nil
		held = true
	}
	if b.src != nil && media.SameDrive(b.src, d) {
		b.src = nil
		held = true
	}
	b.mu.Unlock()
	if !held {
		return
	}
	if err := d.Unlock(); err != nil {
		b.logger.Debug("unlock failed", logging.Error(err), logging.String(logging.FieldDrive, d.Device()))
	}
}

func (b *Burn) unlockMedias() {
	b.mu.Lock()
	src, dest := b.src, b.dest
	b.mu.Unlock()
	if src != nil {
		b.releaseDrive(src)
	}
	if dest != nil {
		b.releaseDrive(dest)
	}
}
