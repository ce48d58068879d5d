package burn

import (
	"context"
	"errors"

	"discburn/internal/burnerr"
	"discburn/internal/logging"
	"discburn/internal/media"
	"discburn/internal/pipeline"
	"discburn/internal/session"
)

// intermediateFormats is the preference order for the image made when the
// source and destination are the same drive.
var intermediateFormats = []session.ImageFormat{
	session.FormatCDRDAO,
	session.FormatCLONE,
	session.FormatCUE,
	session.FormatBIN,
}

// recordSession runs the task sequence once, then the real run after a
// successful dummy one, then the checksum verification. A reload during the
// real run retries the real run only.
func (b *Burn) recordSession(ctx context.Context, erase bool) error {
	s := b.session
	if err := b.runTasks(ctx, erase); err != nil {
		return err
	}

	if s.Dummy() {
		if err := answerErr("dummy success", b.interaction.DummySuccess(ctx)); err != nil {
			return err
		}
		b.logger.Info("simulation succeeded, starting the real write",
			logging.String(logging.FieldEventType, "dummy_success"),
		)
		clearDigests(s)
		s.RemoveFlag(session.FlagDummy)
		defer s.AddFlag(session.FlagDummy)
		for {
			err := b.runTasks(ctx, erase)
			if errors.Is(err, burnerr.ErrRetry) {
				continue
			}
			if err != nil {
				return err
			}
			break
		}
	}
	return b.verify(ctx)
}

// runTasks checks the flags and the medium, then runs every task the caps
// build for the session. Settings are restored on return except for the
// corrected flags.
func (b *Burn) runTasks(ctx context.Context, erase bool) error {
	s := b.session
	s.PushSettings()
	checked := false
	pushed := 0
	defer func() {
		for i := 0; i < pushed; i++ {
			s.PopTracks()
		}
		flags := s.Flags()
		relocated := s.IsDestFile()
		format := s.OutputFormat()
		image, toc := s.OutputPath()
		s.PopSettings()
		if checked {
			s.SetFlags(flags)
		}
		// An image moved by a location request stays moved for verify.
		if relocated && s.IsDestFile() {
			s.SetImageOutput(format, image, toc)
		}
	}()

	if err := b.checkSessionConsistency(s); err != nil {
		return err
	}
	checked = true
	if err := b.checkDataLoss(ctx); err != nil {
		return err
	}

	tasks, err := b.caps.NewTasks(s)
	if err != nil {
		if burnerr.Is(err, burnerr.KindMissingAppAndPlugin) {
			b.interaction.InstallMissing(ctx, err)
		}
		return err
	}
	b.setTaskCount(len(tasks))
	b.logger.Debug("task sequence built",
		logging.Int("tasks", len(tasks)),
		logging.String("flags", s.Flags().String()),
	)

	for i, task := range tasks {
		last := i == len(tasks)-1
		switch {
		case task.Action() == pipeline.TaskActionErase:
			if !erase || s.Dummy() {
				b.logger.Debug("erase skipped",
					logging.String(logging.FieldTask, task.Name()),
					logging.Bool("dummy", s.Dummy()),
				)
				break
			}
			if err = b.checkEraseFits(ctx); err == nil {
				err = b.runEraser(ctx, task)
			}
		case !last || s.IsDestFile():
			task.SetFinalOutput(last)
			err = b.runImager(ctx, task)
		default:
			err = b.runRecorder(ctx, task)
		}
		pushed += task.PushedTracks()
		if err != nil {
			return err
		}
		b.taskDone()
	}
	return nil
}

// checkEraseFits makes sure what will be written fits on the medium once it
// is blank.
func (b *Burn) checkEraseFits(ctx context.Context) error {
	s := b.session
	if s.Overburn() {
		return nil
	}
	dest := s.Burner()
	if dest == nil {
		return nil
	}
	m := dest.Medium()
	if m == nil {
		return nil
	}
	_, size := s.Size()
	if size <= 0 || m.Capacity <= 0 || size <= m.Capacity {
		return nil
	}
	b.logger.Info("data will not fit on the blanked medium",
		logging.Int64("size_bytes", size),
		logging.Int64("capacity_bytes", m.Capacity),
		logging.String(logging.FieldEventType, "medium_too_small"),
	)
	if err := b.reloadDestMedia(ctx, burnerr.KindMediumSpace); err != nil {
		return err
	}
	return burnerr.ErrRetry
}

// runImager runs a task producing an image, handling the errors the user
// can fix.
func (b *Burn) runImager(ctx context.Context, task *pipeline.Task) error {
	s := b.session
	for {
		err := b.runTask(ctx, task, false)
		if err == nil || errors.Is(err, burnerr.ErrNotRunning) {
			return nil
		}
		if errors.Is(err, burnerr.ErrRetry) {
			return err
		}
		kind := burnerr.KindOf(err)
		b.logger.Info("imaging failed",
			logging.String(logging.FieldErrorKind, kind.String()),
			logging.Error(err),
		)
		switch kind {
		case burnerr.KindImageJoliet:
			if err := b.askDisableJoliet(ctx); err != nil {
				return err
			}
		case burnerr.KindMediumNoData:
			if err := b.reloadSrcMedia(ctx, kind); err != nil {
				return err
			}
		case burnerr.KindDiskSpace, burnerr.KindPermission, burnerr.KindTmpDirectory:
			answer := b.interaction.LocationRequest(ctx, s, err, lastOutputTemporary(task))
			if answer != AnswerOK && answer != AnswerRetry {
				return burnerr.Cancelled("location request")
			}
		default:
			return err
		}
	}
}

// runRecorder runs the task that writes the burner, handling the errors
// that have a recovery.
func (b *Burn) runRecorder(ctx context.Context, task *pipeline.Task) error {
	s := b.session
	for {
		dest := s.Burner()
		if dest == nil {
			return burnerr.New(burnerr.KindOutputNone, "record", "no burner set")
		}
		if err := b.waitExclusive(ctx, dest); err != nil {
			return err
		}
		if err := b.probeSize(ctx, task); err != nil {
			return err
		}

		err := b.runTask(ctx, task, false)
		if err == nil || errors.Is(err, burnerr.ErrNotRunning) {
			return nil
		}
		if errors.Is(err, burnerr.ErrRetry) {
			return err
		}
		kind := burnerr.KindOf(err)
		b.logger.Info("recording failed",
			logging.String(logging.FieldErrorKind, kind.String()),
			logging.Error(err),
		)
		switch {
		case kind == burnerr.KindImageJoliet:
			if err := b.askDisableJoliet(ctx); err != nil {
				return err
			}
		case kind == burnerr.KindMediumNeedReloading:
			if err := b.reloadSrcMedia(ctx, kind); err != nil {
				return err
			}
		case kind == burnerr.KindSlowDMA:
			if err := b.wait(ctx, "slow dma", slowDMARestDuration); err != nil {
				return err
			}
			b.reduceRate(dest)
		case kind == burnerr.KindMediumSpace && s.AppendOrMerge():
			return err
		case kind.IsMedium():
			if err := b.reloadDestMedia(ctx, kind); err != nil {
				return err
			}
			return burnerr.ErrRetry
		default:
			return err
		}
	}
}

// probeSize learns the size of what the task will write and records the
// address range the session will occupy on the medium.
func (b *Burn) probeSize(ctx context.Context, task *pipeline.Task) error {
	s := b.session
	blocks, bytes := s.Size()
	if bytes <= 0 {
		err := b.runTask(ctx, task, true)
		if err != nil && !errors.Is(err, burnerr.ErrNotRunning) {
			if burnerr.IsCancel(err) {
				return err
			}
			b.logger.Debug("size probe failed", logging.Error(err))
		}
		blocks, bytes = task.OutputSize()
	} else {
		task.SetOutputSize(blocks, bytes)
	}

	start := int64(0)
	if s.AppendOrMerge() {
		if m := s.Burner().Medium(); m != nil {
			start = m.NextWritableAddress
		}
	}
	b.mu.Lock()
	b.sessionStart = start
	b.sessionEnd = start + blocks
	b.mu.Unlock()
	return nil
}

// reduceRate lowers the session write rate after a buffer underrun.
func (b *Burn) reduceRate(dest media.Drive) {
	s := b.session
	rate := s.Rate()
	if rate <= 0 {
		if m := dest.Medium(); m != nil && m.MaxWriteRate > 0 {
			rate = m.MaxWriteRate
		} else {
			rate = media.SlowDMAFloorSpeed * media.CDRate
		}
	}
	next := media.ReducedRate(rate)
	b.logger.Info("write buffer underrun, lowering speed",
		logging.Int64("rate", rate),
		logging.Int64("new_rate", next),
		logging.String(logging.FieldEventType, "slow_dma"),
	)
	s.SetRate(next)
}

func (b *Burn) waitExclusive(ctx context.Context, drive media.Drive) error {
	for !drive.CanUseExclusively() {
		if err := b.wait(ctx, "wait for exclusive access", exclusiveWaitDelay); err != nil {
			return err
		}
	}
	return nil
}

// runEraser blanks the destination, asking whether to try again after a
// medium failure.
func (b *Burn) runEraser(ctx context.Context, task *pipeline.Task) error {
	s := b.session
	for {
		err := b.runTask(ctx, task, false)
		if err == nil || errors.Is(err, burnerr.ErrNotRunning) {
			if dest := s.Burner(); dest != nil {
				if probeErr := dest.Reprobe(ctx); probeErr != nil {
					b.logger.Debug("reprobe after blanking failed", logging.Error(probeErr))
				}
				return b.waitProbing(ctx, dest)
			}
			return nil
		}
		if !burnerr.KindOf(err).IsMedium() {
			return err
		}
		if b.interaction.BlankFailure(ctx) != AnswerRetry {
			return err
		}
	}
}

// blankReal blanks the locked rewritable medium once.
func (b *Burn) blankReal(ctx context.Context) error {
	s := b.session
	s.PushSettings()
	defer s.PopSettings()

	if err := b.checkBlankConsistency(s); err != nil {
		return err
	}
	dest := s.Burner()
	if dest.Medium().HasContent() {
		switch b.interaction.WarnDataLoss(ctx) {
		case AnswerCancel:
			return burnerr.Cancelled("data loss")
		case AnswerNeedReload:
			b.releaseDrive(dest)
			if err := b.eject(ctx, dest); err != nil {
				return err
			}
			if err := b.askMedia(ctx, dest, burnerr.KindMediumInvalid); err != nil {
				return err
			}
			if err := b.lockRewritableMedia(ctx); err != nil {
				return err
			}
			return burnerr.ErrRetry
		}
	}

	task, err := b.caps.NewBlankingTask(s)
	if err != nil {
		if burnerr.Is(err, burnerr.KindMissingAppAndPlugin) {
			b.interaction.InstallMissing(ctx, err)
		}
		return err
	}
	b.setTaskCount(1)
	if err := b.runEraser(ctx, task); err != nil {
		return err
	}
	b.taskDone()
	return nil
}

// verify checks the written data against the digest of the single track.
// A cancellation here does not undo the write, so it is not an error.
func (b *Burn) verify(ctx context.Context) error {
	s := b.session
	tracks := s.Tracks()
	if len(tracks) != 1 {
		return nil
	}
	sum := tracks[0].Checksum
	if sum.Type == session.ChecksumNone || sum.Digest == "" {
		return nil
	}

	var track *session.Track
	if s.IsDestFile() {
		image, toc := s.OutputPath()
		track = session.NewImageTrack(image, toc, s.OutputFormat())
	} else {
		dest := s.Burner()
		if err := dest.Reprobe(ctx); err != nil {
			b.logger.Debug("reprobe before verification failed", logging.Error(err))
		}
		if err := b.waitProbing(ctx, dest); err != nil {
			return nil
		}
		b.mu.Lock()
		start, end := b.sessionStart, b.sessionEnd
		b.mu.Unlock()
		track = session.NewDiscTrack(dest)
		track.SetTag(session.TagStartAddress, start)
		track.SetTag(session.TagEndAddress, end)
	}
	track.Checksum = sum

	s.PushTracks()
	defer s.PopTracks()
	if err := s.AddTrack(track); err != nil {
		return burnerr.Wrap(burnerr.KindGeneral, "verify", "install verification track", err)
	}
	err := b.checkReal(ctx)
	if burnerr.IsCancel(err) {
		b.logger.Info("verification cancelled, data was written",
			logging.String(logging.FieldEventType, "verify_cancelled"),
		)
		return nil
	}
	return err
}

// checkReal runs the checksumming task over the session's track.
func (b *Burn) checkReal(ctx context.Context) error {
	task, err := b.caps.NewChecksummingTask(b.session)
	if err != nil {
		if burnerr.Is(err, burnerr.KindMissingAppAndPlugin) {
			b.interaction.InstallMissing(ctx, err)
		}
		return err
	}
	b.setTaskCount(1)
	err = b.runTask(ctx, task, false)
	if errors.Is(err, burnerr.ErrNotRunning) {
		err = nil
	}
	if err == nil {
		b.taskDone()
	}
	return err
}

// sameSrcDestImage copies the source disc to an intermediate image so the
// same drive can then write it. The session input becomes that image until
// the caller pops the tracks.
func (b *Burn) sameSrcDestImage(ctx context.Context) error {
	s := b.session
	if err := b.lockSrcMedia(ctx); err != nil {
		return err
	}
	format := session.FormatNone
	for _, f := range intermediateFormats {
		if b.caps.SupportsOutput(s, session.ImageType(f)) {
			format = f
			break
		}
	}
	if format == session.FormatNone {
		return burnerr.New(burnerr.KindGeneral, "copy", "no intermediate image format can hold the disc")
	}
	image, toc, err := s.TmpImage(format)
	if err != nil {
		return burnerr.Wrap(burnerr.KindTmpDirectory, "copy", "create intermediate image", err)
	}
	b.logger.Info("copying the disc to an intermediate image",
		logging.String("image", image),
		logging.String("format", format.String()),
		logging.String(logging.FieldEventType, "intermediate_image"),
	)

	checksum := session.Checksum{}
	if tracks := s.Tracks(); len(tracks) == 1 {
		checksum = tracks[0].Checksum
	}

	s.PushSettings()
	s.SetImageOutput(format, image, toc)
	s.RemoveFlag(session.FlagDummy | session.FlagEject)
	for {
		err = b.recordSession(ctx, false)
		if !errors.Is(err, burnerr.ErrRetry) {
			break
		}
	}
	s.PopSettings()
	if err != nil {
		return err
	}

	src := s.SrcDrive()
	s.PushTracks()
	intermediate := session.NewImageTrack(image, toc, format)
	intermediate.Checksum = checksum
	if err := s.AddTrack(intermediate); err != nil {
		s.PopTracks()
		return burnerr.Wrap(burnerr.KindGeneral, "copy", "install intermediate image", err)
	}
	b.mu.Lock()
	b.intermediate = true
	b.mu.Unlock()

	if src != nil {
		b.releaseDrive(src)
		if err := b.eject(ctx, src); err != nil {
			return err
		}
	}
	return nil
}

func (b *Burn) askDisableJoliet(ctx context.Context) error {
	if b.interaction.AskDisableJoliet(ctx) == AnswerCancel {
		return burnerr.Cancelled("disable joliet")
	}
	for _, t := range b.session.Tracks() {
		if t.Kind == session.KindData {
			t.FS &^= session.FSJoliet
		}
	}
	b.logger.Info("joliet disabled",
		logging.String(logging.FieldEventType, "joliet_disabled"),
	)
	return nil
}

func clearDigests(s *session.Session) {
	for _, t := range s.Tracks() {
		t.Checksum.Digest = ""
	}
}

// lastOutputTemporary reports whether the image of the last job in task is
// a temporary one.
func lastOutputTemporary(task *pipeline.Task) bool {
	items := task.Items()
	for i := len(items) - 1; i >= 0; i-- {
		if j, ok := items[i].(*pipeline.Job); ok {
			return j.OutputIsTemporary()
		}
	}
	return true
}
