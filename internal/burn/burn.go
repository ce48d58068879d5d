package burn

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"discburn/internal/burnerr"
	"discburn/internal/logging"
	"discburn/internal/media"
	"discburn/internal/pipeline"
	"discburn/internal/session"
)

const (
	maxEjectAttempts    = 5
	ejectRetryDelay     = 500 * time.Millisecond
	probeWaitDelay      = 500 * time.Millisecond
	exclusiveWaitDelay  = 250 * time.Millisecond
	slowDMARestDuration = 2 * time.Second
)

// Options configures a Burn controller.
type Options struct {
	Caps        Caps
	Interaction Interaction
	Logger      *slog.Logger
	// Journal is optional.
	Journal Journal
	// SessionLogDir holds the per-operation diagnostic logs. Empty means
	// the session's temporary directory.
	SessionLogDir string
}

// Status is a snapshot of the running operation.
type Status struct {
	Media   media.Status
	ISOSize int64
	Written int64
	Rate    int64
}

// Burn runs record, blank and check operations. One instance handles one
// operation at a time.
type Burn struct {
	caps        Caps
	interaction Interaction
	baseLogger  *slog.Logger
	journal     Journal
	logDir      string
	sleep       func(ctx context.Context, d time.Duration) error

	mu         sync.Mutex
	busy       bool
	cancel     context.CancelFunc
	task       *pipeline.Task
	taskNb     int
	tasksDone  int
	lastAction pipeline.Action
	sampler    *logging.ProgressSampler

	logger       *slog.Logger
	sessionLog   *logging.SessionLog
	session      *session.Session
	src          media.Drive
	dest         media.Drive
	sessionStart int64
	sessionEnd   int64
	// intermediate is set while the session input is the image of a
	// same-drive copy.
	intermediate bool
}

// New returns a controller.
func New(opts Options) (*Burn, error) {
	if opts.Caps == nil {
		return nil, errors.New("burn: caps are required")
	}
	interaction := opts.Interaction
	if interaction == nil {
		interaction = AutoInteraction{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Burn{
		caps:        opts.Caps,
		interaction: interaction,
		baseLogger:  logging.NewComponentLogger(logger, "burn"),
		journal:     opts.Journal,
		logDir:      opts.SessionLogDir,
		sleep:       sleepContext,
		logger:      logger,
	}, nil
}

// progressLogPercent is the bucket width of progress lines in the session log.
const progressLogPercent = 10

// ActionString returns the label shown for action.
func ActionString(action pipeline.Action) string {
	return action.String()
}

// SessionLogPath returns the diagnostic log of the current or last
// operation.
func (b *Burn) SessionLogPath() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sessionLog == nil {
		return ""
	}
	return b.sessionLog.Path
}

// Cancel interrupts the running operation. With protect set, it is refused
// with burnerr.ErrDangerous while a write cannot be interrupted safely.
func (b *Burn) Cancel(protect bool) error {
	b.mu.Lock()
	task := b.task
	cancel := b.cancel
	busy := b.busy
	b.mu.Unlock()
	if !busy {
		return burnerr.ErrNotRunning
	}
	if task != nil {
		if err := task.Cancel(protect); err != nil {
			return err
		}
	}
	if cancel != nil {
		cancel()
	}
	return nil
}

// Status reports on the running task.
func (b *Burn) Status() (Status, error) {
	b.mu.Lock()
	task := b.task
	dest := b.dest
	b.mu.Unlock()
	if task == nil {
		return Status{}, burnerr.ErrNotReady
	}
	_, size := task.OutputSize()
	st := Status{
		ISOSize: size,
		Written: task.Written(),
		Rate:    task.Rate(),
	}
	if dest != nil {
		st.Media = media.StatusOf(dest.Medium())
	}
	return st, nil
}

// begin claims the controller for one operation and returns the context
// every wait of the operation honours.
func (b *Burn) begin(ctx context.Context, s *session.Session, kind string) (context.Context, string, error) {
	b.mu.Lock()
	if b.busy {
		b.mu.Unlock()
		return nil, "", errors.New("burn: an operation is already running")
	}
	opCtx, cancel := context.WithCancel(ctx)
	b.busy = true
	b.cancel = cancel
	b.session = s
	b.taskNb = 0
	b.tasksDone = 0
	b.lastAction = pipeline.ActionNone
	b.sampler = logging.NewProgressSampler(progressLogPercent)
	b.intermediate = false
	b.mu.Unlock()

	dir := b.logDir
	if dir == "" {
		dir = s.TmpDir()
	}
	logger := b.baseLogger
	sessionLog, err := logging.OpenSessionLog(dir)
	if err != nil {
		logging.WarnWithContext(logger, "session log unavailable", "session_log_open_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "no per-operation diagnostic log"),
		)
	} else {
		logger = sessionLog.Attach(logger)
	}
	b.mu.Lock()
	b.sessionLog = sessionLog
	b.logger = logger
	b.mu.Unlock()

	logger.Info("operation started",
		logging.String(logging.FieldEventType, kind+"_start"),
		logging.String("flags", s.Flags().String()),
		logging.String("input", s.InputType().String()),
		logging.String("output", s.OutputType().String()),
	)

	var runID string
	if b.journal != nil {
		logPath := ""
		if sessionLog != nil {
			logPath = sessionLog.Path
		}
		runID, err = b.journal.Begin(opCtx, kind, describeTarget(s), logPath)
		if err != nil {
			logging.WarnWithContext(logger, "history entry not created", "history_begin_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "operation will be missing from history"),
			)
		}
	}
	return opCtx, runID, nil
}

func (b *Burn) end(ctx context.Context, kind, runID string, result error) {
	logger := b.logger
	switch {
	case result == nil:
		logger.Info("operation finished", logging.String(logging.FieldEventType, kind+"_complete"))
	case burnerr.IsCancel(result):
		logger.Info("operation cancelled", logging.String(logging.FieldEventType, kind+"_cancelled"))
	default:
		logging.ErrorWithContext(logger, "operation failed", kind+"_failed",
			logging.String(logging.FieldErrorKind, burnerr.KindOf(result).String()),
			logging.Error(result),
		)
	}

	if b.journal != nil && runID != "" {
		written := int64(0)
		if b.session != nil {
			_, written = b.session.Size()
		}
		if err := b.journal.Finish(context.WithoutCancel(ctx), runID, result, written); err != nil {
			logger.Warn("history entry not finalized", logging.Error(err))
		}
	}

	b.mu.Lock()
	if b.sessionLog != nil {
		_ = b.sessionLog.Close()
	}
	if b.cancel != nil {
		b.cancel()
	}
	b.busy = false
	b.cancel = nil
	b.task = nil
	b.session = nil
	b.src = nil
	b.dest = nil
	b.mu.Unlock()
}

func describeTarget(s *session.Session) string {
	if burner := s.Burner(); burner != nil {
		return burner.Device()
	}
	image, _ := s.OutputPath()
	return image
}

// Record burns the session to its burner, or writes its image output.
func (b *Burn) Record(ctx context.Context, s *session.Session) (err error) {
	opCtx, runID, err := b.begin(ctx, s, "record")
	if err != nil {
		return err
	}
	defer func() { b.end(opCtx, "record", runID, err) }()

	err = b.record(opCtx)
	if err == nil {
		b.finished()
	}
	return err
}

func (b *Burn) record(ctx context.Context) error {
	s := b.session
	if s.Burner() == nil && !s.IsDestFile() {
		return burnerr.New(burnerr.KindOutputNone, "record", "no burner or output file set")
	}
	defer func() {
		if err := s.CleanTmpFiles(); err != nil {
			b.logger.Warn("temporary files left behind", logging.Error(err))
		}
	}()

	var err error
	if s.SameSrcDestDrive() {
		err = b.sameSrcDestImage(ctx)
		if err == nil {
			err = b.reloadDestMedia(ctx, burnerr.KindMediumNone)
		}
	} else {
		if !s.IsDestFile() {
			err = b.lockDestMedia(ctx)
		}
		if err == nil && s.InputType().Kind == session.KindDisc {
			err = b.lockSrcMedia(ctx)
		}
	}

	for err == nil {
		err = b.recordSession(ctx, true)
		if !errors.Is(err, burnerr.ErrRetry) {
			break
		}
		err = nil
	}

	if err == nil && s.Eject() {
		if ejectErr := b.ejectAll(ctx); ejectErr != nil {
			b.logger.Warn("medium not ejected", logging.Error(ejectErr))
		}
	}
	b.unlockMedias()
	if b.intermediate {
		s.PopTracks()
	}
	return err
}

// Blank erases the rewritable medium in the session's burner.
func (b *Burn) Blank(ctx context.Context, s *session.Session) (err error) {
	opCtx, runID, err := b.begin(ctx, s, "blank")
	if err != nil {
		return err
	}
	defer func() { b.end(opCtx, "blank", runID, err) }()

	err = b.blank(opCtx)
	if err == nil {
		b.finished()
	}
	return err
}

func (b *Burn) blank(ctx context.Context) error {
	s := b.session
	if s.Burner() == nil {
		return burnerr.New(burnerr.KindOutputNone, "blank", "no burner set")
	}
	err := b.lockRewritableMedia(ctx)
	for err == nil {
		err = b.blankReal(ctx)
		if !errors.Is(err, burnerr.ErrRetry) {
			break
		}
		err = nil
	}
	if err == nil && s.Eject() && b.dest != nil {
		if ejectErr := b.eject(ctx, b.dest); ejectErr != nil {
			b.logger.Warn("medium not ejected", logging.Error(ejectErr))
		}
	}
	b.unlockMedias()
	return err
}

// Check verifies the checksum of the session's single track.
func (b *Burn) Check(ctx context.Context, s *session.Session) (err error) {
	opCtx, runID, err := b.begin(ctx, s, "check")
	if err != nil {
		return err
	}
	defer func() { b.end(opCtx, "check", runID, err) }()

	if s.InputType().Kind == session.KindDisc {
		if err = b.lockSrcMedia(opCtx); err != nil {
			return err
		}
		defer b.unlockMedias()
	}
	err = b.checkReal(opCtx)
	if err == nil {
		b.finished()
	}
	return err
}

func (b *Burn) finished() {
	b.interaction.ActionChanged(pipeline.ActionFinished, pipeline.ActionFinished.String())
	b.interaction.ProgressChanged(1, 1, -1)
}

// runTask runs task as the current task, publishing progress on every tick.
func (b *Burn) runTask(ctx context.Context, task *pipeline.Task, fake bool) error {
	task.SetLogger(b.logger)
	task.OnTick(b.publishProgress)
	b.mu.Lock()
	b.task = task
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.task = nil
		b.mu.Unlock()
	}()

	if fake {
		return task.Check(ctx)
	}
	return task.Run(ctx)
}

func (b *Burn) publishProgress(task *pipeline.Task) {
	action, label := task.CurrentAction()
	b.mu.Lock()
	changed := action != b.lastAction
	b.lastAction = action
	done := b.tasksDone
	total := b.taskNb
	b.mu.Unlock()
	if changed {
		b.interaction.ActionChanged(action, label)
	}

	taskProgress := task.Progress()
	if total <= 0 {
		total = 1
	}
	overall := (float64(done) + max(taskProgress, 0)) / float64(total)
	if overall > 1 {
		overall = 1
	}

	b.mu.Lock()
	sample := b.sampler.ShouldLog(taskProgress*100, task.Name()+"/"+action.String())
	b.mu.Unlock()
	if sample {
		b.logger.Debug("progress",
			logging.String(logging.FieldTask, task.Name()),
			logging.String("action", action.String()),
			logging.Float64(logging.FieldProgress, taskProgress*100),
			logging.Float64("overall_percent", overall*100),
		)
	}
	taskProgress = max(taskProgress, 0)
	b.interaction.ProgressChanged(overall, taskProgress, task.Remaining())
}

func (b *Burn) setTaskCount(n int) {
	b.mu.Lock()
	b.taskNb = n
	b.tasksDone = 0
	b.mu.Unlock()
}

func (b *Burn) taskDone() {
	b.mu.Lock()
	if b.tasksDone < b.taskNb {
		b.tasksDone++
	}
	b.mu.Unlock()
}

// Progress returns the overall fraction of the running operation.
func (b *Burn) Progress() float64 {
	b.mu.Lock()
	task := b.task
	done := b.tasksDone
	total := b.taskNb
	b.mu.Unlock()
	if total <= 0 {
		return 0
	}
	p := 0.0
	if task != nil {
		if tp := task.Progress(); tp > 0 {
			p = tp
		}
	}
	return (float64(done) + p) / float64(total)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// wait sleeps d and turns an interrupted wait into a cancellation.
func (b *Burn) wait(ctx context.Context, op string, d time.Duration) error {
	if err := b.sleep(ctx, d); err != nil {
		return burnerr.Cancelled(op)
	}
	return nil
}

func answerErr(op string, a Answer) error {
	if a == AnswerCancel {
		return burnerr.Cancelled(op)
	}
	return nil
}
