package burn

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"discburn/internal/burnerr"
	"discburn/internal/media"
	"discburn/internal/pipeline"
	"discburn/internal/session"
	"discburn/internal/testsupport"
)

// scriptedStage ends each run with the next scripted result: nil finishes
// the session, anything else is reported as the run error.
type scriptedStage struct {
	mu      sync.Mutex
	results []error
	blocks  int64
	hold    bool
	onStart func(j *pipeline.Job)

	starts int
	tracks []*session.Track
	rates  []int64
	flags  []session.Flags
	fs     []session.FSFlags
}

func (s *scriptedStage) Start(_ context.Context, j *pipeline.Job) error {
	s.mu.Lock()
	s.starts++
	track := j.CurrentTrack()
	s.tracks = append(s.tracks, track)
	if track != nil {
		s.fs = append(s.fs, track.FS)
	}
	s.rates = append(s.rates, j.Session().Rate())
	s.flags = append(s.flags, j.Session().Flags())
	var result error
	if len(s.results) > 0 {
		result = s.results[0]
		s.results = s.results[1:]
	}
	hold := s.hold
	hook := s.onStart
	blocks := s.blocks
	s.mu.Unlock()

	if hook != nil {
		hook(j)
	}
	if hold {
		return nil
	}
	go func() {
		if result != nil {
			j.Error(result)
			return
		}
		if blocks > 0 {
			j.SetOutputSize(blocks, 0)
		}
		j.FinishedSession()
	}()
	return nil
}

func (s *scriptedStage) startCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

type fakeCaps struct {
	mu         sync.Mutex
	supported  session.Flags
	compulsory session.Flags
	blankFlags session.Flags
	formats    []session.ImageFormat
	canBurn    error
	tasksErr   error

	// imageFirst inserts an imaging task before the recorder.
	imageFirst bool
	imager     *scriptedStage
	recorder   *scriptedStage
	checksum   *scriptedStage
	blanker    *scriptedStage

	flagQueries int
}

func newFakeCaps() *fakeCaps {
	return &fakeCaps{
		supported: session.FlagEject | session.FlagDummy | session.FlagMerge | session.FlagAppend |
			session.FlagMulti | session.FlagBlankBeforeWrite | session.FlagCheckSize,
		blankFlags: session.FlagFastBlank | session.FlagEject,
		formats:    []session.ImageFormat{session.FormatBIN},
		imager:     &scriptedStage{blocks: 100},
		recorder:   &scriptedStage{},
		checksum:   &scriptedStage{},
		blanker:    &scriptedStage{},
	}
}

func newTask(name string, s *session.Session, action pipeline.TaskAction, stage pipeline.Stage, out session.TrackType) *pipeline.Task {
	task := pipeline.NewTask(name, s, action, nil)
	task.SetInterval(5 * time.Millisecond)
	_ = task.AddItem(pipeline.NewJob(name, stage, out))
	return task
}

func (c *fakeCaps) NewTasks(s *session.Session) ([]*pipeline.Task, error) {
	if c.tasksErr != nil {
		return nil, c.tasksErr
	}
	if s.IsDestFile() {
		return []*pipeline.Task{
			newTask("imager", s, pipeline.TaskActionNormal, c.imager, session.ImageType(s.OutputFormat())),
		}, nil
	}
	var tasks []*pipeline.Task
	if s.HasFlag(session.FlagBlankBeforeWrite) {
		tasks = append(tasks, newTask("blank", s, pipeline.TaskActionErase, c.blanker, session.TrackType{}))
	}
	if c.imageFirst {
		tasks = append(tasks, newTask("imager", s, pipeline.TaskActionNormal, c.imager, session.ImageType(session.FormatBIN)))
	}
	out := session.DiscType(media.StatusOf(s.Burner().Medium()))
	tasks = append(tasks, newTask("recorder", s, pipeline.TaskActionNormal, c.recorder, out))
	return tasks, nil
}

func (c *fakeCaps) NewBlankingTask(s *session.Session) (*pipeline.Task, error) {
	return newTask("blank", s, pipeline.TaskActionErase, c.blanker, session.TrackType{}), nil
}

func (c *fakeCaps) NewChecksummingTask(s *session.Session) (*pipeline.Task, error) {
	return newTask("checksum", s, pipeline.TaskActionChecksum, c.checksum, s.InputType()), nil
}

func (c *fakeCaps) BurnFlags(*session.Session) (session.Flags, session.Flags, error) {
	c.mu.Lock()
	c.flagQueries++
	c.mu.Unlock()
	return c.supported, c.compulsory, nil
}

func (c *fakeCaps) BlankFlags(*session.Session) (session.Flags, session.Flags, error) {
	return c.blankFlags, session.FlagNone, nil
}

func (c *fakeCaps) SupportsOutput(_ *session.Session, out session.TrackType) bool {
	for _, f := range c.formats {
		if out.Format == f {
			return true
		}
	}
	return false
}

func (c *fakeCaps) RequiredMedia(*session.Session) media.Status {
	return media.StatusWritable | media.StatusBlank
}

func (c *fakeCaps) CanBurn(*session.Session) error { return c.canBurn }

type insertCall struct {
	device string
	reason burnerr.Kind
}

type progressEvent struct {
	overall, task float64
	remaining     time.Duration
}

// recordingInteraction answers prompts from per-prompt scripts and records
// every call and event.
type recordingInteraction struct {
	mu       sync.Mutex
	answers  map[string][]Answer
	calls    map[string]int
	inserts  []insertCall
	onInsert func(drive media.Drive)
	// onLocation runs before the location answer is returned.
	onLocation func(s *session.Session)
	actions  []pipeline.Action
	progress []progressEvent
}

func newInteraction() *recordingInteraction {
	return &recordingInteraction{answers: map[string][]Answer{}, calls: map[string]int{}}
}

func (r *recordingInteraction) script(prompt string, answers ...Answer) {
	r.mu.Lock()
	r.answers[prompt] = append(r.answers[prompt], answers...)
	r.mu.Unlock()
}

func (r *recordingInteraction) answer(prompt string, def Answer) Answer {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[prompt]++
	if queue := r.answers[prompt]; len(queue) > 0 {
		r.answers[prompt] = queue[1:]
		return queue[0]
	}
	return def
}

func (r *recordingInteraction) count(prompt string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[prompt]
}

func (r *recordingInteraction) AskDisableJoliet(context.Context) Answer {
	return r.answer("joliet", AnswerOK)
}

func (r *recordingInteraction) WarnDataLoss(context.Context) Answer {
	return r.answer("data_loss", AnswerOK)
}

func (r *recordingInteraction) WarnPreviousSessionLoss(context.Context) Answer {
	return r.answer("previous_session", AnswerOK)
}

func (r *recordingInteraction) WarnAudioToAppendable(context.Context) Answer {
	return r.answer("audio_appendable", AnswerOK)
}

func (r *recordingInteraction) WarnRewritable(context.Context) Answer {
	return r.answer("rewritable", AnswerOK)
}

func (r *recordingInteraction) InsertMedia(_ context.Context, drive media.Drive, _ media.Status, reason burnerr.Kind) Answer {
	r.mu.Lock()
	r.inserts = append(r.inserts, insertCall{device: drive.Device(), reason: reason})
	hook := r.onInsert
	r.mu.Unlock()
	if hook != nil {
		hook(drive)
	}
	return r.answer("insert", AnswerCancel)
}

func (r *recordingInteraction) LocationRequest(_ context.Context, s *session.Session, _ error, _ bool) Answer {
	r.mu.Lock()
	hook := r.onLocation
	r.mu.Unlock()
	if hook != nil {
		hook(s)
	}
	return r.answer("location", AnswerCancel)
}

func (r *recordingInteraction) DummySuccess(context.Context) Answer {
	return r.answer("dummy", AnswerOK)
}

func (r *recordingInteraction) EjectFailure(context.Context, media.Drive) Answer {
	return r.answer("eject_failure", AnswerOK)
}

func (r *recordingInteraction) BlankFailure(context.Context) Answer {
	return r.answer("blank_failure", AnswerCancel)
}

func (r *recordingInteraction) InstallMissing(context.Context, error) Answer {
	return r.answer("install", AnswerCancel)
}

func (r *recordingInteraction) ProgressChanged(overall, task float64, remaining time.Duration) {
	r.mu.Lock()
	r.progress = append(r.progress, progressEvent{overall, task, remaining})
	r.mu.Unlock()
}

func (r *recordingInteraction) ActionChanged(action pipeline.Action, _ string) {
	r.mu.Lock()
	r.actions = append(r.actions, action)
	r.mu.Unlock()
}

func (r *recordingInteraction) countAction(action pipeline.Action) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.actions {
		if a == action {
			n++
		}
	}
	return n
}

func newTestBurn(t *testing.T, caps *fakeCaps, ui *recordingInteraction) *Burn {
	t.Helper()
	b, err := New(Options{Caps: caps, Interaction: ui, SessionLogDir: t.TempDir()})
	require.NoError(t, err)
	b.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return b
}

func newSession(t *testing.T, burner media.Drive, track *session.Track) *session.Session {
	t.Helper()
	s := session.New()
	s.SetTmpDir(t.TempDir())
	if burner != nil {
		s.SetBurner(burner)
	}
	require.NoError(t, s.AddTrack(track))
	return s
}

func dataTrack(bytes int64) *session.Track {
	track := session.NewDataTrack("/srv/data")
	track.DeclaredBlocks = bytes / media.SectorSize
	return track
}

func TestRecordDataTrackToBlankCD(t *testing.T) {
	drive := testsupport.NewFakeDrive("/dev/sr0", testsupport.BlankCDR())
	caps := newFakeCaps()
	ui := newInteraction()
	b := newTestBurn(t, caps, ui)
	s := newSession(t, drive, dataTrack(650<<20))

	require.NoError(t, b.Record(context.Background(), s))

	assert.Equal(t, 1, caps.recorder.startCount())
	assert.Equal(t, 1, ui.countAction(pipeline.ActionFinished))
	final := progressEvent{1, 1, -1}
	finals := 0
	for _, p := range ui.progress {
		if p == final {
			finals++
		}
	}
	assert.Equal(t, 1, finals)
	require.NotEmpty(t, ui.progress)
	assert.Equal(t, final, ui.progress[len(ui.progress)-1])
	assert.Zero(t, ui.count("previous_session"))
	assert.False(t, drive.IsLocked())
	assert.Equal(t, 1, drive.Counts().Locks)
	assert.NotEmpty(t, b.SessionLogPath())
}

func TestRecordWithoutOutputFails(t *testing.T) {
	b := newTestBurn(t, newFakeCaps(), newInteraction())
	s := newSession(t, nil, dataTrack(1<<20))

	err := b.Record(context.Background(), s)
	assert.Equal(t, burnerr.KindOutputNone, burnerr.KindOf(err))
}

func TestPreviousSessionWarningRetryMerges(t *testing.T) {
	drive := testsupport.NewFakeDrive("/dev/sr0", testsupport.AppendableCDRW(100<<20))
	caps := newFakeCaps()
	ui := newInteraction()
	ui.script("previous_session", AnswerRetry)
	b := newTestBurn(t, caps, ui)
	s := newSession(t, drive, dataTrack(10<<20))

	require.NoError(t, b.Record(context.Background(), s))
	assert.Equal(t, 1, ui.count("previous_session"))
	assert.True(t, s.HasFlag(session.FlagMerge))
	require.Len(t, caps.recorder.flags, 1)
	assert.True(t, caps.recorder.flags[0].Has(session.FlagMerge))
}

func TestPreviousSessionWarningCancel(t *testing.T) {
	drive := testsupport.NewFakeDrive("/dev/sr0", testsupport.AppendableCDRW(100<<20))
	caps := newFakeCaps()
	ui := newInteraction()
	ui.script("previous_session", AnswerCancel)
	b := newTestBurn(t, caps, ui)
	s := newSession(t, drive, dataTrack(10<<20))

	err := b.Record(context.Background(), s)
	assert.True(t, burnerr.IsCancel(err), "got %v", err)
	assert.Zero(t, caps.recorder.startCount())
	assert.False(t, drive.IsLocked())
}

func TestSlowDMALowersRateWithoutPrompt(t *testing.T) {
	drive := testsupport.NewFakeDrive("/dev/sr0", testsupport.BlankCDR())
	caps := newFakeCaps()
	caps.recorder.results = []error{burnerr.New(burnerr.KindSlowDMA, "cdrecord", "buffer underrun"), nil}
	ui := newInteraction()
	b := newTestBurn(t, caps, ui)
	s := newSession(t, drive, dataTrack(10<<20))
	rate16 := media.SpeedToRate(media.StatusCD, 16)
	s.SetRate(rate16)

	require.NoError(t, b.Record(context.Background(), s))
	assert.Equal(t, []int64{rate16, rate16 * 3 / 4}, caps.recorder.rates)
	assert.Empty(t, ui.inserts)
	assert.Equal(t, rate16, s.Rate(), "settings are restored after the run")
}

func TestSlowDMANeverGoesBelowCDRate(t *testing.T) {
	drive := testsupport.NewFakeDrive("/dev/sr0", testsupport.BlankCDR())
	caps := newFakeCaps()
	for i := 0; i < 6; i++ {
		caps.recorder.results = append(caps.recorder.results, burnerr.New(burnerr.KindSlowDMA, "cdrecord", "underrun"))
	}
	caps.recorder.results = append(caps.recorder.results, nil)
	b := newTestBurn(t, caps, newInteraction())
	s := newSession(t, drive, dataTrack(10<<20))
	s.SetRate(media.SpeedToRate(media.StatusCD, 2))

	require.NoError(t, b.Record(context.Background(), s))
	rates := caps.recorder.rates
	require.Len(t, rates, 7)
	for _, r := range rates {
		assert.GreaterOrEqual(t, r, media.CDRate)
	}
	assert.Equal(t, media.CDRate, rates[len(rates)-1])
}

func TestJolietFailureDisablesJolietAndRestarts(t *testing.T) {
	drive := testsupport.NewFakeDrive("/dev/sr0", testsupport.BlankCDR())
	caps := newFakeCaps()
	caps.imageFirst = true
	caps.imager.results = []error{burnerr.New(burnerr.KindImageJoliet, "xorriso", "name too long for joliet"), nil}
	ui := newInteraction()
	b := newTestBurn(t, caps, ui)
	track := dataTrack(10 << 20)
	track.FS |= session.FSJoliet
	s := newSession(t, drive, track)

	require.NoError(t, b.Record(context.Background(), s))
	assert.Equal(t, 1, ui.count("joliet"))
	require.Len(t, caps.imager.fs, 2)
	assert.NotZero(t, caps.imager.fs[0]&session.FSJoliet)
	assert.Equal(t, session.FSISO9660|session.FSRockRidge, caps.imager.fs[1])

	require.Len(t, caps.recorder.tracks, 1)
	assert.Equal(t, session.KindImage, caps.recorder.tracks[0].Kind)
	assert.Equal(t, int64(100), caps.recorder.tracks[0].DeclaredBlocks)
	assert.Same(t, track, s.Tracks()[0], "produced tracks are popped after the run")
	assert.Empty(t, s.TmpFiles())
}

func TestJolietRefusalCancels(t *testing.T) {
	drive := testsupport.NewFakeDrive("/dev/sr0", testsupport.BlankCDR())
	caps := newFakeCaps()
	caps.imageFirst = true
	caps.imager.results = []error{burnerr.New(burnerr.KindImageJoliet, "xorriso", "joliet")}
	ui := newInteraction()
	ui.script("joliet", AnswerCancel)
	b := newTestBurn(t, caps, ui)

	err := b.Record(context.Background(), newSession(t, drive, dataTrack(1<<20)))
	assert.True(t, burnerr.IsCancel(err))
	assert.Zero(t, caps.recorder.startCount())
}

func TestProtectedCancelRefusedDuringWrite(t *testing.T) {
	drive := testsupport.NewFakeDrive("/dev/sr0", testsupport.BlankCDR())
	caps := newFakeCaps()
	started := make(chan struct{})
	caps.recorder.hold = true
	caps.recorder.onStart = func(j *pipeline.Job) {
		j.SetDangerous(true)
		j.SetDangerous(true)
		close(started)
	}
	b := newTestBurn(t, caps, newInteraction())
	s := newSession(t, drive, dataTrack(1<<20))

	done := make(chan error, 1)
	go func() { done <- b.Record(context.Background(), s) }()
	<-started

	st, err := b.Status()
	require.NoError(t, err)
	assert.True(t, st.Media.Has(media.StatusBlank))

	require.ErrorIs(t, b.Cancel(true), burnerr.ErrDangerous)
	select {
	case err := <-done:
		t.Fatalf("record ended after a refused cancel: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, b.Cancel(false))
	err = <-done
	assert.True(t, burnerr.IsCancel(err), "got %v", err)
	assert.False(t, drive.IsLocked())

	_, err = b.Status()
	assert.ErrorIs(t, err, burnerr.ErrNotReady)
}

func checksummedImage(t *testing.T, digest string) *session.Track {
	t.Helper()
	track := session.NewImageTrack("/srv/in.iso", "", session.FormatBIN)
	track.DeclaredBlocks = 1000
	track.Checksum = session.Checksum{Type: session.ChecksumMD5, Digest: digest}
	return track
}

func TestVerificationReadsTheWrittenExtent(t *testing.T) {
	drive := testsupport.NewFakeDrive("/dev/sr0", testsupport.BlankCDR())
	caps := newFakeCaps()
	b := newTestBurn(t, caps, newInteraction())
	track := checksummedImage(t, "d41d8cd98f00b204e9800998ecf8427e")
	s := newSession(t, drive, track)

	require.NoError(t, b.Record(context.Background(), s))

	require.Len(t, caps.checksum.tracks, 1)
	verified := caps.checksum.tracks[0]
	assert.Equal(t, session.KindDisc, verified.Kind)
	start, ok := verified.TagInt64(session.TagStartAddress)
	require.True(t, ok)
	end, ok := verified.TagInt64(session.TagEndAddress)
	require.True(t, ok)
	assert.Equal(t, int64(0), start)
	assert.Equal(t, int64(1000), end)
	assert.Equal(t, track.Checksum, verified.Checksum)
	assert.Same(t, track, s.Tracks()[0])
	assert.GreaterOrEqual(t, drive.Counts().Reprobes, 1)
}

func TestVerificationMismatchFailsRecord(t *testing.T) {
	drive := testsupport.NewFakeDrive("/dev/sr0", testsupport.BlankCDR())
	caps := newFakeCaps()
	caps.checksum.results = []error{burnerr.New(burnerr.KindGeneral, "checksum", "digest mismatch")}
	b := newTestBurn(t, caps, newInteraction())

	err := b.Record(context.Background(), newSession(t, drive, checksummedImage(t, "abc")))
	require.Error(t, err)
	assert.Equal(t, burnerr.KindGeneral, burnerr.KindOf(err))
}

func TestVerificationCancelKeepsRecordSuccessful(t *testing.T) {
	drive := testsupport.NewFakeDrive("/dev/sr0", testsupport.BlankCDR())
	caps := newFakeCaps()
	caps.checksum.results = []error{burnerr.Cancelled("checksum")}
	b := newTestBurn(t, caps, newInteraction())

	assert.NoError(t, b.Record(context.Background(), newSession(t, drive, checksummedImage(t, "abc"))))
}

func TestCheckReportsChecksumResult(t *testing.T) {
	caps := newFakeCaps()
	caps.checksum.results = []error{burnerr.New(burnerr.KindGeneral, "checksum", "digest mismatch")}
	b := newTestBurn(t, caps, newInteraction())

	err := b.Check(context.Background(), newSession(t, nil, checksummedImage(t, "abc")))
	assert.Equal(t, burnerr.KindGeneral, burnerr.KindOf(err))
	assert.NoError(t, b.Check(context.Background(), newSession(t, nil, checksummedImage(t, "abc"))))
}

func TestDummyRunThenRealRun(t *testing.T) {
	drive := testsupport.NewFakeDrive("/dev/sr0", testsupport.BlankCDR())
	caps := newFakeCaps()
	ui := newInteraction()
	b := newTestBurn(t, caps, ui)
	track := checksummedImage(t, "abc")
	s := newSession(t, drive, track)
	s.AddFlag(session.FlagDummy)

	require.NoError(t, b.Record(context.Background(), s))
	assert.Equal(t, 1, ui.count("dummy"))
	require.Len(t, caps.recorder.flags, 2)
	assert.True(t, caps.recorder.flags[0].Has(session.FlagDummy))
	assert.False(t, caps.recorder.flags[1].Has(session.FlagDummy))
	assert.True(t, s.Dummy(), "the flag is put back after the real run")
	assert.Equal(t, session.ChecksumMD5, track.Checksum.Type)
	assert.Empty(t, track.Checksum.Digest)
}

func TestEjectFailurePromptedOncePerSequence(t *testing.T) {
	drive := testsupport.NewFakeDrive("/dev/sr0", testsupport.BlankCDR())
	drive.EjectFailures = -1
	caps := newFakeCaps()
	ui := newInteraction()
	b := newTestBurn(t, caps, ui)
	s := newSession(t, drive, dataTrack(1<<20))
	s.AddFlag(session.FlagEject)

	require.NoError(t, b.Record(context.Background(), s))
	assert.Equal(t, 1, ui.count("eject_failure"))
	assert.Equal(t, maxEjectAttempts, drive.Counts().Ejects)
}

func TestEjectFailureRetryStartsNewSequence(t *testing.T) {
	drive := testsupport.NewFakeDrive("/dev/sr0", testsupport.BlankCDR())
	drive.EjectFailures = -1
	ui := newInteraction()
	ui.script("eject_failure", AnswerRetry, AnswerOK)
	b := newTestBurn(t, newFakeCaps(), ui)

	require.NoError(t, b.eject(context.Background(), drive))
	assert.Equal(t, 2, ui.count("eject_failure"))
	assert.Equal(t, 2*maxEjectAttempts, drive.Counts().Ejects)
}

func TestUnmountGivesUpWithDriveBusy(t *testing.T) {
	drive := testsupport.NewFakeDrive("/dev/sr0", testsupport.BlankCDR())
	drive.SetMounted(true)
	drive.UnmountErr = assert.AnError
	b := newTestBurn(t, newFakeCaps(), newInteraction())

	err := b.unmount(context.Background(), drive)
	assert.Equal(t, burnerr.KindDriveBusy, burnerr.KindOf(err))
}

func TestSessionConsistencyIsIdempotent(t *testing.T) {
	caps := newFakeCaps()
	caps.supported = session.FlagEject | session.FlagMulti
	caps.compulsory = session.FlagDAO
	b := newTestBurn(t, caps, newInteraction())
	s := newSession(t, testsupport.NewFakeDrive("/dev/sr0", testsupport.BlankCDR()), dataTrack(1<<20))
	s.SetFlags(session.FlagEject | session.FlagDummy | session.FlagMulti)

	require.NoError(t, b.checkSessionConsistency(s))
	first := s.Flags()
	assert.Equal(t, session.FlagEject|session.FlagMulti|session.FlagDAO, first)
	require.NoError(t, b.checkSessionConsistency(s))
	assert.Equal(t, first, s.Flags())
}

func TestUnsupportedMergeIsAnError(t *testing.T) {
	caps := newFakeCaps()
	caps.supported = session.FlagEject
	b := newTestBurn(t, caps, newInteraction())
	s := newSession(t, testsupport.NewFakeDrive("/dev/sr0", testsupport.BlankCDR()), dataTrack(1<<20))
	s.SetFlags(session.FlagEject | session.FlagMerge)

	err := b.checkSessionConsistency(s)
	assert.Equal(t, burnerr.KindGeneral, burnerr.KindOf(err))
	assert.Equal(t, session.FlagEject|session.FlagMerge, s.Flags())
}

func TestEmptyDriveAsksForMedia(t *testing.T) {
	drive := testsupport.NewFakeDrive("/dev/sr0", nil)
	caps := newFakeCaps()
	ui := newInteraction()
	ui.onInsert = func(media.Drive) { drive.SetMedium(testsupport.BlankCDR()) }
	ui.script("insert", AnswerOK)
	b := newTestBurn(t, caps, ui)

	require.NoError(t, b.Record(context.Background(), newSession(t, drive, dataTrack(1<<20))))
	require.Len(t, ui.inserts, 1)
	assert.Equal(t, burnerr.KindMediumNone, ui.inserts[0].reason)
	assert.Equal(t, 1, caps.recorder.startCount())
}

func TestImageTooLargeAsksForBiggerMedium(t *testing.T) {
	drive := testsupport.NewFakeDrive("/dev/sr0", testsupport.BlankCDR())
	caps := newFakeCaps()
	ui := newInteraction()
	ui.onInsert = func(media.Drive) { drive.SetMedium(testsupport.BlankDVDRW()) }
	ui.script("insert", AnswerOK)
	b := newTestBurn(t, caps, ui)
	image := session.NewImageTrack("/srv/big.iso", "", session.FormatBIN)
	image.DeclaredBlocks = (1 << 30) / media.SectorSize

	require.NoError(t, b.Record(context.Background(), newSession(t, drive, image)))
	require.Len(t, ui.inserts, 1)
	assert.Equal(t, burnerr.KindMediumSpace, ui.inserts[0].reason)
}

func TestInsertMediaCancel(t *testing.T) {
	drive := testsupport.NewFakeDrive("/dev/sr0", nil)
	b := newTestBurn(t, newFakeCaps(), newInteraction())

	err := b.Record(context.Background(), newSession(t, drive, dataTrack(1<<20)))
	assert.True(t, burnerr.IsCancel(err))
}

func TestRecorderMediumErrorReloadsDestination(t *testing.T) {
	drive := testsupport.NewFakeDrive("/dev/sr0", testsupport.BlankCDR())
	caps := newFakeCaps()
	caps.recorder.results = []error{burnerr.New(burnerr.KindMediumInvalid, "cdrecord", "bad medium"), nil}
	ui := newInteraction()
	ui.onInsert = func(media.Drive) { drive.SetMedium(testsupport.BlankCDR()) }
	ui.script("insert", AnswerOK)
	b := newTestBurn(t, caps, ui)

	require.NoError(t, b.Record(context.Background(), newSession(t, drive, dataTrack(1<<20))))
	assert.Equal(t, 2, caps.recorder.startCount())
	require.Len(t, ui.inserts, 1)
	assert.Equal(t, burnerr.KindMediumInvalid, ui.inserts[0].reason)
	assert.GreaterOrEqual(t, drive.Counts().Ejects, 1)
}

func TestMediumSpaceWhileAppendingIsTerminal(t *testing.T) {
	drive := testsupport.NewFakeDrive("/dev/sr0", testsupport.AppendableCDRW(10<<20))
	caps := newFakeCaps()
	caps.recorder.results = []error{burnerr.New(burnerr.KindMediumSpace, "cdrecord", "no space")}
	ui := newInteraction()
	b := newTestBurn(t, caps, ui)
	s := newSession(t, drive, dataTrack(1<<20))
	s.AddFlag(session.FlagAppend)

	err := b.Record(context.Background(), s)
	assert.Equal(t, burnerr.KindMediumSpace, burnerr.KindOf(err))
	assert.Empty(t, ui.inserts)
}

func TestMissingToolOffersInstall(t *testing.T) {
	drive := testsupport.NewFakeDrive("/dev/sr0", testsupport.BlankCDR())
	caps := newFakeCaps()
	caps.tasksErr = burnerr.New(burnerr.KindMissingAppAndPlugin, "caps", "wodim not found")
	ui := newInteraction()
	b := newTestBurn(t, caps, ui)

	err := b.Record(context.Background(), newSession(t, drive, dataTrack(1<<20)))
	assert.Equal(t, burnerr.KindMissingAppAndPlugin, burnerr.KindOf(err))
	assert.Equal(t, 1, ui.count("install"))
}

func TestSameDriveCopiesThroughIntermediateImage(t *testing.T) {
	drive := testsupport.NewFakeDrive("/dev/sr0", testsupport.DataCDROM(50<<20))
	caps := newFakeCaps()
	caps.formats = []session.ImageFormat{session.FormatCLONE, session.FormatBIN}
	caps.imager.blocks = 2
	caps.imager.onStart = func(j *pipeline.Job) {
		image, _ := j.OutputPath()
		testsupport.WriteImage(t, image, 2*media.SectorSize)
	}
	ui := newInteraction()
	ui.onInsert = func(media.Drive) { drive.SetMedium(testsupport.BlankCDR()) }
	ui.script("insert", AnswerOK)
	b := newTestBurn(t, caps, ui)
	s := newSession(t, drive, session.NewDiscTrack(drive))
	s.AddFlag(session.FlagEject)

	require.NoError(t, b.Record(context.Background(), s))
	assert.Equal(t, 1, caps.imager.startCount())
	require.Len(t, caps.recorder.tracks, 1)
	copied := caps.recorder.tracks[0]
	assert.Equal(t, session.KindImage, copied.Kind)
	assert.Equal(t, session.FormatCLONE, copied.Format)
	require.Len(t, ui.inserts, 1)
	assert.Equal(t, burnerr.KindMediumNone, ui.inserts[0].reason)

	assert.Equal(t, session.KindDisc, s.Tracks()[0].Kind)
	assert.Same(t, drive, s.Burner())
	assert.True(t, s.Eject())
}

func TestBlankRewritableMedium(t *testing.T) {
	drive := testsupport.NewFakeDrive("/dev/sr0", testsupport.AppendableCDRW(10<<20))
	caps := newFakeCaps()
	ui := newInteraction()
	b := newTestBurn(t, caps, ui)
	s := session.New()
	s.SetBurner(drive)
	s.SetFlags(session.FlagFastBlank | session.FlagMerge)

	require.NoError(t, b.Blank(context.Background(), s))
	assert.Equal(t, 1, caps.blanker.startCount())
	assert.Equal(t, 1, ui.count("data_loss"))
	assert.GreaterOrEqual(t, drive.Counts().Reprobes, 1)
	assert.Equal(t, session.FlagFastBlank|session.FlagMerge, s.Flags(), "blank settings are restored")
	assert.False(t, drive.IsLocked())
	assert.Equal(t, 1, ui.countAction(pipeline.ActionFinished))
}

func TestBlankRefusesWriteOnceMedium(t *testing.T) {
	drive := testsupport.NewFakeDrive("/dev/sr0", testsupport.BlankCDR())
	ui := newInteraction()
	b := newTestBurn(t, newFakeCaps(), ui)
	s := session.New()
	s.SetBurner(drive)

	err := b.Blank(context.Background(), s)
	assert.True(t, burnerr.IsCancel(err))
	require.Len(t, ui.inserts, 1)
	assert.Equal(t, burnerr.KindMediumNotRewritable, ui.inserts[0].reason)
}

func TestBlankFailureRetry(t *testing.T) {
	drive := testsupport.NewFakeDrive("/dev/sr0", testsupport.BlankDVDRW())
	caps := newFakeCaps()
	caps.blanker.results = []error{burnerr.New(burnerr.KindMediumInvalid, "dvd+rw-format", "format failed"), nil}
	ui := newInteraction()
	ui.script("blank_failure", AnswerRetry)
	b := newTestBurn(t, caps, ui)
	s := session.New()
	s.SetBurner(drive)

	require.NoError(t, b.Blank(context.Background(), s))
	assert.Equal(t, 2, caps.blanker.startCount())
	assert.Equal(t, 1, ui.count("blank_failure"))
}

func TestSecondOperationWhileBusyIsRefused(t *testing.T) {
	drive := testsupport.NewFakeDrive("/dev/sr0", testsupport.BlankCDR())
	caps := newFakeCaps()
	started := make(chan struct{})
	caps.recorder.hold = true
	caps.recorder.onStart = func(*pipeline.Job) { close(started) }
	b := newTestBurn(t, caps, newInteraction())

	done := make(chan error, 1)
	go func() { done <- b.Record(context.Background(), newSession(t, drive, dataTrack(1<<20))) }()
	<-started

	err := b.Record(context.Background(), newSession(t, drive, dataTrack(1<<20)))
	require.Error(t, err)
	require.NoError(t, b.Cancel(false))
	assert.True(t, burnerr.IsCancel(<-done))
}

func TestReadOnlyDriveIsRefused(t *testing.T) {
	drive := testsupport.NewFakeDrive("/dev/sr0", testsupport.BlankCDR())
	drive.SetWritable(false)
	caps := newFakeCaps()
	b := newTestBurn(t, caps, newInteraction())

	err := b.Record(context.Background(), newSession(t, drive, dataTrack(1<<20)))
	assert.Equal(t, burnerr.KindMediumInvalid, burnerr.KindOf(err))
	assert.Equal(t, 0, caps.recorder.startCount())
	assert.False(t, drive.IsLocked())
}

func TestRecordWaitsForProbeAndExclusiveAccess(t *testing.T) {
	drive := testsupport.NewFakeDrive("/dev/sr0", testsupport.BlankCDR())
	drive.SetProbing(true)
	drive.SetExclusive(false)
	caps := newFakeCaps()
	b := newTestBurn(t, caps, newInteraction())
	waits := 0
	b.sleep = func(ctx context.Context, _ time.Duration) error {
		waits++
		if drive.Probing() {
			drive.SetProbing(false)
		} else {
			drive.SetExclusive(true)
		}
		return ctx.Err()
	}

	require.NoError(t, b.Record(context.Background(), newSession(t, drive, dataTrack(1<<20))))
	assert.GreaterOrEqual(t, waits, 2)
	assert.Equal(t, 1, caps.recorder.startCount())
}

// stageOrder records which stages started, in order.
type stageOrder struct {
	mu    sync.Mutex
	names []string
}

func (o *stageOrder) hook(name string) func(j *pipeline.Job) {
	return func(j *pipeline.Job) {
		entry := name
		if j.Session().Dummy() {
			entry += " (dummy)"
		}
		o.mu.Lock()
		o.names = append(o.names, entry)
		o.mu.Unlock()
	}
}

func (o *stageOrder) list() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.names...)
}

func TestBlankBeforeWriteErasesThenRecords(t *testing.T) {
	drive := testsupport.NewFakeDrive("/dev/sr0", testsupport.AppendableCDRW(10<<20))
	caps := newFakeCaps()
	order := &stageOrder{}
	caps.blanker.onStart = order.hook("blank")
	caps.recorder.onStart = order.hook("record")
	ui := newInteraction()
	b := newTestBurn(t, caps, ui)
	s := newSession(t, drive, dataTrack(1<<20))
	s.AddFlag(session.FlagBlankBeforeWrite)

	require.NoError(t, b.Record(context.Background(), s))
	assert.Equal(t, []string{"blank", "record"}, order.list())
	assert.Equal(t, 1, ui.count("data_loss"))
	assert.GreaterOrEqual(t, drive.Counts().Reprobes, 1)
}

func TestSimulationLeavesTheMediumUnerased(t *testing.T) {
	drive := testsupport.NewFakeDrive("/dev/sr0", testsupport.AppendableCDRW(10<<20))
	caps := newFakeCaps()
	order := &stageOrder{}
	caps.blanker.onStart = order.hook("blank")
	caps.recorder.onStart = order.hook("record")
	ui := newInteraction()
	b := newTestBurn(t, caps, ui)
	s := newSession(t, drive, dataTrack(1<<20))
	s.AddFlag(session.FlagDummy | session.FlagBlankBeforeWrite)

	require.NoError(t, b.Record(context.Background(), s))
	assert.Equal(t, []string{"record (dummy)", "blank", "record"}, order.list())
	assert.Equal(t, 1, caps.blanker.startCount())
	require.Len(t, caps.blanker.flags, 1)
	assert.False(t, caps.blanker.flags[0].Has(session.FlagDummy))
	assert.Equal(t, 1, ui.count("dummy"))
}

func TestOversizedSessionAsksForBiggerMediumBeforeErasing(t *testing.T) {
	drive := testsupport.NewFakeDrive("/dev/sr0", testsupport.AppendableCDRW(10<<20))
	caps := newFakeCaps()
	ui := newInteraction()
	ui.onInsert = func(media.Drive) { drive.SetMedium(testsupport.BlankDVDRW()) }
	ui.script("insert", AnswerOK)
	b := newTestBurn(t, caps, ui)
	s := newSession(t, drive, dataTrack(1<<30))
	s.AddFlag(session.FlagBlankBeforeWrite)

	require.NoError(t, b.Record(context.Background(), s))
	require.Len(t, ui.inserts, 1)
	assert.Equal(t, burnerr.KindMediumSpace, ui.inserts[0].reason)
	assert.Equal(t, 1, caps.blanker.startCount(), "the small medium is never erased")
	assert.Equal(t, 1, caps.recorder.startCount())
}

func TestReloadDuringRealRunDoesNotRepeatSimulation(t *testing.T) {
	drive := testsupport.NewFakeDrive("/dev/sr0", testsupport.BlankCDR())
	caps := newFakeCaps()
	caps.recorder.results = []error{nil, burnerr.New(burnerr.KindMediumInvalid, "cdrecord", "bad medium"), nil}
	ui := newInteraction()
	ui.onInsert = func(media.Drive) { drive.SetMedium(testsupport.BlankCDR()) }
	ui.script("insert", AnswerOK)
	b := newTestBurn(t, caps, ui)
	s := newSession(t, drive, dataTrack(1<<20))
	s.AddFlag(session.FlagDummy)

	require.NoError(t, b.Record(context.Background(), s))
	assert.Equal(t, 1, ui.count("dummy"))
	require.Len(t, caps.recorder.flags, 3)
	assert.True(t, caps.recorder.flags[0].Has(session.FlagDummy))
	assert.False(t, caps.recorder.flags[1].Has(session.FlagDummy))
	assert.False(t, caps.recorder.flags[2].Has(session.FlagDummy))
	assert.True(t, s.Dummy())
}

func TestVerificationFollowsRelocatedImage(t *testing.T) {
	dir := t.TempDir()
	caps := newFakeCaps()
	caps.imager.results = []error{burnerr.New(burnerr.KindDiskSpace, "readom", "no space left on device"), nil}
	moved := filepath.Join(dir, "elsewhere", "out.iso")
	ui := newInteraction()
	ui.onLocation = func(s *session.Session) { s.SetImageOutput(session.FormatBIN, moved, "") }
	ui.script("location", AnswerOK)
	b := newTestBurn(t, caps, ui)
	s := newSession(t, nil, checksummedImage(t, "abc"))
	s.SetImageOutput(session.FormatBIN, filepath.Join(dir, "out.iso"), "")

	require.NoError(t, b.Record(context.Background(), s))
	assert.Equal(t, 2, caps.imager.startCount())
	require.Len(t, caps.checksum.tracks, 1)
	assert.Equal(t, moved, caps.checksum.tracks[0].ImagePath)
	image, _ := s.OutputPath()
	assert.Equal(t, moved, image)
}
