package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"

	"discburn/internal/burnerr"
	"discburn/internal/logging"
	"discburn/internal/media"
	"discburn/internal/session"
)

// Stage is the concrete work behind a Job. Start launches the work and
// returns; the work reports back through the Job (FinishedTrack,
// FinishedSession, Error) from whatever goroutine it runs on.
type Stage interface {
	Start(ctx context.Context, j *Job) error
}

// Activator lets a stage opt out of a run by returning burnerr.ErrNotRunning.
type Activator interface {
	Activate(j *Job) error
}

// Stopper releases whatever Start acquired. It is called at most once per
// run, and also for a job that was activated but never started.
type Stopper interface {
	Stop(j *Job) error
}

// Ticker is called on every clock tick while the job is active.
type Ticker interface {
	ClockTick(j *Job) error
}

// Job is one stage of a task chain. It reads either the current track or the
// previous job's pipe, and writes either an output file or the next job's
// pipe.
type Job struct {
	name       string
	stage      Stage
	outputType session.TrackType

	next Item
	prev Item

	mu          sync.Mutex
	ctx         *Ctx
	input       *os.File
	inputWriter *os.File
	image       string
	toc         string
	finalOutput bool
	stopped     bool
}

// NewJob wraps stage. outputType is what the job produces.
func NewJob(name string, stage Stage, outputType session.TrackType) *Job {
	return &Job{name: name, stage: stage, outputType: outputType}
}

func (j *Job) Name() string { return j.name }

// OutputType is the track type the job produces.
func (j *Job) OutputType() session.TrackType { return j.outputType }

// Stage returns the wrapped stage.
func (j *Job) Stage() Stage { return j.stage }

// Link makes next the successor of j.
func (j *Job) Link(next Item) error {
	if next == nil {
		return errors.New("link: nil item")
	}
	if j.next != nil {
		return errors.New("link: job already has a successor")
	}
	j.next = next
	if l, ok := next.(linker); ok {
		l.setPrevious(j)
	}
	return nil
}

func (j *Job) setPrevious(prev Item) { j.prev = prev }

func (j *Job) Next() Item { return j.next }

func (j *Job) Previous() Item { return j.prev }

// IsActive reports whether the job holds a context for the current run.
func (j *Job) IsActive() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.ctx != nil
}

// Ctx returns the task context, nil when inactive.
func (j *Job) Ctx() *Ctx {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.ctx
}

// Session returns the session of the running task, nil when inactive.
func (j *Job) Session() *session.Session {
	if c := j.Ctx(); c != nil {
		return c.Session()
	}
	return nil
}

// Logger returns a logger tagged with the job name.
func (j *Job) Logger() *slog.Logger {
	base := logging.NewNop()
	if c := j.Ctx(); c != nil {
		base = c.Logger()
	}
	return base.With(logging.String(logging.FieldJob, j.name))
}

// Activate attaches c for the coming run. A stage may opt out only when
// skipping it changes nothing downstream.
func (j *Job) Activate(c *Ctx) error {
	j.mu.Lock()
	j.ctx = c
	j.stopped = false
	j.mu.Unlock()

	activator, ok := j.stage.(Activator)
	if !ok {
		return nil
	}
	err := activator.Activate(j)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, burnerr.ErrNotRunning):
		allowed := j.allowDeactivation(c)
		j.deactivate()
		if !allowed {
			return burnerr.Newf(burnerr.KindPluginMisbehavior, j.name,
				"stage opted out but its output type %s differs from its input", j.outputType)
		}
		return burnerr.ErrNotRunning
	default:
		j.deactivate()
		return err
	}
}

func (j *Job) allowDeactivation(c *Ctx) bool {
	prev, ok := j.prev.(*Job)
	if j.prev == nil || !ok {
		return c.Session().InputType().Equal(j.outputType)
	}
	return prev.OutputType().Equal(j.outputType)
}

func (j *Job) deactivate() {
	j.mu.Lock()
	j.ctx = nil
	j.mu.Unlock()
}

func (j *Job) prevActive() *Job {
	for item := j.prev; item != nil; item = item.Previous() {
		if p, ok := item.(*Job); ok && p.IsActive() {
			return p
		}
	}
	return nil
}

func (j *Job) nextActive() *Job {
	for item := j.next; item != nil; item = item.Next() {
		if n, ok := item.(*Job); ok && n.IsActive() {
			return n
		}
	}
	return nil
}

// IsFirstActive reports whether no active job precedes j.
func (j *Job) IsFirstActive() bool { return j.IsActive() && j.prevActive() == nil }

// IsLastActive reports whether no active job follows j.
func (j *Job) IsLastActive() bool { return j.IsActive() && j.nextActive() == nil }

// Action derives what the job is asked to do in this run.
func (j *Job) Action() JobAction {
	c := j.Ctx()
	if c == nil {
		return JobActionNone
	}
	if c.IsFake() {
		return JobActionSize
	}
	switch c.Action() {
	case TaskActionErase:
		return JobActionErase
	case TaskActionChecksum:
		return JobActionChecksum
	case TaskActionNormal:
		if j.outputType.Kind == session.KindDisc {
			return JobActionRecord
		}
		return JobActionImage
	default:
		return JobActionNone
	}
}

// Input is the pipe fed by the previous active job, nil for the first job.
func (j *Job) Input() io.Reader {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.input == nil {
		return nil
	}
	return j.input
}

// Output is the pipe into the next active job, nil for the last job.
func (j *Job) Output() io.Writer {
	n := j.nextActive()
	if n == nil {
		return nil
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.inputWriter == nil {
		return nil
	}
	return n.inputWriter
}

// OutputPath returns the file the last job writes in image mode.
func (j *Job) OutputPath() (image, toc string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.image, j.toc
}

// OutputIsTemporary reports whether the allocated output is a temporary
// image rather than the session's final output.
func (j *Job) OutputIsTemporary() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return !j.finalOutput
}

// Start prepares input and output then starts the stage.
func (j *Job) Start(ctx context.Context) error {
	c := j.Ctx()
	if c == nil {
		return burnerr.ErrNotRunning
	}
	j.mu.Lock()
	j.stopped = false
	j.mu.Unlock()

	last := j.IsLastActive()
	first := j.IsFirstActive()
	if last {
		switch j.Action() {
		case JobActionImage:
			if err := j.allocateOutput(c); err != nil {
				return err
			}
		case JobActionRecord:
			if err := j.checkMediumSpace(c); err != nil {
				return err
			}
		}
	}
	if !first {
		if err := j.openInput(); err != nil {
			return err
		}
	}

	err := j.stage.Start(ctx, j)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, burnerr.ErrNotRunning):
		if !last {
			j.closePipes()
			return burnerr.New(burnerr.KindPluginMisbehavior, j.name, "stage has nothing to do but is not the last one")
		}
		c.Finished()
		return nil
	case errors.Is(err, burnerr.ErrNotSupported):
		j.closePipes()
		if c.IsFake() {
			j.deactivate()
			return burnerr.ErrNotSupported
		}
		return burnerr.New(burnerr.KindGeneral, j.name, "action not supported")
	default:
		j.closePipes()
		return err
	}
}

func (j *Job) openInput() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.input != nil {
		return nil
	}
	r, w, err := os.Pipe()
	if err != nil {
		return burnerr.Wrap(burnerr.KindGeneral, j.name, "create pipe", err)
	}
	j.input = r
	j.inputWriter = w
	return nil
}

func (j *Job) allocateOutput(c *Ctx) error {
	j.mu.Lock()
	allocated := j.image != ""
	final := j.finalOutput
	j.mu.Unlock()
	if allocated {
		return nil
	}

	s := c.Session()
	var image, toc string
	if final {
		image, toc = s.OutputPath()
		if image == "" {
			return burnerr.New(burnerr.KindOutputNone, j.name, "no output path set")
		}
	} else {
		var err error
		image, toc, err = s.TmpImage(j.outputType.Format)
		if err != nil {
			return burnerr.Wrap(burnerr.KindTmpDirectory, j.name, "create temporary image", err)
		}
	}

	if s.CheckSize() {
		_, size := c.OutputSize()
		if size <= 0 {
			_, size = s.Size()
		}
		if err := checkOutputLocation(image, size); err != nil {
			return err
		}
	}

	j.mu.Lock()
	j.image = image
	j.toc = toc
	j.mu.Unlock()
	return nil
}

func (j *Job) checkMediumSpace(c *Ctx) error {
	s := c.Session()
	if !s.CheckSize() || s.Overburn() {
		return nil
	}
	burner := s.Burner()
	if burner == nil {
		return nil
	}
	m := burner.Medium()
	if m == nil {
		return burnerr.New(burnerr.KindMediumNone, j.name, "no medium in burner")
	}
	_, size := c.OutputSize()
	if size <= 0 {
		_, size = s.Size()
	}
	available := m.Capacity
	if s.AppendOrMerge() {
		available = m.FreeSpace
	}
	if size > available {
		return burnerr.Newf(burnerr.KindMediumSpace, j.name,
			"%d bytes do not fit on the medium (%d available)", size, available)
	}
	return nil
}

// ClockTick forwards the tick to the stage.
func (j *Job) ClockTick() error {
	if !j.IsActive() {
		return nil
	}
	if ticker, ok := j.stage.(Ticker); ok {
		return ticker.ClockTick(j)
	}
	return nil
}

// Stop tears down the job's connections and stops the stage. Pipes close
// first so a stage blocked on one returns. Stopping an inactive job does
// nothing.
func (j *Job) Stop() error {
	if !j.IsActive() {
		return nil
	}
	j.closePipes()
	err := j.stopStage()
	j.mu.Lock()
	j.image = ""
	j.toc = ""
	j.mu.Unlock()
	j.deactivate()
	return err
}

func (j *Job) stopStage() error {
	j.mu.Lock()
	if j.stopped {
		j.mu.Unlock()
		return nil
	}
	j.stopped = true
	j.mu.Unlock()
	if stopper, ok := j.stage.(Stopper); ok {
		return stopper.Stop(j)
	}
	return nil
}

// closePipes closes the writer into the next job, which then sees EOF
// after draining what was written, and this job's own input.
func (j *Job) closePipes() {
	j.closeDownstream()
	j.mu.Lock()
	if j.input != nil {
		_ = j.input.Close()
		j.input = nil
	}
	if j.inputWriter != nil {
		_ = j.inputWriter.Close()
		j.inputWriter = nil
	}
	j.mu.Unlock()
}

func (j *Job) closeDownstream() {
	n := j.nextActive()
	if n == nil {
		return
	}
	n.mu.Lock()
	if n.inputWriter != nil {
		_ = n.inputWriter.Close()
		n.inputWriter = nil
	}
	n.mu.Unlock()
}

// FinishedTrack is called by the stage when the current track is done. The
// first job moves the task to the next track; the last job ends the run.
func (j *Job) FinishedTrack() {
	c := j.Ctx()
	if c == nil {
		return
	}
	last := j.IsLastActive()
	if j.IsFirstActive() {
		if err := j.stopStage(); err != nil {
			c.Error(err)
			return
		}
		if c.nextTrack() {
			c.signal(burnerr.ErrRetry)
			return
		}
		if !last {
			j.closePipes()
			j.deactivate()
			return
		}
	}
	if last {
		j.finish(c)
		return
	}
	c.Error(burnerr.New(burnerr.KindPluginMisbehavior, j.name, "only the first stage may finish a track"))
}

// FinishedSession is called by the stage when every track is done.
func (j *Job) FinishedSession() {
	c := j.Ctx()
	if c == nil {
		return
	}
	if j.IsLastActive() {
		j.finish(c)
		return
	}
	if !j.IsFirstActive() {
		c.Error(burnerr.New(burnerr.KindPluginMisbehavior, j.name, "only the first stage may finish a session"))
		return
	}
	if err := j.stopStage(); err != nil {
		c.Error(err)
		return
	}
	// The reader sees EOF only once it leads the task.
	j.deactivate()
	j.closePipes()
}

// Error ends the task run with err.
func (j *Job) Error(err error) {
	c := j.Ctx()
	if c == nil {
		return
	}
	c.Error(err)
}

func (j *Job) finish(c *Ctx) {
	if j.Action() == JobActionImage {
		image, toc := j.OutputPath()
		if image != "" {
			track := session.NewImageTrack(image, toc, j.outputType.Format)
			blocks, _ := c.OutputSize()
			track.DeclaredBlocks = blocks
			if cur := c.CurrentTrack(); cur != nil {
				track.Checksum = cur.Checksum
			}
			c.AddProducedTrack(track)
		}
	}
	c.Finished()
}

// Convenience forwards for stages.

func (j *Job) CurrentTrack() *session.Track {
	if c := j.Ctx(); c != nil {
		return c.CurrentTrack()
	}
	return nil
}

func (j *Job) SetOutputSize(blocks, bytes int64) {
	if c := j.Ctx(); c != nil {
		c.SetOutputSize(blocks, bytes)
	}
}

func (j *Job) SetWrittenTrack(written int64) {
	if c := j.Ctx(); c != nil {
		c.SetWrittenTrack(written)
	}
}

func (j *Job) SetProgress(p float64) {
	if c := j.Ctx(); c != nil {
		c.SetProgress(p)
	}
}

func (j *Job) SetRate(rate int64) {
	if c := j.Ctx(); c != nil {
		c.SetRate(rate)
	}
}

func (j *Job) SetCurrentAction(action Action, label string, force bool) {
	if c := j.Ctx(); c != nil {
		c.SetCurrentAction(action, label, force)
	}
}

func (j *Job) SetDangerous(on bool) {
	if c := j.Ctx(); c != nil {
		c.SetDangerous(on)
	}
}

// Burner returns the session burner, nil when writing a file.
func (j *Job) Burner() media.Drive {
	if s := j.Session(); s != nil {
		return s.Burner()
	}
	return nil
}
