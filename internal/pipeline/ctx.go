package pipeline

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"discburn/internal/burnerr"
	"discburn/internal/logging"
	"discburn/internal/session"
)

const rateSamples = 16

// Ctx is the state one task run shares with every active job: the track
// being processed, progress bookkeeping, the current action and the single
// terminal result.
type Ctx struct {
	session *session.Session
	action  TaskAction
	logger  *slog.Logger

	dangerous atomic.Int32

	mu           sync.Mutex
	fake         bool
	trackIndex   int
	produced     []*session.Track
	progress     float64
	trackBytes   int64
	sessionBytes int64
	outBlocks    int64
	outBytes     int64
	rate         int64
	samples      [rateSamples]int64
	sampleCount  int
	sampleNext   int
	lastBytes    int64
	lastTick     time.Time
	started      time.Time
	current      Action
	actionString string
	pushedTracks int

	pending  error
	hasEvent bool
	notify   chan struct{}
}

func newCtx(s *session.Session, action TaskAction, logger *slog.Logger) *Ctx {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Ctx{
		session:  s,
		action:   action,
		logger:   logger,
		progress: -1,
		notify:   make(chan struct{}, 1),
	}
}

// reset prepares the context for a new run.
func (c *Ctx) reset(fake bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fake = fake
	c.trackIndex = 0
	c.produced = nil
	c.progress = -1
	c.trackBytes = 0
	c.sessionBytes = 0
	c.rate = 0
	c.sampleCount = 0
	c.sampleNext = 0
	c.lastBytes = 0
	c.lastTick = time.Time{}
	c.started = time.Now()
	c.current = ActionNone
	c.actionString = ""
	c.pending = nil
	c.hasEvent = false
	c.dangerous.Store(0)
	select {
	case <-c.notify:
	default:
	}
}

// Session returns the session the task works on.
func (c *Ctx) Session() *session.Session { return c.session }

// Action returns the task action.
func (c *Ctx) Action() TaskAction { return c.action }

// Logger returns the task logger.
func (c *Ctx) Logger() *slog.Logger { return c.logger }

// IsFake reports whether this run only probes the output size.
func (c *Ctx) IsFake() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fake
}

// CurrentTrack returns the input track being processed, nil when the
// session has none.
func (c *Ctx) CurrentTrack() *session.Track {
	tracks := c.session.Tracks()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.trackIndex < len(tracks) {
		return tracks[c.trackIndex]
	}
	return nil
}

// nextTrack moves to the following input track and reports whether one
// exists. Written bytes of the finished track roll into the session total.
func (c *Ctx) nextTrack() bool {
	tracks := c.session.Tracks()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.trackIndex+1 >= len(tracks) {
		return false
	}
	c.trackIndex++
	c.sessionBytes += c.trackBytes
	c.trackBytes = 0
	c.progress = -1
	return true
}

// AddProducedTrack records a track created by the run. Produced tracks
// replace the session input once the run succeeds.
func (c *Ctx) AddProducedTrack(t *session.Track) {
	c.mu.Lock()
	c.produced = append(c.produced, t)
	c.mu.Unlock()
}

// ProducedTracks returns the tracks created so far.
func (c *Ctx) ProducedTracks() []*session.Track {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*session.Track(nil), c.produced...)
}

// commitTracks pushes the session track list and installs the produced
// tracks in its place.
func (c *Ctx) commitTracks() error {
	c.mu.Lock()
	produced := c.produced
	c.produced = nil
	c.mu.Unlock()
	if len(produced) == 0 {
		return nil
	}
	c.session.PushTracks()
	c.mu.Lock()
	c.pushedTracks++
	c.mu.Unlock()
	for _, t := range produced {
		if err := c.session.AddTrack(t); err != nil {
			return burnerr.Wrap(burnerr.KindGeneral, "task", "install produced track", err)
		}
	}
	return nil
}

// PushedTracks reports how many track lists successful runs pushed onto the
// session. The caller pops them once it is done with the produced tracks.
func (c *Ctx) PushedTracks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pushedTracks
}

// SetOutputSize records the expected size of what the chain produces.
func (c *Ctx) SetOutputSize(blocks, bytes int64) {
	if blocks <= 0 && bytes > 0 {
		blocks = (bytes + 2047) / 2048
	}
	if bytes <= 0 && blocks > 0 {
		bytes = blocks * 2048
	}
	c.mu.Lock()
	c.outBlocks = blocks
	c.outBytes = bytes
	c.mu.Unlock()
}

// OutputSize returns the expected output size in sectors and bytes.
func (c *Ctx) OutputSize() (blocks, bytes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outBlocks, c.outBytes
}

// SetWrittenTrack reports the bytes written for the current track. Lower
// values than already reported are ignored.
func (c *Ctx) SetWrittenTrack(written int64) {
	c.mu.Lock()
	if written > c.trackBytes {
		c.trackBytes = written
	}
	c.mu.Unlock()
}

// SetWrittenSession reports the bytes written for the whole session.
func (c *Ctx) SetWrittenSession(written int64) {
	c.mu.Lock()
	if written > c.sessionBytes+c.trackBytes {
		c.sessionBytes = written - c.trackBytes
	}
	c.mu.Unlock()
}

// Written returns the bytes written so far in this run.
func (c *Ctx) Written() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionBytes + c.trackBytes
}

// SetProgress sets an explicit progress fraction. It never moves backward.
func (c *Ctx) SetProgress(p float64) {
	if p < 0 {
		return
	}
	if p > 1 {
		p = 1
	}
	c.mu.Lock()
	if p > c.progress {
		c.progress = p
	}
	c.mu.Unlock()
}

// Progress returns the task progress in [0,1], or -1 when unknown.
func (c *Ctx) Progress() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progressLocked()
}

func (c *Ctx) progressLocked() float64 {
	if c.progress >= 0 {
		return c.progress
	}
	if c.outBytes <= 0 {
		return -1
	}
	p := float64(c.sessionBytes+c.trackBytes) / float64(c.outBytes)
	if p > 1 {
		p = 1
	}
	return p
}

// SetRate records a rate reported by the stage itself, in bytes per second.
func (c *Ctx) SetRate(rate int64) {
	c.mu.Lock()
	c.rate = rate
	c.mu.Unlock()
}

// Rate returns the reported rate, or the rolling average of sampled
// throughput when no stage reports one.
func (c *Ctx) Rate() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rateLocked()
}

func (c *Ctx) rateLocked() int64 {
	if c.rate > 0 {
		return c.rate
	}
	if c.sampleCount == 0 {
		return 0
	}
	var sum int64
	for i := 0; i < c.sampleCount; i++ {
		sum += c.samples[i]
	}
	return sum / int64(c.sampleCount)
}

// Remaining estimates the seconds left, or -1 when unknown.
func (c *Ctx) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	rate := c.rateLocked()
	written := c.sessionBytes + c.trackBytes
	if rate <= 0 || c.outBytes <= 0 || written > c.outBytes {
		return -1
	}
	return time.Duration(float64(c.outBytes-written) / float64(rate) * float64(time.Second))
}

// sample records throughput since the previous tick in the ring buffer.
func (c *Ctx) sample(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	written := c.sessionBytes + c.trackBytes
	if !c.lastTick.IsZero() {
		elapsed := now.Sub(c.lastTick).Seconds()
		if elapsed > 0 && written >= c.lastBytes {
			c.samples[c.sampleNext] = int64(float64(written-c.lastBytes) / elapsed)
			c.sampleNext = (c.sampleNext + 1) % rateSamples
			if c.sampleCount < rateSamples {
				c.sampleCount++
			}
		}
	}
	c.lastTick = now
	c.lastBytes = written
}

// SetCurrentAction updates the action shown to users. An empty label uses
// the default label for action. Unless force is set, the same action is not
// re-announced.
func (c *Ctx) SetCurrentAction(action Action, label string, force bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !force && action == c.current && label == c.actionString {
		return false
	}
	c.current = action
	c.actionString = label
	return true
}

// CurrentAction returns the current action and its label.
func (c *Ctx) CurrentAction() (Action, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	label := c.actionString
	if label == "" {
		label = c.current.String()
	}
	return c.current, label
}

// Elapsed is the time since the run started.
func (c *Ctx) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.started)
}

// SetDangerous marks the start (true) or end (false) of a section that must
// not be interrupted. Calls nest.
func (c *Ctx) SetDangerous(on bool) {
	if on {
		c.dangerous.Add(1)
		return
	}
	if c.dangerous.Add(-1) < 0 {
		c.dangerous.Store(0)
	}
}

// Dangerous reports whether an uninterruptible section is in progress.
func (c *Ctx) Dangerous() bool { return c.dangerous.Load() > 0 }

// Finished ends the run successfully.
func (c *Ctx) Finished() { c.signal(nil) }

// Error ends the run with err.
func (c *Ctx) Error(err error) {
	if err == nil {
		err = burnerr.New(burnerr.KindGeneral, "task", "stage reported an empty error")
	}
	c.signal(err)
}

// signal stores a result for the run loop. The first terminal result wins;
// a terminal result replaces a pending retry.
func (c *Ctx) signal(err error) {
	c.mu.Lock()
	if c.hasEvent && !errors.Is(c.pending, burnerr.ErrRetry) {
		c.mu.Unlock()
		return
	}
	if c.hasEvent && errors.Is(err, burnerr.ErrRetry) {
		c.mu.Unlock()
		return
	}
	c.pending = err
	c.hasEvent = true
	c.mu.Unlock()
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// take returns the pending result and clears it.
func (c *Ctx) take() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasEvent {
		return false, nil
	}
	err := c.pending
	c.pending = nil
	c.hasEvent = false
	return true, err
}
