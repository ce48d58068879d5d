package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"discburn/internal/burnerr"
	"discburn/internal/logging"
	"discburn/internal/session"
)

const (
	// maxStartAttempts bounds retries of an item whose device is busy.
	maxStartAttempts = 5
	startRetryDelay  = time.Second
	defaultInterval  = 500 * time.Millisecond
)

// Task runs one chain of items: it activates them, starts them from the
// output end backward, then ticks them until a terminal result arrives.
type Task struct {
	*Ctx

	name     string
	items    []Item
	interval time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
	onTick   func(*Task)
}

// NewTask returns an empty task of the given action over s.
func NewTask(name string, s *session.Session, action TaskAction, logger *slog.Logger) *Task {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.With(logging.String(logging.FieldTask, name))
	return &Task{
		Ctx:      newCtx(s, action, logger),
		name:     name,
		interval: defaultInterval,
		sleep:    sleepContext,
	}
}

func (t *Task) Name() string { return t.name }

// SetInterval changes the clock tick period.
func (t *Task) SetInterval(d time.Duration) {
	if d > 0 {
		t.interval = d
	}
}

// SetLogger replaces the task logger, typically with one teed into the
// operation's session log.
func (t *Task) SetLogger(logger *slog.Logger) {
	if logger != nil {
		t.Ctx.logger = logger.With(logging.String(logging.FieldTask, t.name))
	}
}

// OnTick registers a callback run after every clock tick, used to publish
// progress.
func (t *Task) OnTick(fn func(*Task)) { t.onTick = fn }

// AddItem appends item after the current leader.
func (t *Task) AddItem(item Item) error {
	if item == nil {
		return errors.New("add item: nil item")
	}
	if n := len(t.items); n > 0 {
		if err := t.items[n-1].Link(item); err != nil {
			return err
		}
	}
	t.items = append(t.items, item)
	return nil
}

// Items returns the chain from first to leader.
func (t *Task) Items() []Item { return append([]Item(nil), t.items...) }

// SetFinalOutput makes the last job write the session's output path instead
// of a temporary image.
func (t *Task) SetFinalOutput(final bool) {
	for _, item := range t.items {
		if j, ok := item.(*Job); ok {
			j.mu.Lock()
			j.finalOutput = final
			j.mu.Unlock()
		}
	}
}

// Run executes the chain. burnerr.ErrNotRunning means the task had nothing
// to do.
func (t *Task) Run(ctx context.Context) error {
	return t.run(ctx, false)
}

// Check runs the chain in size-probe mode to learn the output size.
func (t *Task) Check(ctx context.Context) error {
	return t.run(ctx, true)
}

// Cancel ends the current run with a cancellation. A protected cancel is
// refused with burnerr.ErrDangerous while a stage is in an uninterruptible
// section.
func (t *Task) Cancel(protect bool) error {
	if protect && t.Dangerous() {
		return burnerr.ErrDangerous
	}
	t.signal(burnerr.Cancelled(t.name))
	return nil
}

func (t *Task) run(ctx context.Context, fake bool) error {
	if len(t.items) == 0 {
		return burnerr.ErrNotRunning
	}
	t.reset(fake)
	logger := t.Logger()

	active, err := t.activateItems()
	if err != nil {
		return err
	}
	if active == 0 {
		logger.Debug("no stage takes part in this run",
			logging.String(logging.FieldEventType, "task_vacuous"),
		)
		return burnerr.ErrNotRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := t.startItems(runCtx); err != nil {
		_ = t.stopItems()
		return err
	}

	result := t.loop(runCtx)
	if stopErr := t.stopItems(); stopErr != nil && result == nil {
		result = stopErr
	}
	if result == nil {
		result = t.commitTracks()
	}
	return result
}

func (t *Task) activateItems() (int, error) {
	active := 0
	for _, item := range t.items {
		err := item.Activate(t.Ctx)
		switch {
		case err == nil:
			active++
		case errors.Is(err, burnerr.ErrNotRunning):
			continue
		default:
			_ = t.stopItems()
			return 0, err
		}
	}
	return active, nil
}

// startItems starts active items from the leader back to the first one so a
// reader exists before its writer starts.
func (t *Task) startItems(ctx context.Context) error {
	started := 0
	unsupported := 0
	for i := len(t.items) - 1; i >= 0; i-- {
		item := t.items[i]
		if !item.IsActive() {
			continue
		}
		err := t.startWithRetry(ctx, item)
		switch {
		case err == nil:
			started++
		case errors.Is(err, burnerr.ErrNotSupported) && t.IsFake():
			unsupported++
		default:
			return err
		}
	}
	if started == 0 && unsupported > 0 {
		if track := t.CurrentTrack(); track != nil {
			blocks, bytes := track.Size()
			t.SetOutputSize(blocks, bytes)
		}
		return burnerr.ErrNotRunning
	}
	return nil
}

func (t *Task) startWithRetry(ctx context.Context, item Item) error {
	var err error
	for attempt := 1; attempt <= maxStartAttempts; attempt++ {
		err = item.Start(ctx)
		if !errors.Is(err, burnerr.ErrRetry) {
			return err
		}
		t.Logger().Debug("stage busy, retrying start",
			logging.Int("attempt", attempt),
			logging.String(logging.FieldEventType, "stage_start_retry"),
		)
		if sleepErr := t.sleep(ctx, startRetryDelay); sleepErr != nil {
			return burnerr.Cancelled(t.name)
		}
	}
	return burnerr.Wrap(burnerr.KindGeneral, t.name, "stage stayed busy", err)
}

func (t *Task) loop(ctx context.Context) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return burnerr.Cancelled(t.name)
		case now := <-ticker.C:
			if err := t.tick(now); err != nil {
				return err
			}
		case <-t.notify:
			ok, err := t.take()
			if !ok {
				continue
			}
			if !errors.Is(err, burnerr.ErrRetry) {
				return err
			}
			first := t.firstActive()
			if first == nil {
				return burnerr.New(burnerr.KindPluginMisbehavior, t.name, "next track requested without an active stage")
			}
			if err := t.startWithRetry(ctx, first); err != nil {
				return err
			}
		}
	}
}

func (t *Task) tick(now time.Time) error {
	for _, item := range t.items {
		if err := item.ClockTick(); err != nil {
			return err
		}
	}
	t.sample(now)
	if t.onTick != nil {
		t.onTick(t)
	}
	return nil
}

func (t *Task) firstActive() Item {
	for _, item := range t.items {
		if item.IsActive() {
			return item
		}
	}
	return nil
}

// stopItems stops every active item from the first to the leader. Each
// item is stopped once; inactive items are skipped.
func (t *Task) stopItems() error {
	var firstErr error
	for _, item := range t.items {
		if err := item.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
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
