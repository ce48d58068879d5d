package media

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pilebones/go-udev/netlink"

	"discburn/internal/logging"
)

// Event is a media change reported by the kernel for one optical drive.
type Event struct {
	Device       string
	Action       string
	MediaPresent bool
}

// Watcher listens for udev netlink events on optical drives and fans them
// out to per-device subscribers.
type Watcher struct {
	logger *slog.Logger

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
	subs    map[string][]chan Event
}

// NewWatcher creates an unstarted watcher.
func NewWatcher(logger *slog.Logger) *Watcher {
	return &Watcher{
		logger: logging.NewComponentLogger(logger, "media-watcher"),
		subs:   make(map[string][]chan Event),
	}
}

// Start begins listening for udev netlink events. Failing to open the socket
// is not fatal: WaitForMedia falls back to polling.
func (w *Watcher) Start(ctx context.Context) error {
	if w == nil {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		logging.WarnWithContext(w.logger, "failed to connect to netlink socket; media changes will be polled", "netlink_connect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check permission to open netlink sockets"),
			logging.String(logging.FieldImpact, "insert-media prompts poll the drive instead of waking on events"),
		)
		return nil
	}

	w.conn = conn
	w.quit = make(chan struct{})
	w.running = true

	quit := w.quit
	go w.monitorLoop(ctx, conn, quit)

	w.logger.Debug("media watcher started",
		logging.String(logging.FieldEventType, "media_watcher_started"),
	)
	return nil
}

// Stop shuts down the watcher.
func (w *Watcher) Stop() {
	if w == nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	if w.quit != nil {
		close(w.quit)
		w.quit = nil
	}
	if w.conn != nil {
		_ = w.conn.Close()
		w.conn = nil
	}
	w.running = false
}

// Running reports whether the watcher is receiving kernel events.
func (w *Watcher) Running() bool {
	if w == nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Subscribe returns a channel of events for device and a function that
// removes the subscription. Slow readers lose events rather than block.
func (w *Watcher) Subscribe(device string) (<-chan Event, func()) {
	ch := make(chan Event, 4)
	w.mu.Lock()
	w.subs[device] = append(w.subs[device], ch)
	w.mu.Unlock()

	cancel := func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		list := w.subs[device]
		for i, c := range list {
			if c == ch {
				w.subs[device] = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(w.subs[device]) == 0 {
			delete(w.subs, device)
		}
	}
	return ch, cancel
}

// WaitForMedia blocks until a medium-present event arrives for device or
// present reports true. present is polled every interval so the wait also
// works without a netlink socket.
func (w *Watcher) WaitForMedia(ctx context.Context, device string, interval time.Duration, present func() bool) error {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	var events <-chan Event
	if w != nil {
		ch, cancel := w.Subscribe(device)
		defer cancel()
		events = ch
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if present != nil && present() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-events:
			if ev.MediaPresent {
				return nil
			}
		case <-ticker.C:
		}
	}
}

func (w *Watcher) monitorLoop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, buildMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			w.handleEvent(uevent)
		case err := <-errs:
			logging.WarnWithContext(w.logger, "netlink monitor error", "netlink_monitor_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "media change events may be missed"),
			)
		}
	}
}

// buildMatcher accepts add/change events on optical block devices, with or
// without a medium, so removals are seen too.
func buildMatcher() netlink.Matcher {
	action := "change|add"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "block",
			"ID_CDROM":  "1",
		},
	})
	return rules
}

func (w *Watcher) handleEvent(uevent netlink.UEvent) {
	device := extractDeviceName(uevent)
	if device == "" {
		return
	}
	ev := Event{
		Device:       device,
		Action:       string(uevent.Action),
		MediaPresent: uevent.Env["ID_CDROM_MEDIA"] == "1",
	}
	w.logger.Debug("media change event",
		logging.String(logging.FieldDrive, device),
		logging.String("action", ev.Action),
		logging.Bool("media_present", ev.MediaPresent),
	)

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, ch := range w.subs[device] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// extractDeviceName gets the device path from a uevent.
func extractDeviceName(uevent netlink.UEvent) string {
	if devname := uevent.Env["DEVNAME"]; devname != "" {
		if !strings.HasPrefix(devname, "/") {
			devname = "/dev/" + devname
		}
		return devname
	}

	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	parts := strings.Split(devpath, "/")
	return "/dev/" + parts[len(parts)-1]
}
