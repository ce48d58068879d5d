package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"discburn/internal/burn"
	"discburn/internal/caps"
	"discburn/internal/config"
	"discburn/internal/history"
	"discburn/internal/logging"
	"discburn/internal/media"
	"discburn/internal/procexec"
	"discburn/internal/session"
)

// probeTimeout bounds the medium probe done when a drive is first named.
const probeTimeout = 30 * time.Second

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger

	// exec runs every external tool; tests swap in a procexec.Fake.
	exec procexec.Executor

	mu      sync.Mutex
	history *history.Store
	drives  map[string]media.Drive
}

func newCommandContext(configFlag, logLevelFlag *string, exec procexec.Executor) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
		exec:         exec,
		drives:       make(map[string]media.Drive),
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
			cfg.Logging.Level = strings.TrimSpace(*c.logLevelFlag)
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// loggerValue builds the process logger once and prunes old session logs.
func (c *commandContext) loggerValue() *slog.Logger {
	c.loggerOnce.Do(func() {
		cfg := c.configValue()
		logger, err := logging.NewFromConfig(cfg)
		if err != nil {
			logger = logging.NewNop()
		}
		c.logger = logger
		if cfg != nil {
			maxAge := time.Duration(cfg.Logging.RetentionDays) * 24 * time.Hour
			logging.PruneSessionLogs(logger, cfg.Paths.LogDir, maxAge, "")
		}
	})
	return c.logger
}

// historyStore opens the journal lazily. Runs left open by a crashed
// process are closed as interrupted on first use.
func (c *commandContext) historyStore(ctx context.Context) (*history.Store, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.history != nil {
		return c.history, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := history.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	if n, err := store.MarkInterrupted(ctx); err == nil && n > 0 {
		logging.WarnWithContext(c.loggerValue(), "previous operations did not finish", "history_interrupted",
			logging.Int64("runs", n),
			logging.String(logging.FieldImpact, "those runs are recorded as interrupted"),
		)
	}
	c.history = store
	return store, nil
}

// drive returns the drive for device, probing its medium the first time.
func (c *commandContext) drive(ctx context.Context, device string) (media.Drive, error) {
	device = strings.TrimSpace(device)
	if device == "" {
		return nil, fmt.Errorf("device path required")
	}
	c.mu.Lock()
	if d, ok := c.drives[device]; ok {
		c.mu.Unlock()
		return d, nil
	}
	c.mu.Unlock()

	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	model := ""
	if infos, err := media.Discover(ctx, c.exec, cfg.Tools.Lsblk); err == nil {
		for _, info := range infos {
			if info.Device == device {
				model = info.DisplayName()
			}
		}
	}
	d := media.NewLinuxDrive(device, media.LinuxDriveOptions{
		Model:   model,
		Exec:    c.exec,
		Tools:   driveTools(cfg),
		LockDir: cfg.Paths.StateDir,
		Logger:  c.loggerValue(),
	})
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := d.Reprobe(probeCtx); err != nil {
		c.loggerValue().Debug("initial probe failed",
			logging.String(logging.FieldDrive, device),
			logging.Error(err),
		)
	}

	c.mu.Lock()
	c.drives[device] = d
	c.mu.Unlock()
	return d, nil
}

func (c *commandContext) resolver(ctx context.Context) session.DriveResolver {
	return func(device string) (media.Drive, error) {
		return c.drive(ctx, device)
	}
}

// controller wires the caps, the journal and interaction into a burn
// controller.
func (c *commandContext) controller(ctx context.Context, interaction burn.Interaction) (*burn.Burn, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger := c.loggerValue()
	opts := burn.Options{
		Caps:          caps.New(cfg.Tools, c.exec, logger),
		Interaction:   interaction,
		Logger:        logger,
		SessionLogDir: cfg.Paths.LogDir,
	}
	if store, err := c.historyStore(ctx); err == nil {
		opts.Journal = store
	} else {
		logging.WarnWithContext(logger, "history unavailable", "history_open_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "this operation will not be journaled"),
		)
	}
	return burn.New(opts)
}

func (c *commandContext) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.history != nil {
		_ = c.history.Close()
		c.history = nil
	}
}

func driveTools(cfg *config.Config) media.Tools {
	return media.Tools{
		MediaInfo: cfg.Tools.DVDRWMediaInfo,
		Eject:     cfg.Tools.Eject,
		Lsblk:     cfg.Tools.Lsblk,
		Umount:    cfg.Tools.Umount,
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
