package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDrive()
	c.normalizeBurn()
	c.normalizeTools()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.TmpDir) == "" {
		c.Paths.TmpDir = defaultTmpDir()
	}
	if c.Paths.TmpDir, err = expandPath(c.Paths.TmpDir); err != nil {
		return fmt.Errorf("paths.tmp_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeDrive() {
	c.Drive.Device = strings.TrimSpace(c.Drive.Device)
	if c.Drive.Device == "" {
		c.Drive.Device = defaultDevice
	}
}

func (c *Config) normalizeBurn() {
	c.Burn.Checksum = strings.ToLower(strings.TrimSpace(c.Burn.Checksum))
	if c.Burn.Checksum == "" {
		c.Burn.Checksum = defaultChecksum
	}
}

func (c *Config) normalizeTools() {
	defaults := defaultTools()
	fill := func(value *string, fallback string) {
		*value = strings.TrimSpace(*value)
		if *value == "" {
			*value = fallback
		}
	}
	fill(&c.Tools.Xorriso, defaults.Xorriso)
	fill(&c.Tools.Wodim, defaults.Wodim)
	fill(&c.Tools.Growisofs, defaults.Growisofs)
	fill(&c.Tools.DVDRWFormat, defaults.DVDRWFormat)
	fill(&c.Tools.DVDRWMediaInfo, defaults.DVDRWMediaInfo)
	fill(&c.Tools.Eject, defaults.Eject)
	fill(&c.Tools.Lsblk, defaults.Lsblk)
	fill(&c.Tools.Umount, defaults.Umount)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
