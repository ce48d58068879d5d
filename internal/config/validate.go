package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateDrive(); err != nil {
		return err
	}
	if err := c.validateBurn(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.TmpDir) == "" {
		return errors.New("paths.tmp_dir must be set")
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return errors.New("paths.state_dir must be set")
	}
	return nil
}

func (c *Config) validateDrive() error {
	if !strings.HasPrefix(c.Drive.Device, "/") {
		return fmt.Errorf("drive.device must be an absolute device path, got %q", c.Drive.Device)
	}
	if c.Drive.Speed < 0 {
		return errors.New("drive.speed must be 0 (maximum) or a positive multiplier")
	}
	return nil
}

func (c *Config) validateBurn() error {
	switch c.Burn.Checksum {
	case "none", "md5", "sha1", "sha256":
	default:
		return fmt.Errorf("burn.checksum must be one of none, md5, sha1, sha256, got %q", c.Burn.Checksum)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	return nil
}
