// Package config loads, normalizes, and validates discburn configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), and reads TOML files. The Config type centralizes the drive,
// burn-flag, tool and logging knobs the CLI needs so every command sees the
// same sanitized values and clear validation errors.
package config
