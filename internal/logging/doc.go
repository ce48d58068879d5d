// Package logging assembles structured slog loggers and formatting helpers used
// across discburn.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and provides the per-operation session log: an append-only,
// UTF-8-clean text file in the temporary directory that records every event of
// one record, blank or check call. A no-op logger is available for tests and
// wiring code that cannot fail.
package logging
