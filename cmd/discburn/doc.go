// Package main hosts the discburn CLI entrypoint and command graph.
//
// The Cobra-based command tree turns terminal invocations into burn
// sessions, runs them through the burn controller, and renders progress,
// drive state and the operation history. It centralizes configuration
// resolution, drive construction, and structured logging setup so
// subcommands can focus on user experience instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
