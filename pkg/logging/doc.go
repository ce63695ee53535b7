// Package logging provides a small structured logger built on log/slog.
//
// Unlike a process-global logger, every Logger is an independent instance:
// construct one with New() and thread it through the subsystems that need
// it. There is no global mutable state and nothing to initialize at
// startup.
package logging
