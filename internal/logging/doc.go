// Package logging constructs the slog loggers used by the daemon, the CLI,
// and the task handlers.
//
// It supports console and JSON output, routes logs to stdout plus an optional
// file under the configured log directory, and exposes typed attribute helpers
// alongside the shared field-name constants so stage events stay greppable
// across packages.
//
// Obtain loggers through New or NewFromConfig rather than slog.Default so
// level and format always follow configuration.
package logging
