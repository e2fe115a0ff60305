// Package daemon assembles the worker process: the asynq server and mux,
// the periodic task manager that executes automation schedules, and the
// maintenance tickers, under flock-based locking so only one conveyord
// instance runs per data directory.
package daemon
