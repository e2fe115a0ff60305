// Package config loads, normalizes, and validates Conveyor configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), and reads TOML files. The Config type centralizes every knob the
// daemon and CLI need: database and log locations, Redis connection details
// for the task queue, worker concurrency and retry policy, external tool
// commands for each pipeline stage, and the tenant-wide base processing
// profile that seeds configuration resolution.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths and clear validation errors.
package config
