// Package tasks defines the task types exchanged with the asynq runtime:
// their names, payload encodings, enqueue options, and the deterministic
// task IDs that keep duplicate work out of the queue.
package tasks
