// Package pipeline builds and advances per-recording processing chains.
//
// Start resolves the recording's effective configuration, reconciles its
// stage rows, and hands the first runnable tasks to the asynq runtime. The
// call is O(config resolution): no worker slot is held while media is
// processed. After each task finishes, Advance recomputes the next runnable
// tasks purely from persisted state, so a chain survives worker restarts and
// never depends on in-memory continuation.
//
// Duplicate work is prevented twice over: Start rejects recordings with an
// in-progress stage, and every task carries a deterministic ID the runtime
// refuses to enqueue twice while the previous instance is still live.
package pipeline
