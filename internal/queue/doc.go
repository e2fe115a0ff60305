// Package queue persists pipeline state in SQLite and exposes helpers for
// driving recording lifecycles.
//
// The Store manages database connections, schema initialization, and the row
// sets the orchestrator reasons over: recordings, their per-stage records,
// their per-platform output targets, matching templates, and automation jobs.
// Recordings capture aggregate status, failure markers, pause flags, and
// manual configuration overrides so stage tasks can coordinate without
// additional state.
//
// Treat this package as the single source of truth for pipeline semantics;
// the stage dependency graph, status enums, and skip reasons live here. When
// you add new statuses or stage types, update schema.sql and bump
// schemaVersion.
package queue
