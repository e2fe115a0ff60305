// Package profile resolves layered processing configuration into the single
// effective profile a pipeline run uses.
//
// Configuration is modeled as a Value, a tagged union of scalar, list, and
// map, so the deep merge is total: maps merge per key recursively, everything
// else is replaced wholesale by the higher-precedence layer. Resolve applies
// the fixed precedence order (user defaults, then template config, then the
// recording's persisted overrides, then a runtime-only override) without side
// effects, so dry runs can call it freely.
//
// Settings decodes the resolved Value into the typed view the orchestrator
// consumes: per-stage enablement, the allow-errors policy, and upload
// platform targets.
package profile
