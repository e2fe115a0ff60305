// Package stagesync keeps per-recording stage records consistent with the
// recording's resolved configuration and folds every stage transition back
// into the recording's aggregate status.
//
// The tracker is the single writer for stage rows. Each mutation persists the
// stage and the recalculated recording status in one transaction so readers
// never observe a stage change without its status consequence.
package stagesync
