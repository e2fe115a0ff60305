// Package failure decides what a stage or upload error means for the rest of
// a recording's pipeline.
//
// Recognized operational errors (credentials, missing remotes, rate limits,
// tool failures) are recorded on the queue rows and consumed so the task
// runtime does not retry them blindly. A trim failure rolls the recording
// back so the chain can be restarted from the downloaded media. Failures in
// later stages either halt the chain or, when the recording's configuration
// tolerates errors, skip the failed stage and everything downstream of it
// while the rest of the pipeline continues.
package failure
