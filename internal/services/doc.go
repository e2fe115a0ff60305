// Package services defines the boundary to external media operations and the
// error taxonomy used to classify their failures.
//
// The Operations interface covers one opaque call per pipeline stage
// (download, trim, transcribe, extract topics, generate subtitles, upload).
// The orchestration layer never inspects media itself; it invokes an
// operation and records success or classified failure. The default
// implementation shells out to the commands configured under [tools].
//
// Sentinel errors tag failures by category. Recognized categories
// (credential, not-found, rate-limited) follow the graceful-failure path:
// the failure is recorded as data and the task runtime sees success.
// Unrecognized errors propagate so programmer mistakes surface loudly.
package services
