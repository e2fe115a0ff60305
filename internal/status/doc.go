// Package status derives a recording's aggregate status from its persisted
// stage and output records.
//
// Compute is a pure function evaluated in a fixed priority order: expiry,
// externally-set blocking states, in-flight stage work, preserved base
// statuses, stage completion, then upload progress. The ordering is
// load-bearing; in particular, an in-progress stage must win over the base
// statuses so a recording mid-transcription never reports its earlier
// download state. Callers recompute after every state change and persist the
// result alongside it.
package status
