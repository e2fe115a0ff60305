package queue

import (
	"strings"
	"time"
)

// Status represents the aggregate lifecycle state of a recording. It is
// derived from stage and output records rather than set directly; see the
// status package for the derivation rules.
type Status string

const (
	StatusPendingSource     Status = "pending_source"
	StatusInitialized       Status = "initialized"
	StatusDownloading       Status = "downloading"
	StatusDownloaded        Status = "downloaded"
	StatusProcessing        Status = "processing"
	StatusProcessed         Status = "processed"
	StatusUploading         Status = "uploading"
	StatusPartiallyUploaded Status = "partially_uploaded"
	StatusReady             Status = "ready"
	StatusSkipped           Status = "skipped"
	StatusExpired           Status = "expired"
)

var allStatuses = []Status{
	StatusPendingSource,
	StatusInitialized,
	StatusDownloading,
	StatusDownloaded,
	StatusProcessing,
	StatusProcessed,
	StatusUploading,
	StatusPartiallyUploaded,
	StatusReady,
	StatusSkipped,
	StatusExpired,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// baseStatuses are set by ingest and download rather than derived; the
// aggregator preserves them until stage work begins.
var baseStatuses = map[Status]struct{}{
	StatusInitialized: {},
	StatusDownloading: {},
	StatusDownloaded:  {},
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsBaseStatus reports whether a status is an ingest/download state that the
// aggregator must not override before stage work starts.
func IsBaseStatus(status Status) bool {
	_, ok := baseStatuses[status]
	return ok
}

// StageType identifies one discrete processing step tracked per recording.
type StageType string

const (
	StageTrim              StageType = "trim"
	StageTranscribe        StageType = "transcribe"
	StageExtractTopics     StageType = "extract_topics"
	StageGenerateSubtitles StageType = "generate_subtitles"
)

// allStageTypes is the canonical pipeline order. Extract-topics and
// generate-subtitles form a parallel branch after transcribe.
var allStageTypes = []StageType{
	StageTrim,
	StageTranscribe,
	StageExtractTopics,
	StageGenerateSubtitles,
}

// stageDependencies maps each stage to its ordering prerequisites: every
// listed stage must be terminal before the dependent may run. An ordering
// prerequisite that was skipped does not block the dependent; trim being
// disabled still lets transcribe run on the raw media.
var stageDependencies = map[StageType][]StageType{
	StageTrim:              nil,
	StageTranscribe:        {StageTrim},
	StageExtractTopics:     {StageTranscribe},
	StageGenerateSubtitles: {StageTranscribe},
}

// dataDependencies lists the stages whose output a stage consumes. A data
// dependency that did not complete starves the dependent entirely, so skips
// and failures cascade along these edges only.
var dataDependencies = map[StageType][]StageType{
	StageExtractTopics:     {StageTranscribe},
	StageGenerateSubtitles: {StageTranscribe},
}

// AllStageTypes returns the ordered list of known stage types.
func AllStageTypes() []StageType {
	cp := make([]StageType, len(allStageTypes))
	copy(cp, allStageTypes)
	return cp
}

// ParseStageType converts a string into a known StageType.
func ParseStageType(value string) (StageType, bool) {
	normalized := StageType(strings.ToLower(strings.TrimSpace(value)))
	for _, st := range allStageTypes {
		if st == normalized {
			return st, true
		}
	}
	return "", false
}

// Prerequisites returns the stage types that must be terminal before the
// given stage may run.
func Prerequisites(stage StageType) []StageType {
	deps := stageDependencies[stage]
	cp := make([]StageType, len(deps))
	copy(cp, deps)
	return cp
}

// DataPrerequisites returns the stages whose completed output the given
// stage consumes.
func DataPrerequisites(stage StageType) []StageType {
	deps := dataDependencies[stage]
	cp := make([]StageType, len(deps))
	copy(cp, deps)
	return cp
}

// DataDependents returns the stages that consume the given stage's output.
func DataDependents(stage StageType) []StageType {
	return dependentsOf(stage, dataDependencies)
}

func dependentsOf(stage StageType, graph map[StageType][]StageType) []StageType {
	var out []StageType
	for _, st := range allStageTypes {
		for _, dep := range graph[st] {
			if dep == stage {
				out = append(out, st)
			}
		}
	}
	return out
}

// StageStatus represents the lifecycle of a single stage record.
type StageStatus string

const (
	StagePending    StageStatus = "pending"
	StageInProgress StageStatus = "in_progress"
	StageCompleted  StageStatus = "completed"
	StageFailed     StageStatus = "failed"
	StageSkipped    StageStatus = "skipped"
)

// IsTerminal reports whether a stage status represents finished work.
func (s StageStatus) IsTerminal() bool {
	switch s {
	case StageCompleted, StageFailed, StageSkipped:
		return true
	default:
		return false
	}
}

// Skip reasons recorded on stage rows. Config-driven skips, failure-policy
// skips, and dependency skips are deliberately distinct so operators can tell
// them apart.
const (
	SkipReasonDisabled      = "disabled_in_config"
	SkipReasonError         = "error"
	SkipReasonParentFailed  = "parent_failed"
	SkipReasonParentSkipped = "parent_skipped"
)

// OutputStatus represents the upload lifecycle of one platform target.
type OutputStatus string

const (
	OutputNotUploaded OutputStatus = "not_uploaded"
	OutputUploading   OutputStatus = "uploading"
	OutputUploaded    OutputStatus = "uploaded"
	OutputFailed      OutputStatus = "failed"
)

// Recording represents one unit of work moving through the pipeline.
type Recording struct {
	ID            int64
	TenantID      string
	Name          string
	SourceID      string
	SourceURL     string
	Status        Status
	Failed        bool
	FailedAtStage string
	RetryCount    int
	TemplateID    *int64
	OverridesJSON string
	OnPause       bool
	ExpireAt      *time.Time
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsExpired reports whether the recording's expiry timestamp has passed.
func (r *Recording) IsExpired(now time.Time) bool {
	return r.ExpireAt != nil && r.ExpireAt.Before(now)
}

// SetFailed marks the recording as failed at the given stage.
func (r *Recording) SetFailed(stage StageType, message string) {
	r.Failed = true
	r.FailedAtStage = string(stage)
	r.ErrorMessage = message
}

// ClearFailure resets failure markers, typically before a manual retry.
func (r *Recording) ClearFailure() {
	r.Failed = false
	r.FailedAtStage = ""
	r.ErrorMessage = ""
}

// Stage is the persisted per-(recording, stage-type) record. At most one row
// exists per pair.
type Stage struct {
	ID           int64
	RecordingID  int64
	Type         StageType
	Status       StageStatus
	SkipReason   string
	FailedReason string
	RetryCount   int
	HeartbeatAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// OutputTarget is the persisted per-(recording, platform) upload record.
// Uploads are attempted independently; one platform's failure must not block
// another's completion.
type OutputTarget struct {
	ID           int64
	RecordingID  int64
	Platform     string
	Preset       string
	Status       OutputStatus
	RetryCount   int
	ErrorMessage string
	ExternalRef  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Template is a named, ordered set of matching rules plus config fragments.
// Read-only to the orchestrator.
type Template struct {
	ID              int64
	Name            string
	IsActive        bool
	IsDraft         bool
	CaseSensitive   bool
	SourceIDs       []string
	ExactMatches    []string
	Keywords        []string
	Patterns        []string
	ExcludeKeywords []string
	ExcludePatterns []string
	ConfigJSON      string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ScheduleKind identifies the shape of an automation job schedule.
type ScheduleKind string

const (
	ScheduleDaily    ScheduleKind = "daily"
	ScheduleInterval ScheduleKind = "interval"
	ScheduleWeekdays ScheduleKind = "weekdays"
	ScheduleCron     ScheduleKind = "cron"
)

// AutomationJob is a declarative schedule bound to a template. The schedule
// converter translates it to a cron expression consumed by the periodic task
// manager.
type AutomationJob struct {
	ID         int64
	TenantID   string
	Name       string
	TemplateID int64
	Enabled    bool
	Kind       ScheduleKind
	AtTime     string
	EveryHours int
	Weekdays   []time.Weekday
	CronExpr   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// HealthSummary describes aggregated recording counts per key lifecycle state.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Failed     int
	Ready      int
	Expired    int
}
