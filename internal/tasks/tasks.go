package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"conveyor/internal/queue"
)

// Task type names. Stage tasks carry the stage type as a suffix so queue
// inspection tools show which stage a task drives.
const (
	TypeDownload           = "pipeline:download"
	TypeStagePrefix        = "stage:"
	TypeStageTrim          = TypeStagePrefix + "trim"
	TypeStageTranscribe    = TypeStagePrefix + "transcribe"
	TypeStageTopics        = TypeStagePrefix + "extract_topics"
	TypeStageSubtitles     = TypeStagePrefix + "generate_subtitles"
	TypeUpload             = "pipeline:upload"
	TypeAutomationRun      = "automation:run"
	TypeMaintenanceExpire  = "maintenance:expire"
	TypeMaintenanceReclaim = "maintenance:reclaim"
)

// StagePayload identifies the recording a stage task operates on.
type StagePayload struct {
	RecordingID int64           `json:"recording_id"`
	Stage       queue.StageType `json:"stage"`
}

// DownloadPayload identifies the recording a download task fetches media for.
type DownloadPayload struct {
	RecordingID int64 `json:"recording_id"`
}

// UploadPayload identifies one (recording, platform) upload attempt.
type UploadPayload struct {
	RecordingID int64  `json:"recording_id"`
	Platform    string `json:"platform"`
}

// AutomationPayload identifies the automation job a periodic tick runs.
type AutomationPayload struct {
	JobID int64 `json:"job_id"`
}

// StageTaskID returns the deterministic task ID for a recording's stage.
// Enqueuing the same stage for the same recording while a previous task is
// still pending or in flight is rejected by the runtime as a duplicate.
func StageTaskID(recordingID int64, stage queue.StageType) string {
	return fmt.Sprintf("recording:%d:stage:%s", recordingID, stage)
}

// DownloadTaskID returns the deterministic task ID for a recording's download.
func DownloadTaskID(recordingID int64) string {
	return fmt.Sprintf("recording:%d:download", recordingID)
}

// UploadTaskID returns the deterministic task ID for one platform upload.
func UploadTaskID(recordingID int64, platform string) string {
	return fmt.Sprintf("recording:%d:upload:%s", recordingID, platform)
}

// StageTaskType maps a stage type to its task type name.
func StageTaskType(stage queue.StageType) string {
	return TypeStagePrefix + string(stage)
}

// NewDownloadTask builds the task that fetches source media for a recording.
func NewDownloadTask(recordingID int64) (*asynq.Task, error) {
	payload, err := json.Marshal(DownloadPayload{RecordingID: recordingID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeDownload, payload), nil
}

// NewStageTask builds the task that runs one pipeline stage.
func NewStageTask(recordingID int64, stage queue.StageType) (*asynq.Task, error) {
	payload, err := json.Marshal(StagePayload{RecordingID: recordingID, Stage: stage})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(StageTaskType(stage), payload), nil
}

// NewUploadTask builds the task that uploads a recording to one platform.
func NewUploadTask(recordingID int64, platform string) (*asynq.Task, error) {
	payload, err := json.Marshal(UploadPayload{RecordingID: recordingID, Platform: platform})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeUpload, payload), nil
}

// NewAutomationRunTask builds the periodic task that triggers one automation
// job.
func NewAutomationRunTask(jobID int64) (*asynq.Task, error) {
	payload, err := json.Marshal(AutomationPayload{JobID: jobID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeAutomationRun, payload), nil
}

// NewExpireSweepTask builds the periodic task that expires overdue recordings.
func NewExpireSweepTask() *asynq.Task {
	return asynq.NewTask(TypeMaintenanceExpire, nil)
}

// NewReclaimTask builds the periodic task that reclaims stages whose worker
// stopped heartbeating.
func NewReclaimTask() *asynq.Task {
	return asynq.NewTask(TypeMaintenanceReclaim, nil)
}

// DecodeStagePayload parses a stage task payload.
func DecodeStagePayload(task *asynq.Task) (StagePayload, error) {
	var payload StagePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return StagePayload{}, fmt.Errorf("decode %s payload: %w", task.Type(), err)
	}
	if _, ok := queue.ParseStageType(string(payload.Stage)); !ok {
		return StagePayload{}, fmt.Errorf("decode %s payload: unknown stage %q", task.Type(), payload.Stage)
	}
	return payload, nil
}

// DecodeDownloadPayload parses a download task payload.
func DecodeDownloadPayload(task *asynq.Task) (DownloadPayload, error) {
	var payload DownloadPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return DownloadPayload{}, fmt.Errorf("decode %s payload: %w", task.Type(), err)
	}
	return payload, nil
}

// DecodeUploadPayload parses an upload task payload.
func DecodeUploadPayload(task *asynq.Task) (UploadPayload, error) {
	var payload UploadPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return UploadPayload{}, fmt.Errorf("decode %s payload: %w", task.Type(), err)
	}
	return payload, nil
}

// DecodeAutomationPayload parses an automation tick payload.
func DecodeAutomationPayload(task *asynq.Task) (AutomationPayload, error) {
	var payload AutomationPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return AutomationPayload{}, fmt.Errorf("decode %s payload: %w", task.Type(), err)
	}
	return payload, nil
}
