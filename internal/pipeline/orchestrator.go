package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"conveyor/internal/config"
	"conveyor/internal/logging"
	"conveyor/internal/profile"
	"conveyor/internal/queue"
	"conveyor/internal/services"
	"conveyor/internal/stagesync"
	"conveyor/internal/tasks"
)

// ErrAlreadyRunning reports a Start call on a recording that still has an
// in-progress stage. Callers treat it as "nothing to do", not a fault.
var ErrAlreadyRunning = errors.New("pipeline: chain already running")

// Enqueuer is the slice of the asynq client the orchestrator needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ChainHandle summarizes what Start handed to the task runtime.
type ChainHandle struct {
	RecordingID int64
	Status      queue.Status
	TemplateID  *int64
	Enqueued    []string
}

// StartOption customizes a single Start invocation.
type StartOption func(*startOptions)

type startOptions struct {
	runtimeOverride map[string]any
	persistOverride bool
}

// WithRuntimeOverride applies a config overlay for this invocation only.
func WithRuntimeOverride(override map[string]any) StartOption {
	return func(o *startOptions) { o.runtimeOverride = override }
}

// PersistOverride stores the runtime override onto the recording so later
// invocations keep it.
func PersistOverride() StartOption {
	return func(o *startOptions) { o.persistOverride = true }
}

// Orchestrator builds chains and feeds the task runtime.
type Orchestrator struct {
	store    *queue.Store
	client   Enqueuer
	tracker  *stagesync.Tracker
	resolver *Resolver
	cfg      *config.Config
	logger   *slog.Logger
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(store *queue.Store, client Enqueuer, tracker *stagesync.Tracker, cfg *config.Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		store:    store,
		client:   client,
		tracker:  tracker,
		resolver: NewResolver(store, cfg),
		cfg:      cfg,
		logger:   logger,
	}
}

// Resolver exposes the orchestrator's config resolver for dry runs.
func (o *Orchestrator) Resolver() *Resolver {
	return o.resolver
}

// Start resolves configuration, reconciles stage rows, and enqueues the
// first runnable tasks. It returns quickly; the chain runs on the worker
// pool. Calling Start on a recording whose stages are all completed is a
// no-op resume.
func (o *Orchestrator) Start(ctx context.Context, recordingID int64, opts ...StartOption) (*ChainHandle, error) {
	var options startOptions
	for _, opt := range opts {
		opt(&options)
	}

	rec, err := o.loadRecording(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	switch {
	case rec.Status == queue.StatusPendingSource:
		return nil, services.Wrap(services.ErrValidation, "", "start", "recording has no source media yet", nil)
	case rec.Status == queue.StatusExpired || rec.IsExpired(time.Now()):
		return nil, services.Wrap(services.ErrValidation, "", "start", "recording has expired", nil)
	case rec.Failed:
		return nil, services.Wrap(services.ErrValidation, "", "start",
			fmt.Sprintf("recording failed at %s stage; retry or reset it before restarting", rec.FailedAtStage), nil)
	}

	stages, err := o.store.StagesForRecording(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	for _, stage := range stages {
		if stage.Status == queue.StageInProgress {
			return nil, ErrAlreadyRunning
		}
	}

	_, settings, err := o.resolver.Resolve(ctx, rec, options.runtimeOverride)
	if err != nil {
		return nil, err
	}
	if options.persistOverride && len(options.runtimeOverride) > 0 {
		merged, err := mergedOverrides(rec.OverridesJSON, options.runtimeOverride)
		if err != nil {
			return nil, err
		}
		rec.OverridesJSON = merged
	}
	// Persist the template binding and any stored override before the
	// stage rows are reconciled against the resolved settings.
	if err := o.store.UpdateRecording(ctx, rec); err != nil {
		return nil, err
	}
	if _, err := o.tracker.SyncWithConfig(ctx, rec, settings); err != nil {
		return nil, err
	}
	if err := o.store.EnsureOutputs(ctx, recordingID, settings.PlatformMap()); err != nil {
		return nil, err
	}

	enqueued, err := o.Advance(ctx, recordingID)
	if err != nil {
		return nil, err
	}

	rec, err = o.loadRecording(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	o.logger.Info("chain started",
		logging.Int64(logging.FieldRecordingID, recordingID),
		logging.String("status", string(rec.Status)),
		logging.Int("enqueued", len(enqueued)),
	)
	return &ChainHandle{
		RecordingID: recordingID,
		Status:      rec.Status,
		TemplateID:  rec.TemplateID,
		Enqueued:    enqueued,
	}, nil
}

// Advance enqueues every task that has become runnable for the recording,
// deciding purely from persisted state. It is safe to call at any time and
// from any worker; deterministic task IDs absorb races between callers.
func (o *Orchestrator) Advance(ctx context.Context, recordingID int64) ([]string, error) {
	rec, err := o.loadRecording(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	if rec.OnPause || rec.Failed || rec.IsExpired(time.Now()) {
		return nil, nil
	}
	switch rec.Status {
	case queue.StatusPendingSource, queue.StatusSkipped, queue.StatusExpired:
		return nil, nil
	case queue.StatusInitialized:
		task, err := tasks.NewDownloadTask(recordingID)
		if err != nil {
			return nil, err
		}
		id, err := o.enqueue(ctx, task, tasks.DownloadTaskID(recordingID), o.cfg.StageTimeout())
		if err != nil || id == "" {
			return nil, err
		}
		return []string{id}, nil
	case queue.StatusDownloading:
		// Download task is in flight; its completion re-advances.
		return nil, nil
	}

	stages, err := o.store.StagesForRecording(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	byType := make(map[queue.StageType]*queue.Stage, len(stages))
	for _, stage := range stages {
		byType[stage.Type] = stage
	}

	// A pending stage whose data prerequisite finished without completing
	// can never run; record the skip so the chain converges.
	for _, stage := range stages {
		if stage.Status != queue.StagePending {
			continue
		}
		for _, prereq := range queue.DataPrerequisites(stage.Type) {
			parent := byType[prereq]
			if parent == nil || !parent.Status.IsTerminal() || parent.Status == queue.StageCompleted {
				continue
			}
			reason := queue.SkipReasonParentSkipped
			if parent.Status == queue.StageFailed {
				reason = queue.SkipReasonParentFailed
			}
			if _, err := o.tracker.MarkSkipped(ctx, recordingID, stage.Type, reason); err != nil {
				return nil, err
			}
			stage.Status = queue.StageSkipped
			stage.SkipReason = reason
			break
		}
	}

	var enqueued []string
	allTerminal := true
	for _, stage := range stages {
		if stage.Status == queue.StageInProgress {
			return nil, nil
		}
		if stage.Status != queue.StagePending {
			continue
		}
		allTerminal = false
		if !prerequisitesSatisfied(stage.Type, byType) {
			continue
		}
		task, err := tasks.NewStageTask(recordingID, stage.Type)
		if err != nil {
			return nil, err
		}
		id, err := o.enqueue(ctx, task, tasks.StageTaskID(recordingID, stage.Type), o.cfg.StageTimeout())
		if err != nil {
			return nil, err
		}
		if id != "" {
			enqueued = append(enqueued, id)
		}
	}
	if !allTerminal || len(stages) == 0 {
		return enqueued, nil
	}

	// Every stage is settled; fan uploads out, one independent task per
	// platform that has not gone out yet.
	outputs, err := o.store.OutputsForRecording(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	for _, output := range outputs {
		if output.Status != queue.OutputNotUploaded {
			continue
		}
		task, err := tasks.NewUploadTask(recordingID, output.Platform)
		if err != nil {
			return nil, err
		}
		id, err := o.enqueue(ctx, task, tasks.UploadTaskID(recordingID, output.Platform), o.cfg.UploadTimeout())
		if err != nil {
			return nil, err
		}
		if id != "" {
			enqueued = append(enqueued, id)
		}
	}
	return enqueued, nil
}

// Pause sets the cooperative-cancellation flag. Tasks already running finish
// their current stage; nothing further is picked up until Resume.
func (o *Orchestrator) Pause(ctx context.Context, recordingID int64) error {
	rec, err := o.loadRecording(ctx, recordingID)
	if err != nil {
		return err
	}
	if rec.OnPause {
		return nil
	}
	rec.OnPause = true
	if err := o.store.UpdateRecording(ctx, rec); err != nil {
		return err
	}
	o.logger.Info("chain paused", logging.Int64(logging.FieldRecordingID, recordingID))
	return nil
}

// Resume clears the pause flag and restarts the chain. Completed stages stay
// completed, so this picks up exactly where the chain stopped.
func (o *Orchestrator) Resume(ctx context.Context, recordingID int64) (*ChainHandle, error) {
	rec, err := o.loadRecording(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	if rec.OnPause {
		rec.OnPause = false
		if err := o.store.UpdateRecording(ctx, rec); err != nil {
			return nil, err
		}
	}
	handle, err := o.Start(ctx, recordingID)
	if errors.Is(err, ErrAlreadyRunning) {
		return &ChainHandle{RecordingID: recordingID, Status: rec.Status}, nil
	}
	return handle, err
}

// Retry requeues only the work that did not finish: failed stages, and
// stages skipped in a failure's wake, go back to pending while completed
// stages keep their rows. It then restarts the chain. Use Reset instead to
// rebuild from scratch.
func (o *Orchestrator) Retry(ctx context.Context, recordingID int64) (*ChainHandle, error) {
	rec, err := o.loadRecording(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	stages, err := o.store.StagesForRecording(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	var toSave []*queue.Stage
	for _, stage := range stages {
		failureSkip := stage.Status == queue.StageSkipped &&
			(stage.SkipReason == queue.SkipReasonError || stage.SkipReason == queue.SkipReasonParentFailed)
		if stage.Status != queue.StageFailed && !failureSkip {
			continue
		}
		stage.Status = queue.StagePending
		stage.SkipReason = ""
		stage.FailedReason = ""
		stage.HeartbeatAt = nil
		toSave = append(toSave, stage)
	}
	rec.ClearFailure()
	if !queue.IsBaseStatus(rec.Status) && rec.Status != queue.StatusSkipped && rec.Status != queue.StatusExpired {
		rec.Status = queue.StatusDownloaded
	}
	if len(toSave) > 0 {
		err = o.store.SaveStagesAndRecording(ctx, toSave, rec)
	} else {
		err = o.store.UpdateRecording(ctx, rec)
	}
	if err != nil {
		return nil, err
	}
	o.logger.Info("chain retry",
		logging.Int64(logging.FieldRecordingID, recordingID),
		logging.Int("requeued", len(toSave)),
	)
	return o.Start(ctx, recordingID)
}

// Reset clears failure markers and rolls every stage back to pending so the
// chain can be rebuilt from downloaded media. Output targets are untouched.
func (o *Orchestrator) Reset(ctx context.Context, recordingID int64) error {
	rec, err := o.loadRecording(ctx, recordingID)
	if err != nil {
		return err
	}
	if err := o.store.ResetStages(ctx, recordingID); err != nil {
		return err
	}
	rec.ClearFailure()
	if !queue.IsBaseStatus(rec.Status) && rec.Status != queue.StatusSkipped && rec.Status != queue.StatusExpired {
		rec.Status = queue.StatusDownloaded
	}
	if err := o.store.UpdateRecording(ctx, rec); err != nil {
		return err
	}
	o.logger.Info("chain reset", logging.Int64(logging.FieldRecordingID, recordingID))
	return nil
}

// enqueue hands one task to the runtime. A task-ID conflict means an
// identical task is already queued or running, which is success from the
// chain's point of view; the returned ID is empty in that case.
func (o *Orchestrator) enqueue(ctx context.Context, task *asynq.Task, taskID string, timeout time.Duration) (string, error) {
	_, err := o.client.EnqueueContext(ctx, task,
		asynq.TaskID(taskID),
		asynq.MaxRetry(o.cfg.Worker.MaxRetry),
		asynq.Timeout(timeout),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return "", nil
		}
		return "", fmt.Errorf("enqueue %s: %w", task.Type(), err)
	}
	o.logger.Debug("task enqueued",
		logging.String("task_id", taskID),
		logging.String("task_type", task.Type()),
	)
	return taskID, nil
}

// loadRecording turns a missing row into a not-found error so callers never
// dereference a nil recording.
func (o *Orchestrator) loadRecording(ctx context.Context, recordingID int64) (*queue.Recording, error) {
	rec, err := o.store.GetRecording(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, services.Wrap(services.ErrNotFound, "", "load",
			fmt.Sprintf("recording %d does not exist", recordingID), nil)
	}
	return rec, nil
}

func prerequisitesSatisfied(stage queue.StageType, byType map[queue.StageType]*queue.Stage) bool {
	for _, prereq := range queue.Prerequisites(stage) {
		parent := byType[prereq]
		if parent != nil && !parent.Status.IsTerminal() {
			return false
		}
	}
	return true
}

func mergedOverrides(existingJSON string, override map[string]any) (string, error) {
	existing := profile.Null()
	if existingJSON != "" {
		var err error
		existing, err = profile.ParseJSON(existingJSON)
		if err != nil {
			return "", services.Wrap(services.ErrConfiguration, "", "start",
				"recording overrides are not valid JSON", err)
		}
	}
	overlay, err := profile.FromAny(override)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "", "start",
			"runtime override is not representable", err)
	}
	merged, err := profile.Merge(existing, overlay).MarshalJSON()
	if err != nil {
		return "", err
	}
	return string(merged), nil
}
