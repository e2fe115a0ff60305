package stagesync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"conveyor/internal/logging"
	"conveyor/internal/profile"
	"conveyor/internal/queue"
	"conveyor/internal/services"
	"conveyor/internal/status"
)

// StageChange records a single stage transition applied by the tracker.
type StageChange struct {
	Type   queue.StageType
	From   queue.StageStatus
	To     queue.StageStatus
	Reason string
}

// Tracker owns stage-row mutations for recordings.
type Tracker struct {
	store  *queue.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewTracker constructs a Tracker bound to the given store.
func NewTracker(store *queue.Store, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Tracker{store: store, logger: logger, now: time.Now}
}

// SyncWithConfig reconciles a recording's stage rows with its resolved
// settings. Enabled stages that have no row yet become pending. Disabled
// stages that have not finished are skipped, and stages downstream of a
// skipped prerequisite are skipped in turn. Stages that already reached a
// terminal state are never rewritten.
func (t *Tracker) SyncWithConfig(ctx context.Context, rec *queue.Recording, settings profile.Settings) ([]StageChange, error) {
	if rec == nil {
		return nil, fmt.Errorf("stagesync: nil recording")
	}

	existing, err := t.store.StagesForRecording(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	byType := make(map[queue.StageType]*queue.Stage, len(existing))
	for _, st := range existing {
		byType[st.Type] = st
	}

	var changes []StageChange
	changed := make(map[queue.StageType]bool)
	all := make([]*queue.Stage, 0, len(queue.AllStageTypes()))

	for _, stageType := range queue.AllStageTypes() {
		stage := byType[stageType]
		if stage == nil {
			stage = &queue.Stage{RecordingID: rec.ID, Type: stageType, Status: queue.StagePending}
			byType[stageType] = stage
			changed[stageType] = true
			changes = append(changes, StageChange{Type: stageType, To: queue.StagePending})
		}
		all = append(all, stage)

		if !settings.StageEnabled(string(stageType)) && !stage.Status.IsTerminal() {
			changes = append(changes, StageChange{
				Type:   stageType,
				From:   stage.Status,
				To:     queue.StageSkipped,
				Reason: queue.SkipReasonDisabled,
			})
			stage.Status = queue.StageSkipped
			stage.SkipReason = queue.SkipReasonDisabled
			changed[stageType] = true
		}
	}

	// Skips cascade along data edges only. A disabled trim still lets
	// transcribe run; a disabled transcribe starves topics and subtitles.
	// Walking in pipeline order makes the propagation transitive.
	for _, stageType := range queue.AllStageTypes() {
		stage := byType[stageType]
		if stage.Status.IsTerminal() {
			continue
		}
		for _, prereq := range queue.DataPrerequisites(stageType) {
			if byType[prereq].Status != queue.StageSkipped {
				continue
			}
			changes = append(changes, StageChange{
				Type:   stageType,
				From:   stage.Status,
				To:     queue.StageSkipped,
				Reason: queue.SkipReasonParentSkipped,
			})
			stage.Status = queue.StageSkipped
			stage.SkipReason = queue.SkipReasonParentSkipped
			changed[stageType] = true
			break
		}
	}

	outputs, err := t.store.OutputsForRecording(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	newStatus := status.Compute(rec, all, outputs, t.now())
	statusChanged := newStatus != rec.Status
	rec.Status = newStatus

	if len(changed) == 0 && !statusChanged {
		return nil, nil
	}

	toSave := make([]*queue.Stage, 0, len(changed))
	for _, stageType := range queue.AllStageTypes() {
		if changed[stageType] {
			toSave = append(toSave, byType[stageType])
		}
	}
	if err := t.store.SaveStagesAndRecording(ctx, toSave, rec); err != nil {
		return nil, err
	}

	for _, change := range changes {
		t.logger.Info("stage synced",
			logging.Int64(logging.FieldRecordingID, rec.ID),
			logging.String(logging.FieldStage, string(change.Type)),
			logging.String("from", string(change.From)),
			logging.String("to", string(change.To)),
			logging.String("reason", change.Reason),
		)
	}
	return changes, nil
}

// MarkInProgress transitions a stage to in-progress and stamps its heartbeat.
func (t *Tracker) MarkInProgress(ctx context.Context, recordingID int64, stageType queue.StageType) (*queue.Recording, error) {
	return t.transition(ctx, recordingID, stageType, func(stage *queue.Stage) {
		now := t.now()
		stage.Status = queue.StageInProgress
		stage.HeartbeatAt = &now
		stage.SkipReason = ""
		stage.FailedReason = ""
	})
}

// MarkCompleted transitions a stage to completed.
func (t *Tracker) MarkCompleted(ctx context.Context, recordingID int64, stageType queue.StageType) (*queue.Recording, error) {
	return t.transition(ctx, recordingID, stageType, func(stage *queue.Stage) {
		stage.Status = queue.StageCompleted
		stage.HeartbeatAt = nil
		stage.FailedReason = ""
	})
}

// MarkFailed transitions a stage to failed and records the reason.
func (t *Tracker) MarkFailed(ctx context.Context, recordingID int64, stageType queue.StageType, reason string) (*queue.Recording, error) {
	return t.transition(ctx, recordingID, stageType, func(stage *queue.Stage) {
		stage.Status = queue.StageFailed
		stage.FailedReason = reason
		stage.HeartbeatAt = nil
		stage.RetryCount++
	})
}

// MarkSkipped transitions a stage to skipped with the given reason.
func (t *Tracker) MarkSkipped(ctx context.Context, recordingID int64, stageType queue.StageType, reason string) (*queue.Recording, error) {
	return t.transition(ctx, recordingID, stageType, func(stage *queue.Stage) {
		stage.Status = queue.StageSkipped
		stage.SkipReason = reason
		stage.HeartbeatAt = nil
	})
}

// SkipDependents skips every non-terminal stage that consumes the given
// stage's output, transitively.
func (t *Tracker) SkipDependents(ctx context.Context, recordingID int64, stageType queue.StageType, reason string) (*queue.Recording, error) {
	rec, err := t.loadRecording(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	stages, err := t.store.StagesForRecording(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	byType := make(map[queue.StageType]*queue.Stage, len(stages))
	for _, st := range stages {
		byType[st.Type] = st
	}

	pending := queue.DataDependents(stageType)
	var toSave []*queue.Stage
	seen := make(map[queue.StageType]bool)
	for len(pending) > 0 {
		next := pending[0]
		pending = pending[1:]
		if seen[next] {
			continue
		}
		seen[next] = true
		pending = append(pending, queue.DataDependents(next)...)

		stage := byType[next]
		if stage == nil || stage.Status.IsTerminal() {
			continue
		}
		stage.Status = queue.StageSkipped
		stage.SkipReason = reason
		stage.HeartbeatAt = nil
		toSave = append(toSave, stage)
	}

	outputs, err := t.store.OutputsForRecording(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	rec.Status = status.Compute(rec, stages, outputs, t.now())
	if err := t.store.SaveStagesAndRecording(ctx, toSave, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Reaggregate recomputes the recording's aggregate status from persisted
// state and saves it when it changed.
func (t *Tracker) Reaggregate(ctx context.Context, recordingID int64) (*queue.Recording, error) {
	rec, err := t.loadRecording(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	stages, err := t.store.StagesForRecording(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	outputs, err := t.store.OutputsForRecording(ctx, recordingID)
	if err != nil {
		return nil, err
	}

	newStatus := status.Compute(rec, stages, outputs, t.now())
	if newStatus == rec.Status {
		return rec, nil
	}
	previous := rec.Status
	rec.Status = newStatus
	if err := t.store.UpdateRecording(ctx, rec); err != nil {
		return nil, err
	}
	t.logger.Info("status recomputed",
		logging.Int64(logging.FieldRecordingID, rec.ID),
		logging.String("from", string(previous)),
		logging.String("to", string(newStatus)),
	)
	return rec, nil
}

func (t *Tracker) transition(ctx context.Context, recordingID int64, stageType queue.StageType, mutate func(*queue.Stage)) (*queue.Recording, error) {
	rec, err := t.loadRecording(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	stages, err := t.store.StagesForRecording(ctx, recordingID)
	if err != nil {
		return nil, err
	}

	var stage *queue.Stage
	for _, st := range stages {
		if st.Type == stageType {
			stage = st
			break
		}
	}
	if stage == nil {
		stage = &queue.Stage{RecordingID: recordingID, Type: stageType, Status: queue.StagePending}
		stages = append(stages, stage)
	}
	previous := stage.Status
	mutate(stage)

	outputs, err := t.store.OutputsForRecording(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	rec.Status = status.Compute(rec, stages, outputs, t.now())

	if err := t.store.SaveStageAndRecording(ctx, stage, rec); err != nil {
		return nil, err
	}
	t.logger.Info("stage transition",
		logging.Int64(logging.FieldRecordingID, recordingID),
		logging.String(logging.FieldStage, string(stageType)),
		logging.String("from", string(previous)),
		logging.String("to", string(stage.Status)),
	)
	return rec, nil
}

func (t *Tracker) loadRecording(ctx context.Context, recordingID int64) (*queue.Recording, error) {
	rec, err := t.store.GetRecording(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, services.Wrap(services.ErrNotFound, "", "track",
			fmt.Sprintf("recording %d does not exist", recordingID), nil)
	}
	return rec, nil
}
