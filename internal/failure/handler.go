package failure

import (
	"context"
	"fmt"
	"log/slog"

	"conveyor/internal/logging"
	"conveyor/internal/queue"
	"conveyor/internal/services"
	"conveyor/internal/stagesync"
)

// Plan describes the consequences of a stage failure before any row is
// touched. Keeping the decision separate from its application makes the
// policy testable without a store.
type Plan struct {
	// StageStatus is the terminal status for the failed stage.
	StageStatus queue.StageStatus
	// SkipReason is set when the stage is skipped rather than failed.
	SkipReason string
	// CascadeReason, when non-empty, skips every downstream stage with it.
	CascadeReason string
	// Rollback, when non-empty, is the status the recording falls back to.
	Rollback queue.Status
	// MarkFailed flags the recording itself as failed.
	MarkFailed bool
	// Proceed reports whether the rest of the chain should keep advancing.
	Proceed bool
}

// PlanStageFailure decides how a failure in the given stage affects the
// recording. Trim failures always roll the recording back to downloaded so
// the whole chain can restart from intact source media. Later stages halt
// the chain unless the configuration tolerates errors, in which case the
// failed stage is skipped and only its dependents are abandoned.
func PlanStageFailure(stageType queue.StageType, allowErrors bool) Plan {
	if stageType == queue.StageTrim || !allowErrors {
		// Halting leaves downstream stages pending so a manual retry can
		// restart the chain from downloaded media.
		return Plan{
			StageStatus: queue.StageFailed,
			Rollback:    queue.StatusDownloaded,
			MarkFailed:  true,
		}
	}
	return Plan{
		StageStatus:   queue.StageSkipped,
		SkipReason:    queue.SkipReasonError,
		CascadeReason: queue.SkipReasonParentFailed,
		Proceed:       true,
	}
}

// Handler applies failure plans to the queue.
type Handler struct {
	store   *queue.Store
	tracker *stagesync.Tracker
	logger  *slog.Logger
}

// NewHandler constructs a failure Handler.
func NewHandler(store *queue.Store, tracker *stagesync.Tracker, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{store: store, tracker: tracker, logger: logger}
}

// OnStageFailure records a stage failure and applies its plan. The returned
// proceed flag tells the caller whether to keep advancing the chain. The
// returned error is nil for recognized operational failures, which are fully
// captured in the queue rows; anything else is handed back to the task
// runtime for retry.
func (h *Handler) OnStageFailure(ctx context.Context, recordingID int64, stageType queue.StageType, allowErrors bool, failure error) (bool, error) {
	plan := PlanStageFailure(stageType, allowErrors)
	message := failure.Error()

	h.logger.Warn("stage failed",
		logging.Int64(logging.FieldRecordingID, recordingID),
		logging.String(logging.FieldStage, string(stageType)),
		logging.String(logging.FieldErrorKind, services.Kind(failure)),
		logging.Error(failure),
	)

	if plan.StageStatus == queue.StageSkipped {
		if _, err := h.tracker.MarkSkipped(ctx, recordingID, stageType, plan.SkipReason); err != nil {
			return false, err
		}
	} else {
		if _, err := h.tracker.MarkFailed(ctx, recordingID, stageType, message); err != nil {
			return false, err
		}
	}

	if plan.CascadeReason != "" {
		if _, err := h.tracker.SkipDependents(ctx, recordingID, stageType, plan.CascadeReason); err != nil {
			return false, err
		}
	}

	rec, err := h.store.GetRecording(ctx, recordingID)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, services.Wrap(services.ErrNotFound, string(stageType), "failure",
			fmt.Sprintf("recording %d no longer exists", recordingID), nil)
	}
	if plan.MarkFailed {
		rec.SetFailed(stageType, message)
	} else {
		rec.ErrorMessage = message
	}
	if plan.Rollback != "" {
		rec.Status = plan.Rollback
	}
	if err := h.store.UpdateRecording(ctx, rec); err != nil {
		return false, err
	}

	if services.Recognized(failure) {
		return plan.Proceed, nil
	}
	return plan.Proceed, failure
}

// OnUploadFailure records a failed upload for one platform. Other platforms
// keep going; the recording is only flagged as failed once every target has
// failed.
func (h *Handler) OnUploadFailure(ctx context.Context, recordingID int64, platform string, failure error) error {
	output, err := h.store.GetOutput(ctx, recordingID, platform)
	if err != nil {
		return err
	}
	if output == nil {
		return services.Wrap(services.ErrNotFound, "", "failure",
			fmt.Sprintf("no %s output target for recording %d", platform, recordingID), nil)
	}
	output.Status = queue.OutputFailed
	output.ErrorMessage = failure.Error()
	output.RetryCount++
	if err := h.store.UpdateOutput(ctx, output); err != nil {
		return err
	}

	h.logger.Warn("upload failed",
		logging.Int64(logging.FieldRecordingID, recordingID),
		logging.String(logging.FieldPlatform, platform),
		logging.String(logging.FieldErrorKind, services.Kind(failure)),
		logging.Error(failure),
	)

	rec, err := h.tracker.Reaggregate(ctx, recordingID)
	if err != nil {
		return err
	}

	outputs, err := h.store.OutputsForRecording(ctx, recordingID)
	if err != nil {
		return err
	}
	allFailed := len(outputs) > 0
	for _, out := range outputs {
		if out.Status != queue.OutputFailed {
			allFailed = false
			break
		}
	}
	if allFailed && !rec.Failed {
		rec.SetFailed("", "all upload targets failed")
		if err := h.store.UpdateRecording(ctx, rec); err != nil {
			return err
		}
		h.logger.Warn("every upload target failed",
			logging.Int64(logging.FieldRecordingID, recordingID),
			logging.Alert("uploads_exhausted"),
		)
	}

	if services.Recognized(failure) {
		return nil
	}
	return failure
}
