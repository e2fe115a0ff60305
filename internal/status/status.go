package status

import (
	"time"

	"conveyor/internal/queue"
)

// Compute derives the aggregate status for a recording from its stage and
// output rows. It has no side effects and is idempotent: the same inputs
// always yield the same status. When no rule applies the current status is
// preserved, so the aggregator only ever promotes on positive evidence.
func Compute(rec *queue.Recording, stages []*queue.Stage, outputs []*queue.OutputTarget, now time.Time) queue.Status {
	if rec == nil {
		return ""
	}

	// Expiry dominates everything, including in-flight work.
	if rec.IsExpired(now) {
		return queue.StatusExpired
	}

	// Externally-set blocking states are never overridden here.
	if rec.Status == queue.StatusSkipped || rec.Status == queue.StatusPendingSource {
		return rec.Status
	}

	if anyStageInProgress(stages) {
		return queue.StatusProcessing
	}

	// Base statuses persist until stage work actually begins.
	if queue.IsBaseStatus(rec.Status) && !anyStageStarted(stages) {
		return rec.Status
	}

	if len(stages) > 0 && allActiveStagesCompleted(stages) {
		return uploadStatus(rec, outputs)
	}

	return rec.Status
}

func anyStageInProgress(stages []*queue.Stage) bool {
	for _, stage := range stages {
		if stage.Status == queue.StageInProgress {
			return true
		}
	}
	return false
}

// anyStageStarted reports whether any stage has left pending. Skipped stages
// never ran, so they do not count as started.
func anyStageStarted(stages []*queue.Stage) bool {
	for _, stage := range stages {
		switch stage.Status {
		case queue.StageInProgress, queue.StageCompleted, queue.StageFailed:
			return true
		}
	}
	return false
}

// allActiveStagesCompleted reports whether every non-skipped stage is
// completed. Skipped stages are excluded from the check entirely.
func allActiveStagesCompleted(stages []*queue.Stage) bool {
	for _, stage := range stages {
		if stage.Status == queue.StageSkipped {
			continue
		}
		if stage.Status != queue.StageCompleted {
			return false
		}
	}
	return true
}

// uploadStatus folds output-target state into the post-processing statuses.
// One platform's failure must not mask another's success: a mix of uploaded
// and failed targets is the distinct partial-success state, not ready.
func uploadStatus(rec *queue.Recording, outputs []*queue.OutputTarget) queue.Status {
	if len(outputs) == 0 {
		return queue.StatusProcessed
	}

	var uploading, uploaded, failed int
	for _, output := range outputs {
		switch output.Status {
		case queue.OutputUploading:
			uploading++
		case queue.OutputUploaded:
			uploaded++
		case queue.OutputFailed:
			failed++
		}
	}

	switch {
	case uploading > 0:
		return queue.StatusUploading
	case uploaded == len(outputs):
		return queue.StatusReady
	case uploaded > 0 && uploaded+failed == len(outputs):
		return queue.StatusPartiallyUploaded
	default:
		return queue.StatusProcessed
	}
}
