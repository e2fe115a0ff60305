package status

import (
	"testing"
	"time"

	"conveyor/internal/queue"
)

func stage(t queue.StageType, s queue.StageStatus) *queue.Stage {
	return &queue.Stage{Type: t, Status: s}
}

func output(s queue.OutputStatus) *queue.OutputTarget {
	return &queue.OutputTarget{Platform: "youtube", Status: s}
}

func TestComputeExpiryDominates(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	rec := &queue.Recording{Status: queue.StatusProcessing, ExpireAt: &past}
	stages := []*queue.Stage{stage(queue.StageTrim, queue.StageInProgress)}

	if got := Compute(rec, stages, nil, now); got != queue.StatusExpired {
		t.Fatalf("status = %s, want %s", got, queue.StatusExpired)
	}
}

func TestComputeBlockingStatesUnchanged(t *testing.T) {
	now := time.Now()
	for _, s := range []queue.Status{queue.StatusPendingSource, queue.StatusSkipped} {
		rec := &queue.Recording{Status: s}
		stages := []*queue.Stage{stage(queue.StageTrim, queue.StageCompleted)}
		if got := Compute(rec, stages, nil, now); got != s {
			t.Fatalf("status = %s, want %s unchanged", got, s)
		}
	}
}

func TestComputeInProgressWinsOverCompleted(t *testing.T) {
	rec := &queue.Recording{Status: queue.StatusDownloaded}
	stages := []*queue.Stage{
		stage(queue.StageTrim, queue.StageCompleted),
		stage(queue.StageTranscribe, queue.StageInProgress),
	}

	if got := Compute(rec, stages, nil, time.Now()); got != queue.StatusProcessing {
		t.Fatalf("status = %s, want %s", got, queue.StatusProcessing)
	}
}

func TestComputeBaseStatusPreservedUntilStarted(t *testing.T) {
	rec := &queue.Recording{Status: queue.StatusDownloaded}
	stages := []*queue.Stage{
		stage(queue.StageTrim, queue.StagePending),
		stage(queue.StageTranscribe, queue.StageSkipped),
	}

	// A skipped stage never ran, so the base status must survive.
	if got := Compute(rec, stages, nil, time.Now()); got != queue.StatusDownloaded {
		t.Fatalf("status = %s, want %s", got, queue.StatusDownloaded)
	}
}

func TestComputeAllCompletedNoOutputs(t *testing.T) {
	rec := &queue.Recording{Status: queue.StatusProcessing}
	stages := []*queue.Stage{
		stage(queue.StageTrim, queue.StageCompleted),
		stage(queue.StageTranscribe, queue.StageSkipped),
	}

	if got := Compute(rec, stages, nil, time.Now()); got != queue.StatusProcessed {
		t.Fatalf("status = %s, want %s", got, queue.StatusProcessed)
	}
}

func TestComputeUploadFolding(t *testing.T) {
	stages := []*queue.Stage{stage(queue.StageTrim, queue.StageCompleted)}

	cases := []struct {
		name    string
		outputs []*queue.OutputTarget
		want    queue.Status
	}{
		{"uploading wins", []*queue.OutputTarget{output(queue.OutputUploading), output(queue.OutputUploaded)}, queue.StatusUploading},
		{"all uploaded", []*queue.OutputTarget{output(queue.OutputUploaded), output(queue.OutputUploaded)}, queue.StatusReady},
		{"mixed outcome", []*queue.OutputTarget{output(queue.OutputUploaded), output(queue.OutputFailed)}, queue.StatusPartiallyUploaded},
		{"all failed", []*queue.OutputTarget{output(queue.OutputFailed)}, queue.StatusProcessed},
		{"not yet attempted", []*queue.OutputTarget{output(queue.OutputNotUploaded)}, queue.StatusProcessed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := &queue.Recording{Status: queue.StatusProcessing}
			if got := Compute(rec, stages, tc.outputs, time.Now()); got != tc.want {
				t.Fatalf("status = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestComputeFailedStageKeepsStatus(t *testing.T) {
	rec := &queue.Recording{Status: queue.StatusProcessing}
	stages := []*queue.Stage{
		stage(queue.StageTrim, queue.StageFailed),
		stage(queue.StageTranscribe, queue.StagePending),
	}

	if got := Compute(rec, stages, nil, time.Now()); got != queue.StatusProcessing {
		t.Fatalf("status = %s, want %s", got, queue.StatusProcessing)
	}
}

func TestComputeIsIdempotent(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	cases := []struct {
		name    string
		rec     *queue.Recording
		stages  []*queue.Stage
		outputs []*queue.OutputTarget
	}{
		{
			name: "mid chain",
			rec:  &queue.Recording{Status: queue.StatusDownloaded},
			stages: []*queue.Stage{
				stage(queue.StageTrim, queue.StageCompleted),
				stage(queue.StageTranscribe, queue.StageInProgress),
			},
		},
		{
			name:    "uploading",
			rec:     &queue.Recording{Status: queue.StatusProcessing},
			stages:  []*queue.Stage{stage(queue.StageTrim, queue.StageCompleted)},
			outputs: []*queue.OutputTarget{output(queue.OutputUploading)},
		},
		{
			name:    "ready",
			rec:     &queue.Recording{Status: queue.StatusProcessing},
			stages:  []*queue.Stage{stage(queue.StageTrim, queue.StageCompleted)},
			outputs: []*queue.OutputTarget{output(queue.OutputUploaded)},
		},
		{
			name:   "expired",
			rec:    &queue.Recording{Status: queue.StatusProcessing, ExpireAt: &past},
			stages: []*queue.Stage{stage(queue.StageTrim, queue.StageInProgress)},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			first := Compute(tc.rec, tc.stages, tc.outputs, now)
			tc.rec.Status = first
			if again := Compute(tc.rec, tc.stages, tc.outputs, now); again != first {
				t.Fatalf("recompute moved %s to %s", first, again)
			}
		})
	}
}
