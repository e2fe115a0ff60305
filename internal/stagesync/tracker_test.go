package stagesync_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"conveyor/internal/logging"
	"conveyor/internal/profile"
	"conveyor/internal/queue"
	"conveyor/internal/services"
	"conveyor/internal/stagesync"
	"conveyor/internal/testsupport"
)

func allEnabled() profile.Settings {
	return profile.Settings{
		TrimEnabled:       true,
		TranscribeEnabled: true,
		TopicsEnabled:     true,
		SubtitlesEnabled:  true,
	}
}

func newTracker(t *testing.T) (*stagesync.Tracker, *queue.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	return stagesync.NewTracker(store, logging.NewNop()), store
}

func stageMap(t *testing.T, store *queue.Store, recordingID int64) map[queue.StageType]*queue.Stage {
	t.Helper()
	stages, err := store.StagesForRecording(context.Background(), recordingID)
	if err != nil {
		t.Fatalf("StagesForRecording: %v", err)
	}
	out := make(map[queue.StageType]*queue.Stage, len(stages))
	for _, st := range stages {
		out[st.Type] = st
	}
	return out
}

func TestSyncWithConfigCreatesPendingStages(t *testing.T) {
	tracker, store := newTracker(t)
	rec := testsupport.NewRecording(t, store, "tenant-1", "standup")

	changes, err := tracker.SyncWithConfig(context.Background(), rec, allEnabled())
	if err != nil {
		t.Fatalf("SyncWithConfig: %v", err)
	}
	if len(changes) != 4 {
		t.Fatalf("got %d changes, want 4", len(changes))
	}

	stages := stageMap(t, store, rec.ID)
	for _, stageType := range queue.AllStageTypes() {
		stage := stages[stageType]
		if stage == nil {
			t.Fatalf("stage %s missing", stageType)
		}
		if stage.Status != queue.StagePending {
			t.Fatalf("stage %s = %s, want pending", stageType, stage.Status)
		}
	}
}

func TestSyncWithConfigSkipsDisabledAndDependents(t *testing.T) {
	tracker, store := newTracker(t)
	rec := testsupport.NewRecording(t, store, "tenant-1", "standup")

	settings := allEnabled()
	settings.TranscribeEnabled = false
	if _, err := tracker.SyncWithConfig(context.Background(), rec, settings); err != nil {
		t.Fatalf("SyncWithConfig: %v", err)
	}

	stages := stageMap(t, store, rec.ID)
	if got := stages[queue.StageTrim].Status; got != queue.StagePending {
		t.Fatalf("trim = %s, want pending", got)
	}
	if got := stages[queue.StageTranscribe]; got.Status != queue.StageSkipped || got.SkipReason != queue.SkipReasonDisabled {
		t.Fatalf("transcribe = %s/%s, want skipped/%s", got.Status, got.SkipReason, queue.SkipReasonDisabled)
	}
	for _, dependent := range []queue.StageType{queue.StageExtractTopics, queue.StageGenerateSubtitles} {
		stage := stages[dependent]
		if stage.Status != queue.StageSkipped || stage.SkipReason != queue.SkipReasonParentSkipped {
			t.Fatalf("%s = %s/%s, want skipped/%s", dependent, stage.Status, stage.SkipReason, queue.SkipReasonParentSkipped)
		}
	}
}

func TestSyncWithConfigDisabledTrimDoesNotBlockTranscribe(t *testing.T) {
	tracker, store := newTracker(t)
	rec := testsupport.NewRecording(t, store, "tenant-1", "standup")

	settings := allEnabled()
	settings.TrimEnabled = false
	if _, err := tracker.SyncWithConfig(context.Background(), rec, settings); err != nil {
		t.Fatalf("SyncWithConfig: %v", err)
	}

	stages := stageMap(t, store, rec.ID)
	if got := stages[queue.StageTrim]; got.Status != queue.StageSkipped || got.SkipReason != queue.SkipReasonDisabled {
		t.Fatalf("trim = %s/%s, want skipped/%s", got.Status, got.SkipReason, queue.SkipReasonDisabled)
	}
	// Trim only orders the chain; its skip must not starve transcription.
	if got := stages[queue.StageTranscribe].Status; got != queue.StagePending {
		t.Fatalf("transcribe = %s, want pending", got)
	}
}

func TestSyncWithConfigPreservesTerminalStages(t *testing.T) {
	tracker, store := newTracker(t)
	rec := testsupport.NewRecording(t, store, "tenant-1", "standup")
	ctx := context.Background()

	if _, err := tracker.SyncWithConfig(ctx, rec, allEnabled()); err != nil {
		t.Fatalf("SyncWithConfig: %v", err)
	}
	if _, err := tracker.MarkCompleted(ctx, rec.ID, queue.StageTranscribe); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	settings := allEnabled()
	settings.TranscribeEnabled = false
	if _, err := tracker.SyncWithConfig(ctx, rec, settings); err != nil {
		t.Fatalf("SyncWithConfig: %v", err)
	}

	stages := stageMap(t, store, rec.ID)
	if got := stages[queue.StageTranscribe].Status; got != queue.StageCompleted {
		t.Fatalf("transcribe = %s, want completed to survive disable", got)
	}
	if got := stages[queue.StageExtractTopics].Status; got != queue.StagePending {
		t.Fatalf("extract_topics = %s, want pending", got)
	}
}

func TestMarkInProgressSetsProcessing(t *testing.T) {
	tracker, store := newTracker(t)
	rec := testsupport.NewRecording(t, store, "tenant-1", "standup")
	ctx := context.Background()

	if _, err := tracker.SyncWithConfig(ctx, rec, allEnabled()); err != nil {
		t.Fatalf("SyncWithConfig: %v", err)
	}
	updated, err := tracker.MarkInProgress(ctx, rec.ID, queue.StageTrim)
	if err != nil {
		t.Fatalf("MarkInProgress: %v", err)
	}
	if updated.Status != queue.StatusProcessing {
		t.Fatalf("status = %s, want %s", updated.Status, queue.StatusProcessing)
	}

	stages := stageMap(t, store, rec.ID)
	trim := stages[queue.StageTrim]
	if trim.Status != queue.StageInProgress {
		t.Fatalf("trim = %s, want in_progress", trim.Status)
	}
	if trim.HeartbeatAt == nil {
		t.Fatal("trim heartbeat not stamped")
	}
}

func TestMarkCompletedAllStagesBecomesProcessed(t *testing.T) {
	tracker, store := newTracker(t)
	rec := testsupport.NewRecording(t, store, "tenant-1", "standup")
	ctx := context.Background()

	if _, err := tracker.SyncWithConfig(ctx, rec, allEnabled()); err != nil {
		t.Fatalf("SyncWithConfig: %v", err)
	}

	var updated *queue.Recording
	var err error
	for _, stageType := range queue.AllStageTypes() {
		updated, err = tracker.MarkCompleted(ctx, rec.ID, stageType)
		if err != nil {
			t.Fatalf("MarkCompleted(%s): %v", stageType, err)
		}
	}
	if updated.Status != queue.StatusProcessed {
		t.Fatalf("status = %s, want %s", updated.Status, queue.StatusProcessed)
	}
}

func TestMarkFailedRecordsReason(t *testing.T) {
	tracker, store := newTracker(t)
	rec := testsupport.NewRecording(t, store, "tenant-1", "standup")
	ctx := context.Background()

	if _, err := tracker.SyncWithConfig(ctx, rec, allEnabled()); err != nil {
		t.Fatalf("SyncWithConfig: %v", err)
	}
	if _, err := tracker.MarkFailed(ctx, rec.ID, queue.StageTranscribe, "rate limited by provider"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	stage := stageMap(t, store, rec.ID)[queue.StageTranscribe]
	if stage.Status != queue.StageFailed {
		t.Fatalf("transcribe = %s, want failed", stage.Status)
	}
	if stage.FailedReason != "rate limited by provider" {
		t.Fatalf("failed reason = %q", stage.FailedReason)
	}
	if stage.RetryCount != 1 {
		t.Fatalf("retry count = %d, want 1", stage.RetryCount)
	}
}

func TestSkipDependentsCascades(t *testing.T) {
	tracker, store := newTracker(t)
	rec := testsupport.NewRecording(t, store, "tenant-1", "standup")
	ctx := context.Background()

	if _, err := tracker.SyncWithConfig(ctx, rec, allEnabled()); err != nil {
		t.Fatalf("SyncWithConfig: %v", err)
	}
	if _, err := tracker.SkipDependents(ctx, rec.ID, queue.StageTranscribe, queue.SkipReasonParentFailed); err != nil {
		t.Fatalf("SkipDependents: %v", err)
	}

	stages := stageMap(t, store, rec.ID)
	if got := stages[queue.StageTrim].Status; got != queue.StagePending {
		t.Fatalf("trim = %s, want pending", got)
	}
	for _, dependent := range []queue.StageType{queue.StageExtractTopics, queue.StageGenerateSubtitles} {
		stage := stages[dependent]
		if stage.Status != queue.StageSkipped || stage.SkipReason != queue.SkipReasonParentFailed {
			t.Fatalf("%s = %s/%s, want skipped/%s", dependent, stage.Status, stage.SkipReason, queue.SkipReasonParentFailed)
		}
	}
}

func TestReaggregatePicksUpExpiry(t *testing.T) {
	tracker, store := newTracker(t)
	rec := testsupport.NewRecording(t, store, "tenant-1", "standup")
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	rec.ExpireAt = &past
	if err := store.UpdateRecording(ctx, rec); err != nil {
		t.Fatalf("UpdateRecording: %v", err)
	}

	updated, err := tracker.Reaggregate(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Reaggregate: %v", err)
	}
	if updated.Status != queue.StatusExpired {
		t.Fatalf("status = %s, want %s", updated.Status, queue.StatusExpired)
	}
}

func TestReaggregateUnknownRecordingReturnsNotFound(t *testing.T) {
	tracker, _ := newTracker(t)

	_, err := tracker.Reaggregate(context.Background(), 424242)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("err = %v, want not-found", err)
	}
}
