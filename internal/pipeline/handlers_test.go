package pipeline

import (
	"context"
	"errors"
	"testing"

	"conveyor/internal/failure"
	"conveyor/internal/logging"
	"conveyor/internal/profile"
	"conveyor/internal/queue"
	"conveyor/internal/services"
	"conveyor/internal/stagesync"
	"conveyor/internal/tasks"
	"conveyor/internal/testsupport"
)

func newHandlers(t *testing.T, ops services.Operations) (*Handlers, *fakeEnqueuer, *queue.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithDefaults(allEnabledDefaults()))
	store := testsupport.MustOpenStore(t, cfg)
	client := newFakeEnqueuer()
	tracker := stagesync.NewTracker(store, logging.NewNop())
	failures := failure.NewHandler(store, tracker, logging.NewNop())
	orch := NewOrchestrator(store, client, tracker, cfg, logging.NewNop())
	handlers := NewHandlers(store, tracker, failures, ops, orch, cfg, logging.NewNop())
	return handlers, client, store
}

func startDownloaded(t *testing.T, handlers *Handlers, store *queue.Store, rec *queue.Recording) {
	t.Helper()
	ctx := context.Background()
	rec.Status = queue.StatusDownloaded
	if err := store.UpdateRecording(ctx, rec); err != nil {
		t.Fatalf("UpdateRecording: %v", err)
	}
	if _, err := handlers.orch.Start(ctx, rec.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func TestHandleDownloadAdvancesToTrim(t *testing.T) {
	handlers, client, store := newHandlers(t, &services.StubOperations{})
	rec := testsupport.NewRecording(t, store, "tenant-1", "standup")
	ctx := context.Background()

	if _, err := handlers.orch.Start(ctx, rec.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	task, err := tasks.NewDownloadTask(rec.ID)
	if err != nil {
		t.Fatalf("NewDownloadTask: %v", err)
	}
	if err := handlers.HandleDownload(ctx, task); err != nil {
		t.Fatalf("HandleDownload: %v", err)
	}

	updated, err := store.GetRecording(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetRecording: %v", err)
	}
	if updated.Status != queue.StatusDownloaded {
		t.Fatalf("status = %s, want %s", updated.Status, queue.StatusDownloaded)
	}

	types := client.types()
	if types[len(types)-1] != "stage:trim" {
		t.Fatalf("types = %v, want trim enqueued after download", types)
	}
}

func TestHandleDownloadRecognizedFailureConsumed(t *testing.T) {
	ops := &services.StubOperations{
		DownloadFunc: func(context.Context, *queue.Recording) error {
			return services.Wrap(services.ErrNotFound, "download", "fetch", "remote recording gone", nil)
		},
	}
	handlers, _, store := newHandlers(t, ops)
	rec := testsupport.NewRecording(t, store, "tenant-1", "standup")
	ctx := context.Background()

	if _, err := handlers.orch.Start(ctx, rec.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	task, err := tasks.NewDownloadTask(rec.ID)
	if err != nil {
		t.Fatalf("NewDownloadTask: %v", err)
	}
	if err := handlers.HandleDownload(ctx, task); err != nil {
		t.Fatalf("recognized download failure must be consumed, got %v", err)
	}

	updated, err := store.GetRecording(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetRecording: %v", err)
	}
	if !updated.Failed || updated.FailedAtStage != "download" {
		t.Fatalf("rec = %+v, want failed at download", updated)
	}
	if updated.Status != queue.StatusInitialized {
		t.Fatalf("status = %s, want rollback to %s", updated.Status, queue.StatusInitialized)
	}
}

func TestHandleStageCompletesAndAdvances(t *testing.T) {
	handlers, client, store := newHandlers(t, &services.StubOperations{})
	rec := testsupport.NewRecording(t, store, "tenant-1", "standup")
	ctx := context.Background()
	startDownloaded(t, handlers, store, rec)
	client.reset()

	task, err := tasks.NewStageTask(rec.ID, queue.StageTrim)
	if err != nil {
		t.Fatalf("NewStageTask: %v", err)
	}
	if err := handlers.HandleStage(ctx, task); err != nil {
		t.Fatalf("HandleStage: %v", err)
	}

	stage, err := store.GetStage(ctx, rec.ID, queue.StageTrim)
	if err != nil {
		t.Fatalf("GetStage: %v", err)
	}
	if stage.Status != queue.StageCompleted {
		t.Fatalf("trim = %s, want completed", stage.Status)
	}
	if got := client.types(); len(got) != 1 || got[0] != "stage:transcribe" {
		t.Fatalf("types = %v, want transcribe next", got)
	}
}

func TestHandleStagePauseExitsWithoutStateChange(t *testing.T) {
	handlers, client, store := newHandlers(t, &services.StubOperations{})
	rec := testsupport.NewRecording(t, store, "tenant-1", "standup")
	ctx := context.Background()
	startDownloaded(t, handlers, store, rec)
	if err := handlers.orch.Pause(ctx, rec.ID); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	client.reset()

	task, err := tasks.NewStageTask(rec.ID, queue.StageTrim)
	if err != nil {
		t.Fatalf("NewStageTask: %v", err)
	}
	if err := handlers.HandleStage(ctx, task); err != nil {
		t.Fatalf("HandleStage: %v", err)
	}

	stage, err := store.GetStage(ctx, rec.ID, queue.StageTrim)
	if err != nil {
		t.Fatalf("GetStage: %v", err)
	}
	if stage.Status != queue.StagePending {
		t.Fatalf("trim = %s, pause must not run the stage", stage.Status)
	}
	if len(client.types()) != 0 {
		t.Fatalf("paused handler enqueued %v", client.types())
	}
}

func TestHandleStageCompletedIsIdempotentResume(t *testing.T) {
	ran := 0
	ops := &services.StubOperations{
		TrimFunc: func(context.Context, *queue.Recording, profile.Settings) error {
			ran++
			return nil
		},
	}
	handlers, client, store := newHandlers(t, ops)
	rec := testsupport.NewRecording(t, store, "tenant-1", "standup")
	ctx := context.Background()
	startDownloaded(t, handlers, store, rec)
	if _, err := handlers.tracker.MarkCompleted(ctx, rec.ID, queue.StageTrim); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	client.reset()

	task, err := tasks.NewStageTask(rec.ID, queue.StageTrim)
	if err != nil {
		t.Fatalf("NewStageTask: %v", err)
	}
	if err := handlers.HandleStage(ctx, task); err != nil {
		t.Fatalf("HandleStage: %v", err)
	}
	if ran != 0 {
		t.Fatalf("completed stage ran %d times, want 0", ran)
	}
	if got := client.types(); len(got) != 1 || got[0] != "stage:transcribe" {
		t.Fatalf("types = %v, want advance to transcribe", got)
	}
}

func TestHandleStageTolerantFailureShortCircuitsToUpload(t *testing.T) {
	ops := &services.StubOperations{
		TranscribeFunc: func(context.Context, *queue.Recording, profile.Settings) error {
			return services.Wrap(services.ErrRateLimited, "transcribe", "submit", "quota exhausted", nil)
		},
	}
	handlers, client, store := newHandlers(t, ops)
	rec := testsupport.NewRecording(t, store, "tenant-1", "standup")
	ctx := context.Background()

	rec.OverridesJSON = `{"processing":{"allow_errors":true}}`
	if err := store.UpdateRecording(ctx, rec); err != nil {
		t.Fatalf("UpdateRecording: %v", err)
	}
	startDownloaded(t, handlers, store, rec)
	if _, err := handlers.tracker.MarkCompleted(ctx, rec.ID, queue.StageTrim); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	client.reset()

	task, err := tasks.NewStageTask(rec.ID, queue.StageTranscribe)
	if err != nil {
		t.Fatalf("NewStageTask: %v", err)
	}
	if err := handlers.HandleStage(ctx, task); err != nil {
		t.Fatalf("recognized failure must be consumed, got %v", err)
	}

	// Transcribe skipped, branch skipped, so the chain goes straight to
	// the upload fan-out.
	for _, taskType := range client.types() {
		if taskType != "pipeline:upload" {
			t.Fatalf("types = %v, want uploads only", client.types())
		}
	}
	if len(client.types()) != 1 {
		t.Fatalf("types = %v, want the youtube upload", client.types())
	}
}

func TestHandleStageUnexpectedErrorPropagates(t *testing.T) {
	boom := errors.New("segfault in tool wrapper")
	ops := &services.StubOperations{
		TrimFunc: func(context.Context, *queue.Recording, profile.Settings) error {
			return boom
		},
	}
	handlers, _, store := newHandlers(t, ops)
	rec := testsupport.NewRecording(t, store, "tenant-1", "standup")
	ctx := context.Background()
	startDownloaded(t, handlers, store, rec)

	task, err := tasks.NewStageTask(rec.ID, queue.StageTrim)
	if err != nil {
		t.Fatalf("NewStageTask: %v", err)
	}
	if err := handlers.HandleStage(ctx, task); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v propagated", err, boom)
	}
}

func TestHandleUploadSuccessMakesReady(t *testing.T) {
	handlers, _, store := newHandlers(t, &services.StubOperations{})
	rec := testsupport.NewRecording(t, store, "tenant-1", "standup")
	ctx := context.Background()
	startDownloaded(t, handlers, store, rec)
	for _, stageType := range queue.AllStageTypes() {
		if _, err := handlers.tracker.MarkCompleted(ctx, rec.ID, stageType); err != nil {
			t.Fatalf("MarkCompleted(%s): %v", stageType, err)
		}
	}

	task, err := tasks.NewUploadTask(rec.ID, "youtube")
	if err != nil {
		t.Fatalf("NewUploadTask: %v", err)
	}
	if err := handlers.HandleUpload(ctx, task); err != nil {
		t.Fatalf("HandleUpload: %v", err)
	}

	updated, err := store.GetRecording(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetRecording: %v", err)
	}
	if updated.Status != queue.StatusReady {
		t.Fatalf("status = %s, want %s", updated.Status, queue.StatusReady)
	}
}

func TestHandleAutomationRunStartsMatchingRecordings(t *testing.T) {
	handlers, client, store := newHandlers(t, &services.StubOperations{})
	ctx := context.Background()

	tpl, err := store.CreateTemplate(ctx, &queue.Template{
		Name:     "standups",
		IsActive: true,
		Keywords: []string{"standup"},
	})
	if err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}
	job, err := store.SaveAutomationJob(ctx, &queue.AutomationJob{
		TenantID:   "tenant-1",
		Name:       "morning run",
		TemplateID: tpl.ID,
		Enabled:    true,
		Kind:       queue.ScheduleDaily,
		AtTime:     "06:00",
	})
	if err != nil {
		t.Fatalf("SaveAutomationJob: %v", err)
	}

	matching := testsupport.NewRecording(t, store, "tenant-1", "Weekly Standup")
	testsupport.NewRecording(t, store, "tenant-1", "All Hands")

	task, err := tasks.NewAutomationRunTask(job.ID)
	if err != nil {
		t.Fatalf("NewAutomationRunTask: %v", err)
	}
	if err := handlers.HandleAutomationRun(ctx, task); err != nil {
		t.Fatalf("HandleAutomationRun: %v", err)
	}

	started, err := store.GetRecording(ctx, matching.ID)
	if err != nil {
		t.Fatalf("GetRecording: %v", err)
	}
	if started.TemplateID == nil || *started.TemplateID != tpl.ID {
		t.Fatalf("TemplateID = %v, want %d", started.TemplateID, tpl.ID)
	}
	if len(client.types()) != 1 {
		t.Fatalf("types = %v, want one download for the matching recording", client.types())
	}
}

func TestHandleReclaimRequeuesStaleStage(t *testing.T) {
	handlers, client, store := newHandlers(t, &services.StubOperations{})
	rec := testsupport.NewRecording(t, store, "tenant-1", "standup")
	ctx := context.Background()
	startDownloaded(t, handlers, store, rec)
	client.reset()

	// An in_progress stage with no heartbeat is a dead worker.
	if err := store.UpsertStage(ctx, &queue.Stage{
		RecordingID: rec.ID,
		Type:        queue.StageTrim,
		Status:      queue.StageInProgress,
	}); err != nil {
		t.Fatalf("UpsertStage: %v", err)
	}

	if err := handlers.HandleReclaim(ctx, tasks.NewReclaimTask()); err != nil {
		t.Fatalf("HandleReclaim: %v", err)
	}

	stage, err := store.GetStage(ctx, rec.ID, queue.StageTrim)
	if err != nil {
		t.Fatalf("GetStage: %v", err)
	}
	if stage.Status != queue.StagePending {
		t.Fatalf("trim = %s, want reclaimed to pending", stage.Status)
	}
	if got := client.types(); len(got) != 1 || got[0] != "stage:trim" {
		t.Fatalf("types = %v, want trim re-enqueued", got)
	}
}

func TestHandleStageDropsTaskForDeletedRecording(t *testing.T) {
	handlers, client, _ := newHandlers(t, &services.StubOperations{})
	ctx := context.Background()

	task, err := tasks.NewStageTask(424242, queue.StageTrim)
	if err != nil {
		t.Fatalf("NewStageTask: %v", err)
	}
	if err := handlers.HandleStage(ctx, task); err != nil {
		t.Fatalf("HandleStage: %v, want the task dropped", err)
	}
	if got := client.types(); len(got) != 0 {
		t.Fatalf("types = %v, want nothing enqueued", got)
	}
}

func TestHandleDownloadDropsTaskForDeletedRecording(t *testing.T) {
	handlers, _, _ := newHandlers(t, &services.StubOperations{})
	ctx := context.Background()

	task, err := tasks.NewDownloadTask(424242)
	if err != nil {
		t.Fatalf("NewDownloadTask: %v", err)
	}
	if err := handlers.HandleDownload(ctx, task); err != nil {
		t.Fatalf("HandleDownload: %v, want the task dropped", err)
	}
}
