package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"conveyor/internal/config"
	"conveyor/internal/failure"
	"conveyor/internal/logging"
	"conveyor/internal/queue"
	"conveyor/internal/services"
	"conveyor/internal/stagesync"
	"conveyor/internal/tasks"
	"conveyor/internal/template"
)

// Handlers executes pipeline tasks pulled from the shared queue. Every
// handler is stateless: it reads queue rows, performs one external call, and
// writes the outcome back, so any worker in the pool can run any task.
type Handlers struct {
	store    *queue.Store
	tracker  *stagesync.Tracker
	failures *failure.Handler
	ops      services.Operations
	orch     *Orchestrator
	cfg      *config.Config
	logger   *slog.Logger
}

// NewHandlers constructs the task handler set.
func NewHandlers(store *queue.Store, tracker *stagesync.Tracker, failures *failure.Handler, ops services.Operations, orch *Orchestrator, cfg *config.Config, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handlers{
		store:    store,
		tracker:  tracker,
		failures: failures,
		ops:      ops,
		orch:     orch,
		cfg:      cfg,
		logger:   logger,
	}
}

// Register installs the handlers on the serve mux.
func (h *Handlers) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(tasks.TypeDownload, h.HandleDownload)
	for _, stageType := range queue.AllStageTypes() {
		mux.HandleFunc(tasks.StageTaskType(stageType), h.HandleStage)
	}
	mux.HandleFunc(tasks.TypeUpload, h.HandleUpload)
	mux.HandleFunc(tasks.TypeAutomationRun, h.HandleAutomationRun)
	mux.HandleFunc(tasks.TypeMaintenanceExpire, h.HandleExpireSweep)
	mux.HandleFunc(tasks.TypeMaintenanceReclaim, h.HandleReclaim)
}

// HandleDownload fetches source media and moves the recording to downloaded.
func (h *Handlers) HandleDownload(ctx context.Context, task *asynq.Task) error {
	payload, err := tasks.DecodeDownloadPayload(task)
	if err != nil {
		return err
	}
	rec, err := h.store.GetRecording(ctx, payload.RecordingID)
	if err != nil {
		return err
	}
	if rec == nil {
		h.logger.Warn("download task for deleted recording dropped",
			logging.Int64(logging.FieldRecordingID, payload.RecordingID),
		)
		return nil
	}
	if rec.OnPause {
		return nil
	}
	if rec.IsExpired(time.Now()) {
		_, err := h.tracker.Reaggregate(ctx, rec.ID)
		return err
	}

	switch rec.Status {
	case queue.StatusInitialized:
		rec.Status = queue.StatusDownloading
		if err := h.store.UpdateRecording(ctx, rec); err != nil {
			return err
		}
	case queue.StatusDownloading:
		// A previous attempt died mid-download; run it again.
	default:
		_, err := h.orch.Advance(ctx, rec.ID)
		return err
	}

	if err := h.ops.Download(ctx, rec); err != nil {
		rec.Status = queue.StatusInitialized
		rec.Failed = true
		rec.FailedAtStage = "download"
		rec.ErrorMessage = err.Error()
		if uerr := h.store.UpdateRecording(ctx, rec); uerr != nil {
			return uerr
		}
		h.logger.Warn("download failed",
			logging.Int64(logging.FieldRecordingID, rec.ID),
			logging.String(logging.FieldErrorKind, services.Kind(err)),
			logging.Error(err),
		)
		if services.Recognized(err) {
			return nil
		}
		return err
	}

	rec.Status = queue.StatusDownloaded
	rec.ErrorMessage = ""
	if err := h.store.UpdateRecording(ctx, rec); err != nil {
		return err
	}
	_, err = h.orch.Advance(ctx, rec.ID)
	return err
}

// HandleStage runs one pipeline stage and advances the chain.
func (h *Handlers) HandleStage(ctx context.Context, task *asynq.Task) error {
	payload, err := tasks.DecodeStagePayload(task)
	if err != nil {
		return err
	}
	rec, err := h.store.GetRecording(ctx, payload.RecordingID)
	if err != nil {
		return err
	}
	if rec == nil {
		h.logger.Warn("stage task for deleted recording dropped",
			logging.Int64(logging.FieldRecordingID, payload.RecordingID),
			logging.String(logging.FieldStage, string(payload.Stage)),
		)
		return nil
	}
	if rec.OnPause {
		// Exit without touching state; Resume re-enqueues.
		return nil
	}
	if rec.Failed {
		return nil
	}
	if rec.IsExpired(time.Now()) {
		_, err := h.tracker.Reaggregate(ctx, rec.ID)
		return err
	}

	stage, err := h.store.GetStage(ctx, rec.ID, payload.Stage)
	if err != nil {
		return err
	}
	if stage != nil && stage.Status.IsTerminal() {
		// Already settled, typically a resume after pause or crash.
		_, err := h.orch.Advance(ctx, rec.ID)
		return err
	}

	_, settings, err := h.orch.Resolver().Resolve(ctx, rec, nil)
	if err != nil {
		return err
	}
	if !settings.StageEnabled(string(payload.Stage)) {
		// Config changed between enqueue and execution.
		if _, err := h.tracker.MarkSkipped(ctx, rec.ID, payload.Stage, queue.SkipReasonDisabled); err != nil {
			return err
		}
		_, err := h.orch.Advance(ctx, rec.ID)
		return err
	}

	if _, err := h.tracker.MarkInProgress(ctx, rec.ID, payload.Stage); err != nil {
		return err
	}
	stopHeartbeat := h.heartbeat(rec.ID, payload.Stage)
	op := services.StageOperation(h.ops, payload.Stage)
	opErr := op(ctx, rec, settings)
	stopHeartbeat()

	if opErr != nil {
		proceed, ferr := h.failures.OnStageFailure(ctx, rec.ID, payload.Stage, settings.AllowErrors, opErr)
		if proceed {
			if _, aerr := h.orch.Advance(ctx, rec.ID); aerr != nil {
				return aerr
			}
		}
		return ferr
	}

	if _, err := h.tracker.MarkCompleted(ctx, rec.ID, payload.Stage); err != nil {
		return err
	}
	_, err = h.orch.Advance(ctx, rec.ID)
	return err
}

// HandleUpload pushes the recording to one platform. Platforms are fully
// independent; this handler never touches another platform's row.
func (h *Handlers) HandleUpload(ctx context.Context, task *asynq.Task) error {
	payload, err := tasks.DecodeUploadPayload(task)
	if err != nil {
		return err
	}
	rec, err := h.store.GetRecording(ctx, payload.RecordingID)
	if err != nil {
		return err
	}
	if rec == nil {
		h.logger.Warn("upload task for deleted recording dropped",
			logging.Int64(logging.FieldRecordingID, payload.RecordingID),
			logging.String(logging.FieldPlatform, payload.Platform),
		)
		return nil
	}
	if rec.OnPause {
		return nil
	}
	if rec.IsExpired(time.Now()) {
		_, err := h.tracker.Reaggregate(ctx, rec.ID)
		return err
	}

	output, err := h.store.GetOutput(ctx, rec.ID, payload.Platform)
	if err != nil {
		return err
	}
	if output == nil {
		h.logger.Warn("upload task for unknown platform",
			logging.Int64(logging.FieldRecordingID, rec.ID),
			logging.String(logging.FieldPlatform, payload.Platform),
		)
		return nil
	}
	if output.Status == queue.OutputUploaded {
		return nil
	}

	_, settings, err := h.orch.Resolver().Resolve(ctx, rec, nil)
	if err != nil {
		return err
	}

	output.Status = queue.OutputUploading
	if err := h.store.UpdateOutput(ctx, output); err != nil {
		return err
	}
	if _, err := h.tracker.Reaggregate(ctx, rec.ID); err != nil {
		return err
	}

	if err := h.ops.Upload(ctx, rec, output, settings); err != nil {
		return h.failures.OnUploadFailure(ctx, rec.ID, payload.Platform, err)
	}

	output.Status = queue.OutputUploaded
	output.ErrorMessage = ""
	if err := h.store.UpdateOutput(ctx, output); err != nil {
		return err
	}
	_, err = h.tracker.Reaggregate(ctx, rec.ID)
	return err
}

// HandleAutomationRun is the periodic tick for one automation job: it starts
// the chain for every startable recording the job's template covers.
func (h *Handlers) HandleAutomationRun(ctx context.Context, task *asynq.Task) error {
	payload, err := tasks.DecodeAutomationPayload(task)
	if err != nil {
		return err
	}
	job, err := h.store.GetAutomationJob(ctx, payload.JobID)
	if err != nil {
		return err
	}
	if job == nil || !job.Enabled {
		return nil
	}

	// One run id per tick correlates the start attempts it triggers.
	ctx = logging.WithRequestID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, h.logger)

	tpl, err := h.store.GetTemplate(ctx, job.TemplateID)
	if err != nil {
		return err
	}
	if tpl == nil {
		logger.Warn("automation job references a deleted template",
			logging.Int64("job_id", job.ID),
			logging.Int64("template_id", job.TemplateID),
		)
		return nil
	}

	recs, err := h.store.RecordingsForTenant(ctx, job.TenantID, queue.StatusInitialized, queue.StatusDownloaded)
	if err != nil {
		return err
	}
	started := 0
	for _, rec := range recs {
		if rec.OnPause || rec.Failed {
			continue
		}
		if rec.TemplateID != nil {
			if *rec.TemplateID != job.TemplateID {
				continue
			}
		} else if !template.Matches(rec, tpl) {
			continue
		}
		if _, err := h.orch.Start(ctx, rec.ID); err != nil {
			logger.Warn("automation start skipped",
				logging.Int64("job_id", job.ID),
				logging.Int64(logging.FieldRecordingID, rec.ID),
				logging.Error(err),
			)
			continue
		}
		started++
	}
	logger.Info("automation tick",
		logging.Int64("job_id", job.ID),
		logging.Int("started", started),
		logging.Int("candidates", len(recs)),
	)
	return nil
}

// HandleExpireSweep expires every recording whose deadline has passed.
func (h *Handlers) HandleExpireSweep(ctx context.Context, _ *asynq.Task) error {
	count, err := h.store.MarkExpired(ctx, time.Now())
	if err != nil {
		return err
	}
	if count > 0 {
		h.logger.Info("expire sweep", logging.Int64("expired", count))
	}
	return nil
}

// HandleReclaim rolls stages whose worker stopped heartbeating back to
// pending and re-advances the affected chains.
func (h *Handlers) HandleReclaim(ctx context.Context, _ *asynq.Task) error {
	recordingIDs, err := h.store.ReclaimStaleStages(ctx, h.cfg.HeartbeatTimeout())
	if err != nil {
		return err
	}
	for _, id := range recordingIDs {
		if _, err := h.tracker.Reaggregate(ctx, id); err != nil {
			return err
		}
		if _, err := h.orch.Advance(ctx, id); err != nil {
			return err
		}
		h.logger.Warn("stale stage reclaimed", logging.Int64(logging.FieldRecordingID, id))
	}
	return nil
}

// heartbeat stamps the stage row periodically while its external call runs
// so the reclaim sweep can tell a slow stage from a dead worker.
func (h *Handlers) heartbeat(recordingID int64, stageType queue.StageType) func() {
	interval := h.cfg.HeartbeatTimeout() / 3
	if interval <= 0 {
		interval = time.Minute
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				if err := h.store.TouchStageHeartbeat(ctx, recordingID, stageType); err != nil {
					h.logger.Warn("heartbeat failed",
						logging.Int64(logging.FieldRecordingID, recordingID),
						logging.String(logging.FieldStage, string(stageType)),
						logging.Error(err),
					)
				}
				cancel()
			}
		}
	}()
	return func() { close(done) }
}
