package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/hibiken/asynq"

	"conveyor/internal/config"
	"conveyor/internal/failure"
	"conveyor/internal/logging"
	"conveyor/internal/pipeline"
	"conveyor/internal/queue"
	"conveyor/internal/schedule"
	"conveyor/internal/services"
	"conveyor/internal/stagesync"
	"conveyor/internal/tasks"
)

// Daemon owns the worker-side runtime and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *queue.Store

	client   *asynq.Client
	server   *asynq.Server
	mux      *asynq.ServeMux
	periodic *asynq.PeriodicTaskManager
	orch     *pipeline.Orchestrator

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("daemon requires config and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.With(logging.String(logging.FieldComponent, "daemon"))

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	client := asynq.NewClient(redisOpt)

	tracker := stagesync.NewTracker(store, logger)
	failures := failure.NewHandler(store, tracker, logger)
	ops := services.NewCommandRunner(cfg.Tools)
	orch := pipeline.NewOrchestrator(store, client, tracker, cfg, logger)
	handlers := pipeline.NewHandlers(store, tracker, failures, ops, orch, cfg, logger)

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
		Logger:      asynqLogger{logger: logger},
		RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
			if !services.Retryable(err) {
				return 0
			}
			return time.Duration(n+1) * cfg.RetryDelay()
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Error("task failed",
				logging.String("task_type", task.Type()),
				logging.Error(err),
			)
		}),
	})
	mux := asynq.NewServeMux()
	handlers.Register(mux)

	periodic, err := asynq.NewPeriodicTaskManager(asynq.PeriodicTaskManagerOpts{
		RedisConnOpt:               redisOpt,
		PeriodicTaskConfigProvider: schedule.NewProvider(store, cfg.Scheduler.MinIntervalHours, logger),
		SyncInterval:               time.Duration(cfg.Scheduler.SyncIntervalSeconds) * time.Second,
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("periodic task manager: %w", err)
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "conveyord.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		client:   client,
		server:   server,
		mux:      mux,
		periodic: periodic,
		orch:     orch,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Orchestrator returns the daemon's pipeline orchestrator.
func (d *Daemon) Orchestrator() *pipeline.Orchestrator {
	return d.orch
}

// Start acquires the instance lock and launches the worker, the periodic
// task manager, and the maintenance tickers.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another conveyord instance is already running")
	}

	if err := d.server.Start(d.mux); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("start worker: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	go func() {
		if err := d.periodic.Run(); err != nil {
			d.logger.Error("periodic task manager stopped", logging.Error(err))
		}
	}()
	go d.maintenanceLoop(loopCtx)

	d.running.Store(true)
	d.logger.Info("conveyord started",
		logging.String("lock", d.lockPath),
		logging.Int("concurrency", d.cfg.Worker.Concurrency),
		logging.Duration("heartbeat_timeout", d.cfg.HeartbeatTimeout()),
	)
	return nil
}

// Stop shuts everything down and releases the instance lock. In-flight
// tasks get to finish before the worker exits.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.periodic.Shutdown()
	d.server.Shutdown()
	if err := d.client.Close(); err != nil {
		d.logger.Warn("close task client", logging.Error(err))
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("conveyord stopped")
}

// maintenanceLoop enqueues the expiry sweep and the stale-stage reclaim on
// their intervals. Deterministic task IDs keep replicas from stacking
// duplicate sweeps.
func (d *Daemon) maintenanceLoop(ctx context.Context) {
	sweep := time.Duration(d.cfg.Workflow.ExpireSweepMinutes) * time.Minute
	if sweep <= 0 {
		sweep = 15 * time.Minute
	}
	reclaim := d.cfg.HeartbeatTimeout()
	if reclaim <= 0 {
		reclaim = 5 * time.Minute
	}

	sweepTicker := time.NewTicker(sweep)
	reclaimTicker := time.NewTicker(reclaim)
	defer sweepTicker.Stop()
	defer reclaimTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweepTicker.C:
			d.enqueueMaintenance(ctx, tasks.NewExpireSweepTask(), "maintenance:expire")
		case <-reclaimTicker.C:
			d.enqueueMaintenance(ctx, tasks.NewReclaimTask(), "maintenance:reclaim")
		}
	}
}

func (d *Daemon) enqueueMaintenance(ctx context.Context, task *asynq.Task, taskID string) {
	_, err := d.client.EnqueueContext(ctx, task, asynq.TaskID(taskID), asynq.MaxRetry(0))
	if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) && !errors.Is(err, asynq.ErrDuplicateTask) {
		d.logger.Warn("enqueue maintenance task",
			logging.String("task_type", task.Type()),
			logging.Error(err),
		)
	}
}

// asynqLogger adapts the structured logger to the asynq.Logger interface.
type asynqLogger struct {
	logger *slog.Logger
}

func (l asynqLogger) Debug(args ...any) { l.logger.Debug(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...any)  { l.logger.Info(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...any)  { l.logger.Warn(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...any) { l.logger.Error(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...any) { l.logger.Error(fmt.Sprint(args...)) }
