package schedule

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"conveyor/internal/logging"
	"conveyor/internal/queue"
	"conveyor/internal/tasks"
)

// Provider feeds the periodic task manager from the automation_jobs table.
// It implements asynq.PeriodicTaskConfigProvider, so schedule edits take
// effect on the manager's next sync without a daemon restart.
type Provider struct {
	store            *queue.Store
	minIntervalHours int
	logger           *slog.Logger
}

// NewProvider constructs a Provider enforcing the given interval floor.
func NewProvider(store *queue.Store, minIntervalHours int, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Provider{store: store, minIntervalHours: minIntervalHours, logger: logger}
}

// GetConfigs converts every enabled automation job to a periodic task
// config. Jobs that fail conversion or violate the interval floor are
// dropped from this sync, not fatal: one bad job must not unschedule the
// rest.
func (p *Provider) GetConfigs() ([]*asynq.PeriodicTaskConfig, error) {
	jobs, err := p.store.AutomationJobs(context.Background(), true)
	if err != nil {
		return nil, fmt.Errorf("load automation jobs: %w", err)
	}

	configs := make([]*asynq.PeriodicTaskConfig, 0, len(jobs))
	for _, job := range jobs {
		expr, err := ToCron(job)
		if err != nil {
			p.logger.Warn("automation job schedule rejected",
				logging.Int64("job_id", job.ID),
				logging.Error(err),
			)
			continue
		}
		ok, err := ValidateMinInterval(expr, p.minIntervalHours)
		if err != nil {
			p.logger.Warn("automation job schedule rejected",
				logging.Int64("job_id", job.ID),
				logging.Error(err),
			)
			continue
		}
		if !ok {
			p.logger.Warn("automation job below interval floor",
				logging.Int64("job_id", job.ID),
				logging.String("cron", expr),
				logging.Int("min_interval_hours", p.minIntervalHours),
			)
			continue
		}

		task, err := tasks.NewAutomationRunTask(job.ID)
		if err != nil {
			return nil, err
		}
		configs = append(configs, &asynq.PeriodicTaskConfig{
			Cronspec: expr,
			Task:     task,
		})
	}
	return configs, nil
}
