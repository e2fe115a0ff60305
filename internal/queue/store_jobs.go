package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const jobColumns = "id, tenant_id, name, template_id, enabled, schedule_kind, at_time, every_hours, weekdays_csv, cron_expr, created_at, updated_at"

// SaveAutomationJob inserts or updates an automation job. The cron expression
// must already be computed by the schedule converter.
func (s *Store) SaveAutomationJob(ctx context.Context, job *AutomationJob) (*AutomationJob, error) {
	if job == nil {
		return nil, errors.New("job is nil")
	}
	if strings.TrimSpace(job.Name) == "" {
		return nil, errors.New("job name is required")
	}
	if strings.TrimSpace(job.CronExpr) == "" {
		return nil, errors.New("job cron expression is required")
	}

	now := time.Now().UTC()
	job.UpdatedAt = now

	if job.ID == 0 {
		job.CreatedAt = now
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO automation_jobs (tenant_id, name, template_id, enabled, schedule_kind, at_time, every_hours, weekdays_csv, cron_expr, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			job.TenantID,
			job.Name,
			job.TemplateID,
			boolToInt(job.Enabled),
			job.Kind,
			nullableString(job.AtTime),
			job.EveryHours,
			nullableString(weekdaysToCSV(job.Weekdays)),
			job.CronExpr,
			job.CreatedAt.Format(time.RFC3339Nano),
			job.UpdatedAt.Format(time.RFC3339Nano),
		)
		if err != nil {
			return nil, fmt.Errorf("insert automation job: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("last insert id: %w", err)
		}
		job.ID = id
		return s.GetAutomationJob(ctx, id)
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE automation_jobs
		 SET tenant_id = ?, name = ?, template_id = ?, enabled = ?, schedule_kind = ?,
		     at_time = ?, every_hours = ?, weekdays_csv = ?, cron_expr = ?, updated_at = ?
		 WHERE id = ?`,
		job.TenantID,
		job.Name,
		job.TemplateID,
		boolToInt(job.Enabled),
		job.Kind,
		nullableString(job.AtTime),
		job.EveryHours,
		nullableString(weekdaysToCSV(job.Weekdays)),
		job.CronExpr,
		job.UpdatedAt.Format(time.RFC3339Nano),
		job.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update automation job: %w", err)
	}
	return s.GetAutomationJob(ctx, job.ID)
}

// GetAutomationJob fetches an automation job by identifier. Returns nil when absent.
func (s *Store) GetAutomationJob(ctx context.Context, id int64) (*AutomationJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM automation_jobs WHERE id = ?`, id)
	job, err := scanAutomationJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get automation job: %w", err)
	}
	return job, nil
}

// AutomationJobs returns automation jobs, optionally filtered to enabled ones.
func (s *Store) AutomationJobs(ctx context.Context, enabledOnly bool) ([]*AutomationJob, error) {
	query := `SELECT ` + jobColumns + ` FROM automation_jobs`
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query automation jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*AutomationJob
	for rows.Next() {
		job, err := scanAutomationJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// UserConfig returns a tenant's default processing config JSON, empty when unset.
func (s *Store) UserConfig(ctx context.Context, tenantID string) (string, error) {
	var configJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT config_json FROM user_configs WHERE tenant_id = ?`, tenantID,
	).Scan(&configJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get user config: %w", err)
	}
	return configJSON, nil
}

// SetUserConfig stores a tenant's default processing config JSON.
func (s *Store) SetUserConfig(ctx context.Context, tenantID, configJSON string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_configs (tenant_id, config_json, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (tenant_id) DO UPDATE SET config_json = excluded.config_json, updated_at = excluded.updated_at`,
		tenantID, configJSON, now,
	)
	if err != nil {
		return fmt.Errorf("set user config: %w", err)
	}
	return nil
}

func weekdaysToCSV(days []time.Weekday) string {
	if len(days) == 0 {
		return ""
	}
	parts := make([]string, 0, len(days))
	for _, d := range days {
		parts = append(parts, strconv.Itoa(int(d)))
	}
	return strings.Join(parts, ",")
}

func weekdaysFromCSV(csv string) []time.Weekday {
	csv = strings.TrimSpace(csv)
	if csv == "" {
		return nil
	}
	var days []time.Weekday
	for _, part := range strings.Split(csv, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 || n > 6 {
			continue
		}
		days = append(days, time.Weekday(n))
	}
	return days
}

func scanAutomationJob(scanner rowScanner) (*AutomationJob, error) {
	var (
		id         int64
		tenantID   string
		name       string
		templateID int64
		enabled    sql.NullInt64
		kind       string
		atTime     sql.NullString
		everyHours sql.NullInt64
		weekdays   sql.NullString
		cronExpr   string
		createdRaw sql.NullString
		updatedRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&tenantID,
		&name,
		&templateID,
		&enabled,
		&kind,
		&atTime,
		&everyHours,
		&weekdays,
		&cronExpr,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	job := &AutomationJob{
		ID:         id,
		TenantID:   tenantID,
		Name:       name,
		TemplateID: templateID,
		Enabled:    enabled.Valid && enabled.Int64 != 0,
		Kind:       ScheduleKind(kind),
		AtTime:     atTime.String,
		EveryHours: int(everyHours.Int64),
		Weekdays:   weekdaysFromCSV(weekdays.String),
		CronExpr:   cronExpr,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}
