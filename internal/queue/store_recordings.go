package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const recordingColumns = "id, tenant_id, name, source_id, source_url, status, failed, failed_at_stage, retry_count, template_id, overrides_json, on_pause, expire_at, error_message, created_at, updated_at"

// NewRecording inserts a recording at its initial status. Source-less
// recordings start at pending_source; recordings with a source URL start
// initialized and are eligible for download.
func (s *Store) NewRecording(ctx context.Context, tenantID, name, sourceID, sourceURL string) (*Recording, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, errors.New("tenant id is required")
	}
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("recording name is required")
	}

	status := StatusInitialized
	if strings.TrimSpace(sourceURL) == "" {
		status = StatusPendingSource
	}

	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO recordings (tenant_id, name, source_id, source_url, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tenantID,
		name,
		nullableString(sourceID),
		nullableString(sourceURL),
		status,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert recording: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetRecording(ctx, id)
}

// GetRecording fetches a recording by identifier. Returns nil when absent.
func (s *Store) GetRecording(ctx context.Context, id int64) (*Recording, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordingColumns+` FROM recordings WHERE id = ?`, id)
	rec, err := scanRecording(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get recording: %w", err)
	}
	return rec, nil
}

// UpdateRecording persists changes to an existing recording.
func (s *Store) UpdateRecording(ctx context.Context, rec *Recording) error {
	if rec == nil {
		return errors.New("recording is nil")
	}
	rec.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, updateRecordingSQL, updateRecordingArgs(rec)...)
	if err != nil {
		return fmt.Errorf("update recording: %w", err)
	}
	return nil
}

const updateRecordingSQL = `UPDATE recordings
	 SET tenant_id = ?, name = ?, source_id = ?, source_url = ?, status = ?,
	     failed = ?, failed_at_stage = ?, retry_count = ?, template_id = ?,
	     overrides_json = ?, on_pause = ?, expire_at = ?, error_message = ?, updated_at = ?
	 WHERE id = ?`

func updateRecordingArgs(rec *Recording) []any {
	return []any{
		rec.TenantID,
		rec.Name,
		nullableString(rec.SourceID),
		nullableString(rec.SourceURL),
		rec.Status,
		boolToInt(rec.Failed),
		nullableString(rec.FailedAtStage),
		rec.RetryCount,
		nullableInt64(rec.TemplateID),
		nullableString(rec.OverridesJSON),
		boolToInt(rec.OnPause),
		nullableTime(rec.ExpireAt),
		nullableString(rec.ErrorMessage),
		rec.UpdatedAt.Format(time.RFC3339Nano),
		rec.ID,
	}
}

func updateRecordingTx(ctx context.Context, tx *sql.Tx, rec *Recording) error {
	rec.UpdatedAt = time.Now().UTC()
	if _, err := tx.ExecContext(ctx, updateRecordingSQL, updateRecordingArgs(rec)...); err != nil {
		return fmt.Errorf("update recording: %w", err)
	}
	return nil
}

// ListRecordings returns recordings filtered by status set (or all recordings
// when no status is provided), ordered by creation time.
func (s *Store) ListRecordings(ctx context.Context, statuses ...Status) ([]*Recording, error) {
	baseQuery := `SELECT ` + recordingColumns + ` FROM recordings`
	orderClause := ` ORDER BY created_at, id`

	var (
		rows *sql.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	defer rows.Close()

	var recs []*Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// RecordingsForTenant returns a tenant's recordings in the given statuses.
func (s *Store) RecordingsForTenant(ctx context.Context, tenantID string, statuses ...Status) ([]*Recording, error) {
	query := `SELECT ` + recordingColumns + ` FROM recordings WHERE tenant_id = ?`
	args := []any{tenantID}
	if len(statuses) > 0 {
		query += ` AND status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("recordings for tenant: %w", err)
	}
	defer rows.Close()

	var recs []*Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func scanRecording(scanner rowScanner) (*Recording, error) {
	var (
		id            int64
		tenantID      string
		name          string
		sourceID      sql.NullString
		sourceURL     sql.NullString
		statusStr     string
		failed        sql.NullInt64
		failedAtStage sql.NullString
		retryCount    sql.NullInt64
		templateID    sql.NullInt64
		overrides     sql.NullString
		onPause       sql.NullInt64
		expireRaw     sql.NullString
		errorMessage  sql.NullString
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&tenantID,
		&name,
		&sourceID,
		&sourceURL,
		&statusStr,
		&failed,
		&failedAtStage,
		&retryCount,
		&templateID,
		&overrides,
		&onPause,
		&expireRaw,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	rec := &Recording{
		ID:            id,
		TenantID:      tenantID,
		Name:          name,
		SourceID:      sourceID.String,
		SourceURL:     sourceURL.String,
		Status:        Status(statusStr),
		Failed:        failed.Valid && failed.Int64 != 0,
		FailedAtStage: failedAtStage.String,
		RetryCount:    int(retryCount.Int64),
		OverridesJSON: overrides.String,
		OnPause:       onPause.Valid && onPause.Int64 != 0,
		ErrorMessage:  errorMessage.String,
	}
	if templateID.Valid {
		v := templateID.Int64
		rec.TemplateID = &v
	}
	rec.ExpireAt = timePtrFromNull(expireRaw)
	if created, err := parseTimeString(createdRaw.String); err == nil {
		rec.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		rec.UpdatedAt = updated
	}
	return rec, nil
}
