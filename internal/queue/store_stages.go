package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const stageColumns = "id, recording_id, type, status, skip_reason, failed_reason, retry_count, heartbeat_at, created_at, updated_at"

// StagesForRecording returns a recording's stage rows in pipeline order.
func (s *Store) StagesForRecording(ctx context.Context, recordingID int64) ([]*Stage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+stageColumns+` FROM stages WHERE recording_id = ?`, recordingID)
	if err != nil {
		return nil, fmt.Errorf("query stages: %w", err)
	}
	defer rows.Close()

	byType := make(map[StageType]*Stage)
	for rows.Next() {
		stage, err := scanStage(rows)
		if err != nil {
			return nil, err
		}
		byType[stage.Type] = stage
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ordered := make([]*Stage, 0, len(byType))
	for _, st := range allStageTypes {
		if stage, ok := byType[st]; ok {
			ordered = append(ordered, stage)
		}
	}
	return ordered, nil
}

// GetStage fetches one stage row. Returns nil when absent.
func (s *Store) GetStage(ctx context.Context, recordingID int64, stageType StageType) (*Stage, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+stageColumns+` FROM stages WHERE recording_id = ? AND type = ?`,
		recordingID, stageType,
	)
	stage, err := scanStage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get stage: %w", err)
	}
	return stage, nil
}

// UpsertStage inserts or updates the single row for (recording, type).
func (s *Store) UpsertStage(ctx context.Context, stage *Stage) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return upsertStageTx(ctx, tx, stage)
	})
}

func upsertStageTx(ctx context.Context, tx *sql.Tx, stage *Stage) error {
	if stage == nil {
		return errors.New("stage is nil")
	}
	now := time.Now().UTC()
	stage.UpdatedAt = now
	if stage.CreatedAt.IsZero() {
		stage.CreatedAt = now
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO stages (recording_id, type, status, skip_reason, failed_reason, retry_count, heartbeat_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (recording_id, type) DO UPDATE SET
		     status = excluded.status,
		     skip_reason = excluded.skip_reason,
		     failed_reason = excluded.failed_reason,
		     retry_count = excluded.retry_count,
		     heartbeat_at = excluded.heartbeat_at,
		     updated_at = excluded.updated_at`,
		stage.RecordingID,
		stage.Type,
		stage.Status,
		nullableString(stage.SkipReason),
		nullableString(stage.FailedReason),
		stage.RetryCount,
		nullableTime(stage.HeartbeatAt),
		stage.CreatedAt.Format(time.RFC3339Nano),
		stage.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert stage: %w", err)
	}
	if stage.ID == 0 {
		if id, err := res.LastInsertId(); err == nil {
			stage.ID = id
		}
	}
	return nil
}

// SaveStageAndRecording upserts a stage row and persists the recording's
// recomputed aggregate state in one transaction.
func (s *Store) SaveStageAndRecording(ctx context.Context, stage *Stage, rec *Recording) error {
	if rec == nil {
		return errors.New("recording is nil")
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := upsertStageTx(ctx, tx, stage); err != nil {
			return err
		}
		return updateRecordingTx(ctx, tx, rec)
	})
}

// SaveStagesAndRecording upserts several stage rows and the recording
// atomically, used for config sync and cascade skips.
func (s *Store) SaveStagesAndRecording(ctx context.Context, stages []*Stage, rec *Recording) error {
	if rec == nil {
		return errors.New("recording is nil")
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, stage := range stages {
			if err := upsertStageTx(ctx, tx, stage); err != nil {
				return err
			}
		}
		return updateRecordingTx(ctx, tx, rec)
	})
}

// TouchStageHeartbeat records liveness for an in-progress stage.
func (s *Store) TouchStageHeartbeat(ctx context.Context, recordingID int64, stageType StageType) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`UPDATE stages SET heartbeat_at = ?, updated_at = ? WHERE recording_id = ? AND type = ? AND status = ?`,
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
		recordingID,
		stageType,
		StageInProgress,
	)
	if err != nil {
		return fmt.Errorf("touch stage heartbeat: %w", err)
	}
	return nil
}

// ResetStages deletes all stage rows for a recording. Used by the full-reset
// operation before restarting from initialized.
func (s *Store) ResetStages(ctx context.Context, recordingID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM stages WHERE recording_id = ?`, recordingID)
	if err != nil {
		return fmt.Errorf("reset stages: %w", err)
	}
	return nil
}

func scanStage(scanner rowScanner) (*Stage, error) {
	var (
		id           int64
		recordingID  int64
		typeStr      string
		statusStr    string
		skipReason   sql.NullString
		failedReason sql.NullString
		retryCount   sql.NullInt64
		heartbeatRaw sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&recordingID,
		&typeStr,
		&statusStr,
		&skipReason,
		&failedReason,
		&retryCount,
		&heartbeatRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	stage := &Stage{
		ID:           id,
		RecordingID:  recordingID,
		Type:         StageType(typeStr),
		Status:       StageStatus(statusStr),
		SkipReason:   skipReason.String,
		FailedReason: failedReason.String,
		RetryCount:   int(retryCount.Int64),
	}
	stage.HeartbeatAt = timePtrFromNull(heartbeatRaw)
	if created, err := parseTimeString(createdRaw.String); err == nil {
		stage.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		stage.UpdatedAt = updated
	}
	return stage, nil
}
