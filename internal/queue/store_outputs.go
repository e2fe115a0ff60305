package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const outputColumns = "id, recording_id, platform, preset, status, retry_count, error_message, external_ref, created_at, updated_at"

// OutputsForRecording returns a recording's output targets ordered by platform.
func (s *Store) OutputsForRecording(ctx context.Context, recordingID int64) ([]*OutputTarget, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+outputColumns+` FROM output_targets WHERE recording_id = ? ORDER BY platform`,
		recordingID,
	)
	if err != nil {
		return nil, fmt.Errorf("query outputs: %w", err)
	}
	defer rows.Close()

	var outputs []*OutputTarget
	for rows.Next() {
		output, err := scanOutput(rows)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, output)
	}
	return outputs, rows.Err()
}

// GetOutput fetches one output target. Returns nil when absent.
func (s *Store) GetOutput(ctx context.Context, recordingID int64, platform string) (*OutputTarget, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+outputColumns+` FROM output_targets WHERE recording_id = ? AND platform = ?`,
		recordingID, platform,
	)
	output, err := scanOutput(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get output: %w", err)
	}
	return output, nil
}

// EnsureOutputs creates not_uploaded rows for any listed platform that has no
// row yet. Existing rows are left untouched so completed uploads survive
// config changes.
func (s *Store) EnsureOutputs(ctx context.Context, recordingID int64, platforms map[string]string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC().Format(time.RFC3339Nano)
		for platform, preset := range platforms {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO output_targets (recording_id, platform, preset, status, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?)
				 ON CONFLICT (recording_id, platform) DO NOTHING`,
				recordingID,
				platform,
				nullableString(preset),
				OutputNotUploaded,
				now,
				now,
			)
			if err != nil {
				return fmt.Errorf("ensure output %q: %w", platform, err)
			}
		}
		return nil
	})
}

// UpdateOutput persists changes to an output target.
func (s *Store) UpdateOutput(ctx context.Context, output *OutputTarget) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return updateOutputTx(ctx, tx, output)
	})
}

func updateOutputTx(ctx context.Context, tx *sql.Tx, output *OutputTarget) error {
	if output == nil {
		return errors.New("output is nil")
	}
	output.UpdatedAt = time.Now().UTC()
	_, err := tx.ExecContext(ctx,
		`UPDATE output_targets
		 SET status = ?, retry_count = ?, error_message = ?, external_ref = ?, updated_at = ?
		 WHERE id = ?`,
		output.Status,
		output.RetryCount,
		nullableString(output.ErrorMessage),
		nullableString(output.ExternalRef),
		output.UpdatedAt.Format(time.RFC3339Nano),
		output.ID,
	)
	if err != nil {
		return fmt.Errorf("update output: %w", err)
	}
	return nil
}

// SaveOutputAndRecording updates an output target and persists the
// recording's recomputed aggregate state in one transaction.
func (s *Store) SaveOutputAndRecording(ctx context.Context, output *OutputTarget, rec *Recording) error {
	if rec == nil {
		return errors.New("recording is nil")
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := updateOutputTx(ctx, tx, output); err != nil {
			return err
		}
		return updateRecordingTx(ctx, tx, rec)
	})
}

func scanOutput(scanner rowScanner) (*OutputTarget, error) {
	var (
		id           int64
		recordingID  int64
		platform     string
		preset       sql.NullString
		statusStr    string
		retryCount   sql.NullInt64
		errorMessage sql.NullString
		externalRef  sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&recordingID,
		&platform,
		&preset,
		&statusStr,
		&retryCount,
		&errorMessage,
		&externalRef,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	output := &OutputTarget{
		ID:           id,
		RecordingID:  recordingID,
		Platform:     platform,
		Preset:       preset.String,
		Status:       OutputStatus(statusStr),
		RetryCount:   int(retryCount.Int64),
		ErrorMessage: errorMessage.String,
		ExternalRef:  externalRef.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		output.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		output.UpdatedAt = updated
	}
	return output, nil
}
