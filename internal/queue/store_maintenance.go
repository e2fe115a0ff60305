package queue

import (
	"context"
	"fmt"
	"time"
)

// ReclaimStaleStages rolls in_progress stages whose heartbeat is older than
// the timeout back to pending so another worker can pick them up. Returns the
// recording IDs affected so callers can recompute aggregate status.
func (s *Store) ReclaimStaleStages(ctx context.Context, timeout time.Duration) ([]int64, error) {
	cutoff := time.Now().UTC().Add(-timeout).Format(time.RFC3339Nano)

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT recording_id FROM stages
		 WHERE status = ? AND (heartbeat_at IS NULL OR heartbeat_at < ?)`,
		StageInProgress, cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("query stale stages: %w", err)
	}
	defer rows.Close()

	var recordingIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		recordingIDs = append(recordingIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(recordingIDs) == 0 {
		return nil, nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx,
		`UPDATE stages SET status = ?, heartbeat_at = NULL, updated_at = ?
		 WHERE status = ? AND (heartbeat_at IS NULL OR heartbeat_at < ?)`,
		StagePending, now, StageInProgress, cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("reclaim stale stages: %w", err)
	}
	return recordingIDs, nil
}

// MarkExpired transitions recordings whose expire_at has passed to expired,
// regardless of other state. Returns the number of recordings updated.
func (s *Store) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	timestamp := now.UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx,
		`UPDATE recordings SET status = ?, updated_at = ?
		 WHERE expire_at IS NOT NULL AND expire_at < ? AND status != ?`,
		StatusExpired, timestamp, timestamp, StatusExpired,
	)
	if err != nil {
		return 0, fmt.Errorf("mark expired: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}

// Health returns aggregated recording counts per key lifecycle state.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	var summary HealthSummary
	rows, err := s.db.QueryContext(ctx, `SELECT status, failed, COUNT(1) FROM recordings GROUP BY status, failed`)
	if err != nil {
		return summary, fmt.Errorf("query health: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			statusStr string
			failed    int
			count     int
		)
		if err := rows.Scan(&statusStr, &failed, &count); err != nil {
			return summary, err
		}
		summary.Total += count
		if failed != 0 {
			summary.Failed += count
			continue
		}
		switch Status(statusStr) {
		case StatusPendingSource, StatusInitialized:
			summary.Pending += count
		case StatusDownloading, StatusDownloaded, StatusProcessing, StatusProcessed, StatusUploading, StatusPartiallyUploaded:
			summary.Processing += count
		case StatusReady:
			summary.Ready += count
		case StatusExpired:
			summary.Expired += count
		}
	}
	return summary, rows.Err()
}
