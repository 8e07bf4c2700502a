package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"neuravox/internal/services"
)

const opStage = "state"

// StartProcessing claims a file for a new attempt. The status check and the
// claim are a single guarded upsert, so two concurrent callers for the same
// file id cannot both proceed: the loser gets ErrConflict. Starting is
// permitted from pending, failed, or any non-active terminal status.
func (s *Store) StartProcessing(ctx context.Context, fileID, originalPath string) error {
	if fileID == "" {
		return services.Wrap(services.ErrValidation, opStage, "start_processing", "file id required", nil)
	}
	now := nowUTC()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO files (file_id, original_path, status, error_message, created_at, updated_at)
			VALUES (?, ?, 'processing', NULL, ?, ?)
			ON CONFLICT(file_id) DO UPDATE SET
				status = 'processing',
				original_path = excluded.original_path,
				error_message = NULL,
				updated_at = excluded.updated_at
			WHERE files.status NOT IN ('processing', 'transcribing')`,
			fileID, originalPath, now, now)
		if err != nil {
			return fmt.Errorf("claim file: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("claim file: %w", err)
		}
		if affected == 0 {
			return services.Wrap(services.ErrConflict, opStage, "start_processing",
				fmt.Sprintf("file %s is already being processed", fileID), nil)
		}

		// A crashed prior attempt can leave an open stage row behind.
		if _, err := tx.ExecContext(ctx, `
			UPDATE processing_stages
			SET status = 'failed', completed_at = ?, error_message = 'superseded by new attempt'
			WHERE file_id = ? AND status = 'started'`,
			now, fileID); err != nil {
			return fmt.Errorf("close dangling stages: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO processing_stages (file_id, stage, status, started_at)
			VALUES (?, 'processing', 'started', ?)`,
			fileID, now); err != nil {
			return fmt.Errorf("open processing stage: %w", err)
		}
		return nil
	})
}

// StartStage opens a stage row for the next active phase and moves the file
// to the matching transient status. Used for the transcribing phase;
// processing is opened by StartProcessing.
func (s *Store) StartStage(ctx context.Context, fileID string, status Status) error {
	sources, ok := allowedSources[status]
	if !ok || !status.active() {
		return services.Wrap(services.ErrValidation, opStage, "start_stage",
			fmt.Sprintf("%q is not a startable stage", status), nil)
	}
	now := nowUTC()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.transition(ctx, tx, fileID, status, sources, now, ""); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO processing_stages (file_id, stage, status, started_at)
			VALUES (?, ?, 'started', ?)`,
			fileID, string(status), now); err != nil {
			return fmt.Errorf("open %s stage: %w", status, err)
		}
		return nil
	})
}

// UpdateStage closes the file's open stage row as completed, recording
// optional metadata, and moves the file to the given status.
func (s *Store) UpdateStage(ctx context.Context, fileID string, status Status, metadata string) error {
	sources, ok := allowedSources[status]
	if !ok || status.active() || status.Terminal() {
		return services.Wrap(services.ErrValidation, opStage, "update_stage",
			fmt.Sprintf("%q is not a stage completion status", status), nil)
	}
	now := nowUTC()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.transition(ctx, tx, fileID, status, sources, now, ""); err != nil {
			return err
		}
		var meta any
		if metadata != "" {
			meta = metadata
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE processing_stages
			SET status = 'completed', completed_at = ?, metadata = ?
			WHERE file_id = ? AND status = 'started'`,
			now, meta, fileID); err != nil {
			return fmt.Errorf("close stage: %w", err)
		}
		return nil
	})
}

// CompleteProcessing marks a file's attempt fully successful and closes any
// dangling open stage row.
func (s *Store) CompleteProcessing(ctx context.Context, fileID string) error {
	now := nowUTC()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.transition(ctx, tx, fileID, StatusCompleted, allowedSources[StatusCompleted], now, ""); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE processing_stages
			SET status = 'completed', completed_at = ?
			WHERE file_id = ? AND status = 'started'`,
			now, fileID); err != nil {
			return fmt.Errorf("close dangling stage: %w", err)
		}
		return nil
	})
}

// MarkFailed records a failure message, moves the file to failed, and closes
// the open stage row as failed.
func (s *Store) MarkFailed(ctx context.Context, fileID, message string) error {
	now := nowUTC()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.transition(ctx, tx, fileID, StatusFailed, allowedSources[StatusFailed], now, message); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE processing_stages
			SET status = 'failed', completed_at = ?, error_message = ?
			WHERE file_id = ? AND status = 'started'`,
			now, message, fileID); err != nil {
			return fmt.Errorf("close failed stage: %w", err)
		}
		return nil
	})
}

// Retry moves a failed file back to processing. Any other status is refused
// with ErrConflict; resume never touches completed files.
func (s *Store) Retry(ctx context.Context, fileID string) error {
	now := nowUTC()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.transition(ctx, tx, fileID, StatusProcessing, []Status{StatusFailed}, now, ""); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO processing_stages (file_id, stage, status, started_at)
			VALUES (?, 'processing', 'started', ?)`,
			fileID, now); err != nil {
			return fmt.Errorf("open retry stage: %w", err)
		}
		return nil
	})
}

// transition performs a guarded status update inside tx. Zero rows affected
// resolves to ErrNotFound for unknown files and ErrConflict otherwise.
func (s *Store) transition(ctx context.Context, tx *sql.Tx, fileID string, target Status, sources []Status, now, errorMessage string) error {
	placeholders := make([]string, len(sources))
	args := []any{string(target), now}
	if target == StatusFailed {
		args = []any{string(target), now, errorMessage}
	}
	for i, source := range sources {
		placeholders[i] = "?"
		args = append(args, string(source))
	}
	args = append(args, fileID)

	query := `UPDATE files SET status = ?, updated_at = ?`
	if target == StatusFailed {
		query += `, error_message = ?`
	} else {
		query += `, error_message = NULL`
	}
	query += ` WHERE status IN (` + strings.Join(placeholders, ", ") + `) AND file_id = ?`

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("transition to %s: %w", target, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition to %s: %w", target, err)
	}
	if affected > 0 {
		return nil
	}

	var current string
	err = tx.QueryRowContext(ctx, "SELECT status FROM files WHERE file_id = ?", fileID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return services.Wrap(services.ErrNotFound, opStage, "transition",
			fmt.Sprintf("unknown file %s", fileID), nil)
	}
	if err != nil {
		return fmt.Errorf("inspect file %s: %w", fileID, err)
	}
	return services.Wrap(services.ErrConflict, opStage, "transition",
		fmt.Sprintf("file %s is %s, cannot move to %s", fileID, current, target), nil)
}

// GetFileStatus returns a file's state with its full stage history.
func (s *Store) GetFileStatus(ctx context.Context, fileID string) (*FileStatus, error) {
	ctx = ensureContext(ctx)

	var (
		file      FileState
		status    string
		errMsg    sql.NullString
		createdAt string
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT file_id, original_path, status, error_message, created_at, updated_at
		FROM files WHERE file_id = ?`, fileID).
		Scan(&file.FileID, &file.OriginalPath, &status, &errMsg, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, opStage, "get_file_status",
			fmt.Sprintf("unknown file %s", fileID), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("load file %s: %w", fileID, err)
	}
	file.Status = Status(status)
	file.ErrorMessage = errMsg.String
	file.CreatedAt = parseTime(createdAt)
	file.UpdatedAt = parseTime(updatedAt)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_id, stage, status, started_at, completed_at, error_message, metadata
		FROM processing_stages WHERE file_id = ? ORDER BY id`, fileID)
	if err != nil {
		return nil, fmt.Errorf("load stages for %s: %w", fileID, err)
	}
	defer rows.Close()

	result := &FileStatus{File: file}
	for rows.Next() {
		row, err := scanStageRow(rows)
		if err != nil {
			return nil, err
		}
		result.Stages = append(result.Stages, row)
	}
	return result, rows.Err()
}

// GetFailedFiles lists files currently failed, most recent first.
func (s *Store) GetFailedFiles(ctx context.Context) ([]FailedFile, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `
		SELECT file_id, original_path, error_message, updated_at
		FROM files WHERE status = 'failed' ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("load failed files: %w", err)
	}
	defer rows.Close()

	var failed []FailedFile
	for rows.Next() {
		var (
			entry     FailedFile
			errMsg    sql.NullString
			updatedAt string
		)
		if err := rows.Scan(&entry.FileID, &entry.OriginalPath, &errMsg, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan failed file: %w", err)
		}
		entry.ErrorMessage = errMsg.String
		entry.UpdatedAt = parseTime(updatedAt)
		failed = append(failed, entry)
	}
	return failed, rows.Err()
}

// GetPipelineSummary returns per-status counts plus the most recent stage
// activity.
func (s *Store) GetPipelineSummary(ctx context.Context, recentLimit int) (*Summary, error) {
	ctx = ensureContext(ctx)
	if recentLimit <= 0 {
		recentLimit = 10
	}

	summary := &Summary{StatusCounts: make(map[Status]int)}

	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(1) FROM files GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count statuses: %w", err)
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		summary.StatusCounts[Status(status)] = count
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	stageRows, err := s.db.QueryContext(ctx, `
		SELECT id, file_id, stage, status, started_at, completed_at, error_message, metadata
		FROM processing_stages ORDER BY id DESC LIMIT ?`, recentLimit)
	if err != nil {
		return nil, fmt.Errorf("load recent activity: %w", err)
	}
	defer stageRows.Close()
	for stageRows.Next() {
		row, err := scanStageRow(stageRows)
		if err != nil {
			return nil, err
		}
		summary.RecentActivity = append(summary.RecentActivity, row)
	}
	return summary, stageRows.Err()
}

// CleanupOldRecords deletes terminal files whose last update is older than
// age. Stage history rows follow via the foreign key cascade.
func (s *Store) CleanupOldRecords(ctx context.Context, age time.Duration) (int64, error) {
	if age <= 0 {
		return 0, services.Wrap(services.ErrValidation, opStage, "cleanup", "age must be positive", nil)
	}
	cutoff := time.Now().UTC().Add(-age).Format(time.RFC3339Nano)
	res, err := s.execWithRetry(ctx, `
		DELETE FROM files
		WHERE status IN ('completed', 'failed') AND updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup old records: %w", err)
	}
	return res.RowsAffected()
}

func scanStageRow(rows *sql.Rows) (StageRow, error) {
	var (
		row         StageRow
		status      string
		startedAt   string
		completedAt sql.NullString
		errMsg      sql.NullString
		metadata    sql.NullString
	)
	if err := rows.Scan(&row.ID, &row.FileID, &row.Stage, &status, &startedAt, &completedAt, &errMsg, &metadata); err != nil {
		return StageRow{}, fmt.Errorf("scan stage row: %w", err)
	}
	row.Status = StageStatus(status)
	row.StartedAt = parseTime(startedAt)
	if completedAt.Valid {
		parsed := parseTime(completedAt.String)
		row.CompletedAt = &parsed
	}
	row.ErrorMessage = errMsg.String
	row.Metadata = metadata.String
	return row, nil
}
