package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"pitchbot/internal/models"
	"pitchbot/internal/storage"
)

// CreateTask inserts a new task row in pending status.
func (s *Store) CreateTask(ctx context.Context, task models.GenerationTask) error {
	now := time.Now()
	createdAt := task.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (task_id, owner_id, kind, payload, slide_count, amount_charged,
		                    status, progress, refunded, result_ref, error_detail, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, 'pending', 0, 0, '', '', ?, ?)`,
		task.ID, task.OwnerID, string(task.Kind), string(task.Payload), task.SlideCount,
		task.AmountCharged, formatTime(createdAt), formatTime(now))
	if err != nil {
		return fmt.Errorf("create task %s: %w", task.ID, err)
	}
	return nil
}

// GetTask returns a task by id.
func (s *Store) GetTask(ctx context.Context, taskID string) (models.GenerationTask, error) {
	row := s.db.QueryRowContext(ctx, taskSelect+` WHERE task_id = ?`, taskID)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.GenerationTask{}, storage.ErrTaskNotFound
	}
	if err != nil {
		return models.GenerationTask{}, fmt.Errorf("get task %s: %w", taskID, err)
	}
	return task, nil
}

// ListPendingTasks returns pending tasks, oldest first.
func (s *Store) ListPendingTasks(ctx context.Context) ([]models.GenerationTask, error) {
	rows, err := s.db.QueryContext(ctx, taskSelect+` WHERE status = 'pending' ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list pending tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// MarkProcessing claims a pending task. The conditional update means
// exactly one caller wins even if two poll cycles see the same row.
func (s *Store) MarkProcessing(ctx context.Context, taskID string, progress int) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = 'processing', progress = ?, updated_at = ?
		 WHERE task_id = ? AND status = 'pending'`,
		progress, formatTime(time.Now()), taskID)
	if err != nil {
		return false, fmt.Errorf("mark task %s processing: %w", taskID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark processing rows affected: %w", err)
	}
	return rows > 0, nil
}

// SetProgress bumps progress while the task is processing. A value not
// greater than the current progress, or a task in any other status, is
// ignored: progress only moves forward.
func (s *Store) SetProgress(ctx context.Context, taskID string, progress int) error {
	if progress < 0 || progress > 100 {
		return fmt.Errorf("progress out of range: %d", progress)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET progress = ?, updated_at = ?
		 WHERE task_id = ? AND status = 'processing' AND progress < ?`,
		progress, formatTime(time.Now()), taskID, progress)
	if err != nil {
		return fmt.Errorf("set progress for %s: %w", taskID, err)
	}
	return nil
}

// CompleteTask moves a processing task to its terminal completed state.
func (s *Store) CompleteTask(ctx context.Context, taskID string, resultRef string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = 'completed', progress = 100, result_ref = ?, updated_at = ?
		 WHERE task_id = ? AND status = 'processing'`,
		resultRef, formatTime(time.Now()), taskID)
	if err != nil {
		return false, fmt.Errorf("complete task %s: %w", taskID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete task rows affected: %w", err)
	}
	if rows == 0 {
		s.logger.Warn("Ignoring non-forward task transition",
			zap.String("task_id", taskID),
			zap.String("attempted", "completed"),
		)
		return false, nil
	}
	return true, nil
}

// FailTask moves a processing task to its terminal failed state.
func (s *Store) FailTask(ctx context.Context, taskID string, errorDetail string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = 'failed', error_detail = ?, updated_at = ?
		 WHERE task_id = ? AND status = 'processing'`,
		errorDetail, formatTime(time.Now()), taskID)
	if err != nil {
		return false, fmt.Errorf("fail task %s: %w", taskID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("fail task rows affected: %w", err)
	}
	if rows == 0 {
		// Terminal already; a second failure report is a caller bug, not
		// a reason to corrupt state.
		s.logger.Warn("Ignoring non-forward task transition",
			zap.String("task_id", taskID),
			zap.String("attempted", "failed"),
		)
		return false, nil
	}
	return true, nil
}

// MarkTaskRefunded flips the refunded flag exactly once.
func (s *Store) MarkTaskRefunded(ctx context.Context, taskID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET refunded = 1, updated_at = ? WHERE task_id = ? AND refunded = 0`,
		formatTime(time.Now()), taskID)
	if err != nil {
		return false, fmt.Errorf("mark task %s refunded: %w", taskID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark refunded rows affected: %w", err)
	}
	return rows > 0, nil
}

// StaleProcessingTasks returns processing tasks whose last update is
// older than maxAge. Used to fail crash-orphaned work deterministically.
func (s *Store) StaleProcessingTasks(ctx context.Context, maxAge time.Duration) ([]models.GenerationTask, error) {
	cutoff := formatTime(time.Now().Add(-maxAge))
	rows, err := s.db.QueryContext(ctx,
		taskSelect+` WHERE status = 'processing' AND updated_at < ? ORDER BY created_at ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stale processing tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

const taskSelect = `SELECT task_id, owner_id, kind, payload, slide_count, amount_charged,
	status, progress, refunded, result_ref, error_detail, created_at, updated_at FROM tasks`

func scanTask(row rowScanner) (models.GenerationTask, error) {
	var (
		task      models.GenerationTask
		kind      string
		payload   string
		status    string
		refunded  int
		createdAt string
		updatedAt string
	)
	err := row.Scan(&task.ID, &task.OwnerID, &kind, &payload, &task.SlideCount,
		&task.AmountCharged, &status, &task.Progress, &refunded,
		&task.ResultRef, &task.ErrorDetail, &createdAt, &updatedAt)
	if err != nil {
		return models.GenerationTask{}, err
	}
	task.Kind = models.TaskKind(kind)
	task.Payload = []byte(payload)
	task.Status = models.TaskStatus(status)
	task.Refunded = refunded != 0
	task.CreatedAt = parseTime(createdAt)
	task.UpdatedAt = parseTime(updatedAt)
	return task, nil
}

func collectTasks(rows *sql.Rows) ([]models.GenerationTask, error) {
	var tasks []models.GenerationTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}
