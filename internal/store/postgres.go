package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/guregu/null/v6"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/uniframe-io/uniframe-backend/internal/models"
)

// PostgresStore implements TaskStore on the `nm` schema.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetTask(ctx context.Context, taskID int64) (*models.Task, error) {
	var task models.Task
	err := s.db.GetContext(ctx, &task, `SELECT * FROM nm.task WHERE id = $1 AND is_active`, taskID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(taskID)
	} else if err != nil {
		return nil, err
	}

	if err := task.DecodeConfig(); err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *PostgresStore) CreateTask(ctx context.Context, task *models.Task) error {
	if err := task.EncodeConfig(); err != nil {
		return err
	}

	return s.db.QueryRowContext(ctx, `
INSERT INTO nm.task (owner_id, name, type, status, config, is_active)
VALUES ($1, $2, $3, $4, $5, TRUE)
RETURNING id, created_at, updated_at`,
		task.OwnerID, task.Name, task.Type, models.StatusInit, task.ConfigJSON,
	).Scan(&task.ID, &task.CreatedAt, &task.UpdatedAt)
}

func (s *PostgresStore) UpdateTaskConfig(ctx context.Context, task *models.Task) error {
	if err := task.EncodeConfig(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
UPDATE nm.task
SET config = $2,
	updated_at = NOW()
WHERE id = $1 AND is_active`, task.ID, task.ConfigJSON)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(task.ID)
	}
	return nil
}

// SetTaskStatus applies one lifecycle transition inside a row-locking
// transaction so concurrent supervisor/housekeeper writes serialize.
func (s *PostgresStore) SetTaskStatus(ctx context.Context, taskID int64, next models.TaskStatus) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollbackTx(tx)

	var task models.Task
	err = tx.GetContext(ctx, &task, `SELECT * FROM nm.task WHERE id = $1 FOR UPDATE`, taskID)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(taskID)
	} else if err != nil {
		return err
	}

	changed, err := applyTransition(&task, next, time.Now().UTC())
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE nm.task
SET status = $2,
	started_at = $3,
	finished_at = $4,
	updated_at = $5
WHERE id = $1`, taskID, task.Status, task.StartedAt, task.FinishedAt, task.UpdatedAt); err != nil {
		return err
	}

	log.Info().
		Int64("task_id", taskID).
		Str("status", string(next)).
		Msg("Task status changed")
	return tx.Commit()
}

func (s *PostgresStore) DeactivateTask(ctx context.Context, taskID int64) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE nm.task
SET is_active = FALSE,
	updated_at = NOW()
WHERE id = $1`, taskID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(taskID)
	}
	return nil
}

func (s *PostgresStore) CreateRunRecord(ctx context.Context, run *models.TaskRunRecord) error {
	run.Status = models.RunStatusRunning
	return s.db.QueryRowContext(ctx, `
INSERT INTO nm.task_run (owner_id, task_id, worker_id, status, started_at)
VALUES ($1, $2, $3, $4, NOW())
RETURNING id, started_at`,
		run.OwnerID, run.TaskID, run.WorkerID, run.Status,
	).Scan(&run.ID, &run.StartedAt)
}

func (s *PostgresStore) GetRunRecord(ctx context.Context, runID int64) (*models.TaskRunRecord, error) {
	var run models.TaskRunRecord
	err := s.db.GetContext(ctx, &run, `SELECT * FROM nm.task_run WHERE id = $1`, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sql.ErrNoRows
	} else if err != nil {
		return nil, err
	}
	return &run, nil
}

// FinishRun is a single conditional UPDATE: the status predicate makes a
// second application of the same terminal write affect zero rows.
func (s *PostgresStore) FinishRun(ctx context.Context, runID int64, status models.RunStatus, finishedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE nm.task_run
SET status = $2,
	finished_at = $3
WHERE id = $1 AND status = $4`, runID, status, null.TimeFrom(finishedAt), models.RunStatusRunning)
	return err
}

func (s *PostgresStore) FinishRunByWorker(ctx context.Context, taskID int64, workerID string, status models.RunStatus, finishedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE nm.task_run
SET status = $3,
	finished_at = $4
WHERE task_id = $1 AND worker_id = $2 AND status = $5`,
		taskID, workerID, status, null.TimeFrom(finishedAt), models.RunStatusRunning)
	return err
}

func (s *PostgresStore) ListTaskRuns(ctx context.Context, taskID int64) ([]models.TaskRunRecord, error) {
	var runs []models.TaskRunRecord
	err := s.db.SelectContext(ctx, &runs, `
SELECT * FROM nm.task_run WHERE task_id = $1 ORDER BY id`, taskID)
	return runs, err
}

func (s *PostgresStore) ListRunningRuns(ctx context.Context) ([]models.TaskRunRecord, error) {
	var runs []models.TaskRunRecord
	err := s.db.SelectContext(ctx, &runs, `
SELECT * FROM nm.task_run WHERE status = $1 ORDER BY id`, models.RunStatusRunning)
	return runs, err
}

func rollbackTx(tx *sqlx.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		log.Error().Err(err).Msg("Could not rollback transaction")
	}
}
