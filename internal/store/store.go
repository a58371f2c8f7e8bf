// Package store gives the orchestrator a narrow persistence interface over
// task and run records. Components depend on TaskStore only; the Postgres
// implementation is the storage target in both topologies and the in-memory
// implementation backs tests.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/guregu/null/v6"
	"github.com/uniframe-io/uniframe-backend/internal/models"
	"github.com/uniframe-io/uniframe-backend/internal/taskerr"
)

// ErrIllegalTransition is returned when a status write does not follow a
// lifecycle edge.
var ErrIllegalTransition = errors.New("illegal task status transition")

// TaskStore persists Task and TaskRunRecord rows.
type TaskStore interface {
	GetTask(ctx context.Context, taskID int64) (*models.Task, error)
	CreateTask(ctx context.Context, task *models.Task) error
	UpdateTaskConfig(ctx context.Context, task *models.Task) error
	// SetTaskStatus applies one lifecycle transition. Terminal-to-terminal
	// writes are idempotent no-ops so the supervisor and the housekeeper can
	// both observe the same end without conflict.
	SetTaskStatus(ctx context.Context, taskID int64, next models.TaskStatus) error
	// DeactivateTask soft-deletes a task; rows are never physically removed
	// while run records exist.
	DeactivateTask(ctx context.Context, taskID int64) error

	CreateRunRecord(ctx context.Context, run *models.TaskRunRecord) error
	GetRunRecord(ctx context.Context, runID int64) (*models.TaskRunRecord, error)
	// FinishRun writes the terminal status of one worker launch. Applying the
	// same terminal update twice is a no-op, not an error (last-writer-wins).
	FinishRun(ctx context.Context, runID int64, status models.RunStatus, finishedAt time.Time) error
	// FinishRunByWorker is FinishRun addressed by (task, worker) instead of
	// run id, for the supervisor which only knows its own worker name.
	FinishRunByWorker(ctx context.Context, taskID int64, workerID string, status models.RunStatus, finishedAt time.Time) error
	// ListRunningRuns returns every run record still marked Running, for the
	// housekeeper reconciliation pass.
	ListRunningRuns(ctx context.Context) ([]models.TaskRunRecord, error)
	// ListTaskRuns returns every run record of one task, oldest first. The
	// delete flow walks these to tear worker resources down.
	ListTaskRuns(ctx context.Context, taskID int64) ([]models.TaskRunRecord, error)
}

// applyTransition mutates t in place for a move to next, returning false when
// the write is an idempotent no-op. Shared by the Postgres and memory stores
// so both enforce identical lifecycle rules.
func applyTransition(t *models.Task, next models.TaskStatus, now time.Time) (bool, error) {
	cur := t.Status

	if cur == next {
		return false, nil
	}
	if cur.IsTerminal() && next.IsTerminal() {
		// a later observer (housekeeper) must never overwrite the terminal
		// status the supervisor already wrote
		return false, nil
	}
	if !cur.CanTransition(next) {
		return false, fmt.Errorf("%w: %s -> %s (task %d)", ErrIllegalTransition, cur, next, t.ID)
	}

	t.Status = next
	t.UpdatedAt = now
	switch {
	case next == models.StatusPreparing:
		// a new running round: start the clock, clear any previous finish
		t.StartedAt = null.TimeFrom(now)
		t.FinishedAt = null.Time{}
	case next == models.StatusLaunching:
		t.FinishedAt = null.Time{}
	case next.IsTerminal():
		t.FinishedAt = null.TimeFrom(now)
	}
	return true, nil
}

// notFound builds the caller-error for a missing task id.
func notFound(taskID int64) error {
	return taskerr.New(taskerr.KindTaskNotFound, "task %d does not exist", taskID)
}
