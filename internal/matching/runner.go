package matching

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/uniframe-io/uniframe-backend/internal/dataset"
	"github.com/uniframe-io/uniframe-backend/internal/models"
	"github.com/uniframe-io/uniframe-backend/internal/store"
	"github.com/uniframe-io/uniframe-backend/internal/taskerr"
)

// BatchRunner is the body of a batch worker process: match the full to-match
// dataset against the ground truth once, persist the result artifact and move
// the task to its shutdown status. The surrounding supervisor handles the
// actual exit.
type BatchRunner struct {
	Store    store.TaskStore
	Datasets dataset.Store
}

// Execute runs the batch matching for one task end to end.
func (r *BatchRunner) Execute(ctx context.Context, taskID int64) error {
	task, err := r.Store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Type != models.TaskTypeBatch {
		return taskerr.New(taskerr.KindTaskTypeMismatch, "task %d is %s, not BATCH", taskID, task.Type)
	}

	matcher := NewMatcher(r.Datasets)
	if err := matcher.Refresh(ctx, task.Config); err != nil {
		return err
	}

	nm, err := r.Datasets.LoadTable(ctx, dataset.DatasetKey(task.Config.ToMatch.DatasetID))
	if err != nil {
		return err
	}
	queries, err := nm.Column(task.Config.ToMatch.SearchKey)
	if err != nil {
		return err
	}

	start := time.Now()
	result, err := matcher.MatchNames(queries, task.Config.Search)
	if err != nil {
		return err
	}
	log.Info().
		Int64("task_id", taskID).
		Int("queries", len(queries)).
		Int("rows", result.NumRows()).
		Dur("elapsed", time.Since(start)).
		Msg("Batch matching finished")

	key, err := r.Datasets.SaveResult(ctx, taskID, task.OwnerID, result)
	if err != nil {
		return err
	}
	task.Config.ResultKey = key
	if err := r.Store.UpdateTaskConfig(ctx, task); err != nil {
		return err
	}

	// the supervisor turns TERMINATING into the final COMPLETE once the
	// process exit is observed
	return r.Store.SetTaskStatus(ctx, taskID, models.StatusTerminating)
}

// RealtimeMatcher wraps a Matcher for a resident realtime worker. Every query
// re-reads the task configuration so edits made while the worker is running
// take effect without a relaunch; the staged refresh keeps the common case
// (nothing changed) free. The wrapped Matcher is not concurrency safe, so the
// mutex serializes queries arriving on separate HTTP handler goroutines.
type RealtimeMatcher struct {
	Store    store.TaskStore
	Datasets dataset.Store
	TaskID   int64

	mu      sync.Mutex
	matcher *Matcher
}

// Warm builds the initial index. Called once at worker startup, before the
// task is reported ready.
func (r *RealtimeMatcher) Warm(ctx context.Context) error {
	task, err := r.Store.GetTask(ctx, r.TaskID)
	if err != nil {
		return err
	}
	if task.Type != models.TaskTypeRealtime {
		return taskerr.New(taskerr.KindTaskTypeMismatch, "task %d is %s, not REALTIME", r.TaskID, task.Type)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.matcher = NewMatcher(r.Datasets)
	return r.matcher.Refresh(ctx, task.Config)
}

// Query matches the given names against the (possibly refreshed) index.
func (r *RealtimeMatcher) Query(ctx context.Context, names []string) (*dataset.Table, error) {
	task, err := r.Store.GetTask(ctx, r.TaskID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.matcher.Refresh(ctx, task.Config); err != nil {
		return nil, err
	}
	return r.matcher.MatchNames(names, task.Config.Search)
}
