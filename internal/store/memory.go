package store

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/guregu/null/v6"
	"github.com/uniframe-io/uniframe-backend/internal/models"
)

// MemoryStore is an in-process TaskStore used by tests and by components that
// want lifecycle enforcement without a database.
type MemoryStore struct {
	mu       sync.Mutex
	tasks    map[int64]*models.Task
	runs     map[int64]*models.TaskRunRecord
	nextTask int64
	nextRun  int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:    make(map[int64]*models.Task),
		runs:     make(map[int64]*models.TaskRunRecord),
		nextTask: 1,
		nextRun:  1,
	}
}

func (s *MemoryStore) GetTask(_ context.Context, taskID int64) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok || !task.IsActive {
		return nil, notFound(taskID)
	}
	cp := *task
	return &cp, nil
}

func (s *MemoryStore) CreateTask(_ context.Context, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task.ID = s.nextTask
	s.nextTask++
	task.Status = models.StatusInit
	task.IsActive = true
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now

	cp := *task
	s.tasks[task.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateTaskConfig(_ context.Context, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.tasks[task.ID]
	if !ok || !existing.IsActive {
		return notFound(task.ID)
	}
	existing.Config = task.Config
	existing.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) SetTaskStatus(_ context.Context, taskID int64, next models.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return notFound(taskID)
	}
	_, err := applyTransition(task, next, time.Now().UTC())
	return err
}

func (s *MemoryStore) DeactivateTask(_ context.Context, taskID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return notFound(taskID)
	}
	task.IsActive = false
	task.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) CreateRunRecord(_ context.Context, run *models.TaskRunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run.ID = s.nextRun
	s.nextRun++
	run.Status = models.RunStatusRunning
	run.StartedAt = time.Now().UTC()

	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

func (s *MemoryStore) GetRunRecord(_ context.Context, runID int64) (*models.TaskRunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *run
	return &cp, nil
}

func (s *MemoryStore) FinishRun(_ context.Context, runID int64, status models.RunStatus, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return sql.ErrNoRows
	}
	if run.Status != models.RunStatusRunning {
		// already terminal, keep the first writer's result
		return nil
	}
	run.Status = status
	run.FinishedAt = null.TimeFrom(finishedAt)
	return nil
}

func (s *MemoryStore) FinishRunByWorker(_ context.Context, taskID int64, workerID string, status models.RunStatus, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, run := range s.runs {
		if run.TaskID != taskID || run.WorkerID != workerID || run.Status != models.RunStatusRunning {
			continue
		}
		run.Status = status
		run.FinishedAt = null.TimeFrom(finishedAt)
	}
	return nil
}

func (s *MemoryStore) ListTaskRuns(_ context.Context, taskID int64) ([]models.TaskRunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var runs []models.TaskRunRecord
	for _, run := range s.runs {
		if run.TaskID == taskID {
			runs = append(runs, *run)
		}
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].ID < runs[j].ID })
	return runs, nil
}

func (s *MemoryStore) ListRunningRuns(_ context.Context) ([]models.TaskRunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var runs []models.TaskRunRecord
	for _, run := range s.runs {
		if run.Status == models.RunStatusRunning {
			runs = append(runs, *run)
		}
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].ID < runs[j].ID })
	return runs, nil
}
