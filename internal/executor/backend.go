// Package executor launches and stops worker processes for tasks. Two
// backends exist: a Kubernetes backend running one pod per task and a local
// backend pushing launch requests onto a Redis queue consumed by a resident
// worker loop.
package executor

import (
	"context"
	"strconv"
	"time"

	"github.com/uniframe-io/uniframe-backend/internal/models"
	"github.com/uniframe-io/uniframe-backend/internal/queue"
	"github.com/uniframe-io/uniframe-backend/internal/taskerr"
)

// WorkerHandle identifies one launched worker. WorkerID is the pod name in
// the Kubernetes backend; the local backend leaves it empty because the
// consumer names its own subprocess when the message is picked up.
type WorkerHandle struct {
	WorkerID string
}

// Backend abstracts where worker processes run.
type Backend interface {
	// IsAvailable reports whether the backend can accept a launch for this
	// task right now. A capacity rejection carries WORKER_NOT_AVAILABLE.
	IsAvailable(ctx context.Context, task *models.Task) error
	// Launch starts a worker for the task. Platform rejections carry
	// WORKER_START.
	Launch(ctx context.Context, task *models.Task) (*WorkerHandle, error)
	// SignalStop delivers a user stop request to the task's supervisor.
	SignalStop(ctx context.Context, task *models.Task) error
	// DeleteWorkerResources removes whatever the platform still holds for a
	// worker launch. Best effort: failures are logged, never returned.
	DeleteWorkerResources(ctx context.Context, task *models.Task, workerID string)
}

// WorkerArgs is the CLI argument vector that runs the worker body for a
// task: `uniframe run batch <task> <owner>` or `uniframe run realtime ...`.
func WorkerArgs(task *models.Task) []string {
	sub := "batch"
	if task.Type == models.TaskTypeRealtime {
		sub = "realtime"
	}
	return []string{"run", sub, strconv.FormatInt(task.ID, 10), strconv.FormatInt(task.OwnerID, 10)}
}

// LocalBackend launches workers by enqueueing launch requests. At most one
// worker per task type runs at a time; the consumer holds an active marker
// for the duration of its run.
type LocalBackend struct {
	Queue queue.Client
}

func (b *LocalBackend) IsAvailable(ctx context.Context, task *models.Task) error {
	busy, err := b.Queue.HasActiveWorker(ctx, task.Type)
	if err != nil {
		return err
	}
	if busy {
		return taskerr.New(taskerr.KindWorkerNotAvailable,
			"a %s worker is already running", task.Type)
	}
	return nil
}

func (b *LocalBackend) Launch(ctx context.Context, task *models.Task) (*WorkerHandle, error) {
	msg := queue.JobMessage{
		TaskID:     task.ID,
		OwnerID:    task.OwnerID,
		TaskType:   task.Type,
		Command:    WorkerArgs(task),
		EnqueuedAt: time.Now().UTC(),
	}
	if err := b.Queue.Enqueue(ctx, msg); err != nil {
		return nil, taskerr.Wrap(taskerr.KindWorkerStart, err, "enqueue launch for task %d", task.ID)
	}
	recordLaunch(task.Type, "local")
	return &WorkerHandle{}, nil
}

func (b *LocalBackend) SignalStop(ctx context.Context, task *models.Task) error {
	return b.Queue.PostStopFlag(ctx, task.ID, task.OwnerID)
}

// DeleteWorkerResources is a no-op locally: the subprocess is the consumer's
// child and dies with its supervisor, nothing platform-side is left behind.
func (b *LocalBackend) DeleteWorkerResources(context.Context, *models.Task, string) {}
