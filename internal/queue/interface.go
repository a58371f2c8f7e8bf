package queue

import (
	"context"
	"time"

	"github.com/uniframe-io/uniframe-backend/internal/models"
)

// JobMessage represents a worker launch request sent to a per-type queue
type JobMessage struct {
	TaskID     int64           `json:"task_id"`
	OwnerID    int64           `json:"owner_id"`
	TaskType   models.TaskType `json:"task_type"`
	Command    []string        `json:"command"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Client defines the interface for job queue and stop-signal operations. The
// local topology uses the lists; both topologies use the stop signals.
type Client interface {
	// Enqueue pushes a launch request onto the queue for its task type.
	Enqueue(ctx context.Context, message JobMessage) error
	// Consume blocks, feeding messages for one task type to the handler. One
	// client can only consume one queue.
	Consume(ctx context.Context, taskType models.TaskType, handler func(JobMessage)) error

	// Active-worker markers give the local topology its one-running-job-per-type cap.
	MarkWorkerActive(ctx context.Context, taskType models.TaskType, workerID string) error
	ClearWorkerActive(ctx context.Context, taskType models.TaskType) error
	HasActiveWorker(ctx context.Context, taskType models.TaskType) (bool, error)

	// PostStopFlag sets the short-lived stop key checked by a local supervisor.
	PostStopFlag(ctx context.Context, taskID, ownerID int64) error
	// PublishStop sends the stop message on the task's pub/sub channel
	// (container topology).
	PublishStop(ctx context.Context, taskID, ownerID int64) error

	// StopSignalFor returns the one-shot stop source a supervisor polls.
	StopSignalFor(taskID, ownerID int64, pubsub bool) StopSignal

	Close() error
}

// StopSignal is the supervisor-side view of a user stop request. Delivery is
// at-least-once within a short validity window; the supervisor clears the
// signal after acting on it.
type StopSignal interface {
	// Pending is a non-blocking check for a posted stop request.
	Pending(ctx context.Context) (bool, error)
	// Clear resets the signal so a stale request cannot fire against a later
	// run of the same task id.
	Clear(ctx context.Context) error
	Close() error
}
