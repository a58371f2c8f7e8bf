package supervisor_test

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uniframe-io/uniframe-backend/internal/models"
	"github.com/uniframe-io/uniframe-backend/internal/store"
	"github.com/uniframe-io/uniframe-backend/internal/supervisor"
)

type stubSignal struct {
	pending bool
	cleared bool
}

func (s *stubSignal) Pending(context.Context) (bool, error) { return s.pending, nil }
func (s *stubSignal) Clear(context.Context) error           { s.cleared = true; return nil }
func (s *stubSignal) Close() error                          { return nil }

// failingStatusStore simulates a database outage on the terminal status write.
type failingStatusStore struct {
	*store.MemoryStore
}

func (s *failingStatusStore) SetTaskStatus(context.Context, int64, models.TaskStatus) error {
	return errors.New("connection reset")
}

func launchedTask(t *testing.T) (*store.MemoryStore, *models.Task, *models.TaskRunRecord) {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemoryStore()

	task := &models.Task{OwnerID: 42, Name: "job", Type: models.TaskTypeBatch}
	require.NoError(t, s.CreateTask(ctx, task))
	require.NoError(t, s.SetTaskStatus(ctx, task.ID, models.StatusPreparing))
	require.NoError(t, s.SetTaskStatus(ctx, task.ID, models.StatusLaunching))

	run := &models.TaskRunRecord{OwnerID: 42, TaskID: task.ID, WorkerID: "worker-1"}
	require.NoError(t, s.CreateRunRecord(ctx, run))
	return s, task, run
}

func supervise(s *store.MemoryStore, task *models.Task, sig *stubSignal, ttl time.Duration) *supervisor.Supervisor {
	return &supervisor.Supervisor{
		Store:        s,
		Signal:       sig,
		TaskID:       task.ID,
		OwnerID:      task.OwnerID,
		WorkerID:     "worker-1",
		TTL:          ttl,
		PollInterval: 10 * time.Millisecond,
	}
}

func TestSupervisorRun(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	ctx := context.Background()

	t.Run("clean exit completes the task", func(t *testing.T) {
		s, task, run := launchedTask(t)
		sig := &stubSignal{}

		proc, err := supervisor.StartProcess("sh", []string{"-c", "exit 0"}, nil)
		require.NoError(t, err)

		final, err := supervise(s, task, sig, 0).Run(ctx, proc)
		require.NoError(t, err)
		assert.Equal(t, models.StatusComplete, final)

		got, err := s.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusComplete, got.Status)

		rec, err := s.GetRunRecord(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RunStatusCompleted, rec.Status)
		assert.True(t, sig.cleared)
	})

	t.Run("non-zero exit fails the task", func(t *testing.T) {
		s, task, _ := launchedTask(t)
		proc, err := supervisor.StartProcess("sh", []string{"-c", "exit 3"}, nil)
		require.NoError(t, err)

		final, err := supervise(s, task, &stubSignal{}, 0).Run(ctx, proc)
		require.NoError(t, err)
		assert.Equal(t, models.StatusFailed, final)
	})

	t.Run("sigkill is read as out of memory", func(t *testing.T) {
		s, task, _ := launchedTask(t)
		proc, err := supervisor.StartProcess("sh", []string{"-c", "kill -9 $$"}, nil)
		require.NoError(t, err)

		final, err := supervise(s, task, &stubSignal{}, 0).Run(ctx, proc)
		require.NoError(t, err)
		assert.Equal(t, models.StatusOOMKilled, final)

		got, err := s.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusOOMKilled, got.Status)
	})

	t.Run("ttl expiry terminates the worker", func(t *testing.T) {
		s, task, _ := launchedTask(t)
		proc, err := supervisor.StartProcess("sleep", []string{"30"}, nil)
		require.NoError(t, err)

		ttl := 100 * time.Millisecond
		start := time.Now()
		final, err := supervise(s, task, &stubSignal{}, ttl).Run(ctx, proc)
		elapsed := time.Since(start)
		require.NoError(t, err)
		assert.Equal(t, models.StatusTerminated, final)

		// preemption fires on the first poll at or after the deadline,
		// never before it
		assert.GreaterOrEqual(t, elapsed, ttl)
		assert.Less(t, elapsed, ttl+500*time.Millisecond)
	})

	t.Run("stop signal wins over everything", func(t *testing.T) {
		s, task, run := launchedTask(t)
		sig := &stubSignal{pending: true}

		proc, err := supervisor.StartProcess("sleep", []string{"30"}, nil)
		require.NoError(t, err)

		final, err := supervise(s, task, sig, time.Hour).Run(ctx, proc)
		require.NoError(t, err)
		assert.Equal(t, models.StatusStopped, final)
		assert.True(t, sig.cleared)

		rec, err := s.GetRunRecord(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RunStatusCompleted, rec.Status)
	})

	t.Run("failed status write does not skip the remaining teardown", func(t *testing.T) {
		s, task, run := launchedTask(t)
		sig := &stubSignal{}

		proc, err := supervisor.StartProcess("sh", []string{"-c", "exit 0"}, nil)
		require.NoError(t, err)

		cleaned := false
		sup := &supervisor.Supervisor{
			Store:        &failingStatusStore{MemoryStore: s},
			Signal:       sig,
			TaskID:       task.ID,
			OwnerID:      task.OwnerID,
			WorkerID:     "worker-1",
			PollInterval: 10 * time.Millisecond,
			Cleanup:      func(context.Context) { cleaned = true },
		}
		_, err = sup.Run(ctx, proc)
		require.Error(t, err)

		// the run record is still closed, the signal reset and cleanup run
		rec, err := s.GetRunRecord(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RunStatusCompleted, rec.Status)
		assert.True(t, sig.cleared)
		assert.True(t, cleaned)
	})

	t.Run("environment is passed to the child", func(t *testing.T) {
		s, task, _ := launchedTask(t)
		proc, err := supervisor.StartProcess("sh", []string{"-c", `[ "$TASK_ID" = "7" ]`}, map[string]string{"TASK_ID": "7"})
		require.NoError(t, err)

		final, err := supervise(s, task, &stubSignal{}, 0).Run(ctx, proc)
		require.NoError(t, err)
		assert.Equal(t, models.StatusComplete, final)
	})
}

func TestProcessPoll(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	proc, err := supervisor.StartProcess("sleep", []string{"5"}, nil)
	require.NoError(t, err)

	_, done := proc.Poll()
	assert.False(t, done, "poll must not block on a running child")

	require.NoError(t, proc.Kill())
	res := proc.Wait()
	assert.True(t, res.OOM, "an external SIGKILL looks identical to an OOM kill")
}
