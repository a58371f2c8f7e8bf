package supervisor

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/uniframe-io/uniframe-backend/internal/models"
	"github.com/uniframe-io/uniframe-backend/internal/queue"
	"github.com/uniframe-io/uniframe-backend/internal/store"
)

const (
	defaultPollInterval = 50 * time.Millisecond
	terminateGrace      = 5 * time.Second
)

// Supervisor tracks one worker child to its end. Each loop iteration checks,
// in priority order: the user stop signal, TTL expiry, natural exit. The loop
// only terminates through one of those three branches.
type Supervisor struct {
	Store    store.TaskStore
	Signal   queue.StopSignal
	TaskID   int64
	OwnerID  int64
	WorkerID string

	// TTL bounds the worker's wall-clock lifetime, measured from the moment
	// the supervisor acknowledged the launch. Zero disables preemption.
	TTL          time.Duration
	PollInterval time.Duration

	// Cleanup runs after the terminal status is written; the Kubernetes
	// topology deletes the pod's companion service here. Best effort.
	Cleanup func(context.Context)
}

// Run supervises proc until it ends and returns the terminal task status it
// wrote. The returned error covers store failures only; the worker's own
// failure is expressed through the status.
func (s *Supervisor) Run(ctx context.Context, proc *Process) (models.TaskStatus, error) {
	interval := s.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	launchedAt := time.Now()

	log.Info().
		Int64("task_id", s.TaskID).
		Str("worker_id", s.WorkerID).
		Int("pid", proc.PID()).
		Dur("ttl", s.TTL).
		Msg("Supervising worker")

	var final models.TaskStatus
	for {
		pending, err := s.Signal.Pending(ctx)
		if err != nil {
			// signal loss is tolerated, TTL and exit detection still apply
			log.Warn().Err(err).Int64("task_id", s.TaskID).Msg("Could not check stop signal")
		}
		if pending {
			log.Info().Int64("task_id", s.TaskID).Msg("Stop signal received, terminating worker")
			s.endChild(proc)
			final = models.StatusStopped
			break
		}

		if s.TTL > 0 && time.Since(launchedAt) >= s.TTL {
			log.Info().
				Int64("task_id", s.TaskID).
				Dur("ttl", s.TTL).
				Msg("TTL expired, terminating worker")
			s.endChild(proc)
			final = models.StatusTerminated
			break
		}

		if res, ok := proc.Poll(); ok {
			switch {
			case res.Code == 0:
				final = models.StatusComplete
			case res.OOM:
				final = models.StatusOOMKilled
			default:
				final = models.StatusFailed
			}
			log.Info().
				Int64("task_id", s.TaskID).
				Int("exit_code", res.Code).
				Bool("oom", res.OOM).
				Str("status", string(final)).
				Msg("Worker exited")
			break
		}

		time.Sleep(interval)
	}

	return final, s.finish(ctx, final)
}

// endChild terminates the worker, escalating to SIGKILL when it ignores
// SIGTERM past the grace period.
func (s *Supervisor) endChild(proc *Process) {
	if err := proc.Terminate(); err != nil {
		log.Warn().Err(err).Int64("task_id", s.TaskID).Msg("Could not signal worker")
	}

	timer := time.NewTimer(terminateGrace)
	defer timer.Stop()
	select {
	case <-proc.done:
	case <-timer.C:
		if err := proc.Kill(); err != nil {
			log.Warn().Err(err).Int64("task_id", s.TaskID).Msg("Could not kill worker")
		}
		proc.Wait()
	}
}

// finish writes the terminal state: task status, run record, signal reset,
// backend cleanup. The run record is always Completed from the supervisor's
// point of view; OOMKilled on the run record is the housekeeper's verdict.
// A failed store write must not skip the later steps: in the local topology
// no housekeeper exists to close a run record this function left open.
func (s *Supervisor) finish(ctx context.Context, final models.TaskStatus) error {
	now := time.Now().UTC()
	recordExit(final)

	firstErr := s.Store.SetTaskStatus(ctx, s.TaskID, final)
	if firstErr != nil {
		log.Error().Err(firstErr).Int64("task_id", s.TaskID).Msg("Could not write terminal task status")
	}
	if err := s.Store.FinishRunByWorker(ctx, s.TaskID, s.WorkerID, models.RunStatusCompleted, now); err != nil {
		log.Error().Err(err).Int64("task_id", s.TaskID).Msg("Could not close run record")
		if firstErr == nil {
			firstErr = err
		}
	}

	if err := s.Signal.Clear(ctx); err != nil {
		log.Warn().Err(err).Int64("task_id", s.TaskID).Msg("Could not clear stop signal")
	}
	if s.Cleanup != nil {
		s.Cleanup(ctx)
	}
	return firstErr
}
