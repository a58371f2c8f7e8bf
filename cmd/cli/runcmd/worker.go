package runcmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/uniframe-io/uniframe-backend/internal/config"
	"github.com/uniframe-io/uniframe-backend/internal/models"
	"github.com/uniframe-io/uniframe-backend/internal/queue"
	"github.com/uniframe-io/uniframe-backend/internal/store"
	"github.com/uniframe-io/uniframe-backend/internal/supervisor"
)

var workerTaskType string

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Runs the local worker loop for one task type",
	Long: `The local worker consumes launch requests from the Redis queue of one task
type, forks the worker body as a subprocess and supervises it. At most one
job per task type runs at a time; the active marker enforces the cap.`,
	Run: func(cmd *cobra.Command, args []string) {
		conf := config.FromCobraCmd(cmd)

		taskType := models.TaskTypeBatch
		if workerTaskType == "realtime" {
			taskType = models.TaskTypeRealtime
		}
		log.Info().Str("type", string(taskType)).Msg("Running local worker loop")

		db := mustDatabase(conf)
		q := mustQueue(conf)
		taskStore := store.NewPostgresStore(db)

		ctx, cancel := context.WithCancel(context.Background())

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		errCh := make(chan error, 1)
		go func() {
			errCh <- q.Consume(ctx, taskType, func(msg queue.JobMessage) {
				runJob(ctx, conf, taskStore, q, msg)
			})
		}()

		defer func() {
			if err := db.Close(); err != nil {
				log.Error().Err(err).Msg("Could not close db cleanly on shutdown")
			}
			if err := q.Close(); err != nil {
				log.Error().Err(err).Msg("Could not close redis queue cleanly on shutdown")
			}
			cancel()
		}()

		select {
		case err := <-errCh:
			if err != nil {
				log.Fatal().Err(err).Msg("Worker loop ran into problems")
			}
		case sig := <-sigCh:
			log.Info().Msgf("Received signal %v, shutting down...", sig)
		}
	},
}

func init() {
	workerCmd.Flags().StringVar(&workerTaskType, "type", "batch", "task type to consume (batch or realtime)")
}

// runJob executes one launch request: forks the worker body as a subprocess
// of this binary and supervises it to its end.
func runJob(ctx context.Context, conf *config.UFConfig, taskStore store.TaskStore, q queue.Client, msg queue.JobMessage) {
	workerID := "local-" + uuid.NewString()
	log.Info().
		Int64("task_id", msg.TaskID).
		Str("worker_id", workerID).
		Strs("command", msg.Command).
		Msg("Picked up launch request")

	if err := q.MarkWorkerActive(ctx, msg.TaskType, workerID); err != nil {
		log.Error().Err(err).Int64("task_id", msg.TaskID).Msg("Could not mark worker active")
		return
	}
	defer func() {
		if err := q.ClearWorkerActive(context.Background(), msg.TaskType); err != nil {
			log.Error().Err(err).Msg("Could not clear active worker marker")
		}
	}()

	task, err := taskStore.GetTask(ctx, msg.TaskID)
	if err != nil {
		log.Error().Err(err).Int64("task_id", msg.TaskID).Msg("Launch request for unknown task")
		return
	}
	ttl, err := task.Config.TTLPolicy.Duration()
	if err != nil {
		log.Error().Err(err).Int64("task_id", msg.TaskID).Msg("Invalid TTL policy")
		return
	}

	run := &models.TaskRunRecord{
		OwnerID:  msg.OwnerID,
		TaskID:   msg.TaskID,
		WorkerID: workerID,
	}
	if err := taskStore.CreateRunRecord(ctx, run); err != nil {
		log.Error().Err(err).Int64("task_id", msg.TaskID).Msg("Could not create run record")
		return
	}
	if err := taskStore.SetTaskStatus(ctx, msg.TaskID, models.StatusLaunching); err != nil {
		log.Error().Err(err).Int64("task_id", msg.TaskID).Msg("Could not move task to launching")
		return
	}

	self, err := os.Executable()
	if err != nil {
		log.Error().Err(err).Msg("Could not resolve own executable")
		return
	}
	proc, err := supervisor.StartProcess(self, msg.Command, map[string]string{
		"TASK_ID":  formatID(msg.TaskID),
		"OWNER_ID": formatID(msg.OwnerID),
	})
	if err != nil {
		log.Error().Err(err).Int64("task_id", msg.TaskID).Msg("Could not start worker subprocess")
		if err := taskStore.SetTaskStatus(ctx, msg.TaskID, models.StatusFailed); err != nil {
			log.Error().Err(err).Int64("task_id", msg.TaskID).Msg("Could not mark task failed")
		}
		return
	}

	sup := &supervisor.Supervisor{
		Store:        taskStore,
		Signal:       q.StopSignalFor(msg.TaskID, msg.OwnerID, false),
		TaskID:       msg.TaskID,
		OwnerID:      msg.OwnerID,
		WorkerID:     workerID,
		TTL:          ttl,
		PollInterval: time.Duration(conf.Compute.PollIntervalMS) * time.Millisecond,
	}
	final, err := sup.Run(ctx, proc)
	if err != nil {
		log.Error().Err(err).Int64("task_id", msg.TaskID).Msg("Could not write terminal state")
		return
	}
	log.Info().
		Int64("task_id", msg.TaskID).
		Str("worker_id", workerID).
		Str("status", string(final)).
		Msg("Job finished")
}
