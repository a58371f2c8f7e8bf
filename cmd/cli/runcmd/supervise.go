package runcmd

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/uniframe-io/uniframe-backend/internal/config"
	"github.com/uniframe-io/uniframe-backend/internal/executor"
	"github.com/uniframe-io/uniframe-backend/internal/models"
	"github.com/uniframe-io/uniframe-backend/internal/store"
	"github.com/uniframe-io/uniframe-backend/internal/supervisor"
)

var superviseCmd = &cobra.Command{
	Use:   "supervise <task-id> <owner-id> -- <worker command>",
	Short: "Supervises one worker process inside its pod",
	Long: `The pod entrypoint in the Kubernetes topology: forks the worker body given
after the -- separator, then polls for stop signals, TTL expiry and the
child's exit, and writes the outcome back.`,
	Args: cobra.MinimumNArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		conf := config.FromCobraCmd(cmd)

		taskID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			log.Fatal().Str("arg", args[0]).Msg("Invalid task id argument")
		}
		ownerID, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			log.Fatal().Str("arg", args[1]).Msg("Invalid owner id argument")
		}
		child := args[2:]

		// the pod name doubles as the run record's worker id
		workerID := os.Getenv("POD_NAME")
		if workerID == "" {
			log.Fatal().Msg("POD_NAME is not set")
		}

		db := mustDatabase(conf)
		q := mustQueue(conf)
		taskStore := store.NewPostgresStore(db)
		ctx := context.Background()

		task, err := taskStore.GetTask(ctx, taskID)
		if err != nil {
			log.Fatal().Err(err).Int64("task_id", taskID).Msg("Could not load task")
		}
		ttl, err := task.Config.TTLPolicy.Duration()
		if err != nil {
			log.Fatal().Err(err).Int64("task_id", taskID).Msg("Invalid TTL policy")
		}

		if err := taskStore.SetTaskStatus(ctx, taskID, models.StatusLaunching); err != nil {
			log.Fatal().Err(err).Int64("task_id", taskID).Msg("Could not move task to launching")
		}

		proc, err := supervisor.StartProcess(child[0], child[1:], map[string]string{
			"TASK_ID":  formatID(taskID),
			"OWNER_ID": formatID(ownerID),
		})
		if err != nil {
			if serr := taskStore.SetTaskStatus(ctx, taskID, models.StatusFailed); serr != nil {
				log.Error().Err(serr).Int64("task_id", taskID).Msg("Could not mark task failed")
			}
			log.Fatal().Err(err).Int64("task_id", taskID).Msg("Could not start worker process")
		}

		backend := executor.NewKubeBackend(mustKubeClient(), q, conf)
		sup := &supervisor.Supervisor{
			Store:        taskStore,
			Signal:       q.StopSignalFor(taskID, ownerID, true),
			TaskID:       taskID,
			OwnerID:      ownerID,
			WorkerID:     workerID,
			TTL:          ttl,
			PollInterval: time.Duration(conf.Compute.PollIntervalMS) * time.Millisecond,
			Cleanup: func(ctx context.Context) {
				// the pod ends with this process; only the companion service
				// needs explicit teardown
				backend.DeleteWorkerResources(ctx, task, "")
			},
		}

		final, err := sup.Run(ctx, proc)
		if err != nil {
			log.Fatal().Err(err).Int64("task_id", taskID).Msg("Could not write terminal state")
		}
		log.Info().
			Int64("task_id", taskID).
			Str("worker_id", workerID).
			Str("status", string(final)).
			Msg("Supervision finished")
	},
}
