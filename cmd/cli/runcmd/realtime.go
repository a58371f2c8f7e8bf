package runcmd

import (
	"context"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/uniframe-io/uniframe-backend/internal/api"
	"github.com/uniframe-io/uniframe-backend/internal/config"
	"github.com/uniframe-io/uniframe-backend/internal/matching"
	"github.com/uniframe-io/uniframe-backend/internal/models"
	"github.com/uniframe-io/uniframe-backend/internal/store"
)

var realtimeCmd = &cobra.Command{
	Use:   "realtime <task-id> <owner-id>",
	Short: "Runs a resident realtime matching worker",
	Long: `The realtime worker body: fits the ground-truth index, reports the task
ready and serves matching queries over HTTP until it is terminated.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		conf := config.FromCobraCmd(cmd)

		taskID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			log.Fatal().Str("arg", args[0]).Msg("Invalid task id argument")
		}

		db := mustDatabase(conf)
		defer func() {
			if err := db.Close(); err != nil {
				log.Error().Err(err).Msg("Could not close db cleanly on shutdown")
			}
		}()
		taskStore := store.NewPostgresStore(db)

		matcher := &matching.RealtimeMatcher{
			Store:    taskStore,
			Datasets: mustDatasets(conf),
			TaskID:   taskID,
		}

		ctx := context.Background()
		if err := matcher.Warm(ctx); err != nil {
			log.Fatal().Err(err).Int64("task_id", taskID).Msg("Could not fit ground-truth index")
		}
		if err := taskStore.SetTaskStatus(ctx, taskID, models.StatusReady); err != nil {
			log.Fatal().Err(err).Int64("task_id", taskID).Msg("Could not report task ready")
		}
		log.Info().Int64("task_id", taskID).Msg("Realtime worker ready")

		server := api.NewRealtimeServer(taskStore, matcher)
		if err := server.Listen(conf.Compute.RealtimePort); err != nil {
			log.Fatal().Err(err).Int64("task_id", taskID).Msg("Realtime worker stopped")
		}
	},
}
