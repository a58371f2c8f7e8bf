package runcmd

import (
	"context"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/uniframe-io/uniframe-backend/internal/config"
	"github.com/uniframe-io/uniframe-backend/internal/matching"
	"github.com/uniframe-io/uniframe-backend/internal/store"
)

var batchCmd = &cobra.Command{
	Use:   "batch <task-id> <owner-id>",
	Short: "Runs one batch matching job to completion",
	Long: `The batch worker body: loads both datasets, matches the full to-match
corpus against the ground truth, persists the result artifact and exits.
A zero exit tells the supervisor the run completed.`,
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

		runner := &matching.BatchRunner{
			Store:    store.NewPostgresStore(db),
			Datasets: mustDatasets(conf),
		}
		if err := runner.Execute(context.Background(), taskID); err != nil {
			log.Fatal().Err(err).Int64("task_id", taskID).Msg("Batch run failed")
		}
	},
}
