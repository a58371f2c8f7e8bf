package runcmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/uniframe-io/uniframe-backend/internal/api"
	"github.com/uniframe-io/uniframe-backend/internal/config"
	"github.com/uniframe-io/uniframe-backend/internal/executor"
	"github.com/uniframe-io/uniframe-backend/internal/store"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Runs the management API process",
	Run: func(cmd *cobra.Command, args []string) {
		log.Info().Msg("Running management API process")
		conf := config.FromCobraCmd(cmd)

		db := mustDatabase(conf)
		defer func() {
			if err := db.Close(); err != nil {
				log.Error().Err(err).Msg("Could not close db cleanly on shutdown")
			}
		}()
		q := mustQueue(conf)
		defer func() {
			if err := q.Close(); err != nil {
				log.Error().Err(err).Msg("Could not close redis queue cleanly on shutdown")
			}
		}()

		var backend executor.Backend
		if conf.InKubernetes() {
			backend = executor.NewKubeBackend(mustKubeClient(), q, conf)
		} else {
			backend = &executor.LocalBackend{Queue: q}
		}

		orch := &api.Orchestrator{
			Store:   store.NewPostgresStore(db),
			Backend: backend,
			Conf:    conf,
		}
		server := api.NewServer(orch, mustDatasets(conf))

		if err := server.Listen(conf.Server.Host, conf.Server.Port); err != nil {
			log.Fatal().Err(err).Msg("Management API stopped")
		}
	},
}
