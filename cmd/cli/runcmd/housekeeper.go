package runcmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/uniframe-io/uniframe-backend/internal/config"
	"github.com/uniframe-io/uniframe-backend/internal/housekeeper"
	"github.com/uniframe-io/uniframe-backend/internal/store"
)

var housekeeperCmd = &cobra.Command{
	Use:   "housekeeper",
	Short: "Runs the periodic state reconciler",
	Long: `The housekeeper compares every run record still marked Running against the
real pods in the cluster and repairs records whose supervisor died with its
pod. Kubernetes topology only.`,
	Run: func(cmd *cobra.Command, args []string) {
		log.Info().Msg("Running housekeeper process")
		conf := config.FromCobraCmd(cmd)

		if !conf.InKubernetes() {
			log.Fatal().Msg("The housekeeper only runs in the kubernetes topology")
		}

		db := mustDatabase(conf)
		defer func() {
			if err := db.Close(); err != nil {
				log.Error().Err(err).Msg("Could not close db cleanly on shutdown")
			}
		}()

		hk := &housekeeper.Housekeeper{
			Store:     store.NewPostgresStore(db),
			Client:    mustKubeClient(),
			Namespace: conf.Compute.Namespace,
		}
		c, err := hk.Start(conf.Compute.HousekeepPeriod)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not start housekeeper")
		}
		defer c.Stop()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		log.Info().Msgf("Received signal %v, shutting down...", <-sigCh)
	},
}
