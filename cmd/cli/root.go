package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/uniframe-io/uniframe-backend/cmd/cli/runcmd"
)

var RootCmd = &cobra.Command{
	Use:   "uniframe",
	Short: "UniFrame - a name matching job orchestrator",
	Long: `UniFrame runs name matching jobs: batch runs that match a full dataset
once, and resident realtime workers that answer matching queries over HTTP.

The api process accepts start/stop requests, workers execute the matching and
the housekeeper repairs state for workers that died out of band.`,
}

func init() {
	RootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	RootCmd.AddCommand(runcmd.Command)
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%v", err)
		os.Exit(1)
	}
}
