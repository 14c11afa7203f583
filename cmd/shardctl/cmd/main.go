package cmd

import (
	"encoding/json"
	"os"

	"shard-exchange/internal/app"
	"shard-exchange/internal/config"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "shardctl",
		Short:         "Operate the shard exchange ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(cmdMigrate, cmdIssuer, cmdBalance, cmdSweep, cmdHashKey)
	return root
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("shardctl")
		os.Exit(1)
	}
}

// build loads config from the environment and wires the app without starting the server.
func build() (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	app.ConfigureLogging(cfg)
	return app.Build(cfg)
}

func dumpJSON(c *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(c.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
