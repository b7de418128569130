package main

import (
	"github.com/spf13/cobra"
)

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "av-proxy",
		Short:         "Caching Alpha Vantage client and proxy",
		Long:          "av-proxy caches Alpha Vantage responses per function TTL and serves them over HTTP or on the command line.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a YAML configuration file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error, disabled)")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newQueryCmd(opts))
	cmd.AddCommand(newOptionsCmd(opts))

	return cmd
}
