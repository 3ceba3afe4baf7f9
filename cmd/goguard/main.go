// Command goguard runs the goGuard HTTP server and its admin commands.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "goguard",
		Short:         "Token, intrusion detection and audit service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv(envPrefix+"CONFIG"), "YAML config file (env GOGUARD_CONFIG)")

	root.AddCommand(
		newServeCmd(&configPath),
		newBannedCmd(&configPath),
		newUnbanCmd(&configPath),
		newRevokeUserCmd(&configPath),
		newPurgeCmd(&configPath),
	)
	return root
}
