// Package main provides migrate, which applies and scaffolds the SQL migrations
// of the activation store.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply and create activation store migrations",
		Long: `migrate applies the embedded migrations, or those in --path, to the
PostgreSQL database configured in config.toml or ERP_* variables.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.path, "path", "", "Migrations directory (default: embedded set; create writes to ./migrations)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		upCmd(opts),
		downCmd(opts),
		stepCmd(opts),
		versionCmd(opts),
		forceCmd(opts),
		createCmd(opts),
		listCmd(opts),
	)
	return cmd
}
