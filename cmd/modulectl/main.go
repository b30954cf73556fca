// Package main provides modulectl, the operator CLI for the module catalog and
// per-company activations.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const appName = "modulectl"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Inspect the module catalog and manage company activations",
		Long: `modulectl reads the module catalog and manages which modules are
active for a company. Catalog commands work offline; activation commands
connect to the database configured in config.toml or ERP_* variables.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.catalogPath, "catalog", "", "Module catalog file (default: embedded catalog)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		modulesCmd(opts),
		statusCmd(opts),
		activateCmd(opts),
		deactivateCmd(opts),
		tokenCmd(opts),
	)
	return cmd
}
