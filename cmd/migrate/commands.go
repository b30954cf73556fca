package main

import (
	"database/sql"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/erp/platform/internal/infrastructure/config"
	"github.com/erp/platform/internal/infrastructure/logger"
	"github.com/erp/platform/internal/infrastructure/migration"
	"github.com/erp/platform/migrations"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const defaultCreateDir = "migrations"

type options struct {
	path     string
	logLevel string
}

func (o *options) logger() (*zap.Logger, error) {
	return logger.New(&logger.Config{
		Level:      o.logLevel,
		Format:     "console",
		Output:     "stderr",
		TimeFormat: "2006-01-02 15:04:05",
	})
}

func (o *options) source() fs.FS {
	if o.path == "" {
		return migrations.FS
	}
	return os.DirFS(o.path)
}

// withMigrator opens the configured database, runs fn and releases everything
func (o *options) withMigrator(fn func(m *migration.Migrator, log *zap.Logger) error) error {
	log, err := o.logger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if cfg.Database.Driver != "postgres" {
		return fmt.Errorf("migrations target postgres, database.driver is %q", cfg.Database.Driver)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	m, err := migration.New(db, o.source(), log)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Warn("Failed to close migrator", zap.Error(err))
		}
	}()
	return fn(m, log)
}

func upCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withMigrator(func(m *migration.Migrator, _ *zap.Logger) error {
				state, err := m.Up()
				if err != nil {
					return err
				}
				return writeState(cmd.OutOrStdout(), state)
			})
		},
	}
}

func downCmd(opts *options) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back every migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("down drops the activation store; pass --yes to confirm")
			}
			return opts.withMigrator(func(m *migration.Migrator, _ *zap.Logger) error {
				state, err := m.Down()
				if err != nil {
					return err
				}
				return writeState(cmd.OutOrStdout(), state)
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm rolling back every migration")
	return cmd
}

func stepCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "step <n>",
		Short: "Apply n migrations, or roll back when n is negative",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil || n == 0 {
				return fmt.Errorf("invalid step count %q", args[0])
			}
			return opts.withMigrator(func(m *migration.Migrator, _ *zap.Logger) error {
				state, err := m.Steps(n)
				if err != nil {
					return err
				}
				return writeState(cmd.OutOrStdout(), state)
			})
		},
	}
}

func versionCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the applied migration version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withMigrator(func(m *migration.Migrator, _ *zap.Logger) error {
				state, err := m.Version()
				if err != nil {
					return err
				}
				return writeState(cmd.OutOrStdout(), state)
			})
		},
	}
}

func forceCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "force <version>",
		Short: "Mark version as applied and clean without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version %q", args[0])
			}
			return opts.withMigrator(func(m *migration.Migrator, _ *zap.Logger) error {
				if err := m.Force(version); err != nil {
					return err
				}
				state, err := m.Version()
				if err != nil {
					return err
				}
				return writeState(cmd.OutOrStdout(), state)
			})
		},
	}
}

func createCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "create <name> [description]",
		Short: "Write an empty up/down migration pair",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := opts.path
			if dir == "" {
				dir = defaultCreateDir
			}
			description := ""
			if len(args) == 2 {
				description = args[1]
			}
			mf, err := migration.CreateMigration(dir, args[0], description, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), mf.UpPath)
			fmt.Fprintln(cmd.OutOrStdout(), mf.DownPath)
			return nil
		},
	}
}

func listCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			names, err := migration.ListMigrations(opts.source())
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func writeState(w io.Writer, state migration.State) error {
	switch {
	case state.Version == 0:
		_, err := fmt.Fprintln(w, "no migrations applied")
		return err
	case state.Dirty:
		_, err := fmt.Fprintf(w, "version %d (dirty, fix the schema then run force %d)\n", state.Version, state.Version)
		return err
	default:
		_, err := fmt.Fprintf(w, "version %d\n", state.Version)
		return err
	}
}
