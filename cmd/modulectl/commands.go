package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	appmodule "github.com/erp/platform/internal/application/module"
	"github.com/erp/platform/internal/domain/module"
	"github.com/erp/platform/internal/infrastructure/auth"
	"github.com/erp/platform/internal/infrastructure/catalog"
	"github.com/erp/platform/internal/infrastructure/config"
	"github.com/erp/platform/internal/infrastructure/eventbus"
	"github.com/erp/platform/internal/infrastructure/logger"
	"github.com/erp/platform/internal/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type globalOptions struct {
	catalogPath string
	logLevel    string
}

func (o *globalOptions) logger() *zap.Logger {
	log, err := logger.New(&logger.Config{
		Level:      o.logLevel,
		Format:     "console",
		Output:     "stderr",
		TimeFormat: "15:04:05",
	})
	if err != nil {
		return zap.NewNop()
	}
	return log
}

func (o *globalOptions) registry() (*module.Registry, error) {
	return catalog.Load(o.catalogPath)
}

// session is an activation service backed by the configured database
type session struct {
	service *appmodule.ActivationService
	close   func()
}

func (o *globalOptions) openSession() (*session, error) {
	registry, err := o.registry()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	log := o.logger()
	db, err := persistence.NewDatabase(&cfg.Database, log, persistence.Options{LogLevel: o.logLevel})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	bus := eventbus.New(log, eventbus.WithAsyncTimeout(cfg.Event.HandlerTimeout))
	service := appmodule.NewActivationService(registry, persistence.NewGormActivationRepository(db.DB), bus, log,
		appmodule.WithFlushTimeout(cfg.Event.FlushTimeout))
	return &session{
		service: service,
		close: func() {
			_ = db.Close()
			_ = log.Sync()
		},
	}, nil
}

func modulesCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modules",
		Short: "Inspect the module catalog",
	}

	var plan string
	list := &cobra.Command{
		Use:   "list",
		Short: "List every module in the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tier := module.Plan(plan)
			if plan != "" && !tier.IsValid() {
				return fmt.Errorf("invalid plan %q: want free, basic, pro or enterprise", plan)
			}
			registry, err := opts.registry()
			if err != nil {
				return err
			}
			return writeCatalog(cmd.OutOrStdout(), registry.GetAllModules(), tier)
		},
	}
	list.Flags().StringVar(&plan, "plan", "", "Show which modules a company on this plan may use")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "graph <module>",
		Short: "Show the order in which a module and its dependencies must be activated",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := opts.registry()
			if err != nil {
				return err
			}
			order, err := registry.ActivationOrder(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, strings.Join(order, " -> "))
			if dependents := registry.Dependents(args[0]); len(dependents) > 0 {
				fmt.Fprintf(out, "required by: %s\n", strings.Join(dependents, ", "))
			}
			return nil
		},
	})

	return cmd
}

func statusCmd(opts *globalOptions) *cobra.Command {
	var state string

	cmd := &cobra.Command{
		Use:   "status <company-id>",
		Short: "Show the lifecycle of every module for a company",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			companyID, err := parseCompany(args[0])
			if err != nil {
				return err
			}
			lifecycle := module.Lifecycle(state)
			if state != "" && !lifecycle.IsValid() {
				return fmt.Errorf("invalid state %q: want active, inactive or never_activated", state)
			}
			s, err := opts.openSession()
			if err != nil {
				return err
			}
			defer s.close()

			activations, err := s.service.ListActivations(cmd.Context(), companyID)
			if err != nil {
				return err
			}
			return writeActivations(cmd.OutOrStdout(), filterByState(activations, lifecycle))
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "Only show modules in this lifecycle state")
	return cmd
}

// filterByState keeps the activations in state; the empty state keeps all of them
func filterByState(activations []module.Activation, state module.Lifecycle) []module.Activation {
	if state == "" {
		return activations
	}
	out := make([]module.Activation, 0, len(activations))
	for _, a := range activations {
		if a.State == state {
			out = append(out, a)
		}
	}
	return out
}

func activateCmd(opts *globalOptions) *cobra.Command {
	var withDeps bool

	cmd := &cobra.Command{
		Use:   "activate <company-id> <module>",
		Short: "Activate a module for a company",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			companyID, err := parseCompany(args[0])
			if err != nil {
				return err
			}
			s, err := opts.openSession()
			if err != nil {
				return err
			}
			defer s.close()

			targets := []string{args[1]}
			if withDeps {
				if targets, err = s.service.Registry().ActivationOrder(args[1]); err != nil {
					return err
				}
			}
			return activateAll(cmd.Context(), cmd.OutOrStdout(), s.service, companyID, targets)
		},
	}
	cmd.Flags().BoolVar(&withDeps, "with-deps", false, "Activate missing dependencies first")
	return cmd
}

// activateAll activates targets in order, skipping the ones already active
func activateAll(ctx context.Context, out io.Writer, service *appmodule.ActivationService, companyID uuid.UUID, targets []string) error {
	for _, moduleID := range targets {
		active, err := service.IsModuleActive(ctx, companyID, moduleID)
		if err != nil {
			return err
		}
		if active {
			fmt.Fprintf(out, "%s already active\n", moduleID)
			continue
		}
		if _, err := service.Activate(ctx, companyID, moduleID); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s activated\n", moduleID)
	}
	return nil
}

func deactivateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <company-id> <module>",
		Short: "Deactivate a module for a company; settings are kept",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			companyID, err := parseCompany(args[0])
			if err != nil {
				return err
			}
			s, err := opts.openSession()
			if err != nil {
				return err
			}
			defer s.close()

			activation, err := s.service.Deactivate(cmd.Context(), companyID, args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", activation.ModuleID, activation.State)
			return nil
		},
	}
}

func tokenCmd(_ *globalOptions) *cobra.Command {
	var (
		userID string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token <company-id>",
		Short: "Mint a bearer token carrying the company claim",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			companyID, err := parseCompany(args[0])
			if err != nil {
				return err
			}
			user := uuid.Nil
			if userID != "" {
				if user, err = uuid.Parse(userID); err != nil {
					return fmt.Errorf("invalid user id %q: %w", userID, err)
				}
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			token, err := auth.NewJWTService(cfg.JWT).GenerateToken(companyID, user, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User id claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	return cmd
}

func parseCompany(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid company id %q: %w", raw, err)
	}
	return id, nil
}

// writeCatalog prints the manifests. With a plan set it adds an AVAILABLE column
// telling whether a company on that plan may use each module.
func writeCatalog(w io.Writer, manifests []module.Manifest, plan module.Plan) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	header := "ID\tNAME\tPLAN\tDEPENDENCIES"
	if plan != "" {
		header += "\tAVAILABLE"
	}
	fmt.Fprintln(tw, header)
	for _, m := range manifests {
		deps := "-"
		if len(m.Dependencies) > 0 {
			deps = strings.Join(m.Dependencies, ",")
		}
		row := fmt.Sprintf("%s\t%s\t%s\t%s", m.ID, m.Name, m.RequiredPlan, deps)
		if plan != "" {
			available := "no"
			if plan.Allows(m.RequiredPlan) {
				available = "yes"
			}
			row += "\t" + available
		}
		fmt.Fprintln(tw, row)
	}
	return tw.Flush()
}

func writeActivations(w io.Writer, activations []module.Activation) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODULE\tSTATE\tACTIVATED\tDEACTIVATED")
	for _, a := range activations {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", a.ModuleID, a.State, formatTime(a.ActivatedAt), formatTime(a.DeactivatedAt))
	}
	return tw.Flush()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
