// Package module coordinates per-company module activation: dependency checks,
// persistence, cache invalidation and lifecycle events.
package module

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/platform/internal/domain/event"
	"github.com/erp/platform/internal/domain/module"
	"github.com/erp/platform/internal/domain/shared"
	"github.com/erp/platform/internal/infrastructure/lock"
	"github.com/erp/platform/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// TenantLocker serializes lifecycle changes of one company
type TenantLocker interface {
	Lock(ctx context.Context, companyID uuid.UUID) (release func(), err error)
}

// ActivationService is the activation store: it answers "is this module on for this company"
// and performs the guarded activate/deactivate transitions.
type ActivationService struct {
	registry *module.Registry
	repo     module.ActivationRepository
	bus      event.Bus
	locker   TenantLocker
	metrics  *telemetry.ModuleMetrics
	logger   *zap.Logger
	now      func() time.Time

	flushTimeout time.Duration
}

// ServiceOption configures an ActivationService
type ServiceOption func(*ActivationService)

// WithLocker replaces the default in-process locker
func WithLocker(l TenantLocker) ServiceOption {
	return func(s *ActivationService) {
		s.locker = l
	}
}

// WithMetrics records lifecycle outcomes on m
func WithMetrics(m *telemetry.ModuleMetrics) ServiceOption {
	return func(s *ActivationService) {
		s.metrics = m
	}
}

// WithFlushTimeout bounds the lifecycle flush. Zero waits for every handler.
func WithFlushTimeout(d time.Duration) ServiceOption {
	return func(s *ActivationService) {
		s.flushTimeout = d
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) ServiceOption {
	return func(s *ActivationService) {
		s.now = now
	}
}

// NewActivationService creates the service
func NewActivationService(
	registry *module.Registry,
	repo module.ActivationRepository,
	bus event.Bus,
	logger *zap.Logger,
	opts ...ServiceOption,
) *ActivationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ActivationService{
		registry: registry,
		repo:     repo,
		bus:      bus,
		locker:   lock.NewMemoryTenantLocker(0),
		logger:   logger.Named("module_activation"),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the module catalog the service validates against
func (s *ActivationService) Registry() *module.Registry {
	return s.registry
}

// IsModuleActive reports whether moduleID is active for the company.
// Unknown module ids are simply not active.
func (s *ActivationService) IsModuleActive(ctx context.Context, companyID uuid.UUID, moduleID string) (bool, error) {
	active, err := s.activeSet(ctx, companyID)
	if err != nil {
		return false, err
	}
	return active.Has(moduleID), nil
}

// GetActiveModules returns the set of active module ids for the company
func (s *ActivationService) GetActiveModules(ctx context.Context, companyID uuid.UUID) (module.Set, error) {
	return s.activeSet(ctx, companyID)
}

// activeSet reads through the request cache when one is installed in ctx
func (s *ActivationService) activeSet(ctx context.Context, companyID uuid.UUID) (module.Set, error) {
	cache := CacheFromContext(ctx)
	if active, ok := cache.Get(companyID); ok {
		return active, nil
	}

	ids, err := s.repo.FindActiveModuleIDs(ctx, companyID)
	if err != nil {
		return nil, &module.PersistenceError{Op: "load active modules", Err: err}
	}
	active := module.NewSet(ids...)
	cache.Set(companyID, active)
	return active, nil
}

// Activate switches moduleID on for the company once all of its dependencies are active.
// Re-activating an active module refreshes activatedAt and announces it again.
// When a sync handler fails the stored activation is returned with a *module.HandlerFailedError.
func (s *ActivationService) Activate(ctx context.Context, companyID uuid.UUID, moduleID string) (*module.Activation, error) {
	ctx, span := telemetry.StartLifecycleSpan(ctx, "activate", companyID, moduleID)
	defer span.End()

	activation, err := s.activateLocked(ctx, companyID, moduleID)
	if err != nil {
		return nil, s.fail(ctx, span, companyID, moduleID, "activate", err)
	}

	if err := s.announce(ctx, telemetry.OperationActivate, moduleID, event.ModuleActivated{
		CompanyID: companyID,
		ModuleID:  moduleID,
	}); err != nil {
		return activation, s.fail(ctx, span, companyID, moduleID, "activate",
			&module.HandlerFailedError{ModuleID: moduleID, State: activation.State, Err: err})
	}

	s.metrics.RecordLifecycle(ctx, companyID, moduleID, telemetry.OutcomeActivated)
	s.logger.Info("Module activated",
		zap.String("company_id", companyID.String()),
		zap.String("module_id", moduleID))
	telemetry.SetLifecycleOutcome(span, telemetry.OutcomeActivated, nil)
	return activation, nil
}

func (s *ActivationService) activateLocked(ctx context.Context, companyID uuid.UUID, moduleID string) (*module.Activation, error) {
	release, err := s.locker.Lock(ctx, companyID)
	if err != nil {
		return nil, err
	}
	defer release()

	cache := CacheFromContext(ctx)
	cache.Invalidate(companyID)

	if _, ok := s.registry.GetModule(moduleID); !ok {
		return nil, &module.UnknownModuleError{ModuleID: moduleID}
	}

	active, err := s.activeSet(ctx, companyID)
	if err != nil {
		return nil, err
	}
	check, _ := s.registry.AreDependenciesMet(moduleID, active)
	if !check.Met {
		return nil, &module.DependencyNotMetError{ModuleID: moduleID, Missing: check.Missing}
	}

	activation, err := s.findOrNeverActivated(ctx, companyID, moduleID)
	if err != nil {
		return nil, err
	}
	activation.Activate(s.now())
	if err := s.repo.Save(ctx, activation); err != nil {
		return nil, &module.PersistenceError{Op: "save activation", Err: err}
	}

	cache.Invalidate(companyID)
	return activation, nil
}

// Deactivate soft-disables moduleID for the company. It fails while any active module
// depends on it. Deactivating a module that is not active changes nothing and emits nothing.
func (s *ActivationService) Deactivate(ctx context.Context, companyID uuid.UUID, moduleID string) (*module.Activation, error) {
	ctx, span := telemetry.StartLifecycleSpan(ctx, "deactivate", companyID, moduleID)
	defer span.End()

	activation, changed, err := s.deactivateLocked(ctx, companyID, moduleID)
	if err != nil {
		return nil, s.fail(ctx, span, companyID, moduleID, "deactivate", err)
	}
	if !changed {
		telemetry.SetLifecycleOutcome(span, telemetry.OutcomeUnchanged, nil)
		return activation, nil
	}

	s.bus.RemoveModule(moduleID)
	if err := s.announce(ctx, telemetry.OperationDeactivate, moduleID, event.ModuleDeactivated{
		CompanyID: companyID,
		ModuleID:  moduleID,
	}); err != nil {
		return activation, s.fail(ctx, span, companyID, moduleID, "deactivate",
			&module.HandlerFailedError{ModuleID: moduleID, State: activation.State, Err: err})
	}

	s.metrics.RecordLifecycle(ctx, companyID, moduleID, telemetry.OutcomeDeactivated)
	s.logger.Info("Module deactivated",
		zap.String("company_id", companyID.String()),
		zap.String("module_id", moduleID))
	telemetry.SetLifecycleOutcome(span, telemetry.OutcomeDeactivated, nil)
	return activation, nil
}

func (s *ActivationService) deactivateLocked(ctx context.Context, companyID uuid.UUID, moduleID string) (*module.Activation, bool, error) {
	release, err := s.locker.Lock(ctx, companyID)
	if err != nil {
		return nil, false, err
	}
	defer release()

	cache := CacheFromContext(ctx)
	cache.Invalidate(companyID)

	if _, ok := s.registry.GetModule(moduleID); !ok {
		return nil, false, &module.UnknownModuleError{ModuleID: moduleID}
	}

	active, err := s.activeSet(ctx, companyID)
	if err != nil {
		return nil, false, err
	}
	blockers := make([]string, 0)
	for _, id := range s.registry.Dependents(moduleID) {
		if active.Has(id) {
			blockers = append(blockers, id)
		}
	}
	if len(blockers) > 0 {
		return nil, false, &module.DependentModuleExistsError{ModuleID: moduleID, Dependents: blockers}
	}

	activation, err := s.findOrNeverActivated(ctx, companyID, moduleID)
	if err != nil {
		return nil, false, err
	}
	if err := activation.Deactivate(s.now()); err != nil {
		if errors.Is(err, shared.ErrInvalidState) {
			return activation, false, nil
		}
		return nil, false, err
	}
	if err := s.repo.Save(ctx, activation); err != nil {
		return nil, false, &module.PersistenceError{Op: "save activation", Err: err}
	}

	cache.Invalidate(companyID)
	return activation, true, nil
}

// announce emits a lifecycle event and drains the deferred queue before returning.
// A failing sync handler is returned; async failures only show up in the logs.
// The drain runs detached from ctx cancellation: the queue may hold tasks queued by
// other callers, and the transition is already committed.
func (s *ActivationService) announce(ctx context.Context, operation, moduleID string, evt event.Event) error {
	var emitErr error
	telemetry.WithProfilingLabels(ctx, telemetry.ModuleOperationLabels(operation, moduleID), func(c context.Context) {
		c = context.WithoutCancel(c)
		if s.flushTimeout > 0 {
			var cancel context.CancelFunc
			c, cancel = context.WithTimeout(c, s.flushTimeout)
			defer cancel()
		}
		emitErr = s.bus.Emit(c, evt)
		stats := s.bus.Flush(c)
		if stats.Failed > 0 {
			s.logger.Warn("Lifecycle event handlers failed",
				zap.String("event_name", evt.EventName().String()),
				zap.Int("failed", stats.Failed),
				zap.Int("total", stats.Total))
		}
	})
	if emitErr != nil {
		return fmt.Errorf("%s handler failed: %w", evt.EventName(), emitErr)
	}
	return nil
}

// fail records the outcome of a rejected or failed transition and returns err unchanged
func (s *ActivationService) fail(ctx context.Context, span trace.Span, companyID uuid.UUID, moduleID, op string, err error) error {
	outcome := telemetry.OutcomeFailed
	if isRejection(err) {
		outcome = telemetry.OutcomeRejected
	}
	s.metrics.RecordLifecycle(ctx, companyID, moduleID, outcome)
	telemetry.SetLifecycleOutcome(span, outcome, err)

	fields := []zap.Field{
		zap.String("company_id", companyID.String()),
		zap.String("module_id", moduleID),
		zap.String("operation", op),
		zap.Error(err),
	}
	if outcome == telemetry.OutcomeRejected {
		s.logger.Info("Module lifecycle change rejected", fields...)
	} else {
		s.logger.Error("Module lifecycle change failed", fields...)
	}
	return err
}

func isRejection(err error) bool {
	return errors.Is(err, module.ErrUnknownModule) ||
		errors.Is(err, module.ErrDependencyNotMet) ||
		errors.Is(err, module.ErrDependentModuleExists)
}

func (s *ActivationService) findOrNeverActivated(ctx context.Context, companyID uuid.UUID, moduleID string) (*module.Activation, error) {
	activation, err := s.repo.FindByCompanyAndModule(ctx, companyID, moduleID)
	if errors.Is(err, shared.ErrNotFound) {
		return module.NeverActivated(companyID, moduleID), nil
	}
	if err != nil {
		return nil, &module.PersistenceError{Op: "load activation", Err: err}
	}
	return activation, nil
}

// GetActivation returns the lifecycle view of one module for the company
func (s *ActivationService) GetActivation(ctx context.Context, companyID uuid.UUID, moduleID string) (*module.Activation, error) {
	if _, ok := s.registry.GetModule(moduleID); !ok {
		return nil, &module.UnknownModuleError{ModuleID: moduleID}
	}
	return s.findOrNeverActivated(ctx, companyID, moduleID)
}

// ListActivations returns one lifecycle view per catalog module, in catalog order.
// Stored rows for modules no longer in the catalog are skipped.
func (s *ActivationService) ListActivations(ctx context.Context, companyID uuid.UUID) ([]module.Activation, error) {
	stored, err := s.repo.FindByCompany(ctx, companyID)
	if err != nil {
		return nil, &module.PersistenceError{Op: "list activations", Err: err}
	}
	byModule := make(map[string]module.Activation, len(stored))
	for _, a := range stored {
		byModule[a.ModuleID] = a
	}

	manifests := s.registry.GetAllModules()
	out := make([]module.Activation, 0, len(manifests))
	for _, m := range manifests {
		if a, ok := byModule[m.ID]; ok {
			out = append(out, a)
			continue
		}
		out = append(out, *module.NeverActivated(companyID, m.ID))
	}
	return out, nil
}

// UpdateSettings replaces the settings of an activated (or soft-disabled) module.
// A module that was never activated has no record to update and yields shared.ErrNotFound.
func (s *ActivationService) UpdateSettings(ctx context.Context, companyID uuid.UUID, moduleID string, settings module.Settings) (*module.Activation, error) {
	if _, ok := s.registry.GetModule(moduleID); !ok {
		return nil, &module.UnknownModuleError{ModuleID: moduleID}
	}
	if settings == nil {
		settings = module.Settings{}
	}

	err := s.repo.UpdateSettings(ctx, companyID, moduleID, settings)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, shared.ErrNotFound.WithMessage(fmt.Sprintf("module '%s' was never activated", moduleID))
	}
	if err != nil {
		return nil, &module.PersistenceError{Op: "update settings", Err: err}
	}

	s.logger.Info("Module settings updated",
		zap.String("company_id", companyID.String()),
		zap.String("module_id", moduleID),
		zap.Int("keys", len(settings)))
	return s.findOrNeverActivated(ctx, companyID, moduleID)
}
