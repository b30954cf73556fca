package module

import (
	"context"

	"github.com/erp/platform/internal/domain/event"
	"github.com/erp/platform/internal/domain/module"
	"github.com/google/uuid"
)

// ActiveModuleReader is the read side of the activation store
type ActiveModuleReader interface {
	GetActiveModules(ctx context.Context, companyID uuid.UUID) (module.Set, error)
}

// TenantDispatcher emits events restricted to the modules a company has switched on.
// Core handlers always run.
type TenantDispatcher struct {
	store ActiveModuleReader
	bus   event.Bus
}

// NewTenantDispatcher creates a dispatcher
func NewTenantDispatcher(store ActiveModuleReader, bus event.Bus) *TenantDispatcher {
	return &TenantDispatcher{store: store, bus: bus}
}

// Dispatch emits evt on behalf of companyID
func (d *TenantDispatcher) Dispatch(ctx context.Context, companyID uuid.UUID, evt event.Event) error {
	active, err := d.store.GetActiveModules(ctx, companyID)
	if err != nil {
		return err
	}
	return d.bus.Emit(ctx, evt, event.WithActiveSet(active))
}
