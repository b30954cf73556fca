package module

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/platform/internal/domain/shared"
	"github.com/google/uuid"
)

// Lifecycle is the activation state of a module for one company
type Lifecycle string

const (
	LifecycleNeverActivated Lifecycle = "never_activated"
	LifecycleActive         Lifecycle = "active"
	LifecycleInactive       Lifecycle = "inactive"
)

// IsValid reports whether l is a known lifecycle state
func (l Lifecycle) IsValid() bool {
	switch l {
	case LifecycleNeverActivated, LifecycleActive, LifecycleInactive:
		return true
	}
	return false
}

// Settings is the opaque per-company configuration bag of a module
type Settings map[string]any

// Clone returns a shallow copy
func (s Settings) Clone() Settings {
	c := make(Settings, len(s))
	for k, v := range s {
		c[k] = v
	}
	return c
}

// Activation is the per-company activation record of a module.
// Records are soft-disabled and never deleted, so settings survive a deactivate/activate cycle.
type Activation struct {
	ID            uuid.UUID  `json:"id"`
	CompanyID     uuid.UUID  `json:"company_id"`
	ModuleID      string     `json:"module_id"`
	State         Lifecycle  `json:"state"`
	ActivatedAt   *time.Time `json:"activated_at,omitempty"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
	Settings      Settings   `json:"settings"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// NeverActivated returns the lifecycle view of a module that has no stored record
func NeverActivated(companyID uuid.UUID, moduleID string) *Activation {
	return &Activation{
		CompanyID: companyID,
		ModuleID:  moduleID,
		State:     LifecycleNeverActivated,
		Settings:  Settings{},
	}
}

// IsActive reports whether the module is switched on
func (a *Activation) IsActive() bool {
	return a.State == LifecycleActive
}

// IsPersisted reports whether the record exists in storage
func (a *Activation) IsPersisted() bool {
	return a.ID != uuid.Nil
}

// Activate switches the module on. Existing settings are kept untouched.
func (a *Activation) Activate(now time.Time) {
	if !a.IsPersisted() {
		a.ID = uuid.New()
		a.CreatedAt = now
	}
	if a.Settings == nil {
		a.Settings = Settings{}
	}
	a.State = LifecycleActive
	a.ActivatedAt = &now
	a.DeactivatedAt = nil
	a.UpdatedAt = now
}

// Deactivate soft-disables the module
func (a *Activation) Deactivate(now time.Time) error {
	if a.State != LifecycleActive {
		return fmt.Errorf("%w: module '%s' is %s", shared.ErrInvalidState, a.ModuleID, a.State)
	}
	a.State = LifecycleInactive
	a.DeactivatedAt = &now
	a.UpdatedAt = now
	return nil
}

// ActivationRepository persists activation records keyed by (company, module)
type ActivationRepository interface {
	// FindActiveModuleIDs returns the ids of every active module for the company
	FindActiveModuleIDs(ctx context.Context, companyID uuid.UUID) ([]string, error)

	// FindByCompanyAndModule returns the record, or shared.ErrNotFound
	FindByCompanyAndModule(ctx context.Context, companyID uuid.UUID, moduleID string) (*Activation, error)

	// FindByCompany returns every stored record of the company
	FindByCompany(ctx context.Context, companyID uuid.UUID) ([]Activation, error)

	// Save inserts the record, or updates the lifecycle columns of the existing one.
	// Settings of an existing record are never overwritten by Save.
	Save(ctx context.Context, activation *Activation) error

	// UpdateSettings replaces the settings of an existing record, or returns shared.ErrNotFound
	UpdateSettings(ctx context.Context, companyID uuid.UUID, moduleID string, settings Settings) error
}
