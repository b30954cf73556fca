package models

import (
	"encoding/json"
	"time"

	"github.com/erp/platform/internal/domain/module"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ModuleActivationModel is the persistence model for a company's module activation.
// Rows are soft-disabled through is_active and never deleted.
type ModuleActivationModel struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey"`
	CompanyID     uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:uq_company_module,priority:1"`
	ModuleID      string     `gorm:"type:varchar(64);not null;uniqueIndex:uq_company_module,priority:2"`
	IsActive      bool       `gorm:"not null;index"`
	ActivatedAt   *time.Time `gorm:"column:activated_at"`
	DeactivatedAt *time.Time `gorm:"column:deactivated_at"`
	SettingsJSON  string     `gorm:"column:settings;type:jsonb;not null"`
	CreatedAt     time.Time  `gorm:"not null"`
	UpdatedAt     time.Time  `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ModuleActivationModel) TableName() string {
	return "company_module_activations"
}

// ToDomain converts the persistence model to a domain Activation
func (m *ModuleActivationModel) ToDomain() *module.Activation {
	a := &module.Activation{
		ID:            m.ID,
		CompanyID:     m.CompanyID,
		ModuleID:      m.ModuleID,
		State:         module.LifecycleInactive,
		ActivatedAt:   m.ActivatedAt,
		DeactivatedAt: m.DeactivatedAt,
		Settings:      module.Settings{},
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	if m.IsActive {
		a.State = module.LifecycleActive
	}
	if m.SettingsJSON != "" {
		if err := json.Unmarshal([]byte(m.SettingsJSON), &a.Settings); err != nil {
			zap.L().Named("module.models").Warn("failed to parse settings JSON",
				zap.String("company_id", m.CompanyID.String()),
				zap.String("module_id", m.ModuleID),
				zap.Error(err),
			)
			a.Settings = module.Settings{}
		}
	}
	return a
}

// FromDomain populates the model from a domain Activation
func (m *ModuleActivationModel) FromDomain(a *module.Activation) error {
	settings, err := MarshalSettings(a.Settings)
	if err != nil {
		return err
	}
	m.ID = a.ID
	m.CreatedAt = a.CreatedAt
	m.UpdatedAt = a.UpdatedAt
	m.CompanyID = a.CompanyID
	m.ModuleID = a.ModuleID
	m.IsActive = a.IsActive()
	m.ActivatedAt = a.ActivatedAt
	m.DeactivatedAt = a.DeactivatedAt
	m.SettingsJSON = settings
	return nil
}

// ModuleActivationModelFromDomain creates a new model from a domain Activation
func ModuleActivationModelFromDomain(a *module.Activation) (*ModuleActivationModel, error) {
	m := &ModuleActivationModel{}
	if err := m.FromDomain(a); err != nil {
		return nil, err
	}
	return m, nil
}

// MarshalSettings encodes settings for the jsonb column. nil encodes as {}.
func MarshalSettings(s module.Settings) (string, error) {
	if s == nil {
		return "{}", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
