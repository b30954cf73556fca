package dto

import (
	"time"

	"github.com/erp/platform/internal/domain/module"
)

// ModuleURI binds the path parameters of company module routes
type ModuleURI struct {
	CompanyID string `uri:"company_id" binding:"required,uuid"`
	ModuleID  string `uri:"module_id" binding:"required,max=64"`
}

// CompanyURI binds the company path parameter
type CompanyURI struct {
	CompanyID string `uri:"company_id" binding:"required,uuid"`
}

// UpdateSettingsRequest replaces the settings bag of a module
type UpdateSettingsRequest struct {
	Settings map[string]any `json:"settings" binding:"required"`
}

// ModuleResponse is a catalog entry
type ModuleResponse struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Dependencies []string `json:"dependencies"`
	RequiredPlan string   `json:"required_plan"`
	TrialDays    int      `json:"trial_days"`
}

// ToModuleResponse converts a manifest
func ToModuleResponse(m module.Manifest) ModuleResponse {
	return ModuleResponse{
		ID:           m.ID,
		Name:         m.Name,
		Description:  m.Description,
		Dependencies: m.Dependencies,
		RequiredPlan: string(m.RequiredPlan),
		TrialDays:    m.TrialDays,
	}
}

// ActivationResponse is the lifecycle view of one module for a company
type ActivationResponse struct {
	CompanyID     string         `json:"company_id"`
	ModuleID      string         `json:"module_id"`
	State         string         `json:"state"`
	IsActive      bool           `json:"is_active"`
	ActivatedAt   *time.Time     `json:"activated_at,omitempty"`
	DeactivatedAt *time.Time     `json:"deactivated_at,omitempty"`
	Settings      map[string]any `json:"settings"`
}

// ToActivationResponse converts an activation
func ToActivationResponse(a *module.Activation) ActivationResponse {
	settings := map[string]any(a.Settings)
	if settings == nil {
		settings = map[string]any{}
	}
	return ActivationResponse{
		CompanyID:     a.CompanyID.String(),
		ModuleID:      a.ModuleID,
		State:         string(a.State),
		IsActive:      a.IsActive(),
		ActivatedAt:   a.ActivatedAt,
		DeactivatedAt: a.DeactivatedAt,
		Settings:      settings,
	}
}
