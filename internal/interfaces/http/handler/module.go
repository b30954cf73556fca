package handler

import (
	"context"

	"github.com/erp/platform/internal/domain/module"
	"github.com/erp/platform/internal/interfaces/http/dto"
	"github.com/erp/platform/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ModuleService is the activation store surface used by the admin routes
type ModuleService interface {
	Registry() *module.Registry
	Activate(ctx context.Context, companyID uuid.UUID, moduleID string) (*module.Activation, error)
	Deactivate(ctx context.Context, companyID uuid.UUID, moduleID string) (*module.Activation, error)
	ListActivations(ctx context.Context, companyID uuid.UUID) ([]module.Activation, error)
	UpdateSettings(ctx context.Context, companyID uuid.UUID, moduleID string, settings module.Settings) (*module.Activation, error)
}

// ModuleHandler serves the module catalog and per-company activation routes
type ModuleHandler struct {
	BaseHandler
	service ModuleService
}

// NewModuleHandler creates a new ModuleHandler
func NewModuleHandler(service ModuleService) *ModuleHandler {
	return &ModuleHandler{service: service}
}

// ListModules returns the catalog
// GET /api/v1/modules
func (h *ModuleHandler) ListModules(c *gin.Context) {
	manifests := h.service.Registry().GetAllModules()
	out := make([]dto.ModuleResponse, 0, len(manifests))
	for _, m := range manifests {
		out = append(out, dto.ToModuleResponse(m))
	}
	h.Success(c, out)
}

// ListActivations returns the lifecycle of every catalog module for the company
// GET /api/v1/companies/:company_id/modules
func (h *ModuleHandler) ListActivations(c *gin.Context) {
	companyID, ok := h.company(c)
	if !ok {
		return
	}

	activations, err := h.service.ListActivations(c.Request.Context(), companyID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	out := make([]dto.ActivationResponse, 0, len(activations))
	for i := range activations {
		out = append(out, dto.ToActivationResponse(&activations[i]))
	}
	h.Success(c, out)
}

// Activate switches a module on
// POST /api/v1/companies/:company_id/modules/:module_id/activate
func (h *ModuleHandler) Activate(c *gin.Context) {
	companyID, moduleID, ok := h.moduleURI(c)
	if !ok {
		return
	}

	activation, err := h.service.Activate(c.Request.Context(), companyID, moduleID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToActivationResponse(activation))
}

// Deactivate soft-disables a module
// POST /api/v1/companies/:company_id/modules/:module_id/deactivate
func (h *ModuleHandler) Deactivate(c *gin.Context) {
	companyID, moduleID, ok := h.moduleURI(c)
	if !ok {
		return
	}

	activation, err := h.service.Deactivate(c.Request.Context(), companyID, moduleID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToActivationResponse(activation))
}

// UpdateSettings replaces the settings of a module
// PUT /api/v1/companies/:company_id/modules/:module_id/settings
func (h *ModuleHandler) UpdateSettings(c *gin.Context) {
	companyID, moduleID, ok := h.moduleURI(c)
	if !ok {
		return
	}

	var req dto.UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	activation, err := h.service.UpdateSettings(c.Request.Context(), companyID, moduleID, module.Settings(req.Settings))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToActivationResponse(activation))
}

// company returns the company resolved by middleware.Company
func (h *ModuleHandler) company(c *gin.Context) (uuid.UUID, bool) {
	companyID, ok := middleware.GetCompanyID(c)
	if !ok {
		h.Problem(c, dto.NewProblem(dto.ErrCodeBadRequest, "Company context is required"))
	}
	return companyID, ok
}

func (h *ModuleHandler) moduleURI(c *gin.Context) (uuid.UUID, string, bool) {
	var uri dto.ModuleURI
	if err := c.ShouldBindUri(&uri); err != nil {
		middleware.HandleValidationError(c, err)
		return uuid.Nil, "", false
	}
	companyID, ok := h.company(c)
	if !ok {
		return uuid.Nil, "", false
	}
	return companyID, uri.ModuleID, true
}

// RegisterRoutes mounts the module routes on the API group.
// companyMiddleware runs on every company-scoped route.
func (h *ModuleHandler) RegisterRoutes(rg *gin.RouterGroup, companyMiddleware ...gin.HandlerFunc) {
	rg.GET("/modules", h.ListModules)

	company := rg.Group("/companies/:company_id", companyMiddleware...)
	company.GET("/modules", h.ListActivations)
	company.POST("/modules/:module_id/activate", h.Activate)
	company.POST("/modules/:module_id/deactivate", h.Deactivate)
	company.PUT("/modules/:module_id/settings", h.UpdateSettings)
}
