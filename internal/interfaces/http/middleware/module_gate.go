package middleware

import (
	"context"

	"github.com/erp/platform/internal/domain/module"
	"github.com/erp/platform/internal/infrastructure/logger"
	"github.com/erp/platform/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ModuleStatusReader answers whether a module is active for a company
type ModuleStatusReader interface {
	IsModuleActive(ctx context.Context, companyID uuid.UUID, moduleID string) (bool, error)
}

// GateResult is the outcome of a module check. Problem is set whenever Active is false.
type GateResult struct {
	Active  bool
	Problem *dto.Problem
}

// ModuleGate refuses access to modules a company has not activated
type ModuleGate struct {
	registry *module.Registry
	store    ModuleStatusReader
}

// NewModuleGate creates a gate
func NewModuleGate(registry *module.Registry, store ModuleStatusReader) *ModuleGate {
	return &ModuleGate{registry: registry, store: store}
}

// Check resolves moduleID for the company. Unknown and inactive modules produce
// the same 404 body.
func (g *ModuleGate) Check(ctx context.Context, companyID uuid.UUID, moduleID string) GateResult {
	if _, ok := g.registry.GetModule(moduleID); !ok {
		p := dto.ModuleNotAvailable(moduleID)
		return GateResult{Problem: &p}
	}

	active, err := g.store.IsModuleActive(ctx, companyID, moduleID)
	if err != nil {
		logger.L(ctx).Error("Failed to check module activation",
			zap.String("module_id", moduleID),
			zap.Error(err))
		p := dto.NewProblem(dto.ErrCodeInternal, "Failed to check module activation")
		return GateResult{Problem: &p}
	}
	if !active {
		p := dto.ModuleNotAvailable(moduleID)
		return GateResult{Problem: &p}
	}
	return GateResult{Active: true}
}

// Require returns middleware for routes that belong to moduleID.
// It must run after Company.
func (g *ModuleGate) Require(moduleID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		companyID, ok := GetCompanyID(c)
		if !ok {
			AbortWithProblem(c, dto.NewProblem(dto.ErrCodeBadRequest, "Company context is required"))
			return
		}

		result := g.Check(c.Request.Context(), companyID, moduleID)
		if !result.Active {
			AbortWithProblem(c, *result.Problem)
			return
		}
		c.Next()
	}
}
