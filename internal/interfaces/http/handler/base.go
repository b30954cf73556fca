// Package handler holds the gin handlers of the module platform API.
package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/erp/platform/internal/domain/module"
	"github.com/erp/platform/internal/domain/shared"
	"github.com/erp/platform/internal/infrastructure/lock"
	"github.com/erp/platform/internal/infrastructure/logger"
	"github.com/erp/platform/internal/interfaces/http/dto"
	"github.com/erp/platform/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// Success sends a 200 response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.OK(data, middleware.GetRequestID(c)))
}

// Problem sends a problem body
func (h *BaseHandler) Problem(c *gin.Context, p dto.Problem) {
	c.JSON(p.Status, p.WithRequestID(middleware.GetRequestID(c)))
}

// HandleError maps module and domain errors to problem responses
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	h.Problem(c, problemFor(c, err))
}

func problemFor(c *gin.Context, err error) dto.Problem {
	var (
		unknown    *module.UnknownModuleError
		notMet     *module.DependencyNotMetError
		dependents *module.DependentModuleExistsError
		failed     *module.HandlerFailedError
		domainErr  *shared.DomainError
	)

	switch {
	case errors.As(err, &unknown):
		return dto.ModuleNotAvailable(unknown.ModuleID)
	case errors.As(err, &notMet):
		p := dto.NewProblem(dto.ErrCodeDependencyNotMet, notMet.Error())
		p.Missing = notMet.Missing
		return p
	case errors.As(err, &dependents):
		p := dto.NewProblem(dto.ErrCodeDependentModuleExists, dependents.Error())
		p.Dependents = dependents.Dependents
		return p
	case errors.As(err, &failed):
		logger.L(c.Request.Context()).Error("Lifecycle handler failed after commit",
			zap.String("module_id", failed.ModuleID),
			zap.String("state", string(failed.State)),
			zap.Error(failed.Err))
		p := dto.NewProblem(dto.ErrCodeHandlerFailed,
			fmt.Sprintf("Module '%s' is now %s; a lifecycle handler failed", failed.ModuleID, failed.State))
		p.State = string(failed.State)
		return p
	case errors.Is(err, lock.ErrNotAcquired):
		return dto.NewProblem(dto.ErrCodeLockTimeout, "Another module change for this company is in progress")
	case errors.As(err, &domainErr):
		return domainProblem(domainErr, err)
	}

	logger.L(c.Request.Context()).Error("Request failed", zap.Error(err))
	return dto.NewProblem(dto.ErrCodeInternal, "An internal error occurred")
}

func domainProblem(domainErr *shared.DomainError, err error) dto.Problem {
	switch domainErr.Code {
	case shared.CodeNotFound:
		return dto.NewProblem(dto.ErrCodeNotFound, err.Error())
	case shared.CodeInvalidInput:
		return dto.NewProblem(dto.ErrCodeBadRequest, err.Error())
	case shared.CodeInvalidState:
		return dto.NewProblem(dto.ErrCodeInvalidState, err.Error())
	}
	return dto.NewProblem(dto.ErrCodeBadRequest, domainErr.Message)
}
