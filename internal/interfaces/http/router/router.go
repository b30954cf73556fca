// Package router assembles the gin engine: middleware chain, admin routes and
// the module-gated route groups.
package router

import (
	"net/http"
	"time"

	appmodule "github.com/erp/platform/internal/application/module"
	"github.com/erp/platform/internal/domain/event"
	"github.com/erp/platform/internal/infrastructure/auth"
	"github.com/erp/platform/internal/infrastructure/logger"
	"github.com/erp/platform/internal/interfaces/http/dto"
	"github.com/erp/platform/internal/interfaces/http/handler"
	"github.com/erp/platform/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Deps are the collaborators the router wires together
type Deps struct {
	Logger         *zap.Logger
	Service        *appmodule.ActivationService
	Bus            event.Bus
	JWT            *auth.JWTService // optional; nil or no secret disables bearer auth
	DB             handler.Pinger   // optional
	Tracing        middleware.TracingConfig
	FlushTimeout   time.Duration
	TrustedProxies []string
}

// Router owns the engine and the route groups of every catalog module
type Router struct {
	Engine  *gin.Engine
	Gate    *middleware.ModuleGate
	modules map[string]*gin.RouterGroup
}

// New builds the engine
func New(deps Deps) (*Router, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(deps.TrustedProxies); err != nil {
		return nil, err
	}

	// FlushEvents is outermost so deferred handlers run after the response is final
	engine.Use(
		logger.Recovery(deps.Logger),
		middleware.FlushEvents(deps.Bus, deps.FlushTimeout),
		middleware.Tracing(deps.Tracing),
		middleware.RequestID(),
		logger.GinMiddleware(deps.Logger),
		middleware.CacheScope(),
	)
	engine.NoRoute(func(c *gin.Context) {
		middleware.AbortWithProblem(c, dto.NewProblem(dto.ErrCodeNotFound, "Route not found"))
	})

	registry := deps.Service.Registry()
	system := handler.NewSystemHandler(deps.DB, registry.Count())
	engine.GET("/health", system.Health)

	companyChain := make([]gin.HandlerFunc, 0, 3)
	if deps.JWT.Enabled() {
		companyChain = append(companyChain, middleware.JWTAuth(middleware.JWTMiddlewareConfig{
			JWTService: deps.JWT,
		}))
	}
	companyChain = append(companyChain, middleware.Company(), middleware.SpanEnricher())

	api := engine.Group("/api/v1")
	handler.NewModuleHandler(deps.Service).RegisterRoutes(api, companyChain...)

	r := &Router{
		Engine:  engine,
		Gate:    middleware.NewModuleGate(registry, deps.Service),
		modules: make(map[string]*gin.RouterGroup, registry.Count()),
	}

	apps := api.Group("/companies/:company_id/apps", companyChain...)
	for _, m := range registry.GetAllModules() {
		group := apps.Group("/"+m.ID, r.Gate.Require(m.ID))
		manifest := dto.ToModuleResponse(m)
		group.GET("", func(c *gin.Context) {
			c.JSON(http.StatusOK, dto.OK(manifest, middleware.GetRequestID(c)))
		})
		r.modules[m.ID] = group
	}

	return r, nil
}

// ModuleGroup returns the gated route group of moduleID. Entity routes of the module
// are mounted here and only reached by companies that activated it.
func (r *Router) ModuleGroup(moduleID string) (*gin.RouterGroup, bool) {
	g, ok := r.modules[moduleID]
	return g, ok
}
