package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/erp/platform/internal/interfaces/http/dto"
	"github.com/erp/platform/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// Pinger reports whether a backing service is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// SystemHandler serves health and system information
type SystemHandler struct {
	BaseHandler
	startTime   time.Time
	db          Pinger
	moduleCount int
}

// NewSystemHandler creates a new SystemHandler. db may be nil.
func NewSystemHandler(db Pinger, moduleCount int) *SystemHandler {
	return &SystemHandler{
		startTime:   time.Now(),
		db:          db,
		moduleCount: moduleCount,
	}
}

// HealthResponse is the body of /health
type HealthResponse struct {
	Status    string `json:"status"`
	Database  string `json:"database"`
	Modules   int    `json:"modules"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
}

// Health reports liveness and database reachability
// GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	resp := HealthResponse{
		Status:    "ok",
		Database:  "ok",
		Modules:   h.moduleCount,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	}
	status := http.StatusOK

	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.Database = "unreachable"
			status = http.StatusServiceUnavailable
		}
	}

	c.JSON(status, dto.Response[HealthResponse]{
		Success:   status == http.StatusOK,
		Data:      resp,
		RequestID: middleware.GetRequestID(c),
	})
}
