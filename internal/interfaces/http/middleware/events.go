package middleware

import (
	"context"
	"time"

	appmodule "github.com/erp/platform/internal/application/module"
	"github.com/erp/platform/internal/domain/event"
	"github.com/erp/platform/internal/infrastructure/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CacheScope installs a fresh activation cache on every request.
// Nothing cached survives the request that filled it.
func CacheScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(appmodule.WithCache(c.Request.Context()))
		c.Next()
	}
}

// FlushEvents drains the deferred event queue once the handler chain returns.
// The flush outlives a cancelled client connection but is bounded by timeout.
func FlushEvents(bus event.Bus, timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if bus.Pending() == 0 {
			return
		}

		ctx := context.WithoutCancel(c.Request.Context())
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		stats := bus.Flush(ctx)
		if stats.Failed > 0 {
			logger.L(ctx).Warn("Deferred event handlers failed",
				zap.Int("failed", stats.Failed),
				zap.Int("total", stats.Total))
		}
	}
}
