package middleware

import (
	"errors"
	"strings"

	"github.com/erp/platform/internal/infrastructure/auth"
	"github.com/erp/platform/internal/infrastructure/logger"
	"github.com/erp/platform/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// JWT context keys
const (
	JWTClaimsKey    = "jwt_claims"
	JWTCompanyIDKey = "jwt_company_id"
	AuthHeaderKey   = "Authorization"
	BearerPrefix    = "Bearer "
)

// JWTMiddlewareConfig holds configuration for JWT middleware
type JWTMiddlewareConfig struct {
	JWTService *auth.JWTService
	// Required rejects requests without a bearer token. When false a missing
	// header passes through and the company is resolved from the path or header.
	Required bool
	// SkipPaths are paths that don't require authentication
	SkipPaths []string
}

// JWTAuth validates bearer tokens and stores their company claim on the context
func JWTAuth(cfg JWTMiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, skip := range cfg.SkipPaths {
			if c.Request.URL.Path == skip {
				c.Next()
				return
			}
		}

		header := c.GetHeader(AuthHeaderKey)
		if header == "" {
			if cfg.Required {
				AbortWithProblem(c, dto.NewProblem(dto.ErrCodeUnauthorized, "Missing authorization header"))
				return
			}
			c.Next()
			return
		}
		if !strings.HasPrefix(header, BearerPrefix) {
			AbortWithProblem(c, dto.NewProblem(dto.ErrCodeUnauthorized, "Invalid authorization header format"))
			return
		}

		claims, err := cfg.JWTService.ValidateToken(strings.TrimPrefix(header, BearerPrefix))
		if err != nil {
			logger.L(c.Request.Context()).Debug("Token validation failed", zap.Error(err))
			detail := "Invalid token"
			if errors.Is(err, auth.ErrExpiredToken) {
				detail = "Token has expired"
			}
			AbortWithProblem(c, dto.NewProblem(dto.ErrCodeUnauthorized, detail))
			return
		}

		c.Set(JWTClaimsKey, claims)
		c.Set(JWTCompanyIDKey, claims.CompanyID)
		c.Next()
	}
}

// GetJWTCompanyID returns the company claim of a validated token, or ""
func GetJWTCompanyID(c *gin.Context) string {
	return c.GetString(JWTCompanyIDKey)
}
