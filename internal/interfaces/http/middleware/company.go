package middleware

import (
	"github.com/erp/platform/internal/infrastructure/logger"
	"github.com/erp/platform/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Company context keys
const (
	CompanyIDKey     = "company_id"
	CompanyHeaderKey = "X-Company-ID"
	CompanyPathParam = "company_id"
)

// Company resolves the company a request acts for.
// Extraction order: JWT claim > :company_id path param > X-Company-ID header.
// A path company that differs from the token's company is refused.
func Company() gin.HandlerFunc {
	return func(c *gin.Context) {
		claim := GetJWTCompanyID(c)
		param := c.Param(CompanyPathParam)

		raw := claim
		if raw == "" {
			raw = param
		}
		if raw == "" {
			raw = c.GetHeader(CompanyHeaderKey)
		}
		if raw == "" {
			AbortWithProblem(c, dto.NewProblem(dto.ErrCodeBadRequest, "Company context is required"))
			return
		}

		companyID, err := uuid.Parse(raw)
		if err != nil {
			AbortWithProblem(c, dto.NewProblem(dto.ErrCodeBadRequest, "Invalid company ID format"))
			return
		}
		if claim != "" && param != "" && param != claim {
			if pathID, err := uuid.Parse(param); err != nil || pathID != companyID {
				AbortWithProblem(c, dto.NewProblem(dto.ErrCodeForbidden, "Token is not valid for this company"))
				return
			}
		}

		c.Set(CompanyIDKey, companyID)
		c.Request = c.Request.WithContext(logger.WithCompanyID(c.Request.Context(), companyID.String()))
		c.Next()
	}
}

// GetCompanyID returns the company resolved by Company
func GetCompanyID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(CompanyIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
