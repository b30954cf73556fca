package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/erp/platform/internal/domain/module"
	"github.com/erp/platform/internal/domain/shared"
	"github.com/erp/platform/internal/infrastructure/lock"
	"github.com/erp/platform/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestBaseHandler_HandleError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
		check  func(t *testing.T, p dto.Problem)
	}{
		{
			name:   "unknown module",
			err:    &module.UnknownModuleError{ModuleID: "spaceship"},
			status: http.StatusNotFound,
			code:   dto.ErrCodeNotFound,
		},
		{
			name:   "dependency not met",
			err:    &module.DependencyNotMetError{ModuleID: "pos", Missing: []string{"base"}},
			status: http.StatusConflict,
			code:   dto.ErrCodeDependencyNotMet,
			check: func(t *testing.T, p dto.Problem) {
				assert.Equal(t, []string{"base"}, p.Missing)
			},
		},
		{
			name:   "dependents exist",
			err:    fmt.Errorf("deactivate: %w", &module.DependentModuleExistsError{ModuleID: "base", Dependents: []string{"pos", "salon"}}),
			status: http.StatusConflict,
			code:   dto.ErrCodeDependentModuleExists,
			check: func(t *testing.T, p dto.Problem) {
				assert.Equal(t, []string{"pos", "salon"}, p.Dependents)
			},
		},
		{
			name:   "lock timeout",
			err:    fmt.Errorf("acquire: %w", lock.ErrNotAcquired),
			status: http.StatusConflict,
			code:   dto.ErrCodeLockTimeout,
		},
		{
			name:   "derived not found",
			err:    shared.ErrNotFound.WithMessage("module 'pos' was never activated"),
			status: http.StatusNotFound,
			code:   dto.ErrCodeNotFound,
			check: func(t *testing.T, p dto.Problem) {
				assert.Equal(t, "module 'pos' was never activated", p.Detail)
			},
		},
		{
			name:   "invalid state",
			err:    fmt.Errorf("%w: module 'pos' is inactive", shared.ErrInvalidState),
			status: http.StatusUnprocessableEntity,
			code:   dto.ErrCodeInvalidState,
		},
		{
			name:   "persistence failure is hidden",
			err:    &module.PersistenceError{Op: "save activation", Err: errors.New("connection reset")},
			status: http.StatusInternalServerError,
			code:   dto.ErrCodeInternal,
			check: func(t *testing.T, p dto.Problem) {
				assert.NotContains(t, p.Detail, "connection reset")
			},
		},
		{
			name: "handler failure reports the stored state",
			err: &module.HandlerFailedError{
				ModuleID: "pos",
				State:    module.LifecycleActive,
				Err:      errors.New("audit write failed"),
			},
			status: http.StatusInternalServerError,
			code:   dto.ErrCodeHandlerFailed,
			check: func(t *testing.T, p dto.Problem) {
				assert.Equal(t, "active", p.State)
				assert.Contains(t, p.Detail, "Module 'pos' is now active")
				assert.NotContains(t, p.Detail, "audit write failed")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			var h BaseHandler
			h.HandleError(c, tt.err)

			require.Equal(t, tt.status, w.Code)
			var p dto.Problem
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
			assert.Equal(t, tt.code, p.Code)
			assert.Equal(t, tt.status, p.Status)
			if tt.check != nil {
				tt.check(t, p)
			}
		})
	}
}
