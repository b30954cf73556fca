package module

import (
	"errors"
	"testing"
	"time"

	"github.com/erp/platform/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivation_Lifecycle(t *testing.T) {
	companyID := uuid.New()
	a := NeverActivated(companyID, "pos")

	assert.Equal(t, LifecycleNeverActivated, a.State)
	assert.False(t, a.IsActive())
	assert.False(t, a.IsPersisted())

	t1 := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	a.Activate(t1)
	assert.True(t, a.IsActive())
	assert.True(t, a.IsPersisted())
	assert.Equal(t, t1, a.CreatedAt)
	require.NotNil(t, a.ActivatedAt)
	assert.Equal(t, t1, *a.ActivatedAt)
	assert.Nil(t, a.DeactivatedAt)

	a.Settings["currency"] = "EUR"
	id := a.ID

	t2 := t1.Add(time.Hour)
	require.NoError(t, a.Deactivate(t2))
	assert.Equal(t, LifecycleInactive, a.State)
	require.NotNil(t, a.DeactivatedAt)
	assert.Equal(t, t2, *a.DeactivatedAt)

	t3 := t2.Add(time.Hour)
	a.Activate(t3)
	assert.Equal(t, id, a.ID)
	assert.Equal(t, t1, a.CreatedAt)
	assert.Equal(t, t3, *a.ActivatedAt)
	assert.Nil(t, a.DeactivatedAt)
	assert.Equal(t, "EUR", a.Settings["currency"])
}

func TestActivation_DeactivateRequiresActive(t *testing.T) {
	a := NeverActivated(uuid.New(), "pos")
	err := a.Deactivate(time.Now())
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrInvalidState))
}

func TestLifecycle_IsValid(t *testing.T) {
	assert.True(t, LifecycleActive.IsValid())
	assert.True(t, LifecycleInactive.IsValid())
	assert.True(t, LifecycleNeverActivated.IsValid())
	assert.False(t, Lifecycle("deleted").IsValid())
}

func TestSettings_Clone(t *testing.T) {
	s := Settings{"a": 1}
	c := s.Clone()
	c["b"] = 2
	assert.Len(t, s, 1)
}

func TestErrors_MatchSentinels(t *testing.T) {
	storageErr := errors.New("connection reset")

	tests := []struct {
		name     string
		err      error
		sentinel error
		message  string
	}{
		{"unknown", &UnknownModuleError{ModuleID: "x"}, ErrUnknownModule, "unknown module 'x'"},
		{"dependency", &DependencyNotMetError{ModuleID: "pos", Missing: []string{"base"}}, ErrDependencyNotMet, "requires inactive modules: base"},
		{"dependents", &DependentModuleExistsError{ModuleID: "base", Dependents: []string{"pos", "salon"}}, ErrDependentModuleExists, "pos, salon"},
		{"persistence", &PersistenceError{Op: "save activation", Err: storageErr}, ErrPersistence, "save activation: connection reset"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.sentinel)
			assert.Contains(t, tt.err.Error(), tt.message)
		})
	}

	var pe *PersistenceError
	wrapped := error(&PersistenceError{Op: "load", Err: storageErr})
	require.True(t, errors.As(wrapped, &pe))
	assert.ErrorIs(t, wrapped, storageErr)
}
