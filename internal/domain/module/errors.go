package module

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels matched by the typed errors below through errors.Is
var (
	ErrUnknownModule         = errors.New("unknown module")
	ErrDependencyNotMet      = errors.New("module dependencies not met")
	ErrDependentModuleExists = errors.New("dependent modules are active")
	ErrPersistence           = errors.New("activation persistence failure")
)

// UnknownModuleError is returned when the registry has no manifest for the id
type UnknownModuleError struct {
	ModuleID string
}

func (e *UnknownModuleError) Error() string {
	return fmt.Sprintf("unknown module '%s'", e.ModuleID)
}

func (e *UnknownModuleError) Is(target error) bool {
	return target == ErrUnknownModule
}

// DependencyNotMetError carries every dependency that is not active for the tenant
type DependencyNotMetError struct {
	ModuleID string
	Missing  []string
}

func (e *DependencyNotMetError) Error() string {
	return fmt.Sprintf("module '%s' requires inactive modules: %s", e.ModuleID, strings.Join(e.Missing, ", "))
}

func (e *DependencyNotMetError) Is(target error) bool {
	return target == ErrDependencyNotMet
}

// DependentModuleExistsError carries every active module that blocks a deactivation
type DependentModuleExistsError struct {
	ModuleID   string
	Dependents []string
}

func (e *DependentModuleExistsError) Error() string {
	return fmt.Sprintf("module '%s' is required by active modules: %s", e.ModuleID, strings.Join(e.Dependents, ", "))
}

func (e *DependentModuleExistsError) Is(target error) bool {
	return target == ErrDependentModuleExists
}

// PersistenceError wraps a storage failure. The underlying error is reachable through Unwrap.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// ErrHandlerFailed marks a transition that was stored but whose announcement failed
var ErrHandlerFailed = errors.New("lifecycle handler failed")

// HandlerFailedError is returned when a synchronous lifecycle handler fails after the
// activation row was committed. State is the lifecycle that was persisted.
type HandlerFailedError struct {
	ModuleID string
	State    Lifecycle
	Err      error
}

func (e *HandlerFailedError) Error() string {
	return fmt.Sprintf("module '%s' is %s but a lifecycle handler failed: %v", e.ModuleID, e.State, e.Err)
}

func (e *HandlerFailedError) Unwrap() error {
	return e.Err
}

func (e *HandlerFailedError) Is(target error) bool {
	return target == ErrHandlerFailed
}
