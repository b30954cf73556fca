package module

import (
	"fmt"
	"strings"

	"github.com/erp/platform/internal/domain/shared"
)

// DependencyCheck is the result of comparing a manifest's dependencies with an active set
type DependencyCheck struct {
	Met     bool     `json:"met"`
	Missing []string `json:"missing"`
}

// Registry is the read-only catalog of module manifests.
// It is populated once at startup and never mutated afterwards, so lookups need no locking.
type Registry struct {
	manifests map[string]Manifest
	order     []string
}

// NewRegistry validates the manifests and builds a registry.
// Ids must be unique, every dependency must resolve, and the graph must be acyclic.
func NewRegistry(manifests []Manifest) (*Registry, error) {
	r := &Registry{
		manifests: make(map[string]Manifest, len(manifests)),
		order:     make([]string, 0, len(manifests)),
	}

	for _, m := range manifests {
		if strings.TrimSpace(m.ID) == "" {
			return nil, fmt.Errorf("%w: module id cannot be empty", shared.ErrInvalidInput)
		}
		if _, exists := r.manifests[m.ID]; exists {
			return nil, fmt.Errorf("%w: module '%s' declared more than once", shared.ErrInvalidInput, m.ID)
		}
		if m.RequiredPlan == "" {
			m.RequiredPlan = PlanFree
		}
		if !m.RequiredPlan.IsValid() {
			return nil, fmt.Errorf("%w: module '%s' has unknown plan '%s'", shared.ErrInvalidInput, m.ID, m.RequiredPlan)
		}
		if m.TrialDays < 0 {
			return nil, fmt.Errorf("%w: module '%s' has negative trial days", shared.ErrInvalidInput, m.ID)
		}
		r.manifests[m.ID] = m.clone()
		r.order = append(r.order, m.ID)
	}

	for _, id := range r.order {
		for _, dep := range r.manifests[id].Dependencies {
			if dep == id {
				return nil, fmt.Errorf("%w: module '%s' depends on itself", shared.ErrInvalidInput, id)
			}
			if _, ok := r.manifests[dep]; !ok {
				return nil, fmt.Errorf("%w: module '%s' depends on unknown module '%s'", shared.ErrInvalidInput, id, dep)
			}
		}
	}

	if cycle := r.findCycle(); cycle != nil {
		return nil, fmt.Errorf("%w: dependency cycle %s", shared.ErrInvalidInput, strings.Join(cycle, " -> "))
	}

	return r, nil
}

// MustNewRegistry is like NewRegistry but panics on an invalid catalog
func MustNewRegistry(manifests []Manifest) *Registry {
	r, err := NewRegistry(manifests)
	if err != nil {
		panic(err)
	}
	return r
}

// GetModule returns the manifest for id
func (r *Registry) GetModule(id string) (Manifest, bool) {
	m, ok := r.manifests[id]
	if !ok {
		return Manifest{}, false
	}
	return m.clone(), true
}

// GetAllModules returns every manifest in declaration order
func (r *Registry) GetAllModules() []Manifest {
	out := make([]Manifest, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.manifests[id].clone())
	}
	return out
}

// Count returns the number of manifests
func (r *Registry) Count() int {
	return len(r.order)
}

// AreDependenciesMet compares the declared dependencies of moduleID against active.
// The second result is false when moduleID is not in the registry.
func (r *Registry) AreDependenciesMet(moduleID string, active Set) (DependencyCheck, bool) {
	m, ok := r.manifests[moduleID]
	if !ok {
		return DependencyCheck{}, false
	}

	missing := make([]string, 0)
	for _, dep := range m.Dependencies {
		if !active.Has(dep) {
			missing = append(missing, dep)
		}
	}
	return DependencyCheck{Met: len(missing) == 0, Missing: missing}, true
}

// Dependents returns the ids of modules that directly depend on moduleID, in declaration order
func (r *Registry) Dependents(moduleID string) []string {
	out := make([]string, 0)
	for _, id := range r.order {
		if r.manifests[id].DependsOn(moduleID) {
			out = append(out, id)
		}
	}
	return out
}

// ActivationOrder returns the transitive dependencies of moduleID followed by moduleID itself,
// ordered so that every module appears after all of its dependencies.
func (r *Registry) ActivationOrder(moduleID string) ([]string, error) {
	if _, ok := r.manifests[moduleID]; !ok {
		return nil, &UnknownModuleError{ModuleID: moduleID}
	}

	visited := make(map[string]bool)
	order := make([]string, 0)
	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, dep := range r.manifests[id].Dependencies {
			visit(dep)
		}
		order = append(order, id)
	}
	visit(moduleID)
	return order, nil
}

// findCycle returns the first dependency cycle found, or nil
func (r *Registry) findCycle() []string {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(r.order))
	stack := make([]string, 0)

	var visit func(id string) []string
	visit = func(id string) []string {
		color[id] = grey
		stack = append(stack, id)
		for _, dep := range r.manifests[id].Dependencies {
			switch color[dep] {
			case grey:
				for i, s := range stack {
					if s == dep {
						cycle := append([]string(nil), stack[i:]...)
						return append(cycle, dep)
					}
				}
			case white:
				if c := visit(dep); c != nil {
					return c
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return nil
	}

	for _, id := range r.order {
		if color[id] == white {
			if c := visit(id); c != nil {
				return c
			}
		}
	}
	return nil
}
