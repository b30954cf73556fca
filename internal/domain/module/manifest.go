package module

import (
	"sort"
	"strings"
)

// Manifest is the static descriptor of a module
type Manifest struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	Description  string   `json:"description" yaml:"description"`
	Dependencies []string `json:"dependencies" yaml:"dependencies"`
	RequiredPlan Plan     `json:"required_plan" yaml:"required_plan"`
	TrialDays    int      `json:"trial_days" yaml:"trial_days"`
}

// DependsOn reports whether the manifest directly declares moduleID as a dependency
func (m Manifest) DependsOn(moduleID string) bool {
	for _, dep := range m.Dependencies {
		if dep == moduleID {
			return true
		}
	}
	return false
}

// clone returns a copy that does not share the dependency slice. Dependencies is never nil.
func (m Manifest) clone() Manifest {
	m.Dependencies = append(make([]string, 0, len(m.Dependencies)), m.Dependencies...)
	return m
}

// Set is an unordered set of module ids
type Set map[string]struct{}

// NewSet builds a set from the given ids
func NewSet(ids ...string) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id is in the set
func (s Set) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Add inserts id into the set
func (s Set) Add(id string) {
	s[id] = struct{}{}
}

// IDs returns the members sorted ascending
func (s Set) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clone returns an independent copy of the set
func (s Set) Clone() Set {
	c := make(Set, len(s))
	for id := range s {
		c[id] = struct{}{}
	}
	return c
}

// String renders the set as a comma separated list
func (s Set) String() string {
	return strings.Join(s.IDs(), ",")
}
