// Package event defines the platform events exchanged between modules and the
// contract of the in-process bus that carries them.
//
// Events form a tagged union: a closed set of core variants with fixed payload
// types (see core.go), plus Custom for module-specific events named
// {moduleId}.{entity}.{action} with an untyped payload.
package event

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// CoreModule owns handlers that run regardless of which modules a tenant has active
const CoreModule = "core"

// Name identifies an event
type Name string

// String returns the event name
func (n Name) String() string {
	return string(n)
}

// Event is implemented by every core variant and by Custom
type Event interface {
	EventName() Name
}

// Handler reacts to an event. Errors from synchronous handlers reach the emitter.
type Handler func(ctx context.Context, evt Event) error

var (
	// ErrInvalidEventName is returned for custom names that are not {moduleId}.{entity}.{action}
	ErrInvalidEventName = errors.New("invalid event name")
	// ErrPayloadMismatch is returned by typed handlers that receive another variant
	ErrPayloadMismatch = errors.New("event payload type mismatch")
)

// Handle adapts a handler for one concrete variant into a Handler
func Handle[T Event](fn func(ctx context.Context, evt T) error) Handler {
	return func(ctx context.Context, evt Event) error {
		typed, ok := evt.(T)
		if !ok {
			var zero T
			return fmt.Errorf("%w: want %T, got %T", ErrPayloadMismatch, zero, evt)
		}
		return fn(ctx, typed)
	}
}

// Custom is a module-specific event carrying an unstructured payload
type Custom struct {
	Name    Name           `json:"name"`
	Payload map[string]any `json:"payload,omitempty"`
}

// EventName implements Event
func (c Custom) EventName() Name {
	return c.Name
}

// NewCustom builds a custom event after checking the shape of its name
func NewCustom(name string, payload map[string]any) (Custom, error) {
	if _, _, _, err := ParseCustomName(name); err != nil {
		return Custom{}, err
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return Custom{Name: Name(name), Payload: payload}, nil
}

var segmentPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ParseCustomName splits {moduleId}.{entity}.{action}. Core event names are rejected.
func ParseCustomName(name string) (moduleID, entity, action string, err error) {
	if IsCore(Name(name)) {
		return "", "", "", fmt.Errorf("%w: '%s' is a core event", ErrInvalidEventName, name)
	}
	parts := strings.Split(name, ".")
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("%w: '%s' must have the form module.entity.action", ErrInvalidEventName, name)
	}
	for _, p := range parts {
		if !segmentPattern.MatchString(p) {
			return "", "", "", fmt.Errorf("%w: segment '%s' of '%s'", ErrInvalidEventName, p, name)
		}
	}
	if parts[0] == CoreModule {
		return "", "", "", fmt.Errorf("%w: module segment cannot be '%s'", ErrInvalidEventName, CoreModule)
	}
	return parts[0], parts[1], parts[2], nil
}
