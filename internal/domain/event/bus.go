package event

import (
	"context"

	"github.com/erp/platform/internal/domain/module"
)

// Mode selects when a handler runs relative to Emit
type Mode string

const (
	// ModeSync handlers run inside Emit, in registration order
	ModeSync Mode = "sync"
	// ModeAsync handlers are queued by Emit and run by Flush
	ModeAsync Mode = "async"
)

// SubscribeOptions configure a subscription
type SubscribeOptions struct {
	ModuleID string
}

// SubscribeOption mutates SubscribeOptions
type SubscribeOption func(*SubscribeOptions)

// OwnedBy attributes a handler to a module so RemoveModule and active-set filtering apply to it.
// Handlers without an owner belong to CoreModule.
func OwnedBy(moduleID string) SubscribeOption {
	return func(o *SubscribeOptions) {
		o.ModuleID = moduleID
	}
}

// NewSubscribeOptions applies opts over the defaults
func NewSubscribeOptions(opts ...SubscribeOption) SubscribeOptions {
	o := SubscribeOptions{ModuleID: CoreModule}
	for _, opt := range opts {
		opt(&o)
	}
	if o.ModuleID == "" {
		o.ModuleID = CoreModule
	}
	return o
}

// EmitOptions configure a single Emit call
type EmitOptions struct {
	// ActiveModules limits delivery to core handlers and handlers of these modules
	ActiveModules module.Set
	// Restricted is true when ActiveModules was supplied, even if empty
	Restricted bool
}

// EmitOption mutates EmitOptions
type EmitOption func(*EmitOptions)

// WithActiveModules restricts delivery to core handlers plus handlers owned by the given modules
func WithActiveModules(moduleIDs ...string) EmitOption {
	return func(o *EmitOptions) {
		o.ActiveModules = module.NewSet(moduleIDs...)
		o.Restricted = true
	}
}

// WithActiveSet is WithActiveModules for an existing set
func WithActiveSet(active module.Set) EmitOption {
	return func(o *EmitOptions) {
		o.ActiveModules = active.Clone()
		o.Restricted = true
	}
}

// NewEmitOptions applies opts over the defaults
func NewEmitOptions(opts ...EmitOption) EmitOptions {
	var o EmitOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Delivers reports whether a handler owned by moduleID receives the emission
func (o EmitOptions) Delivers(moduleID string) bool {
	if !o.Restricted || moduleID == CoreModule {
		return true
	}
	return o.ActiveModules.Has(moduleID)
}

// FlushStats summarises one Flush
type FlushStats struct {
	Total  int `json:"total"`
	Failed int `json:"failed"`
}

// Bus is the in-process publish/subscribe channel between modules
type Bus interface {
	// On registers a synchronous handler and returns its unsubscribe function
	On(name Name, handler Handler, opts ...SubscribeOption) func()
	// OnAsync registers a deferred handler and returns its unsubscribe function
	OnAsync(name Name, handler Handler, opts ...SubscribeOption) func()
	// Emit runs sync handlers and queues async ones. The first sync failure is returned.
	Emit(ctx context.Context, evt Event, opts ...EmitOption) error
	// Flush runs every queued async task and never fails
	Flush(ctx context.Context) FlushStats
	// RemoveModule detaches every handler owned by moduleID
	RemoveModule(moduleID string)
	// Pending returns the number of queued async tasks
	Pending() int
}
