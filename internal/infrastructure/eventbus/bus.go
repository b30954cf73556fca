// Package eventbus implements the in-process event bus connecting modules.
//
// Delivery is two-phase: synchronous handlers run inside Emit in registration
// order and their failures reach the emitter; asynchronous handlers are queued
// and only run when Flush drains the queue, concurrently and with per-task
// failure isolation.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/erp/platform/internal/domain/event"
	"github.com/erp/platform/internal/domain/shared"
	"github.com/erp/platform/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// ErrHandlerPanic wraps a panic recovered from a handler
var ErrHandlerPanic = errors.New("event handler panicked")

// ErrHandlerTimeout is returned for async handlers that exceed the configured timeout
var ErrHandlerTimeout = errors.New("event handler timed out")

// Option configures an InMemoryBus
type Option func(*InMemoryBus)

// WithAsyncTimeout bounds each deferred handler. Zero disables the bound.
func WithAsyncTimeout(d time.Duration) Option {
	return func(b *InMemoryBus) {
		b.asyncTimeout = d
	}
}

// WithMetrics records emissions, async failures and flush latency
func WithMetrics(m *telemetry.ModuleMetrics) Option {
	return func(b *InMemoryBus) {
		b.metrics = m
	}
}

// InMemoryBus implements event.Bus with in-memory pub/sub
type InMemoryBus struct {
	registry     *HandlerRegistry
	queue        deferredQueue
	logger       *zap.Logger
	metrics      *telemetry.ModuleMetrics
	asyncTimeout time.Duration
}

// New creates a new in-memory event bus
func New(logger *zap.Logger, opts ...Option) *InMemoryBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &InMemoryBus{
		registry: NewHandlerRegistry(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// On registers a synchronous handler
func (b *InMemoryBus) On(name event.Name, handler event.Handler, opts ...event.SubscribeOption) func() {
	return b.subscribe(name, event.ModeSync, handler, opts)
}

// OnAsync registers a deferred handler
func (b *InMemoryBus) OnAsync(name event.Name, handler event.Handler, opts ...event.SubscribeOption) func() {
	return b.subscribe(name, event.ModeAsync, handler, opts)
}

func (b *InMemoryBus) subscribe(name event.Name, mode event.Mode, handler event.Handler, opts []event.SubscribeOption) func() {
	o := event.NewSubscribeOptions(opts...)
	id := b.registry.Register(name, mode, o.ModuleID, handler)

	b.logger.Debug("handler subscribed",
		zap.String("event_name", name.String()),
		zap.String("module_id", o.ModuleID),
		zap.String("mode", string(mode)),
	)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.registry.Unregister(id)
			b.queue.purge(func(t task) bool { return t.sub.id == id })
		})
	}
}

// Emit dispatches evt to its handlers in registration order.
// The first failing synchronous handler aborts the emission and its error is returned;
// handlers after it are neither run nor queued.
func (b *InMemoryBus) Emit(ctx context.Context, evt event.Event, opts ...event.EmitOption) error {
	if evt == nil {
		return fmt.Errorf("%w: nil event", shared.ErrInvalidInput)
	}

	o := event.NewEmitOptions(opts...)
	name := evt.EventName()
	b.metrics.RecordEmit(ctx, name.String())

	for _, sub := range b.registry.Handlers(name) {
		if !o.Delivers(sub.moduleID) {
			continue
		}
		if sub.mode == event.ModeAsync {
			b.queue.push(task{sub: sub, evt: evt})
			continue
		}
		if err := b.invoke(ctx, sub, evt); err != nil {
			return fmt.Errorf("handler of module '%s' for '%s' failed: %w", sub.moduleID, name, err)
		}
	}
	return nil
}

// Flush drains the deferred queue and runs every drained task concurrently.
// It returns once every task has settled. Failures are logged and counted, never returned.
func (b *InMemoryBus) Flush(ctx context.Context) event.FlushStats {
	tasks := b.queue.drain()
	if len(tasks) == 0 {
		return event.FlushStats{}
	}

	ctx, span := telemetry.StartFlushSpan(ctx, len(tasks))
	defer span.End()

	start := time.Now()
	var failed atomic.Int64
	var wg sync.WaitGroup
	wg.Add(len(tasks))
	for _, t := range tasks {
		go func(t task) {
			defer wg.Done()
			if err := b.runTask(ctx, t); err != nil {
				failed.Add(1)
				b.metrics.RecordAsyncFailure(ctx, t.evt.EventName().String(), t.sub.moduleID)
				b.logger.Error("async handler failed",
					zap.String("event_name", t.evt.EventName().String()),
					zap.String("module_id", t.sub.moduleID),
					zap.Error(err),
				)
			}
		}(t)
	}
	wg.Wait()

	stats := event.FlushStats{Total: len(tasks), Failed: int(failed.Load())}
	b.metrics.RecordFlush(ctx, time.Since(start), stats.Total)
	telemetry.SetFlushResult(span, stats.Failed)
	return stats
}

func (b *InMemoryBus) runTask(ctx context.Context, t task) (err error) {
	ctx, span := telemetry.StartHandlerSpan(ctx, t.evt.EventName().String(), t.sub.moduleID)
	defer func() { telemetry.EndHandlerSpan(span, err) }()

	if b.asyncTimeout <= 0 {
		return b.invoke(ctx, t.sub, t.evt)
	}

	taskCtx, cancel := context.WithTimeout(ctx, b.asyncTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- b.invoke(taskCtx, t.sub, t.evt)
	}()

	select {
	case err := <-done:
		return err
	case <-taskCtx.Done():
		return fmt.Errorf("%w after %s: %v", ErrHandlerTimeout, b.asyncTimeout, taskCtx.Err())
	}
}

// invoke runs a handler, turning a panic into an error
func (b *InMemoryBus) invoke(ctx context.Context, sub *subscription, evt event.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("handler panicked",
				zap.String("event_name", evt.EventName().String()),
				zap.String("module_id", sub.moduleID),
				zap.Any("panic", r),
			)
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return sub.handler(ctx, evt)
}

// RemoveModule detaches every handler owned by moduleID and drops its queued tasks
func (b *InMemoryBus) RemoveModule(moduleID string) {
	removed := b.registry.RemoveModule(moduleID)
	purged := b.queue.purge(func(t task) bool { return t.sub.moduleID == moduleID })
	b.logger.Debug("module handlers removed",
		zap.String("module_id", moduleID),
		zap.Int("handlers", removed),
		zap.Int("queued_tasks", purged),
	)
}

// Pending returns the number of queued async tasks
func (b *InMemoryBus) Pending() int {
	return b.queue.len()
}

// RegisteredEvents returns every event name with at least one handler
func (b *InMemoryBus) RegisteredEvents() []event.Name {
	return b.registry.Events()
}

// HandlerCount returns the number of handlers registered for name
func (b *InMemoryBus) HandlerCount(name event.Name) int {
	return b.registry.Count(name)
}

// Reset clears all registrations and the deferred queue
func (b *InMemoryBus) Reset() {
	b.registry.Reset()
	b.queue.clear()
}

var _ event.Bus = (*InMemoryBus)(nil)
