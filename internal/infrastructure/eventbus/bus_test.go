package eventbus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/erp/platform/internal/domain/event"
	"github.com/erp/platform/internal/domain/shared"
	"github.com/erp/platform/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

// recorder collects handler invocations in order
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) handler(label string, err error) event.Handler {
	return func(ctx context.Context, evt event.Event) error {
		r.mu.Lock()
		r.calls = append(r.calls, label)
		r.mu.Unlock()
		return err
	}
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func invoicePaid() event.InvoicePaid {
	return event.InvoicePaid{
		CompanyID:  uuid.New(),
		InvoiceID:  uuid.New(),
		AmountPaid: decimal.NewFromInt(250),
		PaidAt:     time.Now(),
	}
}

func TestEmit_SyncHandlersRunInOrder(t *testing.T) {
	bus := New(zap.NewNop())
	rec := &recorder{}

	bus.On(event.NameInvoicePaid, rec.handler("first", nil))
	bus.On(event.NameInvoicePaid, rec.handler("second", nil))
	bus.On(event.NameInvoicePaid, rec.handler("third", nil))

	require.NoError(t, bus.Emit(context.Background(), invoicePaid()))
	assert.Equal(t, []string{"first", "second", "third"}, rec.get())
}

func TestEmit_SyncFailureStopsLaterHandlers(t *testing.T) {
	bus := New(zap.NewNop())
	rec := &recorder{}
	boom := errors.New("ledger unavailable")

	bus.On(event.NameInvoicePaid, rec.handler("first", nil))
	bus.On(event.NameInvoicePaid, rec.handler("second", boom), event.OwnedBy("accounting"))
	bus.On(event.NameInvoicePaid, rec.handler("third", nil))
	bus.OnAsync(event.NameInvoicePaid, rec.handler("async", nil))

	err := bus.Emit(context.Background(), invoicePaid())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "accounting")
	assert.Equal(t, []string{"first", "second"}, rec.get())
	assert.Equal(t, 0, bus.Pending())
}

func TestEmit_SyncPanicBecomesError(t *testing.T) {
	bus := New(zap.NewNop())
	bus.On(event.NameInvoicePaid, func(ctx context.Context, evt event.Event) error {
		panic("nil map")
	})

	err := bus.Emit(context.Background(), invoicePaid())
	assert.ErrorIs(t, err, ErrHandlerPanic)
}

func TestEmit_NilEvent(t *testing.T) {
	bus := New(zap.NewNop())
	err := bus.Emit(context.Background(), nil)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestEmit_AsyncHandlersWaitForFlush(t *testing.T) {
	bus := New(zap.NewNop())
	var ran atomic.Int32

	for i := 0; i < 3; i++ {
		bus.OnAsync(event.NameInvoicePaid, func(ctx context.Context, evt event.Event) error {
			ran.Add(1)
			return nil
		})
	}

	require.NoError(t, bus.Emit(context.Background(), invoicePaid()))
	assert.Equal(t, int32(0), ran.Load())
	assert.Equal(t, 3, bus.Pending())

	stats := bus.Flush(context.Background())
	assert.Equal(t, event.FlushStats{Total: 3}, stats)
	assert.Equal(t, int32(3), ran.Load())
	assert.Equal(t, 0, bus.Pending())
}

func TestFlush_FailuresAreIsolated(t *testing.T) {
	bus := New(zap.NewNop())
	var completed atomic.Int32

	bus.OnAsync(event.NameInvoicePaid, func(ctx context.Context, evt event.Event) error {
		return errors.New("smtp down")
	})
	bus.OnAsync(event.NameInvoicePaid, func(ctx context.Context, evt event.Event) error {
		panic("unexpected")
	})
	bus.OnAsync(event.NameInvoicePaid, func(ctx context.Context, evt event.Event) error {
		time.Sleep(10 * time.Millisecond)
		completed.Add(1)
		return nil
	})

	require.NoError(t, bus.Emit(context.Background(), invoicePaid()))
	stats := bus.Flush(context.Background())

	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Failed)
	assert.Equal(t, int32(1), completed.Load())
}

func TestFlush_RunsTasksConcurrently(t *testing.T) {
	bus := New(zap.NewNop())
	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(2)

	for i := 0; i < 2; i++ {
		bus.OnAsync(event.NameInvoicePaid, func(ctx context.Context, evt event.Event) error {
			started.Done()
			<-release
			return nil
		})
	}
	require.NoError(t, bus.Emit(context.Background(), invoicePaid()))

	done := make(chan event.FlushStats)
	go func() { done <- bus.Flush(context.Background()) }()

	started.Wait()
	close(release)
	assert.Equal(t, 2, (<-done).Total)
}

func TestFlush_EventsQueuedDuringFlushGoToNextFlush(t *testing.T) {
	bus := New(zap.NewNop())
	var followUps atomic.Int32

	bus.OnAsync(event.NameInvoicePaid, func(ctx context.Context, evt event.Event) error {
		return bus.Emit(ctx, event.JournalEntryPosted{Reference: "INV-1"})
	})
	bus.OnAsync(event.NameJournalEntryPosted, func(ctx context.Context, evt event.Event) error {
		followUps.Add(1)
		return nil
	})

	require.NoError(t, bus.Emit(context.Background(), invoicePaid()))
	first := bus.Flush(context.Background())
	assert.Equal(t, 1, first.Total)
	assert.Equal(t, int32(0), followUps.Load())
	assert.Equal(t, 1, bus.Pending())

	second := bus.Flush(context.Background())
	assert.Equal(t, 1, second.Total)
	assert.Equal(t, int32(1), followUps.Load())
}

func TestFlush_AsyncTimeout(t *testing.T) {
	bus := New(zap.NewNop(), WithAsyncTimeout(20*time.Millisecond))

	bus.OnAsync(event.NameInvoicePaid, func(ctx context.Context, evt event.Event) error {
		<-ctx.Done()
		time.Sleep(500 * time.Millisecond)
		return nil
	})
	bus.OnAsync(event.NameInvoicePaid, func(ctx context.Context, evt event.Event) error {
		return nil
	})

	require.NoError(t, bus.Emit(context.Background(), invoicePaid()))

	start := time.Now()
	stats := bus.Flush(context.Background())
	assert.Less(t, time.Since(start), 400*time.Millisecond)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Failed)
}

func TestFlush_EmptyQueue(t *testing.T) {
	bus := New(zap.NewNop())
	assert.Equal(t, event.FlushStats{}, bus.Flush(context.Background()))
}

func TestEmit_ActiveModulesFilter(t *testing.T) {
	bus := New(zap.NewNop())
	rec := &recorder{}

	bus.On(event.NameInvoicePaid, rec.handler("core", nil))
	bus.On(event.NameInvoicePaid, rec.handler("pos", nil), event.OwnedBy("pos"))
	bus.OnAsync(event.NameInvoicePaid, rec.handler("salon", nil), event.OwnedBy("salon"))

	require.NoError(t, bus.Emit(context.Background(), invoicePaid(), event.WithActiveModules("base", "salon")))
	bus.Flush(context.Background())
	assert.Equal(t, []string{"core", "salon"}, rec.get())

	rec2 := &recorder{}
	bus.Reset()
	bus.On(event.NameInvoicePaid, rec2.handler("core", nil))
	bus.On(event.NameInvoicePaid, rec2.handler("pos", nil), event.OwnedBy("pos"))

	require.NoError(t, bus.Emit(context.Background(), invoicePaid(), event.WithActiveModules()))
	assert.Equal(t, []string{"core"}, rec2.get())
}

func TestEmit_NoFilterDeliversToAll(t *testing.T) {
	bus := New(zap.NewNop())
	rec := &recorder{}

	bus.On(event.NameInvoicePaid, rec.handler("pos", nil), event.OwnedBy("pos"))
	bus.On(event.NameInvoicePaid, rec.handler("salon", nil), event.OwnedBy("salon"))

	require.NoError(t, bus.Emit(context.Background(), invoicePaid()))
	assert.Equal(t, []string{"pos", "salon"}, rec.get())
}

func TestRemoveModule(t *testing.T) {
	bus := New(zap.NewNop())
	rec := &recorder{}

	bus.On(event.NameInvoicePaid, rec.handler("pos-sync", nil), event.OwnedBy("pos"))
	bus.OnAsync(event.NameInvoicePaid, rec.handler("pos-async", nil), event.OwnedBy("pos"))
	bus.On(event.NamePosOrderCompleted, rec.handler("pos-order", nil), event.OwnedBy("pos"))
	bus.On(event.NameInvoicePaid, rec.handler("core", nil))

	require.NoError(t, bus.Emit(context.Background(), invoicePaid()))
	assert.Equal(t, 1, bus.Pending())

	bus.RemoveModule("pos")
	assert.Equal(t, 0, bus.Pending(), "queued tasks of a removed module are purged")
	assert.Equal(t, 1, bus.HandlerCount(event.NameInvoicePaid))
	assert.Equal(t, 0, bus.HandlerCount(event.NamePosOrderCompleted))

	rec.mu.Lock()
	rec.calls = nil
	rec.mu.Unlock()

	require.NoError(t, bus.Emit(context.Background(), invoicePaid()))
	require.NoError(t, bus.Emit(context.Background(), event.PosOrderCompleted{}))
	bus.Flush(context.Background())
	assert.Equal(t, []string{"core"}, rec.get())
}

func TestUnsubscribe(t *testing.T) {
	bus := New(zap.NewNop())
	rec := &recorder{}

	unsubscribe := bus.On(event.NameInvoicePaid, rec.handler("a", nil))
	bus.On(event.NameInvoicePaid, rec.handler("b", nil))
	unsubscribeAsync := bus.OnAsync(event.NameInvoicePaid, rec.handler("c", nil))

	require.NoError(t, bus.Emit(context.Background(), invoicePaid()))
	assert.Equal(t, 1, bus.Pending())

	unsubscribe()
	unsubscribe()
	unsubscribeAsync()
	assert.Equal(t, 0, bus.Pending())
	assert.Equal(t, 1, bus.HandlerCount(event.NameInvoicePaid))

	require.NoError(t, bus.Emit(context.Background(), invoicePaid()))
	assert.Equal(t, []string{"a", "b", "b"}, rec.get())
}

func TestIntrospectionAndReset(t *testing.T) {
	bus := New(zap.NewNop())
	custom, err := event.NewCustom("salon.appointment.booked", map[string]any{"slot": "10:00"})
	require.NoError(t, err)

	bus.On(event.NameInvoicePaid, func(ctx context.Context, evt event.Event) error { return nil })
	bus.OnAsync(custom.Name, func(ctx context.Context, evt event.Event) error { return nil }, event.OwnedBy("salon"))

	assert.Equal(t, []event.Name{event.NameInvoicePaid, custom.Name}, bus.RegisteredEvents())
	require.NoError(t, bus.Emit(context.Background(), custom))
	assert.Equal(t, 1, bus.Pending())

	bus.Reset()
	assert.Empty(t, bus.RegisteredEvents())
	assert.Equal(t, 0, bus.Pending())
}

func TestEmit_TypedHandler(t *testing.T) {
	bus := New(zap.NewNop())
	var total decimal.Decimal

	bus.On(event.NameInvoicePaid, event.Handle(func(ctx context.Context, evt event.InvoicePaid) error {
		total = total.Add(evt.AmountPaid)
		return nil
	}))

	require.NoError(t, bus.Emit(context.Background(), invoicePaid()))
	require.NoError(t, bus.Emit(context.Background(), invoicePaid()))
	assert.True(t, total.Equal(decimal.NewFromInt(500)))
}

func TestBus_WithMetrics(t *testing.T) {
	metrics, err := telemetry.NewModuleMetrics(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	bus := New(zap.NewNop(), WithMetrics(metrics))
	bus.OnAsync(event.NameInvoicePaid, func(ctx context.Context, evt event.Event) error {
		return errors.New("fail")
	})

	require.NoError(t, bus.Emit(context.Background(), invoicePaid()))
	assert.Equal(t, 1, bus.Flush(context.Background()).Failed)
}

func TestNew_NilLogger(t *testing.T) {
	bus := New(nil)
	bus.OnAsync(event.NameInvoicePaid, func(ctx context.Context, evt event.Event) error {
		return errors.New("logged to nop")
	})
	require.NoError(t, bus.Emit(context.Background(), invoicePaid()))
	assert.Equal(t, 1, bus.Flush(context.Background()).Failed)
}
