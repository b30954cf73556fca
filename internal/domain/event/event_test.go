package event

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCustomName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		module  string
	}{
		{"valid", "salon.appointment.booked", false, "salon"},
		{"underscores", "payroll_timeclock.shift.approved", false, "payroll_timeclock"},
		{"too few segments", "salon.booked", true, ""},
		{"too many segments", "salon.a.b.c", true, ""},
		{"empty segment", "salon..booked", true, ""},
		{"uppercase", "Salon.appointment.booked", true, ""},
		{"core name", "pos.order.completed", true, ""},
		{"reserved module", "core.thing.done", true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			moduleID, _, _, err := ParseCustomName(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidEventName))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.module, moduleID)
		})
	}
}

func TestNewCustom(t *testing.T) {
	evt, err := NewCustom("salon.appointment.booked", nil)
	require.NoError(t, err)
	assert.Equal(t, Name("salon.appointment.booked"), evt.EventName())
	assert.NotNil(t, evt.Payload)

	_, err = NewCustom("bad", nil)
	assert.ErrorIs(t, err, ErrInvalidEventName)
}

func TestCoreVariants(t *testing.T) {
	assert.True(t, IsCore(NameInvoicePaid))
	assert.True(t, IsCore(NameModuleDeactivated))
	assert.False(t, IsCore("salon.appointment.booked"))

	var evt Event = InvoicePaid{InvoiceID: uuid.New(), AmountPaid: decimal.NewFromInt(100)}
	assert.Equal(t, NameInvoicePaid, evt.EventName())
	assert.Equal(t, NameModuleActivated, ModuleActivated{}.EventName())
}

func TestHandle_TypedPayload(t *testing.T) {
	var got decimal.Decimal
	h := Handle(func(ctx context.Context, evt InvoicePaid) error {
		got = evt.AmountPaid
		return nil
	})

	require.NoError(t, h(context.Background(), InvoicePaid{AmountPaid: decimal.NewFromFloat(12.5)}))
	assert.True(t, got.Equal(decimal.NewFromFloat(12.5)))

	err := h(context.Background(), InvoiceVoided{})
	assert.ErrorIs(t, err, ErrPayloadMismatch)
}

func TestSubscribeOptions(t *testing.T) {
	assert.Equal(t, CoreModule, NewSubscribeOptions().ModuleID)
	assert.Equal(t, "pos", NewSubscribeOptions(OwnedBy("pos")).ModuleID)
	assert.Equal(t, CoreModule, NewSubscribeOptions(OwnedBy("")).ModuleID)
}

func TestEmitOptions_Delivers(t *testing.T) {
	open := NewEmitOptions()
	assert.True(t, open.Delivers("pos"))
	assert.True(t, open.Delivers(CoreModule))

	empty := NewEmitOptions(WithActiveModules())
	assert.True(t, empty.Restricted)
	assert.True(t, empty.Delivers(CoreModule))
	assert.False(t, empty.Delivers("pos"))

	some := NewEmitOptions(WithActiveModules("base", "pos"))
	assert.True(t, some.Delivers("pos"))
	assert.False(t, some.Delivers("salon"))
}
