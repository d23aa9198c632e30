package events

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusEmitReachesSubscribedType(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var received []*Event
	bus.Subscribe(PriceUpdated, func(e *Event) { received = append(received, e) })

	bus.Emit(PriceUpdated, "test", map[string]interface{}{"symbols": []string{"BTC"}})
	bus.Emit(FxRateUpdated, "test", nil) // different type, not delivered

	require.Len(t, received, 1)
	assert.Equal(t, PriceUpdated, received[0].Type)
	assert.Equal(t, "test", received[0].Module)
	assert.False(t, received[0].Timestamp.IsZero())
}

func TestBusSubscribeAllReceivesEveryType(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	seen := make(map[EventType]int)
	bus.SubscribeAll(func(e *Event) { seen[e.Type]++ })

	types := []EventType{
		PortfolioChanged,
		PriceUpdated,
		FxRateUpdated,
		TransactionRecorded,
		StoreReset,
		SystemStatusChanged,
		ErrorOccurred,
	}
	for _, eventType := range types {
		bus.Emit(eventType, "test", nil)
	}

	for _, eventType := range types {
		assert.Equal(t, 1, seen[eventType], "missing delivery for %s", eventType)
	}
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var received int
	unsubscribe := bus.Subscribe(PriceUpdated, func(e *Event) { received++ })

	bus.Emit(PriceUpdated, "test", nil)
	assert.Equal(t, 1, received)

	unsubscribe()
	bus.Emit(PriceUpdated, "test", nil)
	assert.Equal(t, 1, received)

	// Unsubscribing twice is harmless.
	assert.NotPanics(t, unsubscribe)
}

func TestBusSubscribeAllUnsubscribeRemovesEveryType(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var received int
	unsubscribe := bus.SubscribeAll(func(e *Event) { received++ })

	bus.Emit(PortfolioChanged, "test", nil)
	bus.Emit(StoreReset, "test", nil)
	assert.Equal(t, 2, received)

	unsubscribe()
	bus.Emit(PortfolioChanged, "test", nil)
	bus.Emit(ErrorOccurred, "test", nil)
	assert.Equal(t, 2, received)
}

func TestBusHandlerPanicIsIsolated(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var secondCalled bool
	bus.Subscribe(StoreReset, func(e *Event) { panic("broken handler") })
	bus.Subscribe(StoreReset, func(e *Event) { secondCalled = true })

	assert.NotPanics(t, func() {
		bus.Emit(StoreReset, "test", nil)
	})
	assert.True(t, secondCalled)
}

func TestManagerEmitTypedConvertsPayload(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	manager := NewManager(bus, zerolog.Nop())

	var received *Event
	bus.Subscribe(PortfolioChanged, func(e *Event) { received = e })

	manager.EmitTyped(PortfolioChanged, "store", &PortfolioChangedData{
		AssetCount: 3,
		Trigger:    "commit",
	})

	require.NotNil(t, received)
	assert.Equal(t, "store", received.Module)
	assert.Equal(t, float64(3), received.Data["asset_count"])
	assert.Equal(t, "commit", received.Data["trigger"])
}

func TestManagerEmitError(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	manager := NewManager(bus, zerolog.Nop())

	var received *Event
	bus.Subscribe(ErrorOccurred, func(e *Event) { received = e })

	manager.EmitError("price_sync", assert.AnError, map[string]interface{}{"symbol": "BTC"})

	require.NotNil(t, received)
	assert.Equal(t, ErrorOccurred, received.Type)
	assert.Equal(t, assert.AnError.Error(), received.Data["error"])
}
