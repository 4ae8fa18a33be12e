package events

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_SubscribeReceivesOnlyItsEventType(t *testing.T) {
	bus := NewBus()
	var gotOrder, gotRisk int
	bus.Subscribe(OrderPlaced, func(Event) { gotOrder++ })
	bus.Subscribe(RiskBlocked, func(Event) { gotRisk++ })

	bus.Emit(Event{Type: OrderPlaced})
	bus.Emit(Event{Type: OrderPlaced})
	bus.Emit(Event{Type: RiskBlocked})

	assert.Equal(t, 2, gotOrder)
	assert.Equal(t, 1, gotRisk)
}

func TestBus_WildcardReceivesEveryEvent(t *testing.T) {
	bus := NewBus()
	var seen []EventType
	bus.SubscribeAll(func(e Event) { seen = append(seen, e.Type) })

	bus.Emit(Event{Type: OrderPlaced})
	bus.Emit(Event{Type: GlobalStop})

	require.Len(t, seen, 2)
	assert.Equal(t, OrderPlaced, seen[0])
	assert.Equal(t, GlobalStop, seen[1])
}

func TestManager_EmitPublishesOnUnderlyingBus(t *testing.T) {
	bus := NewBus()
	mgr := NewManager(bus, zerolog.Nop())

	var gotModule string
	var gotData map[string]interface{}
	mgr.Subscribe(OrderFailed, func(e Event) {
		gotModule = e.Module
		gotData = e.Data
	})

	mgr.Emit(OrderFailed, "engine", map[string]interface{}{"reason": "broker rejected"})

	assert.Equal(t, "engine", gotModule)
	assert.Equal(t, "broker rejected", gotData["reason"])
}

func TestManager_SubscribeAllReceivesEveryEmittedEvent(t *testing.T) {
	bus := NewBus()
	mgr := NewManager(bus, zerolog.Nop())

	count := 0
	mgr.SubscribeAll(func(Event) { count++ })

	mgr.Emit(OrderPlaced, "engine", nil)
	mgr.Emit(RiskBlocked, "risk", nil)

	assert.Equal(t, 2, count)
}
