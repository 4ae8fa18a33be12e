package events

import (
	"github.com/rs/zerolog"
)

// Manager wraps a Bus with structured logging, the way trader's
// internal/events.Manager wraps its Bus: every emitted event is logged at
// debug level with its type and module before being published.
type Manager struct {
	bus *Bus
	log zerolog.Logger
}

// NewManager creates a Manager over bus.
func NewManager(bus *Bus, log zerolog.Logger) *Manager {
	return &Manager{
		bus: bus,
		log: log.With().Str("component", "events").Logger(),
	}
}

// Emit builds and publishes an Event.
func (m *Manager) Emit(eventType EventType, module string, data map[string]interface{}) {
	e := Event{Type: eventType, Module: module, Data: data}
	m.log.Debug().
		Str("event_type", string(eventType)).
		Str("module", module).
		Msg("event emitted")
	m.bus.Emit(e)
}

// Subscribe registers handler for events of type t.
func (m *Manager) Subscribe(t EventType, handler Handler) {
	m.bus.Subscribe(t, handler)
}

// SubscribeAll registers handler for every event.
func (m *Manager) SubscribeAll(handler Handler) {
	m.bus.SubscribeAll(handler)
}
