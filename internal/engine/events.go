package engine

import "time"

// Event names published by the Engine.
const (
	EventLoadStart       = "engine_load_start"
	EventLoadReady       = "engine_load_ready"
	EventLoadFailed      = "engine_load_failed"
	EventSynthesisDone   = "synthesis_done"
	EventSynthesisFailed = "synthesis_failed"
)

// Event represents an engine lifecycle event.
// Minimal and stable: name, optional voice and free-form fields.
type Event struct {
	Name   string
	Voice  string
	Time   time.Time
	Fields map[string]any
}

// EventPublisher receives events from the engine. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
