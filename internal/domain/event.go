package domain

import (
	"context"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	EventRequestReceived     EventType = "request.received"
	EventRequestCompleted    EventType = "request.completed"
	EventInvocationStarted   EventType = "invocation.started"
	EventInvocationFinished  EventType = "invocation.finished"
	EventEscalationProposed  EventType = "escalation.proposed"
	EventEscalationDropped   EventType = "escalation.dropped"
	EventFallbackInvoked     EventType = "fallback.invoked"
	EventSweepFired          EventType = "sweep.fired"
)

// Event is a single orchestration event.
type Event struct {
	Type      EventType      `json:"type"`
	SessionID string         `json:"session_id,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	At        time.Time      `json:"at"`
	Data      map[string]any `json:"data,omitempty"`
}

// EventHandler processes a published event.
type EventHandler func(ctx context.Context, event Event)

// EventBus publishes orchestration events to subscribers.
type EventBus interface {
	Publish(ctx context.Context, event Event)
	Subscribe(eventType EventType, handler EventHandler) func()
	SubscribeAll(handler EventHandler) func()
}
