// Package bus distributes session lifecycle events inside the server process.
// Sessions publish; metrics, the session registry API and the event observer
// subscribe.
package bus

import (
	"fmt"
	"sync/atomic"
	"time"
)

// EventType identifies what happened in a session.
type EventType string

const (
	EventSessionOpened  EventType = "session_opened"
	EventMessageIn      EventType = "message_in"
	EventMessageOut     EventType = "message_out"
	EventSynthesisError EventType = "synthesis_error"
	EventSessionClosed  EventType = "session_closed"
)

// Event is a single session event.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`

	RemoteAddr string `json:"remote_addr,omitempty"`
	Turn       int    `json:"turn,omitempty"`
	Content    string `json:"content,omitempty"`

	// Reply details for message_out.
	Keyword string        `json:"keyword,omitempty"`
	Source  string        `json:"source,omitempty"`
	Final   bool          `json:"final,omitempty"`
	Latency time.Duration `json:"latency_ns,omitempty"`

	// Reason carries the close reason or the recovered error.
	Reason string `json:"reason,omitempty"`
}

var eventIDCounter atomic.Uint64

func generateEventID() string {
	return fmt.Sprintf("evt_%d_%d", time.Now().UnixNano(), eventIDCounter.Add(1))
}

// NewEvent creates an event for sessionID with the current timestamp and a
// generated ID.
func NewEvent(eventType EventType, sessionID string) Event {
	return Event{
		ID:        generateEventID(),
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		SessionID: sessionID,
	}
}

// KnownEventTypes lists every event type a session can publish.
var KnownEventTypes = []EventType{
	EventSessionOpened,
	EventMessageIn,
	EventMessageOut,
	EventSynthesisError,
	EventSessionClosed,
}
