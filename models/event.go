package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of usage event
type EventType string

const (
	// EventTypeAPICall is emitted once per chat completion request
	EventTypeAPICall EventType = "api_call"
)

// Event is a usage/outcome record sent to telemetry sinks
type Event struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	SessionID  string          `json:"sessionId,omitempty" db:"session_id"`
	EventType  EventType       `json:"eventType" db:"event_type"`
	Provider   string          `json:"provider" db:"provider"`
	Success    bool            `json:"success" db:"success"`
	DurationMs int64           `json:"duration" db:"duration_ms"`
	RequestID  string          `json:"requestId,omitempty" db:"request_id"`
	Metadata   json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	Timestamp  time.Time       `json:"timestamp" db:"timestamp"`
}

// TableName returns the table name for the Event model
func (Event) TableName() string {
	return "events"
}

// NewAPICallEvent creates an api_call event for one chat request
func NewAPICallEvent(sessionID, provider string, success bool, duration time.Duration) *Event {
	return &Event{
		ID:         uuid.New(),
		SessionID:  sessionID,
		EventType:  EventTypeAPICall,
		Provider:   provider,
		Success:    success,
		DurationMs: duration.Milliseconds(),
		Timestamp:  time.Now().UTC(),
	}
}

// WithRequestID sets the request ID
func (e *Event) WithRequestID(requestID string) *Event {
	e.RequestID = requestID
	return e
}

// WithMetadata sets free-form metadata. Values that cannot be encoded are dropped.
func (e *Event) WithMetadata(metadata map[string]interface{}) *Event {
	if len(metadata) == 0 {
		return e
	}
	if b, err := json.Marshal(metadata); err == nil {
		e.Metadata = b
	}
	return e
}

// Duration returns DurationMs as a time.Duration
func (e *Event) Duration() time.Duration {
	return time.Duration(e.DurationMs) * time.Millisecond
}
