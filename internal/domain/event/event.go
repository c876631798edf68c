package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/excise-workflow/internal/domain/entity"
)

// Payload keys set by the workflow service
const (
	KeyFromStage   = "from_stage"
	KeyToStage     = "to_stage"
	KeyUserID      = "user_id"
	KeyRole        = "role"
	KeyRemarks     = "remarks"
	KeyObjections  = "objections"
	KeyWorkflow    = "workflow"
	KeyTransaction = "transaction_id"
)

// Event represents a domain event emitted after a committed workflow move
type Event struct {
	ID            string         `json:"id"`
	Type          Type           `json:"type"`
	Application   entity.AppRef  `json:"application"`
	Payload       map[string]any `json:"payload"`
	Timestamp     time.Time      `json:"timestamp"`
	CorrelationID string         `json:"correlation_id"`
}

// NewEvent creates a new domain event with a generated ID and timestamp
func NewEvent(eventType Type, app entity.AppRef, payload map[string]any) *Event {
	return NewEventWithCorrelation(eventType, app, payload, uuid.NewString())
}

// NewEventWithCorrelation creates an event linked to a correlation chain,
// typically the request id of the HTTP call that caused it
func NewEventWithCorrelation(eventType Type, app entity.AppRef, payload map[string]any, correlationID string) *Event {
	if payload == nil {
		payload = map[string]any{}
	}
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		Application:   app,
		Payload:       payload,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
	}
}

// WithPayload returns a copy of the event with an added payload entry
func (e *Event) WithPayload(key string, value any) *Event {
	newPayload := make(map[string]any, len(e.Payload)+1)
	for k, v := range e.Payload {
		newPayload[k] = v
	}
	newPayload[key] = value

	cp := *e
	cp.Payload = newPayload
	return &cp
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// GetPayloadInt retrieves an int64 value from the payload
func (e *Event) GetPayloadInt(key string) int64 {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case int64:
			return v
		case int:
			return int64(v)
		case float64:
			return int64(v)
		}
	}
	return 0
}
