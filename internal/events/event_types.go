package events

import (
	"time"

	"github.com/spec-kit/ticket-triage/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated          EventType = "ticket_created"
	EventTicketUpdated          EventType = "ticket_updated"
	EventTicketStatusChanged    EventType = "ticket_status_changed"
	EventTicketDeleted          EventType = "ticket_deleted"
	EventTicketSuggestionStored EventType = "ticket_suggestion_stored"
)

// AllEventTypes lists every event the service emits.
var AllEventTypes = []EventType{
	EventTicketCreated,
	EventTicketUpdated,
	EventTicketStatusChanged,
	EventTicketDeleted,
	EventTicketSuggestionStored,
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  int64       `json:"ticket_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Title        string                `json:"title"`
	UserCategory domain.TicketCategory `json:"user_category"`
	UserPriority domain.TicketPriority `json:"user_priority"`
}

// TicketUpdatedPayload lists the fields a patch touched.
type TicketUpdatedPayload struct {
	Fields []string `json:"fields"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// TicketSuggestionStoredPayload carries the values written to ai_category / ai_priority.
type TicketSuggestionStoredPayload struct {
	AICategory domain.TicketCategory `json:"ai_category"`
	AIPriority domain.TicketPriority `json:"ai_priority"`
}
