package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated   EventType = "ticket_created"
	EventTicketUpdated   EventType = "ticket_updated"
	EventTicketCommented EventType = "ticket_commented"
	EventTicketAbandoned EventType = "ticket_abandoned"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID           string      `json:"id"`
	Type         EventType   `json:"type"`
	TicketID     string      `json:"ticket_id"`
	SequentialID int64       `json:"sequential_id"`
	ActorID      string      `json:"actor_id"`
	RequesterID  string      `json:"requester_id"`
	AssigneeID   *string     `json:"assignee_id,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
	Payload      interface{} `json:"payload"`
}

// NewTicketEvent stamps an event for the given ticket.
func NewTicketEvent(eventType EventType, ticket *domain.Ticket, actorID string, at time.Time, payload interface{}) Event {
	return Event{
		ID:           uuid.NewString(),
		Type:         eventType,
		TicketID:     ticket.ID,
		SequentialID: ticket.SequentialID,
		ActorID:      actorID,
		RequesterID:  ticket.RequesterID,
		AssigneeID:   ticket.AssigneeID,
		Timestamp:    at,
		Payload:      payload,
	}
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Priority   domain.TicketPriority `json:"priority"`
	Module     domain.TicketModule   `json:"module"`
	SLADueDate time.Time             `json:"sla_due_date"`
}

// TicketUpdatedPayload carries the logged diff of an update.
type TicketUpdatedPayload struct {
	Action        string              `json:"action"`
	Details       map[string]any      `json:"details,omitempty"`
	Status        domain.TicketStatus `json:"status"`
	AssigneeID    *string             `json:"assignee_id,omitempty"`
	Justification string              `json:"justification,omitempty"`
}

// TicketCommentedPayload payload.
type TicketCommentedPayload struct {
	Public      bool   `json:"public"`
	BodyPreview string `json:"body_preview"`
}

// TicketAbandonedPayload payload.
type TicketAbandonedPayload struct {
	PreviousStatus domain.TicketStatus `json:"previous_status"`
	Justification  string              `json:"justification"`
}
