package domain

import "time"

// History actions.
const (
	ActionTicketCreated         = "Ticket created"
	ActionTicketUpdated         = "Ticket updated."
	ActionPublicCommentAdded    = "Public comment added"
	ActionInternalCommentAdded  = "Internal comment added"
	ActionTicketMarkedAbandoned = "Ticket marked as Abandoned"
	DefaultAbandonJustification = "Deletion requested"
)

// HistoryEntry is an immutable audit trail entry owned by a ticket.
type HistoryEntry struct {
	UserID        string
	Action        string
	Details       map[string]any
	Justification string
	CreatedAt     time.Time
}
