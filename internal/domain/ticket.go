package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusToStart   TicketStatus = "To Start"
	TicketStatusStarted   TicketStatus = "Started"
	TicketStatusWaitingA  TicketStatus = "Waiting-A"
	TicketStatusWaitingB  TicketStatus = "Waiting-B"
	TicketStatusCompleted TicketStatus = "Completed"
	TicketStatusAbandoned TicketStatus = "Abandoned"
)

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityHigh   TicketPriority = "High"
	TicketPriorityMedium TicketPriority = "Medium"
	TicketPriorityLow    TicketPriority = "Low"
)

// TicketModule categorizes the area a ticket concerns.
type TicketModule string

const (
	TicketModuleSystem         TicketModule = "System"
	TicketModuleFinancial      TicketModule = "Financial"
	TicketModuleSupport        TicketModule = "Support"
	TicketModuleAdministrative TicketModule = "Administrative"
	TicketModuleOther          TicketModule = "Other"
)

// TicketSequenceName is the counter used for human-facing ticket numbers.
const TicketSequenceName = "ticketId"

var slaDays = map[TicketPriority]int{
	TicketPriorityHigh:   1,
	TicketPriorityMedium: 3,
	TicketPriorityLow:    7,
}

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	_, ok := slaDays[p]
	return ok
}

// SLADueDate returns the deadline for a ticket of this priority created at createdAt.
// Unknown priorities get the longest window.
func (p TicketPriority) SLADueDate(createdAt time.Time) time.Time {
	days, ok := slaDays[p]
	if !ok {
		days = slaDays[TicketPriorityLow]
	}
	return createdAt.AddDate(0, 0, days)
}

// Valid reports whether m is a known module.
func (m TicketModule) Valid() bool {
	switch m {
	case TicketModuleSystem, TicketModuleFinancial, TicketModuleSupport, TicketModuleAdministrative, TicketModuleOther:
		return true
	}
	return false
}

var allowedTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusToStart:   {TicketStatusStarted, TicketStatusAbandoned},
	TicketStatusStarted:   {TicketStatusWaitingA, TicketStatusAbandoned},
	TicketStatusWaitingA:  {TicketStatusWaitingB, TicketStatusAbandoned},
	TicketStatusWaitingB:  {TicketStatusCompleted, TicketStatusAbandoned},
	TicketStatusCompleted: {},
	TicketStatusAbandoned: {},
}

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// Terminal reports whether s ends the normal workflow.
func (s TicketStatus) Terminal() bool {
	return s == TicketStatusCompleted || s == TicketStatusAbandoned
}

// CanTransitionTo reports whether moving from s to next follows the documented workflow.
// Callers currently apply illegal transitions anyway; this only classifies them.
func (s TicketStatus) CanTransitionTo(next TicketStatus) bool {
	for _, candidate := range allowedTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// RequiresJustification reports whether moving into s is expected to carry a justification.
func (s TicketStatus) RequiresJustification() bool {
	return s.Terminal()
}

// Ticket is the aggregate for support requests. Its history is append-only and can only
// grow through AppendHistory.
type Ticket struct {
	ID           string
	SequentialID int64
	RequesterID  string
	AssigneeID   *string
	Priority     TicketPriority
	SLADueDate   time.Time
	Module       TicketModule
	Status       TicketStatus
	ActiveSystem bool
	Description  string
	Attachments  []Attachment
	Tags         []string
	CreatedAt    time.Time
	UpdatedAt    time.Time

	history []HistoryEntry
	pending int
}

// History returns a copy of the ticket's audit trail in insertion order.
func (t *Ticket) History() []HistoryEntry {
	out := make([]HistoryEntry, len(t.history))
	copy(out, t.history)
	return out
}

// AppendHistory adds an entry to the end of the audit trail.
func (t *Ticket) AppendHistory(entry HistoryEntry) {
	t.history = append(t.history, entry)
	t.pending++
}

// PendingHistory returns entries appended since the ticket was loaded or last persisted.
func (t *Ticket) PendingHistory() []HistoryEntry {
	start := len(t.history) - t.pending
	out := make([]HistoryEntry, t.pending)
	copy(out, t.history[start:])
	return out
}

// MarkHistoryPersisted is called by storage once pending entries are durable.
func (t *Ticket) MarkHistoryPersisted() {
	t.pending = 0
}

// LoadHistory rehydrates the audit trail from storage. It replaces nothing once entries exist.
func (t *Ticket) LoadHistory(entries []HistoryEntry) {
	if len(t.history) > 0 {
		return
	}
	t.history = append([]HistoryEntry(nil), entries...)
	t.pending = 0
}

// RecordCreation appends the "ticket created" entry. It only has an effect on a ticket
// with no history, so repeated saves never duplicate it.
func (t *Ticket) RecordCreation(at time.Time) {
	if len(t.history) > 0 {
		return
	}
	t.AppendHistory(HistoryEntry{
		UserID: t.RequesterID,
		Action: ActionTicketCreated,
		Details: map[string]any{
			"status":   string(t.Status),
			"priority": string(t.Priority),
			"module":   string(t.Module),
		},
		CreatedAt: at,
	})
}

// AssignedTo returns the assignee id or an empty string.
func (t *Ticket) AssignedTo() string {
	if t.AssigneeID == nil {
		return ""
	}
	return *t.AssigneeID
}

// Clone returns a deep copy that shares no slices with t.
func (t *Ticket) Clone() *Ticket {
	c := *t
	if t.AssigneeID != nil {
		id := *t.AssigneeID
		c.AssigneeID = &id
	}
	c.Attachments = append([]Attachment(nil), t.Attachments...)
	c.Tags = append([]string(nil), t.Tags...)
	c.history = t.History()
	return &c
}
