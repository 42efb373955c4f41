package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

// CreateTicketRequest payload. An empty requesterId means the caller.
type CreateTicketRequest struct {
	RequesterID string   `json:"requesterId"`
	AssigneeID  *string  `json:"assigneeId"`
	Priority    string   `json:"priority" validate:"omitempty,priority"`
	Module      string   `json:"module" validate:"required,module"`
	Description string   `json:"description" validate:"required"`
	Tags        []string `json:"tags"`
}

// ToInput converts the request for the ticket service.
func (r CreateTicketRequest) ToInput(callerID string) service.TicketCreateInput {
	requester := r.RequesterID
	if requester == "" {
		requester = callerID
	}
	return service.TicketCreateInput{
		RequesterID: requester,
		AssigneeID:  r.AssigneeID,
		Priority:    domain.TicketPriority(r.Priority),
		Module:      domain.TicketModule(r.Module),
		Description: r.Description,
		Tags:        r.Tags,
	}
}

// UpdateTicketRequest payload. Every field is optional; assigneeId may be null to unassign.
type UpdateTicketRequest struct {
	AssigneeID    OptionalString `json:"assigneeId"`
	Priority      *string        `json:"priority" validate:"omitempty,priority"`
	Module        *string        `json:"module" validate:"omitempty,module"`
	Status        *string        `json:"status" validate:"omitempty,status"`
	Description   *string        `json:"description"`
	Tags          []string       `json:"tags"`
	ActiveSystem  *bool          `json:"activeSystem"`
	Comment       string         `json:"comment"`
	Justification string         `json:"justification"`
}

// ToUpdate converts the request for the ticket service.
func (r UpdateTicketRequest) ToUpdate() service.TicketUpdate {
	upd := service.TicketUpdate{
		AssigneeSet:   r.AssigneeID.Set,
		AssigneeID:    r.AssigneeID.Value,
		Description:   r.Description,
		Tags:          r.Tags,
		ActiveSystem:  r.ActiveSystem,
		Comment:       r.Comment,
		Justification: r.Justification,
	}
	if r.Priority != nil {
		p := domain.TicketPriority(*r.Priority)
		upd.Priority = &p
	}
	if r.Module != nil {
		m := domain.TicketModule(*r.Module)
		upd.Module = &m
	}
	if r.Status != nil {
		s := domain.TicketStatus(*r.Status)
		upd.Status = &s
	}
	return upd
}

// CommentRequest payload.
type CommentRequest struct {
	Comment string `json:"comment" validate:"required"`
	Public  bool   `json:"public"`
}

// ArchiveRequest payload. The body is optional.
type ArchiveRequest struct {
	Justification string `json:"justification"`
}

// UserRefResponse is a referenced user as shown inside tickets.
type UserRefResponse struct {
	ID    string      `json:"id"`
	Name  string      `json:"name"`
	Email string      `json:"email"`
	Role  domain.Role `json:"role,omitempty"`
}

// HistoryEntryResponse is one audit trail line.
type HistoryEntryResponse struct {
	UserID        string           `json:"userId"`
	User          *UserRefResponse `json:"user,omitempty"`
	Action        string           `json:"action"`
	Details       map[string]any   `json:"details,omitempty"`
	Justification string           `json:"justification,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
}

// AttachmentResponse metadata.
type AttachmentResponse struct {
	FileName   string    `json:"fileName"`
	FilePath   string    `json:"filePath"`
	FileType   string    `json:"fileType"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// TicketResponse provides full ticket info.
type TicketResponse struct {
	ID           string                 `json:"id"`
	SequentialID int64                  `json:"sequentialId"`
	RequesterID  string                 `json:"requesterId"`
	Requester    *UserRefResponse       `json:"requester,omitempty"`
	AssigneeID   *string                `json:"assigneeId"`
	Assignee     *UserRefResponse       `json:"assignee,omitempty"`
	Priority     domain.TicketPriority  `json:"priority"`
	SLADueDate   time.Time              `json:"slaDueDate"`
	Module       domain.TicketModule    `json:"module"`
	Status       domain.TicketStatus    `json:"status"`
	ActiveSystem bool                   `json:"activeSystem"`
	Description  string                 `json:"description"`
	Attachments  []AttachmentResponse   `json:"attachments"`
	Tags         []string               `json:"tags"`
	History      []HistoryEntryResponse `json:"history"`
	CreatedAt    time.Time              `json:"createdAt"`
	UpdatedAt    time.Time              `json:"updatedAt"`
}

// ArchiveResponse reports the outcome of a delete request.
type ArchiveResponse struct {
	Message  string              `json:"message"`
	Changed  bool                `json:"changed"`
	TicketID string              `json:"ticketId"`
	Status   domain.TicketStatus `json:"status"`
}

// NewTicketResponse maps a resolved ticket. Single-ticket views carry the referenced
// users' roles; list views only carry name and email.
func NewTicketResponse(view *service.TicketView, detailed bool) TicketResponse {
	t := view.Ticket
	resp := TicketResponse{
		ID:           t.ID,
		SequentialID: t.SequentialID,
		RequesterID:  t.RequesterID,
		Requester:    userRef(view.Requester, detailed),
		AssigneeID:   t.AssigneeID,
		Assignee:     userRef(view.Assignee, detailed),
		Priority:     t.Priority,
		SLADueDate:   t.SLADueDate,
		Module:       t.Module,
		Status:       t.Status,
		ActiveSystem: t.ActiveSystem,
		Description:  t.Description,
		Attachments:  make([]AttachmentResponse, 0, len(t.Attachments)),
		Tags:         t.Tags,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
	if resp.Tags == nil {
		resp.Tags = []string{}
	}
	for _, a := range t.Attachments {
		resp.Attachments = append(resp.Attachments, AttachmentResponse(a))
	}

	history := t.History()
	resp.History = make([]HistoryEntryResponse, 0, len(history))
	for _, entry := range history {
		item := HistoryEntryResponse{
			UserID:        entry.UserID,
			Action:        entry.Action,
			Details:       entry.Details,
			Justification: entry.Justification,
			CreatedAt:     entry.CreatedAt,
		}
		if actor, ok := view.Actors[entry.UserID]; ok {
			item.User = userRef(&actor, false)
		}
		resp.History = append(resp.History, item)
	}
	return resp
}

// NewTicketListResponse maps a list of resolved tickets.
func NewTicketListResponse(views []service.TicketView) []TicketResponse {
	out := make([]TicketResponse, 0, len(views))
	for i := range views {
		out = append(out, NewTicketResponse(&views[i], false))
	}
	return out
}

// NewArchiveResponse maps an archive outcome.
func NewArchiveResponse(result *service.ArchiveResult) ArchiveResponse {
	return ArchiveResponse{
		Message:  result.Message,
		Changed:  result.Changed,
		TicketID: result.Ticket.ID,
		Status:   result.Ticket.Status,
	}
}

func userRef(ref *domain.UserRef, withRole bool) *UserRefResponse {
	if ref == nil {
		return nil
	}
	out := &UserRefResponse{ID: ref.ID, Name: ref.Name, Email: ref.Email}
	if withRole {
		out.Role = ref.Role
	}
	return out
}
