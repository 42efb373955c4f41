package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// Archive outcomes.
const (
	MessageTicketAbandoned        = "Ticket marked as Abandoned"
	MessageTicketAlreadyAbandoned = "Ticket is already Abandoned"
)

// TicketService coordinates ticket workflows.
type TicketService struct {
	tickets    repository.TicketRepository
	users      repository.UserRepository
	counters   repository.CounterRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// TicketDependencies bundles repositories for ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	UserRepo    repository.UserRepository
	CounterRepo repository.CounterRepository
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Clock       func() time.Time
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	RequesterID string
	AssigneeID  *string
	Priority    domain.TicketPriority
	Module      domain.TicketModule
	Description string
	Tags        []string
}

// TicketUpdate carries the optional changes of an update. Nil pointers and empty
// enum values leave the field untouched. The assignee is tri-state: AssigneeSet false
// keeps it, AssigneeSet with a nil AssigneeID clears it.
type TicketUpdate struct {
	AssigneeSet   bool
	AssigneeID    *string
	Priority      *domain.TicketPriority
	Module        *domain.TicketModule
	Status        *domain.TicketStatus
	Description   *string
	Tags          []string
	ActiveSystem  *bool
	Comment       string
	Justification string
}

// TicketView is a ticket with its user references resolved for presentation.
// Actors is only populated for single-ticket reads.
type TicketView struct {
	Ticket    *domain.Ticket
	Requester *domain.UserRef
	Assignee  *domain.UserRef
	Actors    map[string]domain.UserRef
}

// ArchiveResult reports whether an archive call changed the ticket.
type ArchiveResult struct {
	Ticket  *domain.Ticket
	Changed bool
	Message string
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		users:      deps.UserRepo,
		counters:   deps.CounterRepo,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		now:        clock,
	}
}

// Create opens a ticket in the To Start state with the next sequential id.
func (s *TicketService) Create(ctx context.Context, input TicketCreateInput) (*TicketView, error) {
	ctx, span := observability.Tracer().Start(ctx, "TicketService.Create")
	defer span.End()

	description := strings.TrimSpace(input.Description)
	if description == "" {
		return nil, apperrors.NewValidationError("description is required", map[string]any{"field": "description"})
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": priority})
	}
	if !input.Module.Valid() {
		return nil, apperrors.NewValidationError("invalid module", map[string]any{"module": input.Module})
	}

	if err := s.ensureUser(ctx, "requester", input.RequesterID); err != nil {
		return nil, err
	}
	assignee := normalizeID(input.AssigneeID)
	if assignee != nil {
		if err := s.ensureUser(ctx, "assignee", *assignee); err != nil {
			return nil, err
		}
	}

	seq, err := s.counters.Next(ctx, domain.TicketSequenceName)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	ticket := &domain.Ticket{
		SequentialID: seq,
		RequesterID:  input.RequesterID,
		AssigneeID:   assignee,
		Priority:     priority,
		SLADueDate:   priority.SLADueDate(now),
		Module:       input.Module,
		Status:       domain.TicketStatusToStart,
		ActiveSystem: true,
		Description:  description,
		Tags:         cleanTags(input.Tags),
		CreatedAt:    now,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("ticket.id", ticket.ID), attribute.Int64("ticket.sequential_id", seq))

	s.publishEvent(ctx, events.NewTicketEvent(events.EventTicketCreated, ticket, ticket.RequesterID, now,
		events.TicketCreatedPayload{
			Priority:   ticket.Priority,
			Module:     ticket.Module,
			SLADueDate: ticket.SLADueDate,
		}))

	return s.resolve(ctx, ticket, true)
}

// Get loads one ticket by internal id or by sequential number.
func (s *TicketService) Get(ctx context.Context, ref string) (*TicketView, error) {
	ctx, span := observability.Tracer().Start(ctx, "TicketService.Get")
	defer span.End()

	ticket, err := s.load(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.resolve(ctx, ticket, true)
}

// List returns every ticket, newest first.
func (s *TicketService) List(ctx context.Context) ([]TicketView, error) {
	ctx, span := observability.Tracer().Start(ctx, "TicketService.List")
	defer span.End()

	tickets, err := s.tickets.List(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(tickets)*2)
	for i := range tickets {
		ids = append(ids, tickets[i].RequesterID)
		if tickets[i].AssigneeID != nil {
			ids = append(ids, *tickets[i].AssigneeID)
		}
	}
	refs, err := s.lookupUsers(ctx, ids)
	if err != nil {
		return nil, err
	}

	views := make([]TicketView, 0, len(tickets))
	for i := range tickets {
		ticket := &tickets[i]
		views = append(views, TicketView{
			Ticket:    ticket,
			Requester: refFor(refs, ticket.RequesterID),
			Assignee:  refFor(refs, ticket.AssignedTo()),
		})
	}
	span.SetAttributes(attribute.Int("ticket.count", len(views)))
	return views, nil
}

// Update applies the supplied changes. Assignee, priority, module and status are diffed
// and logged in a single history entry; description, tags and the active flag are not.
func (s *TicketService) Update(ctx context.Context, ref, actorID string, upd TicketUpdate) (*TicketView, error) {
	ctx, span := observability.Tracer().Start(ctx, "TicketService.Update")
	defer span.End()

	ticket, err := s.load(ctx, ref)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("ticket.id", ticket.ID))

	action := domain.ActionTicketUpdated
	details := map[string]any{}

	if upd.AssigneeSet {
		next := normalizeID(upd.AssigneeID)
		if !sameID(ticket.AssigneeID, next) {
			if next != nil {
				if err := s.ensureUser(ctx, "assignee", *next); err != nil {
					return nil, err
				}
			}
			details["assignee_previous"] = idValue(ticket.AssigneeID)
			details["assignee_new"] = idValue(next)
			action += " Assignee changed."
		}
		ticket.AssigneeID = next
	}

	if upd.Priority != nil && *upd.Priority != "" && *upd.Priority != ticket.Priority {
		if !upd.Priority.Valid() {
			return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": *upd.Priority})
		}
		details["priority_previous"] = string(ticket.Priority)
		details["priority_new"] = string(*upd.Priority)
		action += " Priority changed."
		ticket.Priority = *upd.Priority
		ticket.SLADueDate = ticket.Priority.SLADueDate(ticket.CreatedAt)
	}

	if upd.Module != nil && *upd.Module != "" && *upd.Module != ticket.Module {
		if !upd.Module.Valid() {
			return nil, apperrors.NewValidationError("invalid module", map[string]any{"module": *upd.Module})
		}
		details["module_previous"] = string(ticket.Module)
		details["module_new"] = string(*upd.Module)
		action += " Module changed."
		ticket.Module = *upd.Module
	}

	if upd.Status != nil && *upd.Status != "" && *upd.Status != ticket.Status {
		next := *upd.Status
		if !next.Valid() {
			return nil, apperrors.NewValidationError("invalid status", map[string]any{"status": next})
		}
		if !ticket.Status.CanTransitionTo(next) {
			s.logger.Warn("ticket status moved outside the workflow",
				zap.String("ticket_id", ticket.ID),
				zap.String("from", string(ticket.Status)),
				zap.String("to", string(next)),
				zap.String("actor_id", actorID))
		}
		if next.RequiresJustification() && strings.TrimSpace(upd.Justification) == "" {
			s.logger.Warn("ticket status changed without justification",
				zap.String("ticket_id", ticket.ID),
				zap.String("to", string(next)))
		}
		details["status_previous"] = string(ticket.Status)
		details["status_new"] = string(next)
		action += fmt.Sprintf(" Status changed to %s.", next)
		ticket.Status = next
	}

	if upd.Description != nil && strings.TrimSpace(*upd.Description) != "" {
		ticket.Description = strings.TrimSpace(*upd.Description)
	}
	if upd.Tags != nil {
		ticket.Tags = cleanTags(upd.Tags)
	}
	if upd.ActiveSystem != nil {
		ticket.ActiveSystem = *upd.ActiveSystem
	}

	comment := strings.TrimSpace(upd.Comment)
	logged := len(details) > 0 || comment != ""
	var entry domain.HistoryEntry
	if logged {
		justification := comment
		if justification == "" {
			justification = strings.TrimSpace(upd.Justification)
		}
		entry = domain.HistoryEntry{
			UserID:        actorID,
			Action:        action,
			Justification: justification,
			CreatedAt:     s.now().UTC(),
		}
		if len(details) > 0 {
			entry.Details = details
		}
		ticket.AppendHistory(entry)
	}

	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, err
	}

	if logged {
		s.publishEvent(ctx, events.NewTicketEvent(events.EventTicketUpdated, ticket, actorID, entry.CreatedAt,
			events.TicketUpdatedPayload{
				Action:        entry.Action,
				Details:       entry.Details,
				Status:        ticket.Status,
				AssigneeID:    ticket.AssigneeID,
				Justification: entry.Justification,
			}))
	}

	return s.resolve(ctx, ticket, true)
}

// Comment appends a public or internal comment to the ticket history.
func (s *TicketService) Comment(ctx context.Context, ref, actorID, text string, public bool) (*TicketView, error) {
	ctx, span := observability.Tracer().Start(ctx, "TicketService.Comment")
	defer span.End()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.NewValidationError("comment is required", map[string]any{"field": "comment"})
	}

	ticket, err := s.load(ctx, ref)
	if err != nil {
		return nil, err
	}

	action := domain.ActionInternalCommentAdded
	if public {
		action = domain.ActionPublicCommentAdded
	}
	now := s.now().UTC()
	ticket.AppendHistory(domain.HistoryEntry{
		UserID:    actorID,
		Action:    action,
		Details:   map[string]any{"comment": text},
		CreatedAt: now,
	})
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.NewTicketEvent(events.EventTicketCommented, ticket, actorID, now,
		events.TicketCommentedPayload{Public: public, BodyPreview: preview(text, 140)}))

	return s.resolve(ctx, ticket, true)
}

// Archive soft-deletes a ticket by moving it to Abandoned. Archiving an abandoned
// ticket changes nothing.
func (s *TicketService) Archive(ctx context.Context, ref, actorID, justification string) (*ArchiveResult, error) {
	ctx, span := observability.Tracer().Start(ctx, "TicketService.Archive")
	defer span.End()

	ticket, err := s.load(ctx, ref)
	if err != nil {
		return nil, err
	}
	if ticket.Status == domain.TicketStatusAbandoned {
		return &ArchiveResult{Ticket: ticket, Changed: false, Message: MessageTicketAlreadyAbandoned}, nil
	}

	justification = strings.TrimSpace(justification)
	if justification == "" {
		justification = domain.DefaultAbandonJustification
	}

	previous := ticket.Status
	now := s.now().UTC()
	ticket.Status = domain.TicketStatusAbandoned
	ticket.AppendHistory(domain.HistoryEntry{
		UserID:        actorID,
		Action:        domain.ActionTicketMarkedAbandoned,
		Justification: justification,
		CreatedAt:     now,
	})
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.NewTicketEvent(events.EventTicketAbandoned, ticket, actorID, now,
		events.TicketAbandonedPayload{PreviousStatus: previous, Justification: justification}))

	return &ArchiveResult{Ticket: ticket, Changed: true, Message: MessageTicketAbandoned}, nil
}

func (s *TicketService) load(ctx context.Context, ref string) (*domain.Ticket, error) {
	ref = strings.TrimSpace(ref)
	var (
		ticket *domain.Ticket
		err    error
	)
	if _, parseErr := uuid.Parse(ref); parseErr == nil {
		ticket, err = s.tickets.GetByID(ctx, ref)
	} else if seq, convErr := strconv.ParseInt(ref, 10, 64); convErr == nil && seq > 0 {
		ticket, err = s.tickets.GetBySequentialID(ctx, seq)
	} else {
		err = pgx.ErrNoRows
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"id": ref})
	}
	return ticket, err
}

func (s *TicketService) ensureUser(ctx context.Context, role, id string) error {
	if strings.TrimSpace(id) == "" {
		return apperrors.NewValidationError(role+" is required", map[string]any{"field": role + "Id"})
	}
	_, err := s.users.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewNotFound(role, map[string]any{"id": id})
	}
	return err
}

func (s *TicketService) resolve(ctx context.Context, ticket *domain.Ticket, withActors bool) (*TicketView, error) {
	ids := []string{ticket.RequesterID}
	if ticket.AssigneeID != nil {
		ids = append(ids, *ticket.AssigneeID)
	}
	history := ticket.History()
	if withActors {
		for _, entry := range history {
			ids = append(ids, entry.UserID)
		}
	}

	refs, err := s.lookupUsers(ctx, ids)
	if err != nil {
		return nil, err
	}

	view := &TicketView{
		Ticket:    ticket,
		Requester: refFor(refs, ticket.RequesterID),
		Assignee:  refFor(refs, ticket.AssignedTo()),
	}
	if withActors {
		view.Actors = make(map[string]domain.UserRef, len(history))
		for _, entry := range history {
			if ref, ok := refs[entry.UserID]; ok {
				view.Actors[entry.UserID] = ref
			}
		}
	}
	return view, nil
}

func (s *TicketService) lookupUsers(ctx context.Context, ids []string) (map[string]domain.UserRef, error) {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	refs := make(map[string]domain.UserRef, len(unique))
	if len(unique) == 0 {
		return refs, nil
	}
	users, err := s.users.ListByIDs(ctx, unique)
	if err != nil {
		return nil, err
	}
	for i := range users {
		refs[users[i].ID] = users[i].Ref()
	}
	return refs, nil
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("publish event failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

func refFor(refs map[string]domain.UserRef, id string) *domain.UserRef {
	if id == "" {
		return nil
	}
	ref, ok := refs[id]
	if !ok {
		return nil
	}
	return &ref
}

func normalizeID(id *string) *string {
	if id == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*id)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func sameID(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func idValue(id *string) any {
	if id == nil {
		return nil
	}
	return *id
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

func preview(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "…"
}
