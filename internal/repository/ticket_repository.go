package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// TicketRepository encapsulates ticket persistence. History is stored inside the ticket row
// and only ever grows: Update appends the ticket's pending entries and never rewrites old ones.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetBySequentialID(ctx context.Context, sequentialID int64) (*domain.Ticket, error)
	List(ctx context.Context) ([]domain.Ticket, error)
	MaxSequentialID(ctx context.Context) (int64, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, sequential_id, requester_id, assignee_id, priority, sla_due_date, module, status,
               active_system, description, attachments, tags, history, created_at, updated_at`

type historyRecord struct {
	UserID        string         `json:"user_id,omitempty"`
	Action        string         `json:"action"`
	Details       map[string]any `json:"details,omitempty"`
	Justification string         `json:"justification,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Create appends the creation entry and inserts the ticket.
func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (id, sequential_id, requester_id, assignee_id, priority, sla_due_date, module, status,
                             active_system, description, attachments, tags, history, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11::jsonb,$12,$13::jsonb,$14,$15)`

	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = time.Now().UTC()
	}
	ticket.UpdatedAt = ticket.CreatedAt
	ticket.RecordCreation(ticket.CreatedAt)

	attachments, err := encodeAttachments(ticket.Attachments)
	if err != nil {
		return err
	}
	history, err := encodeHistory(ticket.History())
	if err != nil {
		return err
	}

	if _, err := r.pool.Exec(ctx, query,
		ticket.ID,
		ticket.SequentialID,
		ticket.RequesterID,
		ticket.AssigneeID,
		ticket.Priority,
		ticket.SLADueDate,
		ticket.Module,
		ticket.Status,
		ticket.ActiveSystem,
		ticket.Description,
		attachments,
		nonNilTags(ticket.Tags),
		history,
		ticket.CreatedAt,
		ticket.UpdatedAt,
	); err != nil {
		return err
	}
	ticket.MarkHistoryPersisted()
	return nil
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET assignee_id=$1, priority=$2, sla_due_date=$3, module=$4, status=$5,
            active_system=$6, description=$7, tags=$8, history = history || $9::jsonb, updated_at=NOW()
        WHERE id=$10
        RETURNING updated_at`

	pending, err := encodeHistory(ticket.PendingHistory())
	if err != nil {
		return err
	}

	if err := r.pool.QueryRow(ctx, query,
		ticket.AssigneeID,
		ticket.Priority,
		ticket.SLADueDate,
		ticket.Module,
		ticket.Status,
		ticket.ActiveSystem,
		ticket.Description,
		nonNilTags(ticket.Tags),
		pending,
		ticket.ID,
	).Scan(&ticket.UpdatedAt); err != nil {
		return err
	}
	ticket.MarkHistoryPersisted()
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, pgx.ErrNoRows
	}
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetBySequentialID(ctx context.Context, sequentialID int64) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE sequential_id=$1`
	return r.fetchSingle(ctx, query, sequentialID)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tickets, err := scanTickets(rows)
	if err != nil {
		return nil, err
	}
	if len(tickets) == 0 {
		return nil, pgx.ErrNoRows
	}
	return &tickets[0], nil
}

func (r *ticketRepository) List(ctx context.Context) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

// MaxSequentialID returns the highest ticket number issued so far, or 0 when there are no tickets.
func (r *ticketRepository) MaxSequentialID(ctx context.Context) (int64, error) {
	var highest int64
	if err := r.pool.QueryRow(ctx, `SELECT COALESCE(MAX(sequential_id), 0) FROM tickets`).Scan(&highest); err != nil {
		return 0, fmt.Errorf("max ticket number: %w", err)
	}
	return highest, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var (
			ticket      domain.Ticket
			attachments []byte
			history     []byte
		)
		if err := rows.Scan(
			&ticket.ID,
			&ticket.SequentialID,
			&ticket.RequesterID,
			&ticket.AssigneeID,
			&ticket.Priority,
			&ticket.SLADueDate,
			&ticket.Module,
			&ticket.Status,
			&ticket.ActiveSystem,
			&ticket.Description,
			&attachments,
			&ticket.Tags,
			&history,
			&ticket.CreatedAt,
			&ticket.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if len(attachments) > 0 {
			if err := json.Unmarshal(attachments, &ticket.Attachments); err != nil {
				return nil, fmt.Errorf("decode attachments of ticket %s: %w", ticket.ID, err)
			}
		}
		entries, err := decodeHistory(history)
		if err != nil {
			return nil, fmt.Errorf("decode history of ticket %s: %w", ticket.ID, err)
		}
		ticket.LoadHistory(entries)
		result = append(result, ticket)
	}
	return result, rows.Err()
}

func encodeHistory(entries []domain.HistoryEntry) (string, error) {
	records := make([]historyRecord, 0, len(entries))
	for _, entry := range entries {
		records = append(records, historyRecord{
			UserID:        entry.UserID,
			Action:        entry.Action,
			Details:       entry.Details,
			Justification: entry.Justification,
			CreatedAt:     entry.CreatedAt,
		})
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("encode history: %w", err)
	}
	return string(raw), nil
}

func decodeHistory(raw []byte) ([]domain.HistoryEntry, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var records []historyRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, err
	}
	entries := make([]domain.HistoryEntry, 0, len(records))
	for _, record := range records {
		entries = append(entries, domain.HistoryEntry{
			UserID:        record.UserID,
			Action:        record.Action,
			Details:       record.Details,
			Justification: record.Justification,
			CreatedAt:     record.CreatedAt,
		})
	}
	return entries, nil
}

func encodeAttachments(attachments []domain.Attachment) (string, error) {
	if attachments == nil {
		attachments = []domain.Attachment{}
	}
	raw, err := json.Marshal(attachments)
	if err != nil {
		return "", fmt.Errorf("encode attachments: %w", err)
	}
	return string(raw), nil
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
