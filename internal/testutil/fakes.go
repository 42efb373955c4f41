// Package testutil provides in-memory repository fakes for service and handler tests.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

// UserStore is an in-memory repository.UserRepository.
type UserStore struct {
	mu    sync.Mutex
	users map[string]domain.User
}

// NewUserStore returns an empty store.
func NewUserStore() *UserStore {
	return &UserStore{users: map[string]domain.User{}}
}

func (s *UserStore) Create(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user.Email = repository.NormalizeEmail(user.Email)
	for _, existing := range s.users {
		if existing.Email == user.Email {
			return repository.ErrDuplicateEmail
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.users[user.ID] = *user
	return nil
}

// Seed stores a user directly and returns it.
func (s *UserStore) Seed(name, email string, role domain.Role) *domain.User {
	user := &domain.User{Name: name, Email: email, Role: role}
	_ = s.Create(context.Background(), user)
	return user
}

func (s *UserStore) GetByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	user.PasswordHash = ""
	return &user, nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, err := s.GetCredentialsByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	user.PasswordHash = ""
	return user, nil
}

func (s *UserStore) GetCredentialsByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = repository.NormalizeEmail(email)
	for _, user := range s.users {
		if user.Email == email {
			u := user
			return &u, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *UserStore) ListByIDs(_ context.Context, ids []string) ([]domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.User, 0, len(ids))
	seen := map[string]bool{}
	for _, id := range ids {
		if user, ok := s.users[id]; ok && !seen[id] {
			seen[id] = true
			user.PasswordHash = ""
			out = append(out, user)
		}
	}
	return out, nil
}

// TicketStore is an in-memory repository.TicketRepository. Updates append pending
// history to the stored copy, like the JSONB concatenation in Postgres.
type TicketStore struct {
	mu      sync.Mutex
	tickets map[string]*domain.Ticket
}

// NewTicketStore returns an empty store.
func NewTicketStore() *TicketStore {
	return &TicketStore{tickets: map[string]*domain.Ticket{}}
}

func (s *TicketStore) Create(_ context.Context, ticket *domain.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = time.Now().UTC()
	}
	ticket.UpdatedAt = ticket.CreatedAt
	ticket.RecordCreation(ticket.CreatedAt)
	ticket.MarkHistoryPersisted()
	s.tickets[ticket.ID] = ticket.Clone()
	return nil
}

func (s *TicketStore) Update(_ context.Context, ticket *domain.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.tickets[ticket.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	for _, entry := range ticket.PendingHistory() {
		stored.AppendHistory(entry)
	}
	stored.MarkHistoryPersisted()

	stored.AssigneeID = ticket.AssigneeID
	stored.Priority = ticket.Priority
	stored.SLADueDate = ticket.SLADueDate
	stored.Module = ticket.Module
	stored.Status = ticket.Status
	stored.ActiveSystem = ticket.ActiveSystem
	stored.Description = ticket.Description
	stored.Tags = append([]string(nil), ticket.Tags...)
	stored.UpdatedAt = time.Now().UTC()

	ticket.UpdatedAt = stored.UpdatedAt
	ticket.MarkHistoryPersisted()
	return nil
}

func (s *TicketStore) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return ticket.Clone(), nil
}

func (s *TicketStore) GetBySequentialID(_ context.Context, sequentialID int64) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ticket := range s.tickets {
		if ticket.SequentialID == sequentialID {
			return ticket.Clone(), nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *TicketStore) List(_ context.Context) ([]domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Ticket, 0, len(s.tickets))
	for _, ticket := range s.tickets {
		out = append(out, *ticket.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *TicketStore) MaxSequentialID(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var highest int64
	for _, ticket := range s.tickets {
		if ticket.SequentialID > highest {
			highest = ticket.SequentialID
		}
	}
	return highest, nil
}

// CounterStore is an in-memory repository.CounterRepository.
type CounterStore struct {
	mu     sync.Mutex
	values map[string]int64
	Err    error
}

// NewCounterStore returns an empty store.
func NewCounterStore() *CounterStore {
	return &CounterStore{values: map[string]int64{}}
}

func (s *CounterStore) Next(_ context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	s.values[name]++
	return s.values[name], nil
}

var (
	_ repository.UserRepository    = (*UserStore)(nil)
	_ repository.TicketRepository  = (*TicketStore)(nil)
	_ repository.CounterRepository = (*CounterStore)(nil)
)
