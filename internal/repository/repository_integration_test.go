package repository

import (
	"context"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/persistence"
)

func setupTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN is required for integration tests")
	}
	ctx := context.Background()

	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	admin, err := pgx.Connect(ctx, dsn)
	require.NoError(t, err)
	_, err = admin.Exec(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)
	require.NoError(t, admin.Close(ctx))

	cfg, err := pgxpool.ParseConfig(dsn)
	require.NoError(t, err)
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)

	t.Cleanup(func() {
		pool.Close()
		conn, err := pgx.Connect(context.Background(), dsn)
		if err != nil {
			return
		}
		defer conn.Close(context.Background())
		_, _ = conn.Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
	})

	require.NoError(t, persistence.RunMigrations(ctx, pool, zap.NewNop()))
	return pool
}

func setupTestRedis(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	client.FlushDB(ctx)

	t.Cleanup(func() {
		client.FlushDB(ctx)
		client.Close()
	})
	return client
}

func assertConsecutive(t *testing.T, values []int64, start int64) {
	t.Helper()
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	for i, v := range values {
		require.Equal(t, start+int64(i)+1, v, "value at position %d", i)
	}
}

func drawConcurrently(t *testing.T, repo CounterRepository, name string, n int) []int64 {
	t.Helper()
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		values []int64
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := repo.Next(context.Background(), name)
			assert.NoError(t, err)
			mu.Lock()
			values = append(values, v)
			mu.Unlock()
		}()
	}
	wg.Wait()
	return values
}

func TestCounterRepository_NextIsAtomic(t *testing.T) {
	pool := setupTestPool(t)
	repo := NewCounterRepository(pool)

	first, err := repo.Next(context.Background(), "ticketId")
	require.NoError(t, err)
	assert.Equal(t, int64(1), first)

	values := drawConcurrently(t, repo, "ticketId", 40)
	require.Len(t, values, 40)
	assertConsecutive(t, values, first)

	other, err := repo.Next(context.Background(), "other")
	require.NoError(t, err)
	assert.Equal(t, int64(1), other)
}

func TestRedisCounterRepository_NextIsAtomic(t *testing.T) {
	client := setupTestRedis(t)
	repo := NewRedisCounterRepository(client)

	values := drawConcurrently(t, repo, "ticketId", 40)
	require.Len(t, values, 40)
	assertConsecutive(t, values, 0)
}

func TestSeedCounter_ContinuesAfterExistingTickets(t *testing.T) {
	pool := setupTestPool(t)
	ctx := context.Background()
	repo := NewCounterRepository(pool)

	value, err := SeedCounter(ctx, pool, "ticketId", 41)
	require.NoError(t, err)
	assert.Equal(t, int64(41), value)

	next, err := repo.Next(ctx, "ticketId")
	require.NoError(t, err)
	assert.Equal(t, int64(42), next)

	value, err = SeedCounter(ctx, pool, "ticketId", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(42), value, "seeding never lowers the counter")
}

func TestSeedRedisCounter_ContinuesAfterExistingTickets(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()
	repo := NewRedisCounterRepository(client)

	value, err := SeedRedisCounter(ctx, client, "ticketId", 41)
	require.NoError(t, err)
	assert.Equal(t, int64(41), value)

	next, err := repo.Next(ctx, "ticketId")
	require.NoError(t, err)
	assert.Equal(t, int64(42), next)

	value, err = SeedRedisCounter(ctx, client, "ticketId", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(42), value, "seeding never lowers the counter")

	next, err = repo.Next(ctx, "ticketId")
	require.NoError(t, err)
	assert.Equal(t, int64(43), next)
}

func TestUserRepository_EmailIsCaseInsensitiveAndUnique(t *testing.T) {
	pool := setupTestPool(t)
	repo := NewUserRepository(pool)
	ctx := context.Background()

	user := &domain.User{Name: "Ana", Email: "Ana@Example.com", PasswordHash: "hash", Role: domain.RoleOperator}
	require.NoError(t, repo.Create(ctx, user))
	assert.Equal(t, "ana@example.com", user.Email)

	dup := &domain.User{Name: "Other", Email: "ANA@example.COM", PasswordHash: "hash", Role: domain.RoleOperator}
	assert.ErrorIs(t, repo.Create(ctx, dup), ErrDuplicateEmail)

	found, err := repo.GetByEmail(ctx, "ANA@EXAMPLE.COM")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)
	assert.Empty(t, found.PasswordHash)

	byID, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, byID.PasswordHash)

	creds, err := repo.GetCredentialsByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, "hash", creds.PasswordHash)

	_, err = repo.GetByID(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestTicketRepository_HistoryIsAppendOnly(t *testing.T) {
	pool := setupTestPool(t)
	users := NewUserRepository(pool)
	tickets := NewTicketRepository(pool)
	ctx := context.Background()

	requester := &domain.User{Name: "Req", Email: "req@example.com", PasswordHash: "hash", Role: domain.RoleOperator}
	require.NoError(t, users.Create(ctx, requester))

	createdAt := time.Now().UTC().Truncate(time.Millisecond)
	ticket := &domain.Ticket{
		SequentialID: 7,
		RequesterID:  requester.ID,
		Priority:     domain.TicketPriorityHigh,
		SLADueDate:   domain.TicketPriorityHigh.SLADueDate(createdAt),
		Module:       domain.TicketModuleSystem,
		Status:       domain.TicketStatusToStart,
		ActiveSystem: true,
		Description:  "printer down",
		CreatedAt:    createdAt,
	}
	require.NoError(t, tickets.Create(ctx, ticket))
	require.Len(t, ticket.History(), 1)
	assert.Empty(t, ticket.PendingHistory())

	highest, err := tickets.MaxSequentialID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), highest)

	loaded, err := tickets.GetBySequentialID(ctx, 7)
	require.NoError(t, err)
	require.Len(t, loaded.History(), 1)
	assert.Equal(t, domain.ActionTicketCreated, loaded.History()[0].Action)
	assert.Equal(t, requester.ID, loaded.History()[0].UserID)

	loaded.Status = domain.TicketStatusStarted
	loaded.AppendHistory(domain.HistoryEntry{UserID: requester.ID, Action: "Ticket updated.", CreatedAt: time.Now().UTC()})
	require.NoError(t, tickets.Update(ctx, loaded))
	require.NoError(t, tickets.Update(ctx, loaded))

	reloaded, err := tickets.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusStarted, reloaded.Status)
	require.Len(t, reloaded.History(), 2)
	assert.Equal(t, domain.ActionTicketCreated, reloaded.History()[0].Action)
	assert.True(t, reloaded.SLADueDate.Equal(createdAt.AddDate(0, 0, 1)))

	list, err := tickets.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
}
