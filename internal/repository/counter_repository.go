package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// CounterRepository hands out monotonically increasing values per named sequence.
// Next must be a single atomic increment-and-fetch; the first call for a name returns 1.
type CounterRepository interface {
	Next(ctx context.Context, name string) (int64, error)
}

type counterRepository struct {
	pool *pgxpool.Pool
}

// NewCounterRepository returns a Postgres-backed sequence generator.
func NewCounterRepository(pool *pgxpool.Pool) CounterRepository {
	return &counterRepository{pool: pool}
}

func (r *counterRepository) Next(ctx context.Context, name string) (int64, error) {
	const query = `
        INSERT INTO counters (name, value) VALUES ($1, 1)
        ON CONFLICT (name) DO UPDATE SET value = counters.value + 1
        RETURNING value`

	var value int64
	if err := r.pool.QueryRow(ctx, query, name).Scan(&value); err != nil {
		return 0, fmt.Errorf("next value for %s: %w", name, err)
	}
	return value, nil
}

// SeedCounter raises the named Postgres sequence to at least floor and returns its value.
// A counter already past floor is left untouched.
func SeedCounter(ctx context.Context, pool *pgxpool.Pool, name string, floor int64) (int64, error) {
	const query = `
        INSERT INTO counters (name, value) VALUES ($1, $2)
        ON CONFLICT (name) DO UPDATE SET value = GREATEST(counters.value, EXCLUDED.value)
        RETURNING value`

	var value int64
	if err := pool.QueryRow(ctx, query, name, floor).Scan(&value); err != nil {
		return 0, fmt.Errorf("seed %s: %w", name, err)
	}
	return value, nil
}

const redisCounterPrefix = "helpdesk:sequence:"

type redisCounterRepository struct {
	client *redis.Client
}

// NewRedisCounterRepository returns a sequence generator backed by Redis INCR.
func NewRedisCounterRepository(client *redis.Client) CounterRepository {
	return &redisCounterRepository{client: client}
}

func (r *redisCounterRepository) Next(ctx context.Context, name string) (int64, error) {
	value, err := r.client.Incr(ctx, redisCounterPrefix+name).Result()
	if err != nil {
		return 0, fmt.Errorf("next value for %s: %w", name, err)
	}
	return value, nil
}

var raiseCounterScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local floor = tonumber(ARGV[1])
if current < floor then
  redis.call('SET', KEYS[1], floor)
  return floor
end
return current
`)

// SeedRedisCounter raises the named Redis sequence to at least floor and returns its value.
// A counter already past floor is left untouched.
func SeedRedisCounter(ctx context.Context, client *redis.Client, name string, floor int64) (int64, error) {
	value, err := raiseCounterScript.Run(ctx, client, []string{redisCounterPrefix + name}, floor).Int64()
	if err != nil {
		return 0, fmt.Errorf("seed %s: %w", name, err)
	}
	return value, nil
}
