// Package cursor persists the directory poller's high-water mark, so a
// restarted instance resumes from where the previous one left off instead of
// replaying the whole directory.
package cursor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store reads and writes the poll cursor. A zero time from Load means no
// cursor exists yet and the poller should start from its configured horizon.
type Store interface {
	Load(ctx context.Context) (time.Time, error)
	Save(ctx context.Context, t time.Time) error
}

const redisKey = "dirsync:poll-cursor"

// Redis is the production cursor store: one shared key, so every instance of
// the service advances the same high-water mark.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Load(ctx context.Context) (time.Time, error) {
	raw, err := r.client.Get(ctx, redisKey).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		// A corrupt cursor is treated as absent; the poller re-reads
		// from its horizon rather than failing permanently.
		return time.Time{}, nil
	}
	return t, nil
}

func (r *Redis) Save(ctx context.Context, t time.Time) error {
	return r.client.Set(ctx, redisKey, t.UTC().Format(time.RFC3339Nano), 0).Err()
}

// Memory is the single-node cursor store.
type Memory struct {
	mu sync.Mutex
	t  time.Time
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Load(context.Context) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t, nil
}

func (m *Memory) Save(_ context.Context, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.t = t
	return nil
}
