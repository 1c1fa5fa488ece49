package middleware

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Store decides whether one more request under key fits limit. When it does
// not, retryAfter tells the caller how long to wait.
type Store interface {
	Allow(ctx context.Context, key string, limit Limit) (ok bool, retryAfter time.Duration, err error)
	Close() error
}

// NewStore opens the store named by a storage URL: "memory://" (or empty)
// for an in-process store, "redis://" or "rediss://" for a shared one.
func NewStore(storageURL string) (Store, error) {
	switch {
	case storageURL == "" || strings.HasPrefix(storageURL, "memory://"):
		return NewMemoryStore(), nil
	case strings.HasPrefix(storageURL, "redis://"), strings.HasPrefix(storageURL, "rediss://"):
		opts, err := redis.ParseURL(storageURL)
		if err != nil {
			return nil, fmt.Errorf("parse rate limit storage url: %w", err)
		}
		return NewRedisStore(redis.NewClient(opts)), nil
	default:
		return nil, fmt.Errorf("unsupported rate limit storage %q", storageURL)
	}
}

const (
	sweepEvery = 5 * time.Minute
	idleAfter  = time.Hour
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryStore keeps one token bucket per key and limit. A bucket holds Count
// tokens and refills Count per Window. Buckets idle for an hour are evicted.
type MemoryStore struct {
	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	lastSweep time.Time
	now       func() time.Time
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{limiters: make(map[string]*limiterEntry), now: time.Now}
}

func (s *MemoryStore) Allow(_ context.Context, key string, limit Limit) (bool, time.Duration, error) {
	now := s.now()
	limiter := s.limiter(key+"|"+limit.String(), limit, now)

	r := limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, limit.Window, nil
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay, nil
	}
	return true, 0, nil
}

func (s *MemoryStore) limiter(id string, limit Limit, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastSweep) > sweepEvery {
		cutoff := now.Add(-idleAfter)
		for k, entry := range s.limiters {
			if entry.lastSeen.Before(cutoff) {
				delete(s.limiters, k)
			}
		}
		s.lastSweep = now
	}

	entry, ok := s.limiters[id]
	if !ok {
		every := limit.Window / time.Duration(limit.Count)
		entry = &limiterEntry{limiter: rate.NewLimiter(rate.Every(every), limit.Count)}
		s.limiters[id] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

func (s *MemoryStore) Close() error { return nil }

// redisClient is the slice of the go-redis API the store needs.
type redisClient interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Close() error
}

// RedisStore counts requests in fixed windows shared by every process
// pointed at the same server.
type RedisStore struct {
	client redisClient
	prefix string
	now    func() time.Time
}

// NewRedisStore wraps an open client.
func NewRedisStore(client redisClient) *RedisStore {
	return &RedisStore{client: client, prefix: "scraper:ratelimit", now: time.Now}
}

func (s *RedisStore) Allow(ctx context.Context, key string, limit Limit) (bool, time.Duration, error) {
	now := s.now()
	window := now.UnixNano() / int64(limit.Window)
	counter := fmt.Sprintf("%s:%s:%d:%d", s.prefix, key, int64(limit.Window/time.Second), window)

	n, err := s.client.Incr(ctx, counter).Result()
	if err != nil {
		return false, 0, fmt.Errorf("incr %s: %w", counter, err)
	}
	if n == 1 {
		if err := s.client.Expire(ctx, counter, limit.Window).Err(); err != nil {
			return false, 0, fmt.Errorf("expire %s: %w", counter, err)
		}
	}
	if n > int64(limit.Count) {
		reset := time.Unix(0, (window+1)*int64(limit.Window))
		return false, reset.Sub(now), nil
	}
	return true, 0, nil
}

func (s *RedisStore) Close() error { return s.client.Close() }
