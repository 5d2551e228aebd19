package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"regime-engine/internal/engine"
)

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// UpdateLocker serializes update passes on a session across processes.
// Acquire returns false when another updater holds the lock.
type UpdateLocker interface {
	Acquire(ctx context.Context, sessionID string) (bool, error)
	Release(ctx context.Context, sessionID string) error
}

// RedisLocker implements UpdateLocker with Redis SET NX and a TTL. The TTL
// doubles as the stale guard: a lock left by a crashed updater expires on
// its own and the next Acquire succeeds.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

// NewRedisLocker connects to Redis and returns a locker
func NewRedisLocker(ctx context.Context, cfg RedisConfig, ttl time.Duration, logger zerolog.Logger) (*RedisLocker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("unable to ping redis: %w", err)
	}

	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisLocker{
		client: client,
		ttl:    ttl,
		log:    logger.With().Str("component", "redis_locker").Logger(),
	}, nil
}

func lockKey(sessionID string) string {
	return "regime:session:update:" + sessionID
}

// Acquire claims the update lock for a session
func (l *RedisLocker) Acquire(ctx context.Context, sessionID string) (bool, error) {
	ok, err := l.client.SetNX(ctx, lockKey(sessionID), time.Now().UTC().Format(time.RFC3339), l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire update lock: %w", err)
	}
	if !ok {
		l.log.Debug().Str("session_id", sessionID).Msg("update lock held elsewhere")
	}
	return ok, nil
}

// Release frees the update lock
func (l *RedisLocker) Release(ctx context.Context, sessionID string) error {
	if err := l.client.Del(ctx, lockKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to release update lock: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (l *RedisLocker) Close() error {
	return l.client.Close()
}

func cacheKey(sessionID string) string {
	return "regime:session:doc:" + sessionID
}

// CachedStore layers a Redis read-through cache over a SessionStore. Saves
// refresh the cached document, so a Get between checkpoints is served without
// touching the database. Cache failures degrade to the inner store.
type CachedStore struct {
	inner  SessionStore
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

// NewCachedStore wraps a store with the locker's Redis connection
func NewCachedStore(inner SessionStore, locker *RedisLocker, ttl time.Duration, logger zerolog.Logger) *CachedStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedStore{
		inner:  inner,
		client: locker.client,
		ttl:    ttl,
		log:    logger.With().Str("component", "session_cache").Logger(),
	}
}

// Save persists to the inner store and refreshes the cached document
func (c *CachedStore) Save(ctx context.Context, session *engine.Session) error {
	if err := c.inner.Save(ctx, session); err != nil {
		return err
	}
	doc, err := json.Marshal(session)
	if err == nil {
		if err := c.client.Set(ctx, cacheKey(session.ID), doc, c.ttl).Err(); err != nil {
			c.log.Warn().Err(err).Str("session_id", session.ID).Msg("failed to refresh session cache")
		}
	}
	return nil
}

// Get serves from the cache when the document is present
func (c *CachedStore) Get(ctx context.Context, id string) (*engine.Session, error) {
	doc, err := c.client.Get(ctx, cacheKey(id)).Bytes()
	if err == nil {
		var session engine.Session
		if err := json.Unmarshal(doc, &session); err == nil {
			return &session, nil
		}
	} else if err != redis.Nil {
		c.log.Warn().Err(err).Str("session_id", id).Msg("session cache read failed")
	}

	session, err := c.inner.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc, err := json.Marshal(session); err == nil {
		if err := c.client.Set(ctx, cacheKey(id), doc, c.ttl).Err(); err != nil {
			c.log.Warn().Err(err).Str("session_id", id).Msg("failed to populate session cache")
		}
	}
	return session, nil
}

// List always reads the inner store
func (c *CachedStore) List(ctx context.Context) ([]*engine.Session, error) {
	return c.inner.List(ctx)
}

// Delete removes the session and purges its cached document
func (c *CachedStore) Delete(ctx context.Context, id string) error {
	if err := c.inner.Delete(ctx, id); err != nil {
		return err
	}
	if err := c.client.Del(ctx, cacheKey(id)).Err(); err != nil {
		c.log.Warn().Err(err).Str("session_id", id).Msg("failed to purge session cache")
	}
	return nil
}

// LocalLocker is an in-process UpdateLocker for deployments without Redis.
// Stale claims are reclaimed after the TTL, mirroring the Redis behavior.
type LocalLocker struct {
	mu    sync.Mutex
	ttl   time.Duration
	locks map[string]time.Time
}

// NewLocalLocker creates a single-process locker
func NewLocalLocker(ttl time.Duration) *LocalLocker {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &LocalLocker{
		ttl:   ttl,
		locks: make(map[string]time.Time),
	}
}

// Acquire claims the update lock for a session
func (l *LocalLocker) Acquire(_ context.Context, sessionID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if claimed, ok := l.locks[sessionID]; ok && time.Since(claimed) < l.ttl {
		return false, nil
	}
	l.locks[sessionID] = time.Now()
	return true, nil
}

// Release frees the update lock
func (l *LocalLocker) Release(_ context.Context, sessionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.locks, sessionID)
	return nil
}
