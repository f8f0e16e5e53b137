package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/herodrop/rewards-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// DefaultSessionTTL bounds how long an untouched redemption dialog stays open.
const DefaultSessionTTL = 30 * time.Minute

// SessionStore holds open redemption dialogs. Sessions expire after the
// store's TTL; an expired session behaves as if it never existed.
type SessionStore interface {
	Save(ctx context.Context, s domain.RedemptionSession) error
	Get(ctx context.Context, id uuid.UUID) (domain.RedemptionSession, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type memorySession struct {
	session   domain.RedemptionSession
	expiresAt time.Time
}

// MemorySessionStore keeps sessions in process memory.
type MemorySessionStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[uuid.UUID]memorySession
	now      func() time.Time
}

func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	return &MemorySessionStore{
		ttl:      ttl,
		sessions: make(map[uuid.UUID]memorySession),
		now:      time.Now,
	}
}

func (m *MemorySessionStore) Save(_ context.Context, s domain.RedemptionSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.sessions[s.ID] = memorySession{session: s, expiresAt: now.Add(m.ttl)}
	// Expired entries are swept on every write.
	for id, entry := range m.sessions {
		if now.After(entry.expiresAt) {
			delete(m.sessions, id)
		}
	}
	return nil
}

func (m *MemorySessionStore) Get(_ context.Context, id uuid.UUID) (domain.RedemptionSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.sessions[id]
	if !ok || m.now().After(entry.expiresAt) {
		delete(m.sessions, id)
		return domain.RedemptionSession{}, ErrSessionNotFound
	}
	return entry.session, nil
}

func (m *MemorySessionStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// RedisSessionStore keeps sessions as JSON values with a Redis TTL, shared
// across API replicas.
type RedisSessionStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisSessionStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisSessionStore {
	trimmedPrefix := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmedPrefix == "" {
		trimmedPrefix = "herodrop"
	}
	return &RedisSessionStore{client: client, prefix: trimmedPrefix + ":redemption_session", ttl: ttl}
}

func (r *RedisSessionStore) key(id uuid.UUID) string {
	return fmt.Sprintf("%s:%s", r.prefix, id)
}

func (r *RedisSessionStore) Save(ctx context.Context, s domain.RedemptionSession) error {
	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return r.client.Set(ctx, r.key(s.ID), body, r.ttl).Err()
}

func (r *RedisSessionStore) Get(ctx context.Context, id uuid.UUID) (domain.RedemptionSession, error) {
	body, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.RedemptionSession{}, ErrSessionNotFound
	}
	if err != nil {
		return domain.RedemptionSession{}, err
	}
	var s domain.RedemptionSession
	if err := json.Unmarshal(body, &s); err != nil {
		return domain.RedemptionSession{}, fmt.Errorf("decode session: %w", err)
	}
	return s, nil
}

func (r *RedisSessionStore) Delete(ctx context.Context, id uuid.UUID) error {
	return r.client.Del(ctx, r.key(id)).Err()
}
