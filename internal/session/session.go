package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNoSession is returned for unknown or expired tokens.
var ErrNoSession = errors.New("session not found")

type Role string

const (
	RoleAdmin Role = "admin"
	RoleFront Role = "front"
)

// Store issues opaque session tokens and resolves them back to a role.
type Store interface {
	Create(ctx context.Context, role Role) (string, error)
	Lookup(ctx context.Context, token string) (Role, error)
	Delete(ctx context.Context, token string) error
}

func newToken() string {
	return uuid.NewString()
}

const keyPrefix = "portfolio:session:"

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Create(ctx context.Context, role Role) (string, error) {
	const op = "session.Create"

	token := newToken()
	if err := s.client.Set(ctx, keyPrefix+token, string(role), s.ttl).Err(); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return token, nil
}

func (s *RedisStore) Lookup(ctx context.Context, token string) (Role, error) {
	const op = "session.Lookup"

	if token == "" {
		return "", ErrNoSession
	}
	val, err := s.client.Get(ctx, keyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNoSession
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return Role(val), nil
}

func (s *RedisStore) Delete(ctx context.Context, token string) error {
	const op = "session.Delete"

	if err := s.client.Del(ctx, keyPrefix+token).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// MemoryStore is used when no Redis address is configured. Sessions do not
// survive a restart.
type MemoryStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]memorySession
}

type memorySession struct {
	role    Role
	expires time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]memorySession),
	}
}

func (s *MemoryStore) Create(_ context.Context, role Role) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for token, sess := range s.sessions {
		if !now.Before(sess.expires) {
			delete(s.sessions, token)
		}
	}
	token := newToken()
	s.sessions[token] = memorySession{role: role, expires: now.Add(s.ttl)}
	return token, nil
}

func (s *MemoryStore) Lookup(_ context.Context, token string) (Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return "", ErrNoSession
	}
	if !s.now().Before(sess.expires) {
		delete(s.sessions, token)
		return "", ErrNoSession
	}
	return sess.role, nil
}

func (s *MemoryStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, token)
	return nil
}
