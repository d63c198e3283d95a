// Package redisstore keeps login sessions in Redis. Each session is one
// JSON value under "session:<id>" whose Redis TTL matches the session
// expiry, so Redis itself drops expired sessions.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sakif/platidea/internal/apperror"
	"github.com/sakif/platidea/internal/model"
	"github.com/sakif/platidea/internal/repository"
)

var _ repository.SessionRepository = (*SessionStore)(nil)

const keyPrefix = "session:"

// SessionStore implements repository.SessionRepository on a Redis client.
type SessionStore struct {
	client *redis.Client
	now    func() time.Time
}

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Open connects to Redis and verifies the connection with PING.
func Open(ctx context.Context, opts Options) (*SessionStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", opts.Addr, err)
	}
	return New(client), nil
}

// New wraps an existing client.
func New(client *redis.Client) *SessionStore {
	return &SessionStore{client: client, now: time.Now}
}

func sessionKey(id string) string {
	return keyPrefix + id
}

// Create stores sess unless its id is already taken. A session that is
// already expired is not stored at all.
func (s *SessionStore) Create(ctx context.Context, sess *model.Session) error {
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}

	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("redis: encoding session: %w", err)
	}

	ok, err := s.client.SetNX(ctx, sessionKey(sess.ID), payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("redis: storing session: %w", err)
	}
	if !ok {
		return apperror.Conflict("session", sess.ID)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (*model.Session, error) {
	raw, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperror.NotFound("session", id)
		}
		return nil, fmt.Errorf("redis: loading session: %w", err)
	}

	var sess model.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("redis: decoding session: %w", err)
	}
	return &sess, nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: deleting session: %w", err)
	}
	return nil
}

// DeleteExpired is a no-op: key TTLs already remove expired sessions.
func (s *SessionStore) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

// Ping checks the connection.
func (s *SessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *SessionStore) Close() error {
	return s.client.Close()
}
