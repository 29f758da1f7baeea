// Package sessions tracks which grading sessions are alive. Liveness is a
// redis key with a sliding TTL; the graded data itself lives in the store.
package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mathfe/grader/apperr"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "grader:session:"

// Registry issues session ids and keeps them alive while they are used.
type Registry struct {
	Redis *redis.Client
	TTL   time.Duration
}

func NewRegistry(client *redis.Client, ttl time.Duration) *Registry {
	return &Registry{Redis: client, TTL: ttl}
}

func key(id string) string { return keyPrefix + id }

// Create registers a fresh session id.
func (r *Registry) Create(ctx context.Context) (string, error) {
	id := uuid.NewString()
	if err := r.Redis.Set(ctx, key(id), time.Now().UTC().Format(time.RFC3339), r.TTL).Err(); err != nil {
		return "", apperr.Wrap(err, apperr.ErrUnavailable, "session registry unavailable")
	}
	return id, nil
}

// Touch extends a live session. Unknown or expired ids yield
// apperr.ErrSessionExpired.
func (r *Registry) Touch(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperr.ErrSessionExpired
	}
	ok, err := r.Redis.Expire(ctx, key(id), r.TTL).Result()
	if err != nil {
		return apperr.Wrap(err, apperr.ErrUnavailable, "session registry unavailable")
	}
	if !ok {
		return apperr.ErrSessionExpired
	}
	return nil
}

func (r *Registry) Alive(ctx context.Context, id string) (bool, error) {
	n, err := r.Redis.Exists(ctx, key(id)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, err
	}
	return n > 0, nil
}

func (r *Registry) Revoke(ctx context.Context, id string) error {
	return r.Redis.Del(ctx, key(id)).Err()
}
