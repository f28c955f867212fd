package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"cellarhub/server/internal/security"
)

const keyPrefix = "sess:"

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func key(id string) string {
	return keyPrefix + id
}

func (s *RedisStore) Load(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	data, err := s.client.Get(ctx, key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	sess.ID = id
	return &sess, nil
}

// Save writes the session and restarts its inactivity TTL.
func (s *RedisStore) Save(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.Set(ctx, key(sess.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *RedisStore) Regenerate(ctx context.Context, sess *Session) error {
	id, err := security.GenerateToken(32)
	if err != nil {
		return err
	}
	csrf, err := security.GenerateToken(32)
	if err != nil {
		return err
	}
	rotated := *sess
	rotated.CSRF = csrf
	data, err := json.Marshal(&rotated)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	old := sess.ID
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key(id), data, s.ttl)
		if old != "" {
			pipe.Del(ctx, key(old))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("regenerate session: %w", err)
	}
	sess.ID = id
	sess.CSRF = csrf
	return nil
}

func (s *RedisStore) Destroy(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := s.client.Del(ctx, key(id)).Err(); err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}
	return nil
}
