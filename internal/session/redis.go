package session

import (
	"context"
	"errors"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pmaschool/school-admin-go/internal/redis"
)

const redisSessionKey = "school:session"

// RedisStore keeps the session id in Redis under a fixed key. Used for
// shared kiosk deployments where several admin hosts reuse one login.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context) (string, error) {
	sid, err := s.client.Get(ctx, redisSessionKey).Result()
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return sid, nil
}

func (s *RedisStore) Save(ctx context.Context, sid string) error {
	return s.client.Set(ctx, redisSessionKey, sid, 0).Err()
}

func (s *RedisStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, redisSessionKey).Err()
}
