package auth

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisJTIStore keeps one key per live token plus a per-user set of those
// keys for bulk revocation.
type RedisJTIStore struct {
	rdb redis.Cmdable
}

func NewRedisJTIStore(rdb redis.Cmdable) *RedisJTIStore {
	return &RedisJTIStore{rdb: rdb}
}

func userTokensKey(userID string) string { return "user_tokens:" + userID }

func (s *RedisJTIStore) Save(ctx context.Context, key, userID string, ttl time.Duration) error {
	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, key, userID, ttl)
	pipe.SAdd(ctx, userTokensKey(userID), key)
	// Refresh tokens are saved last, so the index outlives every token in it.
	pipe.Expire(ctx, userTokensKey(userID), ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisJTIStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	return n == 1, err
}

func (s *RedisJTIStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.rdb.Del(ctx, keys...).Err()
}

func (s *RedisJTIStore) DeleteUser(ctx context.Context, userID string) error {
	keys, err := s.rdb.SMembers(ctx, userTokensKey(userID)).Result()
	if err != nil {
		return err
	}
	return s.rdb.Del(ctx, append(keys, userTokensKey(userID))...).Err()
}
