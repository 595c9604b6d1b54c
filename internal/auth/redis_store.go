package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the sealed token under a single redis key.
type RedisStore struct {
	rdb    redis.UniversalClient
	key    string
	secret []byte
	now    func() time.Time
}

func NewRedisStore(rdb redis.UniversalClient, key string, secret []byte) *RedisStore {
	return &RedisStore{rdb: rdb, key: key, secret: secret, now: time.Now}
}

func (s *RedisStore) Load(ctx context.Context) (Token, error) {
	sealed, err := s.rdb.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return Token{}, ErrNoToken
	}
	if err != nil {
		return Token{}, fmt.Errorf("redis get token: %w", err)
	}
	return openToken(s.secret, sealed)
}

func (s *RedisStore) Save(ctx context.Context, t Token) error {
	sealed, err := sealToken(s.secret, t)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.key, sealed, s.ttl(t)).Err(); err != nil {
		return fmt.Errorf("redis set token: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("redis del token: %w", err)
	}
	return nil
}

// ttl follows the refresh token; once it lapses the pair is useless.
func (s *RedisStore) ttl(t Token) time.Duration {
	if t.RefreshExpiresAt.IsZero() {
		return 0
	}
	d := t.RefreshExpiresAt.Sub(s.now())
	if d <= 0 {
		return time.Second
	}
	return d
}
