package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kullampallep/beRealProject/internal/util"
)

const redisOpTimeout = 2 * time.Second

// RedisStore keeps opaque tokens in redis with a TTL. Resolving a
// token slides its expiry forward so active sessions stay alive.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedis connects a redis session store.
func NewRedis(addr, password, keyPrefix string, ttl time.Duration) (*RedisStore, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("session redis addr is required")
	}
	if keyPrefix == "" {
		keyPrefix = "bereal:session"
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping session redis: %w", err)
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix, ttl: ttl}, nil
}

func (s *RedisStore) Issue(ctx context.Context, username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", errors.New("session username is required")
	}
	token := util.NewID()
	opCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	if err := s.client.Set(opCtx, s.key(token), username, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return token, nil
}

func (s *RedisStore) Resolve(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrTokenInvalid
	}
	opCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	username, err := s.client.Get(opCtx, s.key(token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrTokenInvalid
	}
	if err != nil {
		return "", fmt.Errorf("resolve session: %w", err)
	}
	_ = s.client.Expire(opCtx, s.key(token), s.ttl).Err()
	return username, nil
}

func (s *RedisStore) Revoke(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	opCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	if err := s.client.Del(opCtx, s.key(token)).Err(); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (s *RedisStore) key(token string) string {
	return fmt.Sprintf("%s:%s", s.keyPrefix, token)
}
