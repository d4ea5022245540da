package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig carries the connection settings for the production backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// DialAttempts bounds the startup ping loop. The original deployment
	// retried five times with a two second pause before giving up.
	DialAttempts int
	DialBackoff  time.Duration
}

type redisStore struct {
	client *redis.Client
}

// NewRedis connects to Redis and verifies the connection before returning.
// Returns ErrUnavailable (wrapped) when the backend never answers.
func NewRedis(ctx context.Context, cfg RedisConfig) (Store, error) {
	attempts := cfg.DialAttempts
	if attempts <= 0 {
		attempts = 5
	}
	backoff := cfg.DialBackoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				client.Close()
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			case <-time.After(backoff):
			}
		}
		if lastErr = client.Ping(ctx).Err(); lastErr == nil {
			return &redisStore{client: client}, nil
		}
	}
	client.Close()
	return nil, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

// translate maps go-redis errors onto the store taxonomy. Anything that is not
// a recognizable data error is treated as the backend being unreachable.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if strings.HasPrefix(err.Error(), "WRONGTYPE") {
		return fmt.Errorf("%w: %v", ErrTypeMismatch, err)
	}
	if strings.Contains(err.Error(), "value is not an integer") {
		return fmt.Errorf("%w: %v", ErrTypeMismatch, err)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func (s *redisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	return val, translate(err)
}

func (s *redisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return translate(s.client.Set(ctx, key, value, ttl).Err())
}

func (s *redisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	return ok, translate(err)
}

func (s *redisStore) Incr(ctx context.Context, key string, delta int64) (int64, error) {
	val, err := s.client.IncrBy(ctx, key, delta).Result()
	return val, translate(err)
}

func (s *redisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return translate(s.client.Expire(ctx, key, ttl).Err())
}

func (s *redisStore) Delete(ctx context.Context, keys ...string) (int64, error) {
	n, err := s.client.Del(ctx, keys...).Result()
	return n, translate(err)
}

func (s *redisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	keys, err := s.client.Keys(ctx, pattern).Result()
	return keys, translate(err)
}

func (s *redisStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	args := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		args[k] = v
	}
	return translate(s.client.HSet(ctx, key, args).Err())
}

func (s *redisStore) HGet(ctx context.Context, key, field string) (string, error) {
	val, err := s.client.HGet(ctx, key, field).Result()
	return val, translate(err)
}

func (s *redisStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	val, err := s.client.HGetAll(ctx, key).Result()
	return val, translate(err)
}

func (s *redisStore) HIncr(ctx context.Context, key, field string, delta int64) (int64, error) {
	val, err := s.client.HIncrBy(ctx, key, field, delta).Result()
	return val, translate(err)
}

func (s *redisStore) ZAdd(ctx context.Context, key, member string, score float64) error {
	return translate(s.client.ZAdd(ctx, key, redis.Z{Member: member, Score: score}).Err())
}

func (s *redisStore) ZRevRange(ctx context.Context, key string, start, stop int64) ([]ScoredMember, error) {
	raw, err := s.client.ZRevRangeWithScores(ctx, key, start, stop).Result()
	if err != nil {
		return nil, translate(err)
	}
	members := make([]ScoredMember, 0, len(raw))
	for _, z := range raw {
		member, _ := z.Member.(string)
		members = append(members, ScoredMember{Member: member, Score: z.Score})
	}
	return members, nil
}

func (s *redisStore) Publish(ctx context.Context, channel, payload string) error {
	return translate(s.client.Publish(ctx, channel, payload).Err())
}

func (s *redisStore) Subscribe(ctx context.Context, channel string) (<-chan string, func(), error) {
	sub := s.client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, nil, translate(err)
	}

	out := make(chan string, 16)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			select {
			case out <- msg.Payload:
			default:
				// Slow consumers drop messages rather than stall the reader.
			}
		}
	}()

	cancel := func() { sub.Close() }
	return out, cancel, nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
