package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"autoservice/internal/clock"
	"autoservice/internal/config"
	"autoservice/internal/domain"
	"autoservice/internal/models"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// Grants the hold when the key is free or already owned by ARGV[1].
var tryHoldScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur == false or cur == ARGV[1] then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
  return 1
end
return 0
`)

var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

var getScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if v == false then
  return false
end
return {v, redis.call('PTTL', KEYS[1])}
`)

// RedisHoldStore shares holds between processes. Expiry is delegated to
// redis key TTLs.
type RedisHoldStore struct {
	client *redis.Client
	prefix string
	clock  clock.Clock
}

func NewRedisHoldStore(client *redis.Client, prefix string, clk clock.Clock) *RedisHoldStore {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if prefix == "" {
		prefix = "slot_hold"
	}
	return &RedisHoldStore{client: client, prefix: prefix, clock: clk}
}

func (s *RedisHoldStore) key(key models.SlotKey) string {
	return fmt.Sprintf("%s:%s", s.prefix, normalizeKey(key))
}

func (s *RedisHoldStore) TryHold(ctx context.Context, key models.SlotKey, holder string, ttl time.Duration) (bool, time.Time, error) {
	if s.client == nil {
		return false, time.Time{}, fmt.Errorf("redis client is nil")
	}
	if err := validateHold(key, holder); err != nil {
		return false, time.Time{}, err
	}
	if ttl < time.Millisecond {
		return false, time.Time{}, domain.Invalid("hold ttl %s is below redis precision", ttl)
	}

	now := s.clock.Now()
	granted, err := tryHoldScript.Run(ctx, s.client, []string{s.key(key)}, holder, ttl.Milliseconds()).Int()
	if err != nil {
		return false, time.Time{}, fmt.Errorf("failed to acquire hold in redis: %w", err)
	}
	if granted == 0 {
		return false, time.Time{}, nil
	}
	return true, now.Add(ttl), nil
}

func (s *RedisHoldStore) IsHeld(ctx context.Context, key models.SlotKey) (bool, error) {
	if s.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	n, err := s.client.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check hold in redis: %w", err)
	}
	return n > 0, nil
}

func (s *RedisHoldStore) Release(ctx context.Context, key models.SlotKey, holder string) (bool, error) {
	if s.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	n, err := releaseScript.Run(ctx, s.client, []string{s.key(key)}, holder).Int()
	if err != nil {
		return false, fmt.Errorf("failed to release hold in redis: %w", err)
	}
	return n > 0, nil
}

func (s *RedisHoldStore) Get(ctx context.Context, key models.SlotKey) (*models.SlotHold, error) {
	if s.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	res, err := getScript.Run(ctx, s.client, []string{s.key(key)}).Slice()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get hold from redis: %w", err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected hold reply of %d elements", len(res))
	}

	holder, _ := res[0].(string)
	pttl, _ := res[1].(int64)
	if pttl <= 0 {
		return nil, nil
	}
	return &models.SlotHold{
		Key:       normalizeKey(key),
		HolderID:  holder,
		ExpiresAt: s.clock.Now().Add(time.Duration(pttl) * time.Millisecond),
	}, nil
}
