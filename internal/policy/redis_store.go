package policy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig holds Redis connection settings for the policy store.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db" validate:"gte=0"`
	KeyPrefix string `yaml:"key_prefix"`
}

// RedisStore keeps each guild's policy as a JSON string value. It lets
// several engine instances share one set of policies.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	defaults  Defaults
	logger    zerolog.Logger
}

// NewRedisStore connects and pings the server.
func NewRedisStore(cfg RedisConfig, d Defaults, logger zerolog.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return newRedisStore(client, cfg.KeyPrefix, d, logger), nil
}

func newRedisStore(client *redis.Client, prefix string, d Defaults, logger zerolog.Logger) *RedisStore {
	if prefix == "" {
		prefix = "guildshield:policy:"
	}
	return &RedisStore{
		client:    client,
		keyPrefix: prefix,
		defaults:  d,
		logger:    logger.With().Str("component", "policy_store").Str("backend", "redis").Logger(),
	}
}

func (s *RedisStore) key(guildID string) string {
	return s.keyPrefix + guildID
}

func (s *RedisStore) Load(ctx context.Context, guildID string) (*Policy, error) {
	data, err := s.client.Get(ctx, s.key(guildID)).Bytes()
	if errors.Is(err, redis.Nil) {
		p := s.defaults.New()
		raw, err := p.Marshal()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		// SETNX: a concurrent first Load that already wrote wins, and we
		// re-read its document.
		created, err := s.client.SetNX(ctx, s.key(guildID), raw, 0).Result()
		if err != nil {
			s.logger.Warn().Err(err).Str("guild_id", guildID).Msg("could not persist default policy")
			return p, nil
		}
		if created {
			return p, nil
		}
		return s.Load(ctx, guildID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: redis GET: %v", ErrStoreUnavailable, err)
	}

	p, err := Unmarshal(data, s.defaults)
	if err != nil {
		return nil, fmt.Errorf("%w: guild %s: %v", ErrStoreUnavailable, guildID, err)
	}
	return p, nil
}

func (s *RedisStore) Save(ctx context.Context, guildID string, p *Policy) error {
	data, err := p.Marshal()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := s.client.Set(ctx, s.key(guildID), data, 0).Err(); err != nil {
		return fmt.Errorf("%w: redis SET: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
