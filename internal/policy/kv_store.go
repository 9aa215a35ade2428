package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// DefaultKVBucket is the JetStream KeyValue bucket holding policies.
const DefaultKVBucket = "GUILD_POLICIES"

// KVStore keeps policies in a JetStream KeyValue bucket on the same NATS
// deployment that carries guild events.
type KVStore struct {
	kv       nats.KeyValue
	defaults Defaults
	logger   zerolog.Logger
}

// NewKVStore binds to bucket, creating it when it does not exist yet.
func NewKVStore(js nats.JetStreamContext, bucket string, d Defaults, logger zerolog.Logger) (*KVStore, error) {
	if bucket == "" {
		bucket = DefaultKVBucket
	}
	kv, err := js.KeyValue(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:      bucket,
			Description: "guildshield per-guild defense policies",
			History:     5,
			Storage:     nats.FileStorage,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("binding policy bucket %s: %w", bucket, err)
	}
	return &KVStore{
		kv:       kv,
		defaults: d,
		logger:   logger.With().Str("component", "policy_store").Str("backend", "nats_kv").Logger(),
	}, nil
}

func (s *KVStore) Load(ctx context.Context, guildID string) (*Policy, error) {
	if !guildIDPattern.MatchString(guildID) {
		return nil, fmt.Errorf("%w: invalid guild id %q", ErrStoreUnavailable, guildID)
	}
	entry, err := s.kv.Get(guildID)
	if errors.Is(err, nats.ErrKeyNotFound) {
		p := s.defaults.New()
		raw, err := p.Marshal()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if _, err := s.kv.Create(guildID, raw); err != nil {
			if errors.Is(err, nats.ErrKeyExists) {
				return s.Load(ctx, guildID)
			}
			s.logger.Warn().Err(err).Str("guild_id", guildID).Msg("could not persist default policy")
		}
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: kv get: %v", ErrStoreUnavailable, err)
	}

	p, err := Unmarshal(entry.Value(), s.defaults)
	if err != nil {
		return nil, fmt.Errorf("%w: guild %s: %v", ErrStoreUnavailable, guildID, err)
	}
	return p, nil
}

func (s *KVStore) Save(_ context.Context, guildID string, p *Policy) error {
	if !guildIDPattern.MatchString(guildID) {
		return fmt.Errorf("%w: invalid guild id %q", ErrStoreUnavailable, guildID)
	}
	data, err := p.Marshal()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if _, err := s.kv.Put(guildID, data); err != nil {
		return fmt.Errorf("%w: kv put: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Close is a no-op; the NATS connection belongs to the event bus.
func (s *KVStore) Close() error { return nil }
