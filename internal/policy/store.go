package policy

import (
	"context"
	"errors"
)

// ErrStoreUnavailable wraps every persistence failure.
var ErrStoreUnavailable = errors.New("policy store unavailable")

// Store persists one Policy per guild.
//
// Load never fails because a record is missing: it materializes the defaults
// and persists them. Save overwrites the whole record. There is no locking
// across a Load/Save pair, so two concurrent read-modify-write sequences on
// the same guild race and the last Save wins.
type Store interface {
	Load(ctx context.Context, guildID string) (*Policy, error)
	Save(ctx context.Context, guildID string, p *Policy) error
	Close() error
}

// LoadOrDefault loads a guild's policy and falls back to an ephemeral default
// when the store fails. The fallback is never persisted; the load error is
// returned alongside it so the caller can log it.
func LoadOrDefault(ctx context.Context, s Store, guildID string, d Defaults) (*Policy, error) {
	p, err := s.Load(ctx, guildID)
	if err != nil {
		return d.New(), err
	}
	return p, nil
}
