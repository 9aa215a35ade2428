// Package coretest builds module dependencies for tests.
package coretest

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/1sec-project/guildshield/internal/core"
	"github.com/1sec-project/guildshield/internal/notify"
	"github.com/1sec-project/guildshield/internal/platform/platformtest"
	"github.com/1sec-project/guildshield/internal/policy"
	"github.com/rs/zerolog"
)

// SystemChannel is the fallback notification channel NewDeps registers for
// every guild the tests use.
const SystemChannel = "900"

// NewDeps returns module dependencies backed by fake and a file store in a
// temporary directory.
func NewDeps(t testing.TB, fake *platformtest.Fake) *core.Deps {
	t.Helper()
	cfg := core.DefaultConfig()
	store, err := policy.NewFileStore(t.TempDir(), cfg.PolicyDefaults(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}
	metrics := core.NewMetrics()
	return &core.Deps{
		Config:    cfg,
		Store:     store,
		Platform:  fake,
		Notifier:  notify.New(fake, zerolog.Nop()),
		Responses: core.NewResponseLog(100, metrics, zerolog.Nop()),
		Metrics:   metrics,
		Logger:    zerolog.Nop(),
	}
}

// Mutate loads a guild's policy, applies fn and saves it.
func Mutate(t testing.TB, s policy.Store, guildID string, fn func(p *policy.Policy)) {
	t.Helper()
	ctx := context.Background()
	p, err := s.Load(ctx, guildID)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	fn(p)
	if err := s.Save(ctx, guildID, p); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
}

// FlakyStore wraps a Store whose Load fails with ErrStoreUnavailable while
// the store is down. Save always passes through.
type FlakyStore struct {
	policy.Store
	down atomic.Bool
}

// NewFlakyStore wraps s, initially up.
func NewFlakyStore(s policy.Store) *FlakyStore { return &FlakyStore{Store: s} }

// SetDown makes Load fail (true) or succeed (false).
func (s *FlakyStore) SetDown(down bool) { s.down.Store(down) }

func (s *FlakyStore) Load(ctx context.Context, guildID string) (*policy.Policy, error) {
	if s.down.Load() {
		return nil, fmt.Errorf("%w: connection refused", policy.ErrStoreUnavailable)
	}
	return s.Store.Load(ctx, guildID)
}
