// Package notify delivers defense reports to a guild's notification channel.
package notify

import (
	"context"

	"github.com/1sec-project/guildshield/internal/platform"
	"github.com/1sec-project/guildshield/internal/policy"
	"github.com/rs/zerolog"
)

// Notifier resolves the target channel for a guild and posts to it.
type Notifier struct {
	platform platform.Platform
	logger   zerolog.Logger
}

// New creates a Notifier.
func New(p platform.Platform, logger zerolog.Logger) *Notifier {
	return &Notifier{
		platform: p,
		logger:   logger.With().Str("component", "notifier").Logger(),
	}
}

// Channel returns the configured notification channel, falling back to the
// guild's system channel. An empty result means nowhere to report.
func (n *Notifier) Channel(ctx context.Context, guildID string, p *policy.Policy) string {
	if p != nil && p.NotificationChannelID != "" {
		return p.NotificationChannelID
	}
	ch, err := n.platform.SystemChannel(ctx, guildID)
	if err != nil {
		n.logger.Debug().Err(err).Str("guild_id", guildID).Msg("system channel lookup failed")
		return ""
	}
	return ch
}

// Notify posts text and reports whether it was delivered. Failures are
// logged, never returned: a report that cannot be sent must not stop the
// defense action that produced it.
func (n *Notifier) Notify(ctx context.Context, guildID string, p *policy.Policy, text string) bool {
	ch := n.Channel(ctx, guildID, p)
	if ch == "" {
		n.logger.Debug().Str("guild_id", guildID).Msg("no notification channel, report dropped")
		return false
	}
	if err := n.platform.SendMessage(ctx, guildID, ch, text); err != nil {
		n.logger.Warn().Err(err).Str("guild_id", guildID).Str("channel_id", ch).Msg("notification delivery failed")
		return false
	}
	return true
}
