// Package blocklist bans members whose account ID is on their guild's
// blocklist as soon as they join.
package blocklist

import (
	"context"

	"github.com/1sec-project/guildshield/internal/core"
	"github.com/1sec-project/guildshield/internal/notify"
	"github.com/rs/zerolog"
)

const ModuleName = "blocklist_enforcer"

// BanReason is attached to every ban.
const BanReason = "guildshield: blocklisted account"

// Enforcer is the ban-on-join module.
type Enforcer struct {
	deps   *core.Deps
	logger zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func New() *Enforcer { return &Enforcer{} }

func (e *Enforcer) Name() string         { return ModuleName }
func (e *Enforcer) EventTypes() []string { return []string{core.EventMemberJoin} }
func (e *Enforcer) Description() string {
	return "Blocklist enforcement: bans blocklisted accounts when they join"
}

func (e *Enforcer) Start(ctx context.Context, deps *core.Deps) error {
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.deps = deps
	e.logger = deps.Logger.With().Str("module", ModuleName).Logger()
	e.logger.Info().Msg("blocklist enforcer started")
	return nil
}

func (e *Enforcer) Stop() error {
	if e.cancel != nil {
		e.cancel()
	}
	return nil
}

// HandleEvent bans a joining member once if they are blocklisted. A failed
// ban is reported and not retried.
func (e *Enforcer) HandleEvent(event *core.GuildEvent) error {
	if event.Type != core.EventMemberJoin || event.Member == nil {
		return nil
	}
	member := *event.Member

	p, err := e.deps.LoadPolicy(e.ctx, event.GuildID)
	if err != nil || !p.IsBlocked(member.ID) {
		return nil
	}

	err = e.deps.Platform.BanMember(e.ctx, event.GuildID, member.ID, BanReason)
	if e.deps.Responses != nil {
		e.deps.Responses.Record(event.GuildID, ModuleName, core.ActionBanMember, member.ID, "", err)
	}
	if err != nil {
		e.deps.Notifier.Notify(e.ctx, event.GuildID, p, notify.MemberBanFailed(member, err))
		return nil
	}
	e.deps.Notifier.Notify(e.ctx, event.GuildID, p, notify.MemberBanned(member))
	return nil
}
