// Package roleguard revokes protected roles from members who are neither
// the guild owner nor an administrator.
package roleguard

import (
	"context"
	"strings"

	"github.com/1sec-project/guildshield/internal/authz"
	"github.com/1sec-project/guildshield/internal/core"
	"github.com/1sec-project/guildshield/internal/notify"
	"github.com/1sec-project/guildshield/internal/platform"
	"github.com/1sec-project/guildshield/internal/policy"
	"github.com/rs/zerolog"
)

const ModuleName = "role_guard"

// RevokeReason is attached to every role removal.
const RevokeReason = "guildshield: unauthorized protected role"

// Guard is the protected-role revocation module.
type Guard struct {
	deps   *core.Deps
	logger zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func New() *Guard { return &Guard{} }

func (g *Guard) Name() string         { return ModuleName }
func (g *Guard) EventTypes() []string { return []string{core.EventMemberUpdate} }
func (g *Guard) Description() string {
	return "Role revocation: strips protected roles from members who are not the owner or an administrator"
}

func (g *Guard) Start(ctx context.Context, deps *core.Deps) error {
	g.ctx, g.cancel = context.WithCancel(ctx)
	g.deps = deps
	g.logger = deps.Logger.With().Str("module", ModuleName).Logger()
	g.logger.Info().Msg("role guard started")
	return nil
}

func (g *Guard) Stop() error {
	if g.cancel != nil {
		g.cancel()
	}
	return nil
}

func (g *Guard) HandleEvent(event *core.GuildEvent) error {
	if event.Type != core.EventMemberUpdate || event.Member == nil || event.Before == nil {
		return nil
	}
	after := *event.Member
	gained, lost := diffRoles(event.Before.Roles, after.Roles)
	if len(gained) == 0 && len(lost) == 0 {
		return nil
	}

	p, err := g.deps.LoadPolicy(g.ctx, event.GuildID)
	if err != nil {
		// The guild's protected list is unknown; revoking from the default
		// list could strip a role the guild chose not to protect.
		g.logger.Warn().Err(err).Str("guild_id", event.GuildID).Str("user_id", after.ID).
			Msg("policy unreadable, skipping role check")
		return nil
	}
	if len(p.ProtectedRoles) == 0 {
		return nil
	}
	// Every protected role a non-exempt member holds is revoked, not only
	// the ones gained by this update.
	if authz.IsOwnerOrAdmin(authz.Actor{ID: after.ID, Administrator: after.Administrator}, event.OwnerID) {
		return nil
	}

	revoke := ProtectedHeld(after, p)
	if len(revoke) == 0 {
		return nil
	}
	names := roleNames(revoke)

	g.logger.Info().
		Str("guild_id", event.GuildID).
		Str("user_id", after.ID).
		Strs("gained", roleNames(gained)).
		Strs("revoking", names).
		Msg("unauthorized protected role")

	err = g.deps.Platform.RemoveRoles(g.ctx, event.GuildID, after.ID, revoke, RevokeReason)
	if g.deps.Responses != nil {
		g.deps.Responses.Record(event.GuildID, ModuleName, core.ActionRemoveRoles, after.ID, strings.Join(names, ", "), err)
	}
	if err != nil {
		g.deps.Notifier.Notify(g.ctx, event.GuildID, p, notify.RolesRevokeFailed(after, names, err))
		return nil
	}
	g.deps.Notifier.Notify(g.ctx, event.GuildID, p, notify.RolesRevoked(after, names))
	return nil
}

// ProtectedHeld returns the member's current roles whose name is protected
// by p, in the member's role order.
func ProtectedHeld(m platform.Member, p *policy.Policy) []platform.Role {
	var out []platform.Role
	for _, r := range m.Roles {
		if p.IsProtected(r.Name) {
			out = append(out, r)
		}
	}
	return out
}

// diffRoles compares two role lists by ID.
func diffRoles(before, after []platform.Role) (gained, lost []platform.Role) {
	had := make(map[string]bool, len(before))
	for _, r := range before {
		had[r.ID] = true
	}
	has := make(map[string]bool, len(after))
	for _, r := range after {
		has[r.ID] = true
		if !had[r.ID] {
			gained = append(gained, r)
		}
	}
	for _, r := range before {
		if !has[r.ID] {
			lost = append(lost, r)
		}
	}
	return gained, lost
}

func roleNames(roles []platform.Role) []string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = r.Name
	}
	return names
}
