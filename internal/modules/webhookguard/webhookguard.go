// Package webhookguard quarantines webhooks that are not on a guild's
// allowlist: warn, wait out the guild's action delay, re-read the policy and
// delete the webhook only if it is still untrusted.
package webhookguard

import (
	"context"
	"sync"
	"time"

	"github.com/1sec-project/guildshield/internal/core"
	"github.com/1sec-project/guildshield/internal/notify"
	"github.com/1sec-project/guildshield/internal/platform"
	"github.com/1sec-project/guildshield/internal/policy"
	"github.com/rs/zerolog"
)

const ModuleName = "webhook_guard"

// DeleteReason is attached to every webhook deletion.
const DeleteReason = "guildshield: unauthorized webhook"

// Guard is the webhook quarantine module.
type Guard struct {
	deps   *core.Deps
	logger zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	pending map[string]struct{} // guildID + "/" + webhook identifier
	stopped bool

	// sleep waits out the quarantine delay; it returns early with an error
	// when ctx is cancelled.
	sleep func(ctx context.Context, d time.Duration) error
}

func New() *Guard {
	return &Guard{
		pending: make(map[string]struct{}),
		sleep:   sleepContext,
	}
}

func (g *Guard) Name() string         { return ModuleName }
func (g *Guard) EventTypes() []string { return []string{core.EventWebhooksUpdate} }
func (g *Guard) Description() string {
	return "Webhook quarantine: warns about webhooks missing from the allowlist and deletes them if they are still untrusted after the guild's action delay"
}

func (g *Guard) Start(ctx context.Context, deps *core.Deps) error {
	g.mu.Lock()
	g.ctx, g.cancel = context.WithCancel(ctx)
	g.stopped = false
	g.mu.Unlock()
	g.deps = deps
	g.logger = deps.Logger.With().Str("module", ModuleName).Logger()
	g.logger.Info().Msg("webhook guard started")
	return nil
}

// Stop cancels every pending quarantine and waits for the tasks to exit.
// A cancelled quarantine takes no action.
func (g *Guard) Stop() error {
	g.mu.Lock()
	g.stopped = true
	if g.cancel != nil {
		g.cancel()
	}
	g.mu.Unlock()
	g.wg.Wait()
	return nil
}

func (g *Guard) HandleEvent(event *core.GuildEvent) error {
	if event.Type != core.EventWebhooksUpdate {
		return nil
	}
	if event.ChannelType != "" && event.ChannelType != core.ChannelTypeText {
		return nil
	}

	hooks, err := g.deps.Platform.ListWebhooks(g.ctx, event.GuildID, event.ChannelID)
	if err != nil {
		g.logger.Warn().Err(err).
			Str("guild_id", event.GuildID).
			Str("channel_id", event.ChannelID).
			Msg("listing webhooks failed, dropping event")
		return nil
	}

	p, err := g.deps.LoadPolicy(g.ctx, event.GuildID)
	if err != nil {
		// Without the allowlist no webhook can be judged untrusted.
		for _, hook := range hooks {
			g.deps.Notifier.Notify(g.ctx, event.GuildID, p, notify.WebhookUnverified(hook))
		}
		return nil
	}
	for _, hook := range hooks {
		if p.IsAllowlisted(hook.Identifier()) {
			continue
		}
		key := event.GuildID + "/" + hook.Identifier()
		if !g.claim(key) {
			g.logger.Debug().Str("guild_id", event.GuildID).Str("webhook", hook.Identifier()).
				Msg("webhook already under quarantine")
			continue
		}
		go g.quarantine(event.GuildID, hook, p, key)
	}
	return nil
}

// quarantine runs the warn, wait, re-check, delete sequence for one webhook.
// p is the policy read when the webhook was seen; it is only used for the
// warning, the decision to delete is made on a fresh read.
func (g *Guard) quarantine(guildID string, hook platform.Webhook, p *policy.Policy, key string) {
	defer g.wg.Done()
	defer g.release(key)

	delaySeconds := p.ActionDelaySeconds
	log := g.logger.With().Str("guild_id", guildID).Str("webhook", hook.Identifier()).Logger()
	log.Info().Int("delay_seconds", delaySeconds).Msg("webhook quarantined")

	g.deps.Notifier.Notify(g.ctx, guildID, p, notify.WebhookWarning(hook, delaySeconds))

	if err := g.sleep(g.ctx, time.Duration(delaySeconds)*time.Second); err != nil {
		log.Info().Msg("quarantine cancelled")
		return
	}

	// Operators may have allowlisted the webhook during the wait.
	fresh, err := g.deps.LoadPolicy(g.ctx, guildID)
	if err != nil {
		log.Warn().Err(err).Msg("allowlist unreadable at expiry, keeping webhook")
		g.deps.Notifier.Notify(g.ctx, guildID, p, notify.WebhookUnverified(hook))
		return
	}
	if fresh.IsAllowlisted(hook.Identifier()) {
		log.Info().Msg("webhook allowlisted during quarantine, keeping it")
		return
	}

	err = g.deps.Platform.DeleteWebhook(g.ctx, guildID, hook, DeleteReason)
	if g.deps.Responses != nil {
		g.deps.Responses.Record(guildID, ModuleName, core.ActionDeleteWebhook, hook.Identifier(), "channel "+hook.ChannelID, err)
	}
	if err != nil {
		g.deps.Notifier.Notify(g.ctx, guildID, fresh, notify.WebhookDeleteFailed(hook, err))
		return
	}
	g.deps.Notifier.Notify(g.ctx, guildID, fresh, notify.WebhookDeleted(hook))
}

// claim reserves a quarantine slot for key. It fails when the webhook is
// already pending or the module is stopping.
func (g *Guard) claim(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped {
		return false
	}
	if _, ok := g.pending[key]; ok {
		return false
	}
	g.pending[key] = struct{}{}
	g.wg.Add(1)
	if g.deps.Metrics != nil {
		g.deps.Metrics.QuarantinePending.Inc()
	}
	return true
}

func (g *Guard) release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.pending, key)
	if g.deps.Metrics != nil {
		g.deps.Metrics.QuarantinePending.Dec()
	}
}

// Pending returns the number of webhooks currently in quarantine.
func (g *Guard) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
