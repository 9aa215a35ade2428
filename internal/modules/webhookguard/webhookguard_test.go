package webhookguard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/1sec-project/guildshield/internal/core"
	"github.com/1sec-project/guildshield/internal/core/coretest"
	"github.com/1sec-project/guildshield/internal/platform"
	"github.com/1sec-project/guildshield/internal/platform/platformtest"
	"github.com/1sec-project/guildshield/internal/policy"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const (
	guildID   = "100"
	channelID = "200"
)

var hookA = platform.Webhook{ID: "1", ChannelID: channelID, Name: "relay", URL: "hook-A"}

type harness struct {
	fake  *platformtest.Fake
	deps  *core.Deps
	guard *Guard
	slept []time.Duration
}

// newHarness starts a guard whose delay returns immediately after running
// duringWait, which stands in for whatever operators do during the delay.
func newHarness(t *testing.T, duringWait func()) *harness {
	t.Helper()
	h := &harness{fake: platformtest.New()}
	h.fake.SystemChannels[guildID] = coretest.SystemChannel
	h.deps = coretest.NewDeps(t, h.fake)
	h.guard = New()
	h.guard.sleep = func(ctx context.Context, d time.Duration) error {
		h.slept = append(h.slept, d)
		if duringWait != nil {
			duringWait()
		}
		return ctx.Err()
	}
	if err := h.guard.Start(context.Background(), h.deps); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { h.guard.Stop() })
	return h
}

func webhooksUpdate() *core.GuildEvent {
	e := core.NewGuildEvent(core.EventWebhooksUpdate, guildID, "1")
	e.ChannelID = channelID
	e.ChannelType = core.ChannelTypeText
	return e
}

func (h *harness) trigger(t *testing.T) {
	t.Helper()
	if err := h.guard.HandleEvent(webhooksUpdate()); err != nil {
		t.Fatalf("HandleEvent() error: %v", err)
	}
	h.guard.wg.Wait()
}

func TestQuarantine_AllowlistedDuringDelayIsKept(t *testing.T) {
	var h *harness
	h = newHarness(t, func() {
		ctx := context.Background()
		p, err := h.deps.Store.Load(ctx, guildID)
		if err != nil {
			t.Error(err)
			return
		}
		policy.Add(&p.WebhookAllowlist, "hook-A")
		if err := h.deps.Store.Save(ctx, guildID, p); err != nil {
			t.Error(err)
		}
	})
	h.fake.SetWebhooks(channelID, hookA)

	h.trigger(t)

	if h.fake.DeletedCount() != 0 {
		t.Errorf("webhook allowlisted during the delay was deleted")
	}
	msgs := h.fake.MessagesSnapshot()
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want only the warning", len(msgs))
	}
	if !strings.Contains(msgs[0].Text, "hook-A") || !strings.Contains(msgs[0].Text, "120 seconds") {
		t.Errorf("warning = %q, want webhook and delay named", msgs[0].Text)
	}
	if msgs[0].ChannelID != coretest.SystemChannel {
		t.Errorf("warning sent to %s, want system channel", msgs[0].ChannelID)
	}
	if len(h.slept) != 1 || h.slept[0] != 120*time.Second {
		t.Errorf("slept %v, want one 120s delay", h.slept)
	}
}

func TestQuarantine_UntrustedDeletedOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.fake.SetWebhooks(channelID, hookA)

	h.trigger(t)

	if h.fake.DeletedCount() != 1 {
		t.Fatalf("deleted %d webhooks, want 1", h.fake.DeletedCount())
	}
	msgs := h.fake.MessagesSnapshot()
	if len(msgs) != 2 || !strings.Contains(msgs[1].Text, "Deleted unauthorized webhook") {
		t.Errorf("messages = %+v, want warning then confirmation", msgs)
	}
	recs := h.deps.Responses.Recent(0)
	if len(recs) != 1 || recs[0].Status != core.ActionStatusSuccess || recs[0].Target != "hook-A" {
		t.Errorf("response records = %+v", recs)
	}
}

func TestQuarantine_UsesDelayAtTriggerTime(t *testing.T) {
	h := newHarness(t, nil)
	coretest.Mutate(t, h.deps.Store, guildID, func(p *policy.Policy) { p.ActionDelaySeconds = 30 })
	h.fake.SetWebhooks(channelID, hookA)

	h.trigger(t)

	if len(h.slept) != 1 || h.slept[0] != 30*time.Second {
		t.Errorf("slept %v, want 30s", h.slept)
	}
}

func TestQuarantine_DeleteFailureReported(t *testing.T) {
	h := newHarness(t, nil)
	h.fake.DeleteErr = fmt.Errorf("%w: %s: %w", platform.ErrActionFailed, platform.VerbDeleteWebhook, platform.ErrForbidden)
	h.fake.SetWebhooks(channelID, hookA)

	h.trigger(t)

	msgs := h.fake.MessagesSnapshot()
	if len(msgs) != 2 || !strings.Contains(msgs[1].Text, "missing permission") {
		t.Errorf("messages = %+v, want a failure report", msgs)
	}
	recs := h.deps.Responses.Recent(0)
	if len(recs) != 1 || recs[0].Status != core.ActionStatusFailed {
		t.Errorf("response records = %+v", recs)
	}
}

func TestQuarantine_SkipsAllowlistedAndNonText(t *testing.T) {
	h := newHarness(t, nil)
	coretest.Mutate(t, h.deps.Store, guildID, func(p *policy.Policy) { policy.Add(&p.WebhookAllowlist, "hook-A") })
	h.fake.SetWebhooks(channelID, hookA)
	h.trigger(t)

	voice := webhooksUpdate()
	voice.ChannelType = "voice"
	coretest.Mutate(t, h.deps.Store, guildID, func(p *policy.Policy) { policy.Remove(&p.WebhookAllowlist, "hook-A") })
	h.guard.HandleEvent(voice)
	h.guard.wg.Wait()

	if len(h.fake.MessagesSnapshot()) != 0 || h.fake.DeletedCount() != 0 {
		t.Error("allowlisted webhook or non-text channel was acted on")
	}
}

func TestQuarantine_ListFailureDropsEvent(t *testing.T) {
	h := newHarness(t, nil)
	h.fake.ListErr = errors.New("gateway timeout")
	h.trigger(t)
	if len(h.slept) != 0 || len(h.fake.MessagesSnapshot()) != 0 {
		t.Error("listing failure should drop the event")
	}
}

func TestQuarantine_PendingWebhookNotRequarantined(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 4)
	h := newHarness(t, nil)
	h.guard.sleep = func(ctx context.Context, _ time.Duration) error {
		entered <- struct{}{}
		<-release
		return ctx.Err()
	}
	h.fake.SetWebhooks(channelID, hookA)

	h.guard.HandleEvent(webhooksUpdate())
	<-entered
	h.guard.HandleEvent(webhooksUpdate())

	if h.guard.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", h.guard.Pending())
	}
	if got := testutil.ToFloat64(h.deps.Metrics.QuarantinePending); got != 1 {
		t.Errorf("pending gauge = %v, want 1", got)
	}

	close(release)
	h.guard.wg.Wait()

	if h.fake.DeletedCount() != 1 {
		t.Errorf("deleted %d times, want 1", h.fake.DeletedCount())
	}
	if len(h.fake.MessagesSnapshot()) != 2 {
		t.Errorf("messages = %d, want one warning and one confirmation", len(h.fake.MessagesSnapshot()))
	}
	if h.guard.Pending() != 0 {
		t.Error("quarantine slot not released")
	}
}

func TestQuarantine_StopCancelsPendingWait(t *testing.T) {
	h := newHarness(t, nil)
	h.guard.sleep = sleepContext
	h.fake.SetWebhooks(channelID, hookA)

	h.guard.HandleEvent(webhooksUpdate())
	if err := h.guard.Stop(); err != nil {
		t.Fatal(err)
	}

	if h.fake.DeletedCount() != 0 {
		t.Error("cancelled quarantine deleted the webhook")
	}
	if h.guard.Pending() != 0 {
		t.Error("pending quarantine left behind after Stop")
	}
}

func TestQuarantine_RecheckLoadFailureKeepsWebhook(t *testing.T) {
	var h *harness
	var flaky *coretest.FlakyStore
	h = newHarness(t, func() {
		coretest.Mutate(t, flaky, guildID, func(p *policy.Policy) { policy.Add(&p.WebhookAllowlist, "hook-A") })
		flaky.SetDown(true)
	})
	flaky = coretest.NewFlakyStore(h.deps.Store)
	h.deps.Store = flaky
	h.fake.SetWebhooks(channelID, hookA)

	h.trigger(t)

	if h.fake.DeletedCount() != 0 {
		t.Fatalf("deleted %d webhooks after an unreadable recheck, want 0", h.fake.DeletedCount())
	}
	msgs := h.fake.MessagesSnapshot()
	if len(msgs) != 2 || !strings.Contains(msgs[1].Text, "Could not read the webhook allowlist") {
		t.Errorf("messages = %+v, want warning then unverified notice", msgs)
	}
	if n := len(h.deps.Responses.Recent(0)); n != 0 {
		t.Errorf("response records = %d, want none", n)
	}
}

func TestQuarantine_TriggerLoadFailureSkipsQuarantine(t *testing.T) {
	h := newHarness(t, nil)
	flaky := coretest.NewFlakyStore(h.deps.Store)
	h.deps.Store = flaky
	coretest.Mutate(t, flaky, guildID, func(p *policy.Policy) { policy.Add(&p.WebhookAllowlist, "hook-A") })
	flaky.SetDown(true)
	h.fake.SetWebhooks(channelID, hookA)

	h.trigger(t)

	if h.fake.DeletedCount() != 0 || len(h.slept) != 0 || h.guard.Pending() != 0 {
		t.Fatalf("deleted=%d slept=%v pending=%d, want no quarantine", h.fake.DeletedCount(), h.slept, h.guard.Pending())
	}
	msgs := h.fake.MessagesSnapshot()
	if len(msgs) != 1 || !strings.Contains(msgs[0].Text, "hook-A") || msgs[0].ChannelID != coretest.SystemChannel {
		t.Errorf("messages = %+v, want one unverified notice in the system channel", msgs)
	}
}
