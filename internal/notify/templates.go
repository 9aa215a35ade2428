package notify

import (
	"errors"
	"fmt"
	"strings"

	"github.com/1sec-project/guildshield/internal/platform"
)

func WebhookWarning(hook platform.Webhook, delaySeconds int) string {
	return fmt.Sprintf("⚠️ New webhook not on the allowlist:\n`%s`\n"+
		"Allowlist it within %d seconds with `/addwebhook url:<this URL>` or it will be deleted automatically.",
		hook.Identifier(), delaySeconds)
}

func WebhookDeleted(hook platform.Webhook) string {
	return fmt.Sprintf("🚨 Deleted unauthorized webhook: `%s`", hook.Identifier())
}

func WebhookDeleteFailed(hook platform.Webhook, err error) string {
	return fmt.Sprintf("⚠️ Could not delete webhook `%s`: %s", hook.Identifier(), describe(err))
}

func WebhookUnverified(hook platform.Webhook) string {
	return fmt.Sprintf("⚠️ Could not read the webhook allowlist; webhook `%s` was left in place. Check it manually.",
		hook.Identifier())
}

func MemberBanned(m platform.Member) string {
	return fmt.Sprintf("🚫 Blocklisted account %s was banned automatically.", m.Mention())
}

func MemberBanFailed(m platform.Member, err error) string {
	return fmt.Sprintf("⚠️ Could not ban blocklisted account %s: %s", m.Mention(), describe(err))
}

func RolesRevoked(m platform.Member, names []string) string {
	return fmt.Sprintf("🚨 %s acquired protected role(s) `%s` without authorization; revoked automatically.",
		m.Mention(), strings.Join(names, ", "))
}

func RolesRevokeFailed(m platform.Member, names []string, err error) string {
	return fmt.Sprintf("⚠️ Could not revoke protected role(s) `%s` from %s: %s",
		strings.Join(names, ", "), m.Mention(), describe(err))
}

func describe(err error) string {
	switch {
	case err == nil:
		return "unknown error"
	case errors.Is(err, platform.ErrForbidden):
		return "missing permission"
	case errors.Is(err, platform.ErrNotFound):
		return "already gone"
	}
	return err.Error()
}
