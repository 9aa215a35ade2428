package commands

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/1sec-project/guildshield/internal/policy"
)

// Command names.
const (
	CmdSetLogChannel = "setlogchannel"
	CmdSetDelay      = "setdelay"
	CmdAddWebhook    = "addwebhook"
	CmdDelWebhook    = "delwebhook"
	CmdListWebhook   = "listwebhook"
	CmdAddBlacklist  = "addblacklist"
	CmdDelBlacklist  = "delblacklist"
	CmdListBlacklist = "listblacklist"
	CmdAddProtected  = "addprotected"
	CmdDelProtected  = "delprotected"
	CmdListProtected = "listprotected"
	CmdGrantDefense  = "grantdefense"
	CmdRevokeDefense = "revokedefense"
	CmdListDefense   = "listdefense"
	CmdPing          = "ping"
)

const (
	maxURLLen  = 512
	maxRoleLen = 100
)

func allowlist(p *policy.Policy) *[]string { return &p.WebhookAllowlist }
func blocklist(p *policy.Policy) *[]string { return &p.Blocklist }
func protected(p *policy.Policy) *[]string { return &p.ProtectedRoles }
func operators(p *policy.Policy) *[]string { return &p.Operators }

// SetLogChannel sets the channel that receives defense reports.
func (s *Service) SetLogChannel(ctx context.Context, inv Invocation, channelID string) Result {
	channelID = strings.TrimSpace(channelID)
	return s.mutate(ctx, inv, CmdSetLogChannel, defenseGate, checkID("channel_id", channelID),
		func(p *policy.Policy) (Outcome, string) {
			if p.NotificationChannelID == channelID {
				return OutcomeAlreadyPresent, fmt.Sprintf("Reports already go to <#%s>.", channelID)
			}
			p.NotificationChannelID = channelID
			return OutcomeApplied, fmt.Sprintf("Reports will be sent to <#%s>.", channelID)
		})
}

// SetDelay sets the webhook quarantine delay. Out-of-range values are
// rejected before the policy is touched.
func (s *Service) SetDelay(ctx context.Context, inv Invocation, seconds int) Result {
	var inputErr error
	if !policy.DelayValid(seconds) {
		inputErr = fmt.Errorf("%w: delay must be between %d and %d seconds", ErrInvalidInput, policy.MinActionDelay, policy.MaxActionDelay)
	}
	return s.mutate(ctx, inv, CmdSetDelay, defenseGate, inputErr,
		func(p *policy.Policy) (Outcome, string) {
			if p.ActionDelaySeconds == seconds {
				return OutcomeAlreadyPresent, fmt.Sprintf("The delay is already %d seconds.", seconds)
			}
			p.ActionDelaySeconds = seconds
			return OutcomeApplied, fmt.Sprintf("Unauthorized webhooks will be deleted after %d seconds.", seconds)
		})
}

// AddWebhook allowlists a webhook URL.
func (s *Service) AddWebhook(ctx context.Context, inv Invocation, url string) Result {
	url = strings.TrimSpace(url)
	return s.mutate(ctx, inv, CmdAddWebhook, defenseGate, checkText("url", url, maxURLLen),
		setOp(allowlist, url, true,
			fmt.Sprintf("Added to the webhook allowlist: `%s`", url),
			"This webhook is already on the allowlist."))
}

// DelWebhook removes a webhook URL from the allowlist.
func (s *Service) DelWebhook(ctx context.Context, inv Invocation, url string) Result {
	url = strings.TrimSpace(url)
	return s.mutate(ctx, inv, CmdDelWebhook, defenseGate, checkText("url", url, maxURLLen),
		setOp(allowlist, url, false,
			fmt.Sprintf("Removed from the webhook allowlist: `%s`", url),
			"That URL is not on the allowlist."))
}

// ListWebhook lists the webhook allowlist.
func (s *Service) ListWebhook(ctx context.Context, inv Invocation) Result {
	return s.list(ctx, inv, CmdListWebhook, defenseGate,
		func(p *policy.Policy) []string { return p.WebhookAllowlist },
		"Webhook allowlist", "The webhook allowlist is empty.")
}

// AddBlacklist blocklists an account ID.
func (s *Service) AddBlacklist(ctx context.Context, inv Invocation, userID string) Result {
	userID = strings.TrimSpace(userID)
	return s.mutate(ctx, inv, CmdAddBlacklist, defenseGate, checkID("user_id", userID),
		setOp(blocklist, userID, true,
			fmt.Sprintf("Added `%s` to the blocklist.", userID),
			"That account is already on the blocklist."))
}

// DelBlacklist removes an account ID from the blocklist.
func (s *Service) DelBlacklist(ctx context.Context, inv Invocation, userID string) Result {
	userID = strings.TrimSpace(userID)
	return s.mutate(ctx, inv, CmdDelBlacklist, defenseGate, checkID("user_id", userID),
		setOp(blocklist, userID, false,
			fmt.Sprintf("Removed `%s` from the blocklist.", userID),
			"That account is not on the blocklist."))
}

// ListBlacklist lists the blocklist.
func (s *Service) ListBlacklist(ctx context.Context, inv Invocation) Result {
	return s.list(ctx, inv, CmdListBlacklist, defenseGate,
		func(p *policy.Policy) []string { return p.Blocklist },
		"Blocklist", "The blocklist is empty.")
}

// AddProtected protects a role name.
func (s *Service) AddProtected(ctx context.Context, inv Invocation, role string) Result {
	role = strings.TrimSpace(role)
	return s.mutate(ctx, inv, CmdAddProtected, defenseGate, checkText("role", role, maxRoleLen),
		setOp(protected, role, true,
			fmt.Sprintf("Protected role added: `%s`", role),
			"That role is already protected."))
}

// DelProtected stops protecting a role name.
func (s *Service) DelProtected(ctx context.Context, inv Invocation, role string) Result {
	role = strings.TrimSpace(role)
	return s.mutate(ctx, inv, CmdDelProtected, defenseGate, checkText("role", role, maxRoleLen),
		setOp(protected, role, false,
			fmt.Sprintf("Protected role removed: `%s`", role),
			"That role is not protected."))
}

// ListProtected lists the protected role names.
func (s *Service) ListProtected(ctx context.Context, inv Invocation) Result {
	return s.list(ctx, inv, CmdListProtected, defenseGate,
		func(p *policy.Policy) []string { return p.ProtectedRoles },
		"Protected roles", "No roles are protected.")
}

// GrantDefense makes userID an operator. Only the owner or an administrator
// may do this.
func (s *Service) GrantDefense(ctx context.Context, inv Invocation, userID string) Result {
	userID = strings.TrimSpace(userID)
	return s.mutate(ctx, inv, CmdGrantDefense, operatorGate, checkID("user_id", userID),
		setOp(operators, userID, true,
			fmt.Sprintf("Granted defense commands to <@%s>.", userID),
			"That member is already an operator."))
}

// RevokeDefense removes userID from the operators. Only the owner or an
// administrator may do this.
func (s *Service) RevokeDefense(ctx context.Context, inv Invocation, userID string) Result {
	userID = strings.TrimSpace(userID)
	return s.mutate(ctx, inv, CmdRevokeDefense, operatorGate, checkID("user_id", userID),
		setOp(operators, userID, false,
			fmt.Sprintf("Revoked defense commands from <@%s>.", userID),
			"That member is not an operator."))
}

// ListDefense lists the operators as mentions.
func (s *Service) ListDefense(ctx context.Context, inv Invocation) Result {
	return s.list(ctx, inv, CmdListDefense, defenseGate,
		func(p *policy.Policy) []string {
			out := make([]string, len(p.Operators))
			for i, id := range p.Operators {
				out[i] = "<@" + id + ">"
			}
			return out
		},
		"Operators", "No members have been granted defense commands.")
}

// Ping answers without touching the store.
func (s *Service) Ping(_ context.Context, _ Invocation) Result {
	return Result{Command: CmdPing, Outcome: OutcomeApplied, Message: "Pong!"}
}

// handler adapts a Service method to the name-and-arguments form.
type handler func(s *Service, ctx context.Context, inv Invocation, args map[string]string) Result

var handlers = map[string]handler{
	CmdSetLogChannel: func(s *Service, ctx context.Context, inv Invocation, a map[string]string) Result {
		return s.SetLogChannel(ctx, inv, a["channel_id"])
	},
	CmdSetDelay: func(s *Service, ctx context.Context, inv Invocation, a map[string]string) Result {
		seconds, err := strconv.Atoi(strings.TrimSpace(a["seconds"]))
		if err != nil {
			// Authorization is still checked before the input.
			return s.mutate(ctx, inv, CmdSetDelay, defenseGate,
				fmt.Errorf("%w: seconds must be an integer", ErrInvalidInput), nil)
		}
		return s.SetDelay(ctx, inv, seconds)
	},
	CmdAddWebhook: func(s *Service, ctx context.Context, inv Invocation, a map[string]string) Result {
		return s.AddWebhook(ctx, inv, a["url"])
	},
	CmdDelWebhook: func(s *Service, ctx context.Context, inv Invocation, a map[string]string) Result {
		return s.DelWebhook(ctx, inv, a["url"])
	},
	CmdListWebhook: func(s *Service, ctx context.Context, inv Invocation, _ map[string]string) Result {
		return s.ListWebhook(ctx, inv)
	},
	CmdAddBlacklist: func(s *Service, ctx context.Context, inv Invocation, a map[string]string) Result {
		return s.AddBlacklist(ctx, inv, a["user_id"])
	},
	CmdDelBlacklist: func(s *Service, ctx context.Context, inv Invocation, a map[string]string) Result {
		return s.DelBlacklist(ctx, inv, a["user_id"])
	},
	CmdListBlacklist: func(s *Service, ctx context.Context, inv Invocation, _ map[string]string) Result {
		return s.ListBlacklist(ctx, inv)
	},
	CmdAddProtected: func(s *Service, ctx context.Context, inv Invocation, a map[string]string) Result {
		return s.AddProtected(ctx, inv, a["role"])
	},
	CmdDelProtected: func(s *Service, ctx context.Context, inv Invocation, a map[string]string) Result {
		return s.DelProtected(ctx, inv, a["role"])
	},
	CmdListProtected: func(s *Service, ctx context.Context, inv Invocation, _ map[string]string) Result {
		return s.ListProtected(ctx, inv)
	},
	CmdGrantDefense: func(s *Service, ctx context.Context, inv Invocation, a map[string]string) Result {
		return s.GrantDefense(ctx, inv, a["user_id"])
	},
	CmdRevokeDefense: func(s *Service, ctx context.Context, inv Invocation, a map[string]string) Result {
		return s.RevokeDefense(ctx, inv, a["user_id"])
	},
	CmdListDefense: func(s *Service, ctx context.Context, inv Invocation, _ map[string]string) Result {
		return s.ListDefense(ctx, inv)
	},
	CmdPing: func(s *Service, ctx context.Context, inv Invocation, _ map[string]string) Result {
		return s.Ping(ctx, inv)
	},
}

// Execute runs a command by name with string arguments, the form the
// adapter and the HTTP API deliver.
func (s *Service) Execute(ctx context.Context, inv Invocation, command string, args map[string]string) Result {
	h, ok := handlers[strings.ToLower(command)]
	if !ok {
		err := fmt.Errorf("%w: %q", ErrUnknownCommand, command)
		return Result{Command: command, Outcome: OutcomeInvalidInput, Message: err.Error(), Error: err.Error(), Err: err}
	}
	if args == nil {
		args = map[string]string{}
	}
	return h(s, ctx, inv, args)
}

// Names returns every command name, sorted.
func Names() []string {
	names := make([]string, 0, len(handlers))
	for name := range handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
