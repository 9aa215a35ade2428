package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is where the adapter listens for action requests.
const DefaultSubjectPrefix = "guild.actions"

// Action verbs, appended to the subject prefix.
const (
	VerbListWebhooks  = "list_webhooks"
	VerbDeleteWebhook = "delete_webhook"
	VerbBanMember     = "ban_member"
	VerbRemoveRoles   = "remove_roles"
	VerbSendMessage   = "send_message"
	VerbSystemChannel = "system_channel"
)

// Reply codes the adapter uses to classify failures.
const (
	CodeForbidden = "forbidden"
	CodeNotFound  = "not_found"
)

// ActionRequest is the JSON body of every action request.
type ActionRequest struct {
	GuildID   string   `json:"guild_id"`
	ChannelID string   `json:"channel_id,omitempty"`
	UserID    string   `json:"user_id,omitempty"`
	Webhook   *Webhook `json:"webhook,omitempty"`
	Roles     []Role   `json:"roles,omitempty"`
	Reason    string   `json:"reason,omitempty"`
	Text      string   `json:"text,omitempty"`
}

// ActionReply is the adapter's JSON answer.
type ActionReply struct {
	OK        bool      `json:"ok"`
	Code      string    `json:"code,omitempty"`
	Error     string    `json:"error,omitempty"`
	Webhooks  []Webhook `json:"webhooks,omitempty"`
	ChannelID string    `json:"channel_id,omitempty"`
}

// NATSClient implements Platform with NATS request/reply against an adapter
// process that owns the gateway connection.
type NATSClient struct {
	nc      *nats.Conn
	prefix  string
	timeout time.Duration
}

// NewNATSClient creates a client. A zero timeout defaults to 10s.
func NewNATSClient(nc *nats.Conn, prefix string, timeout time.Duration) *NATSClient {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &NATSClient{nc: nc, prefix: prefix, timeout: timeout}
}

func (c *NATSClient) call(ctx context.Context, verb string, req ActionRequest) (*ActionReply, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding %s: %w", ErrActionFailed, verb, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg, err := c.nc.RequestWithContext(ctx, c.prefix+"."+verb, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrActionFailed, verb, err)
	}

	var reply ActionReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return nil, fmt.Errorf("%w: decoding %s reply: %w", ErrActionFailed, verb, err)
	}
	if !reply.OK {
		switch reply.Code {
		case CodeForbidden:
			return nil, fmt.Errorf("%w: %s: %w", ErrActionFailed, verb, ErrForbidden)
		case CodeNotFound:
			return nil, fmt.Errorf("%w: %s: %w", ErrActionFailed, verb, ErrNotFound)
		}
		return nil, fmt.Errorf("%w: %s: %s", ErrActionFailed, verb, reply.Error)
	}
	return &reply, nil
}

func (c *NATSClient) ListWebhooks(ctx context.Context, guildID, channelID string) ([]Webhook, error) {
	reply, err := c.call(ctx, VerbListWebhooks, ActionRequest{GuildID: guildID, ChannelID: channelID})
	if err != nil {
		return nil, err
	}
	return reply.Webhooks, nil
}

func (c *NATSClient) DeleteWebhook(ctx context.Context, guildID string, hook Webhook, reason string) error {
	_, err := c.call(ctx, VerbDeleteWebhook, ActionRequest{GuildID: guildID, ChannelID: hook.ChannelID, Webhook: &hook, Reason: reason})
	return err
}

func (c *NATSClient) BanMember(ctx context.Context, guildID, userID, reason string) error {
	_, err := c.call(ctx, VerbBanMember, ActionRequest{GuildID: guildID, UserID: userID, Reason: reason})
	return err
}

func (c *NATSClient) RemoveRoles(ctx context.Context, guildID, userID string, roles []Role, reason string) error {
	_, err := c.call(ctx, VerbRemoveRoles, ActionRequest{GuildID: guildID, UserID: userID, Roles: roles, Reason: reason})
	return err
}

func (c *NATSClient) SendMessage(ctx context.Context, guildID, channelID, text string) error {
	_, err := c.call(ctx, VerbSendMessage, ActionRequest{GuildID: guildID, ChannelID: channelID, Text: text})
	return err
}

func (c *NATSClient) SystemChannel(ctx context.Context, guildID string) (string, error) {
	reply, err := c.call(ctx, VerbSystemChannel, ActionRequest{GuildID: guildID})
	if err != nil {
		return "", err
	}
	return reply.ChannelID, nil
}
