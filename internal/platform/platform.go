// Package platform is the boundary to the chat platform adapter: the typed
// objects it reports and the actions the engine may ask it to take.
package platform

import (
	"context"
	"errors"
)

var (
	// ErrActionFailed wraps every failed platform action.
	ErrActionFailed = errors.New("platform action failed")
	// ErrForbidden means the bot lacks the permission for the action.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound means the target no longer exists.
	ErrNotFound = errors.New("not found")
)

// Webhook is a relay endpoint registered on a channel.
type Webhook struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	Name      string `json:"name,omitempty"`
	URL       string `json:"url,omitempty"`
}

// Identifier is the string matched against a guild's webhook allowlist.
func (w Webhook) Identifier() string {
	if w.URL != "" {
		return w.URL
	}
	return w.ID
}

// Role is a named grant within a guild.
type Role struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Member is a guild member as seen at one point in time.
type Member struct {
	ID            string `json:"id"`
	Roles         []Role `json:"roles"`
	Administrator bool   `json:"administrator"`
}

// Mention renders the member as a platform mention.
func (m Member) Mention() string {
	return "<@" + m.ID + ">"
}

// Platform is implemented by the adapter that talks to the chat platform.
type Platform interface {
	ListWebhooks(ctx context.Context, guildID, channelID string) ([]Webhook, error)
	DeleteWebhook(ctx context.Context, guildID string, hook Webhook, reason string) error
	BanMember(ctx context.Context, guildID, userID, reason string) error
	RemoveRoles(ctx context.Context, guildID, userID string, roles []Role, reason string) error
	SendMessage(ctx context.Context, guildID, channelID, text string) error
	// SystemChannel returns the guild's default channel, or "" if it has none.
	SystemChannel(ctx context.Context, guildID string) (string, error)
}
