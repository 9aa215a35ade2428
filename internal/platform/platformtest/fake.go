// Package platformtest provides an in-memory Platform for tests.
package platformtest

import (
	"context"
	"sync"

	"github.com/1sec-project/guildshield/internal/platform"
)

// Message is a notification captured by Fake.
type Message struct {
	GuildID   string
	ChannelID string
	Text      string
}

// Ban is a captured ban action.
type Ban struct {
	GuildID, UserID, Reason string
}

// RoleRemoval is a captured role removal.
type RoleRemoval struct {
	GuildID, UserID string
	Roles           []platform.Role
	Reason          string
}

// Fake records every action. Set the *Err fields to make actions fail.
type Fake struct {
	mu sync.Mutex

	Webhooks       map[string][]platform.Webhook // channel ID → webhooks
	SystemChannels map[string]string             // guild ID → channel ID

	ListErr   error
	DeleteErr error
	BanErr    error
	RemoveErr error
	SendErr   error

	Deleted  []platform.Webhook
	Bans     []Ban
	Removals []RoleRemoval
	Messages []Message
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		Webhooks:       make(map[string][]platform.Webhook),
		SystemChannels: make(map[string]string),
	}
}

// SetWebhooks replaces the webhooks registered on a channel.
func (f *Fake) SetWebhooks(channelID string, hooks ...platform.Webhook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Webhooks[channelID] = hooks
}

func (f *Fake) ListWebhooks(_ context.Context, _, channelID string) ([]platform.Webhook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	return append([]platform.Webhook(nil), f.Webhooks[channelID]...), nil
}

func (f *Fake) DeleteWebhook(_ context.Context, _ string, hook platform.Webhook, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	f.Deleted = append(f.Deleted, hook)
	return nil
}

func (f *Fake) BanMember(_ context.Context, guildID, userID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.BanErr != nil {
		return f.BanErr
	}
	f.Bans = append(f.Bans, Ban{GuildID: guildID, UserID: userID, Reason: reason})
	return nil
}

func (f *Fake) RemoveRoles(_ context.Context, guildID, userID string, roles []platform.Role, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RemoveErr != nil {
		return f.RemoveErr
	}
	f.Removals = append(f.Removals, RoleRemoval{GuildID: guildID, UserID: userID, Roles: roles, Reason: reason})
	return nil
}

func (f *Fake) SendMessage(_ context.Context, guildID, channelID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return f.SendErr
	}
	f.Messages = append(f.Messages, Message{GuildID: guildID, ChannelID: channelID, Text: text})
	return nil
}

func (f *Fake) SystemChannel(_ context.Context, guildID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.SystemChannels[guildID], nil
}

// DeletedCount returns how many webhooks were deleted.
func (f *Fake) DeletedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Deleted)
}

// BanCount returns how many bans were issued.
func (f *Fake) BanCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Bans)
}

// MessagesSnapshot returns a copy of all captured notifications.
func (f *Fake) MessagesSnapshot() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.Messages...)
}

// RemovalsSnapshot returns a copy of all captured role removals.
func (f *Fake) RemovalsSnapshot() []RoleRemoval {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RoleRemoval(nil), f.Removals...)
}

var _ platform.Platform = (*Fake)(nil)
