package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/1sec-project/guildshield/internal/platform"
	"github.com/google/uuid"
)

// Event types delivered by the platform adapter.
const (
	EventWebhooksUpdate = "webhooks_update"
	EventMemberJoin     = "member_join"
	EventMemberUpdate   = "member_update"
)

// ChannelTypeText is the only channel type whose webhooks are inspected.
const ChannelTypeText = "text"

var idPattern = regexp.MustCompile(`^[0-9A-Za-z_-]{1,64}$`)

// ErrInvalidEvent is returned by GuildEvent.Validate.
var ErrInvalidEvent = errors.New("invalid guild event")

// GuildEvent is the envelope the adapter publishes for every platform event.
type GuildEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	GuildID   string    `json:"guild_id"`
	// OwnerID is the guild owner at the time of the event.
	OwnerID string `json:"owner_id"`

	// webhooks_update
	ChannelID   string `json:"channel_id,omitempty"`
	ChannelType string `json:"channel_type,omitempty"`

	// member_join carries Member; member_update carries Before and Member.
	Member *platform.Member `json:"member,omitempty"`
	Before *platform.Member `json:"before,omitempty"`
}

// NewGuildEvent creates an event with a generated ID and current timestamp.
func NewGuildEvent(eventType, guildID, ownerID string) *GuildEvent {
	return &GuildEvent{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		GuildID:   guildID,
		OwnerID:   ownerID,
	}
}

// Validate checks the fields each event type needs.
func (e *GuildEvent) Validate() error {
	if !idPattern.MatchString(e.GuildID) {
		return fmt.Errorf("%w: bad guild_id %q", ErrInvalidEvent, e.GuildID)
	}
	switch e.Type {
	case EventWebhooksUpdate:
		if e.ChannelID == "" {
			return fmt.Errorf("%w: %s without channel_id", ErrInvalidEvent, e.Type)
		}
	case EventMemberJoin:
		if e.Member == nil || e.Member.ID == "" {
			return fmt.Errorf("%w: %s without member", ErrInvalidEvent, e.Type)
		}
	case EventMemberUpdate:
		if e.Member == nil || e.Before == nil || e.Member.ID == "" {
			return fmt.Errorf("%w: %s needs before and member", ErrInvalidEvent, e.Type)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, e.Type)
	}
	return nil
}

// Marshal serializes the event to JSON.
func (e *GuildEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalGuildEvent deserializes a GuildEvent from JSON.
func UnmarshalGuildEvent(data []byte) (*GuildEvent, error) {
	var event GuildEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	return &event, nil
}
