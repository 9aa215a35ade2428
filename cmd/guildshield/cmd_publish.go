package main

// ---------------------------------------------------------------------------
// cmd_publish.go: inject a guild event into the bus
// ---------------------------------------------------------------------------

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/1sec-project/guildshield/internal/core"
	"github.com/1sec-project/guildshield/internal/platform"
)

func cmdPublish(args []string) {
	fs := flag.NewFlagSet("publish", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "Config file path")
	file := fs.String("file", "", `JSON event file, "-" for stdin`)
	eventType := fs.String("type", "", "Event type: webhooks_update, member_join, member_update")
	guild := fs.String("guild", "", "Guild ID")
	owner := fs.String("owner", "", "Guild owner ID")
	channel := fs.String("channel", "", "Channel ID (webhooks_update)")
	channelType := fs.String("channel-type", core.ChannelTypeText, "Channel type (webhooks_update)")
	member := fs.String("member", "", "Member ID (member_join, member_update)")
	roles := fs.String("roles", "", "Member roles after the change, id:name,...")
	before := fs.String("before", "", "Member roles before the change, id:name,... (member_update)")
	admin := fs.Bool("admin", false, "Member holds the administrator permission")
	fs.Parse(args)

	var event *core.GuildEvent
	var err error
	if *file != "" {
		event, err = readEvent(*file)
	} else {
		event, err = buildEvent(*eventType, *guild, *owner, *channel, *channelType, *member, *roles, *before, *admin)
	}
	if err != nil {
		errorf("%v", err)
	}
	if err := event.Validate(); err != nil {
		errorf("%v", err)
	}

	cfg := loadConfig(envConfig(*configPath), true)
	bus := connectBus(cfg, cliLogger())
	defer bus.Close()

	if err := bus.PublishEvent(event); err != nil {
		errorf("publishing event: %v", err)
	}
	fmt.Fprintf(os.Stdout, "%s published %s %s for guild %s\n", green("✓"), event.Type, event.ID, event.GuildID)
}

func readEvent(path string) (*core.GuildEvent, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading event: %w", err)
	}
	event, err := core.UnmarshalGuildEvent(data)
	if err != nil {
		return nil, fmt.Errorf("parsing event: %w", err)
	}
	if event.ID == "" {
		fresh := core.NewGuildEvent(event.Type, event.GuildID, event.OwnerID)
		event.ID, event.Timestamp = fresh.ID, fresh.Timestamp
	}
	return event, nil
}

func buildEvent(eventType, guild, owner, channel, channelType, memberID, roles, before string, admin bool) (*core.GuildEvent, error) {
	if eventType == "" || guild == "" {
		return nil, fmt.Errorf("-type and -guild are required without -file")
	}
	event := core.NewGuildEvent(eventType, guild, owner)
	switch eventType {
	case core.EventWebhooksUpdate:
		event.ChannelID = channel
		event.ChannelType = channelType
	case core.EventMemberJoin, core.EventMemberUpdate:
		after, err := parseRoles(roles)
		if err != nil {
			return nil, err
		}
		event.Member = &platform.Member{ID: memberID, Roles: after, Administrator: admin}
		if eventType == core.EventMemberUpdate {
			prev, err := parseRoles(before)
			if err != nil {
				return nil, err
			}
			event.Before = &platform.Member{ID: memberID, Roles: prev, Administrator: admin}
		}
	}
	return event, nil
}

// parseRoles reads "id:name,id:name". An empty string is no roles.
func parseRoles(s string) ([]platform.Role, error) {
	roles := []platform.Role{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, name, ok := strings.Cut(part, ":")
		if !ok || id == "" || name == "" {
			return nil, fmt.Errorf("bad role %q, want id:name", part)
		}
		roles = append(roles, platform.Role{ID: id, Name: name})
	}
	return roles, nil
}
