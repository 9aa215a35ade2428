package main

// ---------------------------------------------------------------------------
// cmd_policy.go: read a guild policy through the configured store
// ---------------------------------------------------------------------------

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/1sec-project/guildshield/internal/core"
	"github.com/1sec-project/guildshield/internal/policy"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

func cliLogger() zerolog.Logger {
	return core.NewLogger(core.LoggingConfig{Level: "warn"}, os.Stderr)
}

// connectBus joins the bus of a running engine. The CLI never starts an
// embedded server of its own.
func connectBus(cfg *core.Config, logger zerolog.Logger) *core.EventBus {
	busCfg := cfg.Bus
	busCfg.Embedded = false
	if busCfg.URL == "" {
		errorf("bus.url is empty, set it or GUILDSHIELD_NATS_URL")
	}
	bus, err := core.NewEventBus(&busCfg, logger)
	if err != nil {
		errorf("connecting to the bus at %s: %v", busCfg.URL, err)
	}
	return bus
}

func cmdPolicy(args []string) {
	if len(args) == 0 || args[0] != "show" {
		cmdHelp("policy")
		os.Exit(1)
	}
	fs := flag.NewFlagSet("policy show", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "Config file path")
	jsonOut := fs.Bool("json", false, "Print the raw policy record")
	fs.Parse(args[1:])
	if fs.NArg() != 1 {
		errorf("usage: guildshield policy show [-config path] [-json] <guild>")
	}
	guildID := fs.Arg(0)

	cfg := loadConfig(envConfig(*configPath), true)
	logger := cliLogger()

	var js nats.JetStreamContext
	if cfg.Store.Backend == "nats" {
		bus := connectBus(cfg, logger)
		defer bus.Close()
		js = bus.JetStream()
	}
	store, err := core.OpenStore(cfg, js, logger)
	if err != nil {
		errorf("opening %s store: %v", cfg.Store.Backend, err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p, err := store.Load(ctx, guildID)
	if err != nil {
		errorf("loading policy for guild %s: %v", guildID, err)
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(p)
		return
	}
	printPolicy(os.Stdout, guildID, p)
}

func printPolicy(w io.Writer, guildID string, p *policy.Policy) {
	list := func(items []string) string {
		if len(items) == 0 {
			return dim("(none)")
		}
		return strings.Join(items, ", ")
	}
	channel := p.NotificationChannelID
	if channel == "" {
		channel = dim("(system channel)")
	}
	fmt.Fprintf(w, "%s %s\n", bold("Guild"), guildID)
	fmt.Fprintf(w, "  %-20s %d seconds\n", "quarantine delay", p.ActionDelaySeconds)
	fmt.Fprintf(w, "  %-20s %s\n", "report channel", channel)
	fmt.Fprintf(w, "  %-20s %s\n", "webhook allowlist", list(p.WebhookAllowlist))
	fmt.Fprintf(w, "  %-20s %s\n", "blocklist", list(p.Blocklist))
	fmt.Fprintf(w, "  %-20s %s\n", "protected roles", list(p.ProtectedRoles))
	fmt.Fprintf(w, "  %-20s %s\n", "operators", list(p.Operators))
}
