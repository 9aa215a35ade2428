package main

// ---------------------------------------------------------------------------
// cmd_up.go: start the guildshield engine
// ---------------------------------------------------------------------------

import (
	"flag"
	"fmt"
	"os"

	"github.com/1sec-project/guildshield/internal/api"
	"github.com/1sec-project/guildshield/internal/commands"
	"github.com/1sec-project/guildshield/internal/core"
	"github.com/1sec-project/guildshield/internal/modules/blocklist"
	"github.com/1sec-project/guildshield/internal/modules/roleguard"
	"github.com/1sec-project/guildshield/internal/modules/webhookguard"
)

func defenseModules() []core.Module {
	return []core.Module{
		webhookguard.New(),
		blocklist.New(),
		roleguard.New(),
	}
}

func registerModules(engine *core.Engine) {
	for _, mod := range defenseModules() {
		if err := engine.Registry.Register(mod); err != nil {
			engine.Logger.Warn().Err(err).Str("module", mod.Name()).Msg("failed to register module")
		}
	}
}

func cmdUp(args []string) {
	fs := flag.NewFlagSet("up", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "Config file path")
	moduleList := fs.String("modules", "", "Comma-separated modules to enable (disables all others)")
	logLevel := fs.String("log-level", "", "Log level override: debug, info, warn, error")
	dryRun := fs.Bool("dry-run", false, "Validate config and modules, then exit")
	quiet := fs.Bool("q", false, "Suppress non-essential output")
	fs.Parse(args)

	*configPath = envConfig(*configPath)
	cfg := loadConfig(*configPath, *quiet)

	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *moduleList != "" {
		selectModules(cfg, *moduleList)
	}

	engine, err := core.NewEngine(cfg)
	if err != nil {
		errorf("creating engine: %v", err)
	}
	engine.ConfigPath = *configPath
	registerModules(engine)

	if *dryRun {
		enabled := 0
		for _, mod := range engine.Registry.All() {
			if cfg.IsModuleEnabled(mod.Name()) {
				enabled++
			}
		}
		fmt.Fprintf(os.Stdout, "%s Config valid. %d/%d modules enabled, store %s.\n",
			green("✓"), enabled, engine.Registry.Count(), cfg.Store.Backend)
		return
	}

	if !*quiet {
		fmt.Fprintf(os.Stderr, "%s Starting guildshield...\n", dim("▸"))
	}
	if err := engine.Start(); err != nil {
		errorf("starting engine: %v", err)
	}

	var srv *api.Server
	if cfg.Server.Enabled {
		svc := commands.NewService(engine.Store, cfg.PolicyDefaults(), engine.Logger)
		srv = api.NewServer(engine, svc)
		if err := srv.Start(); err != nil {
			errorf("starting API server: %v", err)
		}
	}

	if !*quiet {
		apiStatus := "API disabled"
		if srv != nil {
			apiStatus = fmt.Sprintf("API on %s:%d", cfg.Server.Host, cfg.Server.Port)
		}
		fmt.Fprintf(os.Stderr, "%s guildshield running, %d modules, %s store, %s\n",
			green("✓"), engine.Registry.Count(), cfg.Store.Backend, apiStatus)
		fmt.Fprintf(os.Stderr, "%s Press Ctrl+C to stop, send SIGHUP to reload %s\n", dim("▸"), *configPath)
	}

	engine.Wait()

	if srv != nil {
		if err := srv.Stop(); err != nil {
			engine.Logger.Error().Err(err).Msg("API server shutdown")
		}
	}
	engine.Shutdown()

	if !*quiet {
		fmt.Fprintf(os.Stderr, "%s guildshield stopped.\n", green("✓"))
	}
}
