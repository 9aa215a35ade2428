package main

// ---------------------------------------------------------------------------
// cmd_config.go: validate configuration or print the defaults
// ---------------------------------------------------------------------------

import (
	"flag"
	"fmt"
	"os"

	"github.com/1sec-project/guildshield/internal/core"
	"gopkg.in/yaml.v3"
)

func cmdConfig(args []string) {
	if len(args) == 0 {
		cmdHelp("config")
		os.Exit(1)
	}
	switch args[0] {
	case "validate":
		cmdConfigValidate(args[1:])
	case "defaults":
		data, err := yaml.Marshal(core.DefaultConfig())
		if err != nil {
			errorf("encoding defaults: %v", err)
		}
		os.Stdout.Write(data)
	default:
		errorf("unknown config subcommand %q (want validate or defaults)", args[0])
	}
}

func cmdConfigValidate(args []string) {
	fs := flag.NewFlagSet("config validate", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "Config file path")
	fs.Parse(args)
	*configPath = envConfig(*configPath)

	if _, err := os.Stat(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "%s %s not found, validating built-in defaults\n", yellow("⚠"), *configPath)
	}
	cfg := loadConfig(*configPath, false)

	enabled := 0
	for name := range cfg.Modules {
		if cfg.IsModuleEnabled(name) {
			enabled++
		}
	}
	fmt.Fprintf(os.Stdout, "%s %s is valid: store %s, %d/%d modules enabled\n",
		green("✓"), *configPath, cfg.Store.Backend, enabled, len(cfg.Modules))
}
