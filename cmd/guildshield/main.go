package main

// ---------------------------------------------------------------------------
// main.go: command dispatcher for the guildshield CLI
// ---------------------------------------------------------------------------

import (
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
)

var (
	version   = "0.3.0"
	commit    = "dev"
	buildDate = "unknown"
)

func main() {
	// A missing .env is normal; variables already in the environment win.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(0)
	}

	subcmd := os.Args[1]
	args := os.Args[2:]

	if hasFlag(args, "-h", "--help") {
		cmdHelp(subcmd)
		os.Exit(0)
	}

	switch subcmd {
	case "up":
		cmdUp(args)
	case "policy":
		cmdPolicy(args)
	case "config":
		cmdConfig(args)
	case "publish":
		cmdPublish(args)
	case "version", "--version", "-V":
		printVersion(os.Stdout)
	case "help", "--help", "-h":
		if len(args) > 0 {
			cmdHelp(args[0])
		} else {
			printUsage(os.Stdout)
		}
	default:
		fmt.Fprintf(os.Stderr, red("error: ")+"unknown command %q\n\n", subcmd)
		if s := suggest(subcmd); s != "" {
			fmt.Fprintf(os.Stderr, "       Did you mean %s?\n\n", bold(s))
		}
		printUsage(os.Stderr)
		os.Exit(1)
	}
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "guildshield %s (commit %s, built %s)\n", version, commit, buildDate)
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `%s, guild defense agent

Usage:
  guildshield <command> [flags]

Commands:
  up                     Start the engine and the operator API
  policy show <guild>    Print a guild's stored policy
  config validate        Validate the configuration file
  config defaults        Print the default configuration as YAML
  publish                Publish a guild event to the bus
  version                Print version information
  help [command]         Show help for a command

Environment:
  GUILDSHIELD_CONFIG          config file (default %s)
  GUILDSHIELD_API_KEY         operator API key
  GUILDSHIELD_REDIS_PASSWORD  redis store password
  GUILDSHIELD_NATS_URL        NATS server URL

A .env file in the working directory is loaded first.
`, bold("guildshield"), defaultConfigPath)
}

var commandHelp = map[string]string{
	"up": `Usage: guildshield up [-config path] [-log-level level] [-modules list] [-dry-run] [-q]

Starts the embedded bus (unless bus.embedded is false), opens the policy store,
starts the enabled defense modules and serves the operator API. SIGHUP reloads
the configuration file.`,
	"policy": `Usage: guildshield policy show [-config path] [-json] <guild>

Reads the guild's policy through the configured store. A guild without a stored
policy gets one created from the configured defaults.`,
	"config": `Usage: guildshield config validate [-config path]
       guildshield config defaults

validate loads the file, applies environment overrides and reports warnings and
errors. defaults prints the built-in configuration.`,
	"publish": `Usage: guildshield publish [-config path] [-file event.json]
       guildshield publish -type member_join -guild 1 -owner 2 -member 3

Publishes a guild event to the bus the engine consumes. With -file (or "-" for
stdin) the event is read as JSON; otherwise it is built from flags.`,
}

func cmdHelp(cmd string) {
	text, ok := commandHelp[cmd]
	if !ok {
		printUsage(os.Stdout)
		return
	}
	fmt.Println(text)
}
