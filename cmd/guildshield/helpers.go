package main

// ---------------------------------------------------------------------------
// helpers.go: color, error helpers, env-based config
// ---------------------------------------------------------------------------

import (
	"fmt"
	"os"
	"strings"

	"github.com/1sec-project/guildshield/internal/core"
)

const defaultConfigPath = "configs/guildshield.yaml"

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

func colorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		return false
	}
	return isTTY(os.Stderr)
}

func ansi(code, s string) string {
	if !colorEnabled() {
		return s
	}
	return code + s + "\033[0m"
}

func red(s string) string    { return ansi("\033[91m", s) }
func yellow(s string) string { return ansi("\033[93m", s) }
func green(s string) string  { return ansi("\033[32m", s) }
func dim(s string) string    { return ansi("\033[90m", s) }
func bold(s string) string   { return ansi("\033[1m", s) }

func errorf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, red("error: ")+format+"\n", args...)
	os.Exit(1)
}

// envConfig returns the config path, preferring flag > GUILDSHIELD_CONFIG > default.
func envConfig(flagVal string) string {
	if flagVal != "" && flagVal != defaultConfigPath {
		return flagVal
	}
	if e := os.Getenv("GUILDSHIELD_CONFIG"); e != "" {
		return e
	}
	if flagVal == "" {
		return defaultConfigPath
	}
	return flagVal
}

// loadConfig loads and validates the configuration, printing warnings unless
// quiet. Validation errors are fatal.
func loadConfig(path string, quiet bool) *core.Config {
	cfg, err := core.LoadConfig(path)
	if err != nil {
		errorf("loading config: %v", err)
	}
	warnings, errs := cfg.Validate()
	if !quiet {
		for _, w := range warnings {
			fmt.Fprintf(os.Stderr, "%s %s\n", yellow("⚠"), w)
		}
	}
	if len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "%s %s\n", red("✗"), e)
		}
		errorf("config validation failed with %d error(s)", len(errs))
	}
	return cfg
}

// selectModules enables exactly the comma-separated modules in list.
func selectModules(cfg *core.Config, list string) {
	selected := make(map[string]bool)
	for _, name := range strings.Split(list, ",") {
		if name = strings.TrimSpace(name); name != "" {
			selected[name] = true
		}
	}
	for name, mod := range cfg.Modules {
		mod.Enabled = selected[name]
		cfg.Modules[name] = mod
	}
}

func hasFlag(args []string, flags ...string) bool {
	for _, a := range args {
		for _, f := range flags {
			if a == f {
				return true
			}
		}
	}
	return false
}

var commandNames = []string{"up", "policy", "config", "publish", "version", "help"}

// suggest returns the command the user probably meant, or "".
func suggest(input string) string {
	input = strings.ToLower(input)
	if input == "" {
		return ""
	}
	for _, c := range commandNames {
		if strings.HasPrefix(c, input) || strings.HasPrefix(input, c) {
			return c
		}
	}
	for _, c := range commandNames {
		if len(c) != len(input) {
			continue
		}
		diff := 0
		for i := range c {
			if c[i] != input[i] {
				diff++
			}
		}
		if diff <= 1 {
			return c
		}
	}
	return ""
}
