package core

import (
	"fmt"
	"slices"
	"sort"

	"github.com/rs/zerolog"
)

// ReloadConfig re-reads the configuration file and applies the settings that
// can change without a restart. It returns a description of each change.
//
// Hot-reloadable settings:
//   - server.api_keys
//   - logging.level (applied as the zerolog global level)
//   - modules.<name>.enabled (starts or stops the module)
//
// Everything else (bus, store, server address, policy defaults) needs a
// restart.
func ReloadConfig(engine *Engine, configPath string) ([]string, error) {
	if configPath == "" {
		return nil, fmt.Errorf("no config path set, cannot reload")
	}

	newCfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if _, errs := newCfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid config: %v", errs)
	}

	var changes []string
	toggles := make(map[string]bool)
	var order []string

	engine.cfgMu.Lock()
	if !slices.Equal(newCfg.Server.APIKeys, engine.Config.Server.APIKeys) {
		engine.Config.Server.APIKeys = newCfg.Server.APIKeys
		changes = append(changes, fmt.Sprintf("server.api_keys → %d keys", len(newCfg.Server.APIKeys)))
	}

	if newCfg.LogLevel() != engine.Config.LogLevel() {
		engine.Config.Logging.Level = newCfg.Logging.Level
		changes = append(changes, "logging.level → "+newCfg.LogLevel())
	}

	names := make([]string, 0, len(newCfg.Modules))
	for name := range newCfg.Modules {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		newMod := newCfg.Modules[name]
		oldMod, exists := engine.Config.Modules[name]
		engine.Config.Modules[name] = newMod
		if exists && oldMod.Enabled == newMod.Enabled {
			continue
		}
		toggles[name] = newMod.Enabled
		order = append(order, name)
	}
	level := engine.Config.LogLevel()
	engine.cfgMu.Unlock()

	zerolog.SetGlobalLevel(ParseLevel(level))

	for _, name := range order {
		enabled := toggles[name]
		if _, ok := engine.Registry.Get(name); ok && engine.deps != nil {
			var err error
			if enabled {
				err = engine.Registry.StartModule(engine.ctx, name, engine.deps)
			} else {
				err = engine.Registry.StopModule(name)
			}
			if err != nil {
				engine.Logger.Error().Err(err).Str("module", name).Msg("reload could not toggle module")
				continue
			}
		}
		if enabled {
			changes = append(changes, "module "+name+" enabled")
		} else {
			changes = append(changes, "module "+name+" disabled")
		}
	}

	if len(changes) == 0 {
		changes = append(changes, "no changes detected")
	}

	engine.Logger.Info().Strs("changes", changes).Msg("configuration reloaded")
	return changes, nil
}
