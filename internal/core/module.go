package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/1sec-project/guildshield/internal/notify"
	"github.com/1sec-project/guildshield/internal/platform"
	"github.com/1sec-project/guildshield/internal/policy"
	"github.com/rs/zerolog"
)

// Module is the interface every defense module implements.
type Module interface {
	// Name returns the unique name of the module.
	Name() string
	// Description returns a human-readable description.
	Description() string
	// Start wires the module to its dependencies.
	Start(ctx context.Context, deps *Deps) error
	// Stop cancels in-flight work and waits for it to finish.
	Stop() error
	// HandleEvent reacts to one guild event. It must not block for long:
	// delayed work runs on the module's own goroutines.
	HandleEvent(event *GuildEvent) error
	// EventTypes returns the event types this module handles.
	EventTypes() []string
}

// Deps is what the engine hands every module on Start.
type Deps struct {
	Config    *Config
	Store     policy.Store
	Platform  platform.Platform
	Notifier  *notify.Notifier
	Responses *ResponseLog
	Metrics   *Metrics
	Logger    zerolog.Logger
}

// PolicyDefaults returns the defaults for policies materialized on demand.
func (d *Deps) PolicyDefaults() policy.Defaults {
	if d.Config == nil {
		return policy.BuiltinDefaults()
	}
	return d.Config.PolicyDefaults()
}

// LoadPolicy reads the current policy for a guild. When the store is
// unavailable it returns the error together with an ephemeral default; that
// default is only good for routing notifications, never for deciding on a
// platform action.
func (d *Deps) LoadPolicy(ctx context.Context, guildID string) (*policy.Policy, error) {
	p, err := policy.LoadOrDefault(ctx, d.Store, guildID, d.PolicyDefaults())
	if err != nil {
		d.Logger.Error().Err(err).Str("guild_id", guildID).Msg("policy load failed")
	}
	return p, err
}

// ModuleRegistry manages module registration, lifecycle and event routing.
type ModuleRegistry struct {
	mu        sync.RWMutex
	modules   map[string]Module
	order     []string
	started   map[string]bool
	logger    zerolog.Logger
	typeIndex map[string][]Module // event type → modules that handle it
	metrics   *Metrics
}

// NewModuleRegistry creates a new ModuleRegistry. metrics may be nil.
func NewModuleRegistry(logger zerolog.Logger, metrics *Metrics) *ModuleRegistry {
	return &ModuleRegistry{
		modules:   make(map[string]Module),
		order:     make([]string, 0),
		started:   make(map[string]bool),
		logger:    logger.With().Str("component", "module_registry").Logger(),
		typeIndex: make(map[string][]Module),
		metrics:   metrics,
	}
}

// Register adds a module to the registry.
func (r *ModuleRegistry) Register(mod Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := mod.Name()
	if _, exists := r.modules[name]; exists {
		return fmt.Errorf("module %q already registered", name)
	}

	r.modules[name] = mod
	r.order = append(r.order, name)
	for _, t := range mod.EventTypes() {
		r.typeIndex[t] = append(r.typeIndex[t], mod)
	}

	r.logger.Info().Str("module", name).Strs("event_types", mod.EventTypes()).Msg("module registered")
	return nil
}

// RouteEvent dispatches an event to the started modules that declared its type.
func (r *ModuleRegistry) RouteEvent(event *GuildEvent) {
	r.mu.RLock()
	mods := make([]Module, 0, len(r.typeIndex[event.Type]))
	for _, mod := range r.typeIndex[event.Type] {
		if r.started[mod.Name()] {
			mods = append(mods, mod)
		}
	}
	r.mu.RUnlock()

	for _, mod := range mods {
		r.safeHandleEvent(mod, event)
	}
}

// safeHandleEvent calls mod.HandleEvent inside a recover() so one event can
// never take the engine down.
func (r *ModuleRegistry) safeHandleEvent(mod Module, event *GuildEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().
				Str("module", mod.Name()).
				Str("event_id", event.ID).
				Str("event_type", event.Type).
				Interface("panic", rec).
				Msg("module panic recovered")
			r.countError(mod.Name())
		}
	}()

	if err := mod.HandleEvent(event); err != nil {
		r.logger.Error().Err(err).
			Str("module", mod.Name()).
			Str("event_id", event.ID).
			Str("event_type", event.Type).
			Msg("module failed to handle event")
		r.countError(mod.Name())
	}
}

func (r *ModuleRegistry) countError(module string) {
	if r.metrics != nil {
		r.metrics.ModuleErrors.WithLabelValues(module).Inc()
	}
}

// Get returns a module by name.
func (r *ModuleRegistry) Get(name string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mod, ok := r.modules[name]
	return mod, ok
}

// All returns all registered modules in registration order.
func (r *ModuleRegistry) All() []Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Module, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.modules[name])
	}
	return result
}

// IsStarted reports whether a module is running.
func (r *ModuleRegistry) IsStarted(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.started[name]
}

// StartAll starts all registered modules that are enabled in config.
func (r *ModuleRegistry) StartAll(ctx context.Context, deps *Deps) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range r.order {
		if deps.Config != nil && !deps.Config.IsModuleEnabled(name) {
			r.logger.Info().Str("module", name).Msg("module disabled, skipping")
			continue
		}
		if err := r.modules[name].Start(ctx, deps); err != nil {
			return fmt.Errorf("failed to start module %q: %w", name, err)
		}
		r.started[name] = true
		r.logger.Info().Str("module", name).Msg("module started")
	}
	return nil
}

// StopAll stops all started modules in reverse order.
func (r *ModuleRegistry) StopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.order) - 1; i >= 0; i-- {
		name := r.order[i]
		if !r.started[name] {
			continue
		}
		if err := r.modules[name].Stop(); err != nil {
			r.logger.Error().Err(err).Str("module", name).Msg("error stopping module")
		}
		r.started[name] = false
	}
}

// StartModule starts one registered module that is not running.
func (r *ModuleRegistry) StartModule(ctx context.Context, name string, deps *Deps) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	mod, ok := r.modules[name]
	if !ok {
		return fmt.Errorf("module %q not registered", name)
	}
	if r.started[name] {
		return nil
	}
	if err := mod.Start(ctx, deps); err != nil {
		return fmt.Errorf("failed to start module %q: %w", name, err)
	}
	r.started[name] = true
	r.logger.Info().Str("module", name).Msg("module started")
	return nil
}

// StopModule stops one running module.
func (r *ModuleRegistry) StopModule(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	mod, ok := r.modules[name]
	if !ok {
		return fmt.Errorf("module %q not registered", name)
	}
	if !r.started[name] {
		return nil
	}
	r.started[name] = false
	if err := mod.Stop(); err != nil {
		return fmt.Errorf("stopping module %q: %w", name, err)
	}
	r.logger.Info().Str("module", name).Msg("module stopped")
	return nil
}

// Count returns the number of registered modules.
func (r *ModuleRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.modules)
}
