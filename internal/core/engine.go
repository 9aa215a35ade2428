package core

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/1sec-project/guildshield/internal/notify"
	"github.com/1sec-project/guildshield/internal/platform"
	"github.com/1sec-project/guildshield/internal/policy"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Engine wires the bus, the policy store, the platform client and the
// defense modules together.
type Engine struct {
	Config    *Config
	Bus       *EventBus
	Registry  *ModuleRegistry
	Store     policy.Store
	Platform  platform.Platform
	Notifier  *notify.Notifier
	Responses *ResponseLog
	Metrics   *Metrics
	LogBuffer *LogRingBuffer
	Logger    zerolog.Logger

	// ConfigPath is the file ReloadConfig reads. Empty disables reload.
	ConfigPath string

	cfgMu     sync.RWMutex
	deps      *Deps
	seen      *lru.Cache[string, struct{}] // recently dispatched event IDs
	closingMu sync.Mutex
	closing   bool // set by Shutdown; dispatch adds no work afterwards
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startedAt time.Time
}

// NewEngine creates a new engine. Nothing connects until Start.
func NewEngine(cfg *Config) (*Engine, error) {
	logBuffer := NewLogRingBuffer(1000)
	logger := NewLogger(cfg.Logging, os.Stdout, logBuffer)
	metrics := NewMetrics()

	seen, err := lru.New[string, struct{}](10000)
	if err != nil {
		return nil, fmt.Errorf("creating event dedup cache: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		Config:    cfg,
		Registry:  NewModuleRegistry(logger, metrics),
		Responses: NewResponseLog(cfg.Responses.MaxRecords, metrics, logger),
		Metrics:   metrics,
		LogBuffer: logBuffer,
		Logger:    logger.With().Str("component", "engine").Logger(),
		seen:      seen,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// SetStore injects a policy store. Start keeps it instead of opening one.
func (e *Engine) SetStore(s policy.Store) { e.Store = s }

// SetPlatform injects a platform client. Start keeps it instead of creating
// the bus-backed client.
func (e *Engine) SetPlatform(p platform.Platform) { e.Platform = p }

// Start connects the bus, opens the policy store, starts all enabled modules
// and subscribes to guild events.
func (e *Engine) Start() error {
	e.Logger.Info().Msg("starting guildshield engine")

	bus, err := NewEventBus(&e.Config.Bus, e.Logger)
	if err != nil {
		return fmt.Errorf("starting event bus: %w", err)
	}
	e.Bus = bus
	e.Responses.SetBus(bus)

	if e.Store == nil {
		store, err := OpenStore(e.Config, e.Bus.JetStream(), e.Logger)
		if err != nil {
			return fmt.Errorf("opening policy store: %w", err)
		}
		e.Store = store
	}

	if e.Platform == nil {
		e.Platform = platform.NewNATSClient(bus.Conn(), e.Config.Platform.SubjectPrefix, e.Config.Platform.RequestTimeout)
	}
	e.Notifier = notify.New(e.Platform, e.Logger)

	e.deps = &Deps{
		Config:    e.Config,
		Store:     e.Store,
		Platform:  e.Platform,
		Notifier:  e.Notifier,
		Responses: e.Responses,
		Metrics:   e.Metrics,
		Logger:    e.Logger,
	}
	if err := e.Registry.StartAll(e.ctx, e.deps); err != nil {
		return fmt.Errorf("starting modules: %w", err)
	}

	if err := e.Bus.SubscribeToAllEvents(e.dispatch); err != nil {
		return fmt.Errorf("subscribing to events: %w", err)
	}

	e.startedAt = time.Now()
	e.Logger.Info().
		Int("modules", e.Registry.Count()).
		Str("store", e.Config.Store.Backend).
		Msg("guildshield engine started")
	return nil
}

// OpenStore opens the policy store named by cfg.Store.Backend. js is only
// used by the nats backend.
func OpenStore(cfg *Config, js nats.JetStreamContext, logger zerolog.Logger) (policy.Store, error) {
	d := cfg.PolicyDefaults()
	switch cfg.Store.Backend {
	case "redis":
		return policy.NewRedisStore(cfg.Store.Redis, d, logger)
	case "nats":
		if js == nil {
			return nil, fmt.Errorf("store backend nats needs a bus connection")
		}
		return policy.NewKVStore(js, cfg.Store.Bucket, d, logger)
	case "file", "":
		return policy.NewFileStore(cfg.Store.Dir, d, logger)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// dispatch validates an event and routes it on its own goroutine so a slow
// module never holds up delivery of the next event. JetStream delivers at
// least once, so an event ID seen recently is dropped.
func (e *Engine) dispatch(event *GuildEvent) {
	if err := event.Validate(); err != nil {
		e.Metrics.EventsRejected.Inc()
		e.Logger.Warn().Err(err).Str("event_id", event.ID).Msg("dropping invalid event")
		return
	}
	if event.ID != "" {
		if ok, _ := e.seen.ContainsOrAdd(event.ID, struct{}{}); ok {
			e.Logger.Debug().Str("event_id", event.ID).Msg("dropping redelivered event")
			return
		}
	}
	e.closingMu.Lock()
	if e.closing {
		e.closingMu.Unlock()
		e.Logger.Debug().Str("event_id", event.ID).Msg("engine stopping, dropping event")
		return
	}
	e.wg.Add(1)
	e.closingMu.Unlock()

	e.Metrics.EventsReceived.WithLabelValues(event.Type).Inc()
	go func() {
		defer e.wg.Done()
		e.Registry.RouteEvent(event)
	}()
}

// Wait blocks until SIGINT, SIGTERM or engine cancellation. SIGHUP reloads
// the configuration file and keeps waiting.
func (e *Engine) Wait() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				if _, err := ReloadConfig(e, e.ConfigPath); err != nil {
					e.Logger.Error().Err(err).Msg("config reload failed")
				}
				continue
			}
			e.Logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
		case <-e.ctx.Done():
			e.Logger.Info().Msg("context cancelled")
		}
		return
	}
}

// Shutdown stops event delivery, then stops the modules, waits for in-flight
// dispatches and closes the bus and the store.
func (e *Engine) Shutdown() error {
	e.Logger.Info().Msg("shutting down guildshield engine")
	if e.Bus != nil {
		e.Bus.Unsubscribe()
	}
	e.closingMu.Lock()
	e.closing = true
	e.closingMu.Unlock()
	e.cancel()

	e.Registry.StopAll()
	e.wg.Wait()

	if e.Bus != nil {
		if err := e.Bus.Close(); err != nil {
			e.Logger.Error().Err(err).Msg("error closing event bus")
		}
	}
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			e.Logger.Error().Err(err).Msg("error closing policy store")
		}
	}

	e.Logger.Info().Msg("guildshield engine stopped")
	return nil
}

// Context returns the engine's context.
func (e *Engine) Context() context.Context {
	return e.ctx
}

// Uptime returns how long the engine has been running.
func (e *Engine) Uptime() time.Duration {
	if e.startedAt.IsZero() {
		return 0
	}
	return time.Since(e.startedAt)
}

// ValidateAPIKey checks a key against the current configuration. Keys can
// change under ReloadConfig, so callers go through the engine.
func (e *Engine) ValidateAPIKey(key string) bool {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.Config.ValidateAPIKey(key)
}

// AuthEnabled reports whether the operator API requires a key.
func (e *Engine) AuthEnabled() bool {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.Config.AuthEnabled()
}
