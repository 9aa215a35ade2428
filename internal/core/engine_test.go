package core

import (
	"testing"
	"time"

	"github.com/1sec-project/guildshield/internal/platform/platformtest"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func testEngineConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Bus.Port = -1
	cfg.Bus.DataDir = t.TempDir()
	cfg.Store.Dir = t.TempDir()
	cfg.Logging.Level = "error"
	return cfg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestEngine_RoutesBusEventsToModules(t *testing.T) {
	e, err := NewEngine(testEngineConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	e.SetPlatform(platformtest.New())
	join := newMockModule("join", EventMemberJoin)
	e.Registry.Register(join)

	if err := e.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer e.Shutdown()

	if err := e.Bus.PublishEvent(joinEvent()); err != nil {
		t.Fatalf("PublishEvent() error: %v", err)
	}
	waitFor(t, "module to receive event", func() bool { return join.handled() == 1 })

	if got := testutil.ToFloat64(e.Metrics.EventsReceived.WithLabelValues(EventMemberJoin)); got != 1 {
		t.Errorf("events received = %v, want 1", got)
	}
	if e.Uptime() <= 0 {
		t.Error("Uptime() should be positive after Start")
	}
}

func TestEngine_DropsInvalidEvents(t *testing.T) {
	e, _ := NewEngine(testEngineConfig(t))
	e.SetPlatform(platformtest.New())
	join := newMockModule("join", EventMemberJoin)
	e.Registry.Register(join)
	if err := e.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer e.Shutdown()

	bad := joinEvent()
	bad.Member = nil
	if err := e.Bus.PublishEvent(bad); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "event rejection", func() bool {
		return testutil.ToFloat64(e.Metrics.EventsRejected) == 1
	})
	if join.handled() != 0 {
		t.Error("invalid event reached a module")
	}
}

func TestEngine_OpensFileStore(t *testing.T) {
	cfg := testEngineConfig(t)
	e, _ := NewEngine(cfg)
	e.SetPlatform(platformtest.New())
	if err := e.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer e.Shutdown()

	p, err := e.Store.Load(e.Context(), "123")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if p.ActionDelaySeconds != cfg.Defaults.ActionDelaySeconds {
		t.Errorf("delay = %d, want %d", p.ActionDelaySeconds, cfg.Defaults.ActionDelaySeconds)
	}
}

func TestEngine_ShutdownStopsModules(t *testing.T) {
	e, _ := NewEngine(testEngineConfig(t))
	e.SetPlatform(platformtest.New())
	mod := newMockModule("m", EventMemberJoin)
	e.Registry.Register(mod)
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	e.Shutdown()
	if !mod.stopped {
		t.Error("module not stopped")
	}
	if e.Bus.IsConnected() {
		t.Error("bus still connected after Shutdown")
	}
	if e.Context().Err() == nil {
		t.Error("engine context not cancelled")
	}
}

func TestEngine_DropsRedeliveredEvents(t *testing.T) {
	e, _ := NewEngine(testEngineConfig(t))
	e.SetPlatform(platformtest.New())
	join := newMockModule("join", EventMemberJoin)
	e.Registry.Register(join)
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	defer e.Shutdown()

	event := joinEvent()
	e.Bus.PublishEvent(event)
	e.Bus.PublishEvent(event)
	waitFor(t, "both deliveries", func() bool { return e.Bus.GetMetrics()["messages_acked"] == 2 })
	time.Sleep(50 * time.Millisecond)

	if join.handled() != 1 {
		t.Errorf("module handled %d copies, want 1", join.handled())
	}
}

func TestEngine_NoDispatchAfterShutdown(t *testing.T) {
	e, _ := NewEngine(testEngineConfig(t))
	e.SetPlatform(platformtest.New())
	join := newMockModule("join", EventMemberJoin)
	e.Registry.Register(join)
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	e.Shutdown()

	// A callback already in flight when the subscription closed.
	e.dispatch(joinEvent())
	e.wg.Wait()

	if join.handled() != 0 {
		t.Errorf("module handled %d events after Shutdown, want 0", join.handled())
	}
	if got := testutil.ToFloat64(e.Metrics.EventsReceived.WithLabelValues(EventMemberJoin)); got != 0 {
		t.Errorf("events received = %v, want 0", got)
	}
	e.Bus.mu.RLock()
	defer e.Bus.mu.RUnlock()
	if len(e.Bus.subs) != 0 {
		t.Errorf("bus still has %d subscriptions after Shutdown", len(e.Bus.subs))
	}
}
