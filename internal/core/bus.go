package core

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Subjects and streams on the guild bus.
const (
	EventsSubjectPrefix    = "guild.events"
	ResponsesSubjectPrefix = "guild.responses"
	eventsStream           = "GUILD_EVENTS"
	responsesStream        = "GUILD_RESPONSES"
	engineConsumer         = "guildshield-engine-events"
)

// EventBus wraps NATS JetStream. The adapter publishes guild events to it and
// the engine publishes its response records.
type EventBus struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	ns     *server.Server
	logger zerolog.Logger
	mu     sync.RWMutex
	subs   []*nats.Subscription

	metrics *BusMetrics
}

// BusMetrics tracks event bus performance counters.
type BusMetrics struct {
	mu                 sync.Mutex `json:"-"`
	EventsPublished    int64      `json:"events_published"`
	ResponsesPublished int64      `json:"responses_published"`
	PublishFailures    int64      `json:"publish_failures"`
	MessagesAcked      int64      `json:"messages_acked"`
	MessagesTermed     int64      `json:"messages_termed"`
}

// NewEventBus creates a new EventBus. If cfg.Embedded is true, it starts an
// embedded NATS server with JetStream.
func NewEventBus(cfg *BusConfig, logger zerolog.Logger) (*EventBus, error) {
	bus := &EventBus{
		logger:  logger.With().Str("component", "event_bus").Logger(),
		subs:    make([]*nats.Subscription, 0),
		metrics: &BusMetrics{},
	}

	url := cfg.URL
	if cfg.Embedded {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating NATS data dir: %w", err)
		}

		ns, err := server.NewServer(&server.Options{
			Host:      "127.0.0.1",
			Port:      cfg.Port,
			JetStream: true,
			StoreDir:  cfg.DataDir,
			NoLog:     true,
			NoSigs:    true,
		})
		if err != nil {
			return nil, fmt.Errorf("creating embedded NATS server: %w", err)
		}
		ns.Start()
		if !ns.ReadyForConnections(10 * time.Second) {
			ns.Shutdown()
			return nil, fmt.Errorf("embedded NATS server failed to start within timeout")
		}
		bus.ns = ns
		url = ns.ClientURL()
		bus.logger.Info().Str("url", url).Msg("embedded NATS server started")
	}

	nc, err := nats.Connect(url,
		nats.Name("guildshield"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				bus.logger.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			bus.logger.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		bus.shutdownServer()
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}
	bus.nc = nc

	js, err := nc.JetStream()
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}
	bus.js = js

	streams := []*nats.StreamConfig{
		{
			Name:      eventsStream,
			Subjects:  []string{EventsSubjectPrefix + ".>"},
			Retention: nats.LimitsPolicy,
			MaxAge:    24 * time.Hour * 7,
			MaxBytes:  256 * 1024 * 1024,
			Storage:   nats.FileStorage,
			Discard:   nats.DiscardOld,
		},
		{
			Name:      responsesStream,
			Subjects:  []string{ResponsesSubjectPrefix + ".>"},
			Retention: nats.LimitsPolicy,
			MaxAge:    24 * time.Hour * 30,
			MaxBytes:  128 * 1024 * 1024,
			Storage:   nats.FileStorage,
			Discard:   nats.DiscardOld,
		},
	}
	for _, sc := range streams {
		if err := bus.ensureStream(sc); err != nil {
			bus.Close()
			return nil, err
		}
	}

	bus.logger.Info().Str("url", url).Msg("connected to NATS JetStream")
	return bus, nil
}

// ensureStream creates the stream, or updates it when it exists with an
// older configuration.
func (b *EventBus) ensureStream(sc *nats.StreamConfig) error {
	if _, err := b.js.AddStream(sc); err != nil {
		if _, updateErr := b.js.UpdateStream(sc); updateErr != nil {
			return fmt.Errorf("creating/updating stream %s: %w (original: %v)", sc.Name, updateErr, err)
		}
	}
	return nil
}

// JetStream exposes the JetStream context for the KV policy store.
func (b *EventBus) JetStream() nats.JetStreamContext { return b.js }

// Conn exposes the NATS connection for the platform adapter client.
func (b *EventBus) Conn() *nats.Conn { return b.nc }

// PublishEvent publishes a GuildEvent. The adapter does this in production;
// the CLI uses it to inject test events.
func (b *EventBus) PublishEvent(event *GuildEvent) error {
	data, err := event.Marshal()
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	subject := fmt.Sprintf("%s.%s.%s", EventsSubjectPrefix, event.GuildID, event.Type)
	if _, err := b.js.Publish(subject, data); err != nil {
		b.count(func(m *BusMetrics) { m.PublishFailures++ })
		return fmt.Errorf("publishing event to %s: %w", subject, err)
	}
	b.count(func(m *BusMetrics) { m.EventsPublished++ })

	b.logger.Debug().
		Str("event_id", event.ID).
		Str("subject", subject).
		Msg("event published")
	return nil
}

// PublishResponse publishes a response record.
func (b *EventBus) PublishResponse(rec *ResponseRecord) error {
	data, err := rec.Marshal()
	if err != nil {
		return fmt.Errorf("marshaling response: %w", err)
	}

	subject := fmt.Sprintf("%s.%s.%s", ResponsesSubjectPrefix, rec.GuildID, rec.Module)
	if _, err := b.js.Publish(subject, data); err != nil {
		b.count(func(m *BusMetrics) { m.PublishFailures++ })
		return fmt.Errorf("publishing response to %s: %w", subject, err)
	}
	b.count(func(m *BusMetrics) { m.ResponsesPublished++ })
	return nil
}

// Subscribe creates a durable subscription to a subject pattern.
func (b *EventBus) Subscribe(subject, durableName string, handler func(msg *nats.Msg)) error {
	opts := []nats.SubOpt{nats.DeliverNew(), nats.AckExplicit()}
	if durableName != "" {
		opts = append(opts, nats.Durable(durableName))
	}
	sub, err := b.js.Subscribe(subject, handler, opts...)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", subject, err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	b.logger.Debug().Str("subject", subject).Str("durable", durableName).Msg("subscribed")
	return nil
}

// SubscribeToAllEvents delivers every guild event to handler. Messages that
// do not decode are terminated rather than redelivered.
func (b *EventBus) SubscribeToAllEvents(handler func(event *GuildEvent)) error {
	return b.Subscribe(EventsSubjectPrefix+".>", engineConsumer, func(msg *nats.Msg) {
		event, err := UnmarshalGuildEvent(msg.Data)
		if err != nil {
			b.logger.Error().Err(err).Str("subject", msg.Subject).Msg("failed to unmarshal event")
			_ = msg.Term()
			b.count(func(m *BusMetrics) { m.MessagesTermed++ })
			return
		}
		handler(event)
		_ = msg.Ack()
		b.count(func(m *BusMetrics) { m.MessagesAcked++ })
	})
}

func (b *EventBus) count(fn func(m *BusMetrics)) {
	b.metrics.mu.Lock()
	fn(b.metrics)
	b.metrics.mu.Unlock()
}

// Unsubscribe stops every subscription. It is safe to call more than once.
func (b *EventBus) Unsubscribe() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	b.subs = nil
}

// Close shuts down the event bus.
func (b *EventBus) Close() error {
	b.Unsubscribe()

	if b.nc != nil {
		b.nc.Close()
	}
	b.shutdownServer()
	return nil
}

func (b *EventBus) shutdownServer() {
	if b.ns != nil {
		b.ns.Shutdown()
		b.ns.WaitForShutdown()
		b.ns = nil
		b.logger.Info().Msg("embedded NATS server stopped")
	}
}

// IsConnected returns true if the NATS connection is active.
func (b *EventBus) IsConnected() bool {
	return b.nc != nil && b.nc.IsConnected()
}

// GetMetrics returns a snapshot of bus metrics.
func (b *EventBus) GetMetrics() map[string]int64 {
	b.metrics.mu.Lock()
	defer b.metrics.mu.Unlock()
	return map[string]int64{
		"events_published":    b.metrics.EventsPublished,
		"responses_published": b.metrics.ResponsesPublished,
		"publish_failures":    b.metrics.PublishFailures,
		"messages_acked":      b.metrics.MessagesAcked,
		"messages_termed":     b.metrics.MessagesTermed,
	}
}
