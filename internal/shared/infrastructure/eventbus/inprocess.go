package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// InProcessBus dispatches published envelopes synchronously to local
// handlers. It stands in for RabbitMQ in local mode.
//
// Handler errors are returned to the publisher so the outbox keeps the
// message and retries it with backoff.
type InProcessBus struct {
	registry *Registry
	logger   *slog.Logger
}

// NewInProcessBus creates a bus with an empty registry.
func NewInProcessBus(logger *slog.Logger) *InProcessBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &InProcessBus{
		registry: NewRegistry(logger),
		logger:   logger,
	}
}

// Subscribe registers a handler.
func (b *InProcessBus) Subscribe(h Handler) {
	b.registry.Register(h)
}

// Registry exposes the handler registry.
func (b *InProcessBus) Registry() *Registry {
	return b.registry
}

// Publish decodes the envelope and dispatches it.
func (b *InProcessBus) Publish(ctx context.Context, routingKey string, body []byte) error {
	var event Envelope
	if err := json.Unmarshal(body, &event); err != nil {
		// A malformed body will never decode; retrying it is pointless.
		b.logger.Error("dropping undecodable event", "routing_key", routingKey, "error", err)
		return nil
	}
	if event.RoutingKey == "" {
		event.RoutingKey = routingKey
	}

	start := time.Now()
	if err := b.registry.Dispatch(ctx, &event); err != nil {
		return fmt.Errorf("dispatch %s: %w", event.RoutingKey, err)
	}
	b.logger.Debug("event dispatched",
		"routing_key", event.RoutingKey,
		"event_id", event.EventID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Start blocks until ctx is done. Delivery already happens inside Publish.
func (b *InProcessBus) Start(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// Close is a no-op.
func (b *InProcessBus) Close() error { return nil }

// NoopPublisher drops every message.
type NoopPublisher struct {
	logger *slog.Logger
}

// NewNoopPublisher creates a publisher that only logs.
func NewNoopPublisher(logger *slog.Logger) *NoopPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoopPublisher{logger: logger}
}

func (p *NoopPublisher) Publish(_ context.Context, routingKey string, body []byte) error {
	p.logger.Debug("noop publish", "routing_key", routingKey, "size", len(body))
	return nil
}

func (p *NoopPublisher) Close() error { return nil }
