package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
	domainauth "github.com/target/storefront/internal/domain/auth"
	"github.com/target/storefront/internal/ports"
)

const (
	defaultChannelPrefix = "auth:events:"
	subscriptionBuffer   = 16
)

// EventBus publishes auth events on a per-client Redis pub/sub channel.
type EventBus struct {
	client redis.UniversalClient
	prefix string
	logger *slog.Logger
}

var _ ports.EventBus = (*EventBus)(nil)

// EventBusOptions configures an EventBus.
type EventBusOptions struct {
	ChannelPrefix string
	Logger        *slog.Logger
}

// NewEventBus creates an EventBus over client.
func NewEventBus(client redis.UniversalClient, opts EventBusOptions) *EventBus {
	prefix := opts.ChannelPrefix
	if prefix == "" {
		prefix = defaultChannelPrefix
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "auth_event_bus")
	}
	return &EventBus{client: client, prefix: prefix, logger: logger}
}

// Channel returns the pub/sub channel for clientID.
func (b *EventBus) Channel(clientID string) string {
	return b.prefix + clientID
}

// Publish sends ev to every subscriber of clientID.
func (b *EventBus) Publish(ctx context.Context, clientID string, ev domainauth.AuthEvent) error {
	if clientID == "" {
		return errors.New("client ID cannot be empty")
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal auth event: %w", err)
	}
	if err = b.client.Publish(ctx, b.Channel(clientID), payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribe opens a subscription for clientID. The returned subscription is
// confirmed with Redis before Subscribe returns, so events published after
// it are delivered.
func (b *EventBus) Subscribe(ctx context.Context, clientID string) (ports.Subscription, error) {
	if clientID == "" {
		return nil, errors.New("client ID cannot be empty")
	}
	ps := b.client.Subscribe(ctx, b.Channel(clientID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	sub := &subscription{
		ps:     ps,
		events: make(chan domainauth.AuthEvent, subscriptionBuffer),
		done:   make(chan struct{}),
		logger: b.logger.With("client_id", clientID),
	}
	go sub.pump()
	return sub, nil
}

type subscription struct {
	ps     *redis.PubSub
	events chan domainauth.AuthEvent
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

func (s *subscription) Events() <-chan domainauth.AuthEvent { return s.events }

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.done)
		if err := s.ps.Close(); err != nil {
			s.logger.Debug("close pubsub", "error", err)
		}
	})
}

// pump decodes messages until the pubsub closes. Undecodable payloads are
// dropped; types unknown to this build map to OTHER.
func (s *subscription) pump() {
	defer close(s.events)
	for msg := range s.ps.Channel() {
		var ev domainauth.AuthEvent
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			s.logger.Warn("dropping malformed auth event", "error", err)
			continue
		}
		ev.Type = domainauth.ParseAuthEventType(string(ev.Type))
		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}
