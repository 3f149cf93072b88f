package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/luknerlumina/patientflow/internal/domain/entities"
	"github.com/luknerlumina/patientflow/internal/domain/providers"
	redisclient "github.com/luknerlumina/patientflow/internal/infrastructure/clients/redis"
)

const (
	subscriberBuffer = 100

	// channelPrefix keeps pub/sub traffic apart from other apps on a shared Redis
	channelPrefix = "patientflow:"
)

// topic is one Redis subscription shared by every local subscriber of a channel
type topic struct {
	pubsub *redis.PubSub
	subs   map[chan *entities.PatientEvent]struct{}
	closed bool
}

// RedisEventBus implements EventBus on Redis Pub/Sub so every process sharing
// the Redis instance sees session saves.
type RedisEventBus struct {
	client *redisclient.Client
	mu     sync.Mutex
	topics map[string]*topic
	ctx    context.Context
	cancel context.CancelFunc
	logger zerolog.Logger
}

// NewRedisEventBus creates a new Redis-based event bus
func NewRedisEventBus(client *redisclient.Client, logger zerolog.Logger) providers.EventBus {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisEventBus{
		client: client,
		topics: make(map[string]*topic),
		ctx:    ctx,
		cancel: cancel,
		logger: logger.With().Str("component", "redis_event_bus").Logger(),
	}
}

func (b *RedisEventBus) Publish(ctx context.Context, channel string, event *entities.PatientEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := b.client.Client().Publish(ctx, channelPrefix+channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event on %s: %w", channel, err)
	}

	b.logger.Debug().Str("channel", channel).Str("event_id", event.ID).Str("event_type", string(event.EventType)).Msg("published event")
	return nil
}

// Subscribe returns a channel that closes when ctx is done or the bus is closed.
// All local subscribers of a channel share one Redis subscription.
func (b *RedisEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.PatientEvent, error) {
	b.mu.Lock()
	if b.ctx.Err() != nil {
		b.mu.Unlock()
		return nil, errors.New("event bus closed")
	}

	t, ok := b.topics[channel]
	if !ok {
		t = &topic{
			pubsub: b.client.Client().Subscribe(b.ctx, channelPrefix+channel),
			subs:   make(map[chan *entities.PatientEvent]struct{}),
		}
		b.topics[channel] = t
		go b.pump(channel, t)
	}

	eventChan := make(chan *entities.PatientEvent, subscriberBuffer)
	t.subs[eventChan] = struct{}{}
	count := len(t.subs)
	b.mu.Unlock()

	b.logger.Debug().Str("channel", channel).Int("subscribers", count).Msg("subscribed")

	go func() {
		select {
		case <-ctx.Done():
		case <-b.ctx.Done():
		}
		b.drop(channel, t, eventChan)
	}()
	return eventChan, nil
}

// pump decodes Redis messages and hands each subscriber its own copy. A full
// subscriber loses the event rather than stalling the others.
func (b *RedisEventBus) pump(channel string, t *topic) {
	defer func() {
		if err := b.closeTopic(channel, t); err != nil {
			b.logger.Warn().Err(err).Str("channel", channel).Msg("failed to close subscription")
		}
	}()

	messages := t.pubsub.Channel()
	for {
		var msg *redis.Message
		var ok bool
		select {
		case <-b.ctx.Done():
			return
		case msg, ok = <-messages:
			if !ok {
				return
			}
		}

		var event entities.PatientEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			b.logger.Warn().Err(err).Str("channel", channel).Msg("failed to unmarshal event")
			continue
		}

		b.mu.Lock()
		for sub := range t.subs {
			e := event
			select {
			case sub <- &e:
			default:
				b.logger.Warn().Str("channel", channel).Str("event_id", event.ID).Msg("subscriber channel full, dropping event")
			}
		}
		b.mu.Unlock()
	}
}

func (b *RedisEventBus) drop(channel string, t *topic, eventChan chan *entities.PatientEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := t.subs[eventChan]; !ok {
		return
	}
	delete(t.subs, eventChan)
	close(eventChan)

	if len(t.subs) == 0 {
		if err := b.closeTopicLocked(channel, t); err != nil {
			b.logger.Debug().Err(err).Str("channel", channel).Msg("closing idle subscription")
		}
	}
}

func (b *RedisEventBus) closeTopic(channel string, t *topic) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closeTopicLocked(channel, t)
}

// closeTopicLocked ends every subscriber of t and releases its Redis subscription.
// It is safe to call more than once.
func (b *RedisEventBus) closeTopicLocked(channel string, t *topic) error {
	if b.topics[channel] == t {
		delete(b.topics, channel)
	}
	for sub := range t.subs {
		close(sub)
		delete(t.subs, sub)
	}
	if t.closed {
		return nil
	}
	t.closed = true
	if err := t.pubsub.Close(); err != nil {
		return fmt.Errorf("failed to close subscription %s: %w", channel, err)
	}
	return nil
}

// Unsubscribe drops every local subscriber of a channel
func (b *RedisEventBus) Unsubscribe(ctx context.Context, channel string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[channel]
	if !ok {
		return nil
	}
	return b.closeTopicLocked(channel, t)
}

func (b *RedisEventBus) Close() error {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	for channel, t := range b.topics {
		if err := b.closeTopicLocked(channel, t); err != nil {
			errs = append(errs, err)
		}
	}
	b.logger.Info().Msg("event bus closed")
	return errors.Join(errs...)
}
