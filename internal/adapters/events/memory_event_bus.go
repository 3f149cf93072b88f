package events

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/luknerlumina/patientflow/internal/domain/entities"
	"github.com/luknerlumina/patientflow/internal/domain/providers"
)

// MemoryEventBus delivers events within one process. It backs the local
// persistence mode where no Redis is configured.
type MemoryEventBus struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan *entities.PatientEvent]struct{}
	closed      bool
	done        chan struct{}
	logger      zerolog.Logger
}

// NewMemoryEventBus creates an in-process event bus
func NewMemoryEventBus(logger zerolog.Logger) providers.EventBus {
	return &MemoryEventBus{
		subscribers: make(map[string]map[chan *entities.PatientEvent]struct{}),
		done:        make(chan struct{}),
		logger:      logger.With().Str("component", "memory_event_bus").Logger(),
	}
}

// Publish delivers the event to current subscribers without blocking
func (b *MemoryEventBus) Publish(ctx context.Context, channel string, event *entities.PatientEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return errors.New("event bus closed")
	}
	for subscriber := range b.subscribers[channel] {
		// each subscriber gets its own copy
		ev := *event
		select {
		case subscriber <- &ev:
		default:
			b.logger.Warn().Str("channel", channel).Str("event_id", event.ID).Msg("subscriber channel full, dropping event")
		}
	}
	return nil
}

// Subscribe registers a subscriber until ctx is done
func (b *MemoryEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.PatientEvent, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, errors.New("event bus closed")
	}
	if b.subscribers[channel] == nil {
		b.subscribers[channel] = make(map[chan *entities.PatientEvent]struct{})
	}
	eventChan := make(chan *entities.PatientEvent, subscriberBuffer)
	b.subscribers[channel][eventChan] = struct{}{}
	b.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-b.done:
		}
		b.remove(channel, eventChan)
	}()
	return eventChan, nil
}

func (b *MemoryEventBus) remove(channel string, eventChan chan *entities.PatientEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subscribers := b.subscribers[channel]
	if _, ok := subscribers[eventChan]; !ok {
		return
	}
	delete(subscribers, eventChan)
	close(eventChan)
	if len(subscribers) == 0 {
		delete(b.subscribers, channel)
	}
}

// Unsubscribe closes every subscriber of a channel
func (b *MemoryEventBus) Unsubscribe(ctx context.Context, channel string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for subscriber := range b.subscribers[channel] {
		close(subscriber)
	}
	delete(b.subscribers, channel)
	return nil
}

// Close closes all subscribers. Later calls to Publish and Subscribe fail.
func (b *MemoryEventBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	close(b.done)
	for channel, subscribers := range b.subscribers {
		for subscriber := range subscribers {
			close(subscriber)
		}
		delete(b.subscribers, channel)
	}
	return nil
}
