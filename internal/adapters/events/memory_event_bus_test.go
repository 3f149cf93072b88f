package events

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luknerlumina/patientflow/internal/domain/entities"
	"github.com/luknerlumina/patientflow/internal/domain/providers"
)

func receive(t *testing.T, ch <-chan *entities.PatientEvent) *entities.PatientEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestMemoryEventBus_PublishSubscribe(t *testing.T) {
	bus := NewMemoryEventBus(zerolog.Nop())
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	channel := providers.GetSessionChannel("2026-10-19")
	first, err := bus.Subscribe(ctx, channel)
	require.NoError(t, err)
	second, err := bus.Subscribe(ctx, channel)
	require.NoError(t, err)
	other, err := bus.Subscribe(ctx, providers.GetSessionChannel("2026-10-20"))
	require.NoError(t, err)

	event := entities.NewPatientEvent("2026-10-19", entities.PatientEventTypeSessionSaved, map[string]interface{}{"patient_count": 3})
	require.NoError(t, bus.Publish(ctx, channel, event))

	assert.Equal(t, event.ID, receive(t, first).ID)
	assert.Equal(t, event.ID, receive(t, second).ID)

	select {
	case ev := <-other:
		t.Fatalf("unexpected event on other channel: %v", ev)
	default:
	}
}

func TestMemoryEventBus_ContextCancelClosesChannel(t *testing.T) {
	bus := NewMemoryEventBus(zerolog.Nop())
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := bus.Subscribe(ctx, "session:2026-10-19")
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscriber channel was not closed")
	}
}

func TestMemoryEventBus_FullSubscriberDoesNotBlock(t *testing.T) {
	bus := NewMemoryEventBus(zerolog.Nop())
	defer bus.Close()

	_, err := bus.Subscribe(context.Background(), "session:2026-10-19")
	require.NoError(t, err)

	event := entities.NewPatientEvent("2026-10-19", entities.PatientEventTypeSessionSaved, nil)
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			_ = bus.Publish(context.Background(), "session:2026-10-19", event)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestMemoryEventBus_Close(t *testing.T) {
	bus := NewMemoryEventBus(zerolog.Nop())
	ch, err := bus.Subscribe(context.Background(), "persistence:warnings")
	require.NoError(t, err)

	require.NoError(t, bus.Close())
	_, ok := <-ch
	assert.False(t, ok)

	assert.Error(t, bus.Publish(context.Background(), "persistence:warnings", &entities.PatientEvent{}))
	_, err = bus.Subscribe(context.Background(), "persistence:warnings")
	assert.Error(t, err)
	assert.NoError(t, bus.Close())
}
