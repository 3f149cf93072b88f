package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luknerlumina/patientflow/internal/adapters/events"
	"github.com/luknerlumina/patientflow/internal/api/handlers"
	"github.com/luknerlumina/patientflow/internal/domain/entities"
	"github.com/luknerlumina/patientflow/internal/domain/providers"
)

type fakeSubscriber struct {
	ch chan *entities.SessionSnapshot
}

func (f *fakeSubscriber) Subscribe(ctx context.Context, sessionDate string) (<-chan *entities.SessionSnapshot, error) {
	return f.ch, nil
}

func TestSSEHandler_StreamSession(t *testing.T) {
	sub := &fakeSubscriber{ch: make(chan *entities.SessionSnapshot, 1)}
	handler := handlers.NewSSEHandler(sub, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/stream/sessions/2026-10-19", nil)
	req.SetPathValue("date", "2026-10-19")
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		handler.StreamSession(w, req)
		close(done)
	}()

	sub.ch <- &entities.SessionSnapshot{
		SessionDate: "2026-10-19",
		Patients:    []*entities.Patient{{ID: "p-1", Status: entities.StatusArrived}},
		IsEncrypted: true,
	}
	close(sub.ch)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not exit after the stream closed")
	}

	result := w.Result()
	assert.Equal(t, "text/event-stream", result.Header.Get("Content-Type"))
	body := w.Body.String()
	assert.Contains(t, body, "event: connected\n")
	assert.Contains(t, body, "event: session_saved\n")
	assert.Contains(t, body, `"id":"p-1"`)
}

func TestSSEHandler_StreamSessionRejectsBadDate(t *testing.T) {
	handler := handlers.NewSSEHandler(&fakeSubscriber{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/stream/sessions/tomorrow", nil)
	req.SetPathValue("date", "tomorrow")
	w := httptest.NewRecorder()
	handler.StreamSession(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSSEHandler_StreamWarnings(t *testing.T) {
	bus := events.NewMemoryEventBus(zerolog.Nop())
	handler := handlers.NewSSEHandler(&fakeSubscriber{}, bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/stream/warnings", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		handler.StreamWarnings(w, req)
		close(done)
	}()

	require.Eventually(t, func() bool { return handler.GetClientCount() == 1 }, time.Second, 10*time.Millisecond)
	event := entities.NewPatientEvent("2026-10-19", entities.PatientEventTypePersistenceDegraded, nil)
	require.NoError(t, bus.Publish(context.Background(), providers.EventChannelWarnings, event))

	// closing the bus ends the stream
	require.NoError(t, bus.Close())
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not exit after bus close")
	}

	assert.True(t, strings.Contains(w.Body.String(), "event: persistence_degraded\n"))
	assert.Equal(t, 0, handler.GetClientCount())
}

func TestSSEHandler_StreamWarningsWithoutBus(t *testing.T) {
	handler := handlers.NewSSEHandler(&fakeSubscriber{}, nil)
	w := httptest.NewRecorder()
	handler.StreamWarnings(w, httptest.NewRequest(http.MethodGet, "/api/stream/warnings", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
