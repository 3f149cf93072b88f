package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/luknerlumina/patientflow/internal/domain/entities"
	"github.com/luknerlumina/patientflow/internal/domain/providers"
)

// SessionSubscriber streams reloaded session snapshots
type SessionSubscriber interface {
	Subscribe(ctx context.Context, sessionDate string) (<-chan *entities.SessionSnapshot, error)
}

// SSEHandler streams session mirrors and persistence warnings as Server-Sent Events
type SSEHandler struct {
	sessions  SessionSubscriber
	eventBus  providers.EventBus
	heartbeat time.Duration
	clients   atomic.Int64
}

// NewSSEHandler creates a new SSE handler. eventBus may be nil, in which case
// the warnings stream is unavailable.
func NewSSEHandler(sessions SessionSubscriber, eventBus providers.EventBus) *SSEHandler {
	return &SSEHandler{
		sessions:  sessions,
		eventBus:  eventBus,
		heartbeat: 30 * time.Second,
	}
}

func (h *SSEHandler) startStream(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondWithError(w, http.StatusInternalServerError, "streaming not supported")
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return flusher, true
}

// StreamSession handles GET /api/stream/sessions/{date}
func (h *SSEHandler) StreamSession(w http.ResponseWriter, r *http.Request) {
	sessionDate := r.PathValue("date")
	if _, err := time.Parse("2006-01-02", sessionDate); err != nil {
		respondWithError(w, http.StatusBadRequest, "session date must be YYYY-MM-DD")
		return
	}

	snapshots, err := h.sessions.Subscribe(r.Context(), sessionDate)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	flusher, ok := h.startStream(w)
	if !ok {
		return
	}
	h.clients.Add(1)
	defer h.clients.Add(-1)

	h.sendEvent(w, "connected", map[string]interface{}{
		"session_date": sessionDate,
		"timestamp":    time.Now(),
	})
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			log.Debug().Str("session_date", sessionDate).Msg("client disconnected from session stream")
			return
		case <-ticker.C:
			h.sendEvent(w, "heartbeat", map[string]interface{}{"timestamp": time.Now()})
			flusher.Flush()
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			h.sendEvent(w, string(entities.PatientEventTypeSessionSaved), snap)
			flusher.Flush()
		}
	}
}

// StreamWarnings handles GET /api/stream/warnings
func (h *SSEHandler) StreamWarnings(w http.ResponseWriter, r *http.Request) {
	if h.eventBus == nil {
		respondWithError(w, http.StatusServiceUnavailable, "event bus not configured")
		return
	}

	events, err := h.eventBus.Subscribe(r.Context(), providers.EventChannelWarnings)
	if err != nil {
		respondWithError(w, http.StatusServiceUnavailable, "failed to subscribe to warnings")
		return
	}

	flusher, ok := h.startStream(w)
	if !ok {
		return
	}
	h.clients.Add(1)
	defer h.clients.Add(-1)

	h.sendEvent(w, "connected", map[string]interface{}{"timestamp": time.Now()})
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			h.sendEvent(w, "heartbeat", map[string]interface{}{"timestamp": time.Now()})
			flusher.Flush()
		case event, ok := <-events:
			if !ok {
				return
			}
			h.sendEvent(w, string(event.EventType), event)
			flusher.Flush()
		}
	}
}

func (h *SSEHandler) sendEvent(w http.ResponseWriter, eventType string, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Warn().Err(err).Str("event", eventType).Msg("failed to marshal event data")
		return
	}

	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
}

// GetClientCount returns the number of connected stream clients
func (h *SSEHandler) GetClientCount() int {
	return int(h.clients.Load())
}
