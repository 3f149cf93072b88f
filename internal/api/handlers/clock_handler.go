package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/luknerlumina/patientflow/internal/domain/entities"
	apperrors "github.com/luknerlumina/patientflow/pkg/errors"
)

// ClockController defines the clock operations exposed over HTTP
type ClockController interface {
	Mode() entities.ClockMode
	ToggleSimulation() entities.ClockMode
	Advance(delta time.Duration) time.Time
	SetTime(t time.Time) error
	FormatTime(t time.Time) string
}

// ClockHandler handles clock requests
type ClockHandler struct {
	clock ClockController
}

// NewClockHandler creates a new clock handler
func NewClockHandler(clock ClockController) *ClockHandler {
	return &ClockHandler{clock: clock}
}

func (h *ClockHandler) respondMode(w http.ResponseWriter) {
	mode := h.clock.Mode()
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"simulated":       mode.Simulated,
		"current_instant": mode.CurrentInstant,
		"display":         h.clock.FormatTime(mode.CurrentInstant),
	})
}

// GetClock handles GET /api/clock
func (h *ClockHandler) GetClock(w http.ResponseWriter, r *http.Request) {
	h.respondMode(w)
}

// ToggleSimulation handles POST /api/clock/toggle
func (h *ClockHandler) ToggleSimulation(w http.ResponseWriter, r *http.Request) {
	h.clock.ToggleSimulation()
	h.respondMode(w)
}

// maxAdvance caps a single advance request at one clinic week
const maxAdvance = 7 * 24 * time.Hour

type advanceRequest struct {
	Minutes  int    `json:"minutes,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// Advance handles POST /api/clock/advance. It is a no-op in real time mode.
func (h *ClockHandler) Advance(w http.ResponseWriter, r *http.Request) {
	var req advanceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	if req.Minutes < 0 || int64(req.Minutes) > int64(maxAdvance/time.Minute) {
		respondWithAppError(w, apperrors.NewValidationError("minutes must be between 0 and "+strconv.FormatInt(int64(maxAdvance/time.Minute), 10)))
		return
	}
	delta := time.Duration(req.Minutes) * time.Minute
	if req.Duration != "" {
		d, err := time.ParseDuration(req.Duration)
		if err != nil {
			respondWithAppError(w, apperrors.NewValidationError("invalid duration: "+req.Duration))
			return
		}
		delta = d
	}
	if delta < 0 || delta > maxAdvance {
		respondWithAppError(w, apperrors.NewValidationError("advance must be between 0 and "+maxAdvance.String()+"; use /api/clock/set to rewind"))
		return
	}

	h.clock.Advance(delta)
	h.respondMode(w)
}

type setTimeRequest struct {
	Time time.Time `json:"time"`
}

// SetTime handles POST /api/clock/set
func (h *ClockHandler) SetTime(w http.ResponseWriter, r *http.Request) {
	var req setTimeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload (time must be RFC3339)")
		return
	}

	if err := h.clock.SetTime(req.Time); err != nil {
		respondWithAppError(w, err)
		return
	}
	h.respondMode(w)
}
