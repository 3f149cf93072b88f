package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/luknerlumina/patientflow/internal/domain/entities"
	apperrors "github.com/luknerlumina/patientflow/pkg/errors"
)

// PatientService defines the patient store operations used by the handler
type PatientService interface {
	AddPatient(ctx context.Context, in entities.PatientInput) (*entities.Patient, error)
	UpdateStatus(ctx context.Context, id string, status entities.PatientStatus) (*entities.Patient, error)
	AssignRoom(ctx context.Context, id, room string) (*entities.Patient, error)
	RemovePatient(ctx context.Context, id string) error
	GetPatient(id string) (*entities.Patient, error)
	ListPatients() []*entities.Patient
	GetPatientsByStatus(status entities.PatientStatus) []*entities.Patient
	WaitTime(id string) (time.Duration, error)
	GetMetrics() entities.Metrics
}

// PersistenceStatus reports whether saves have fallen back to the local tier
type PersistenceStatus interface {
	Degraded() bool
}

// PatientHandler handles patient and dashboard metric requests
type PatientHandler struct {
	service     PatientService
	persistence PersistenceStatus
}

// NewPatientHandler creates a new patient handler. persistence may be nil.
func NewPatientHandler(service PatientService, persistence PersistenceStatus) *PatientHandler {
	return &PatientHandler{
		service:     service,
		persistence: persistence,
	}
}

// patientView adds the live wait to a patient record
type patientView struct {
	*entities.Patient
	WaitMinutes *int64 `json:"wait_minutes,omitempty"`
}

func (h *PatientHandler) view(p *entities.Patient) patientView {
	v := patientView{Patient: p}
	if wait, err := h.service.WaitTime(p.ID); err == nil {
		m := minutes(wait)
		v.WaitMinutes = &m
	}
	return v
}

// AddPatient handles POST /api/patients
func (h *PatientHandler) AddPatient(w http.ResponseWriter, r *http.Request) {
	var in entities.PatientInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	patient, err := h.service.AddPatient(r.Context(), in)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, h.view(patient))
}

// ListPatients handles GET /api/patients?status=
func (h *PatientHandler) ListPatients(w http.ResponseWriter, r *http.Request) {
	var patients []*entities.Patient
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := entities.ParsePatientStatus(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		patients = h.service.GetPatientsByStatus(status)
	} else {
		patients = h.service.ListPatients()
	}

	views := make([]patientView, 0, len(patients))
	for _, p := range patients {
		views = append(views, h.view(p))
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"patients": views,
		"count":    len(views),
	})
}

// GetPatient handles GET /api/patients/{id}
func (h *PatientHandler) GetPatient(w http.ResponseWriter, r *http.Request) {
	patient, err := h.service.GetPatient(r.PathValue("id"))
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, h.view(patient))
}

type statusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus handles PATCH /api/patients/{id}/status
func (h *PatientHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	status, err := entities.ParsePatientStatus(req.Status)
	if err != nil {
		respondWithAppError(w, apperrors.NewValidationError(err.Error()))
		return
	}

	patient, err := h.service.UpdateStatus(r.Context(), r.PathValue("id"), status)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, h.view(patient))
}

type roomRequest struct {
	Room string `json:"room"`
}

// AssignRoom handles PATCH /api/patients/{id}/room
func (h *PatientHandler) AssignRoom(w http.ResponseWriter, r *http.Request) {
	var req roomRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	patient, err := h.service.AssignRoom(r.Context(), r.PathValue("id"), req.Room)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, h.view(patient))
}

// RemovePatient handles DELETE /api/patients/{id}
func (h *PatientHandler) RemovePatient(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RemovePatient(r.Context(), r.PathValue("id")); err != nil {
		respondWithAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetWaitTime handles GET /api/patients/{id}/wait-time
func (h *PatientHandler) GetWaitTime(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	wait, err := h.service.WaitTime(id)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"patient_id":   id,
		"wait_minutes": minutes(wait),
		"wait_seconds": int64(wait.Seconds()),
	})
}

// GetMetrics handles GET /api/metrics
func (h *PatientHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	m := h.service.GetMetrics()
	degraded := false
	if h.persistence != nil {
		degraded = h.persistence.Degraded()
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"total_patients":       m.TotalPatients,
		"waiting_patients":     m.WaitingPatients,
		"average_wait_minutes": minutes(m.AverageWait),
		"max_wait_minutes":     minutes(m.MaxWait),
		"persistence_degraded": degraded,
	})
}
