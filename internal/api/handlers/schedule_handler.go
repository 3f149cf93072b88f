package handlers

import (
	"context"
	"net/http"

	"github.com/luknerlumina/patientflow/internal/application/services"
)

// ScheduleImporter merges schedule feed batches into the store
type ScheduleImporter interface {
	ImportBatch(ctx context.Context, sessionDate string, records []services.ScheduleRecord, opts services.ImportOptions) (*services.ImportSummary, error)
}

// ScheduleHandler handles schedule import requests
type ScheduleHandler struct {
	importer    ScheduleImporter
	sessionDate string
}

// NewScheduleHandler creates a schedule handler. Batches without a
// session_date are imported into sessionDate.
func NewScheduleHandler(importer ScheduleImporter, sessionDate string) *ScheduleHandler {
	return &ScheduleHandler{
		importer:    importer,
		sessionDate: sessionDate,
	}
}

type importRequest struct {
	SessionDate        string                      `json:"session_date,omitempty"`
	ConflictResolution services.ConflictResolution `json:"conflict_resolution,omitempty"`
	Records            []services.ScheduleRecord   `json:"records"`
}

// ImportSchedule handles POST /api/schedule/import
func (h *ScheduleHandler) ImportSchedule(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if req.SessionDate == "" {
		req.SessionDate = h.sessionDate
	}

	summary, err := h.importer.ImportBatch(r.Context(), req.SessionDate, req.Records, services.ImportOptions{
		ConflictResolution: req.ConflictResolution,
	})
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}
