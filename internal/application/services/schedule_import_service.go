package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/luknerlumina/patientflow/internal/domain/entities"
	apperrors "github.com/luknerlumina/patientflow/pkg/errors"
)

// ConflictResolution decides who wins when a schedule record disagrees with local state
type ConflictResolution string

const (
	// ConflictSourceWins lets the schedule feed overwrite local status
	ConflictSourceWins ConflictResolution = "source_wins"
	// ConflictTargetWins keeps local status once staff have moved the patient on
	ConflictTargetWins ConflictResolution = "target_wins"
)

// ScheduleRecord is one appointment row from the external schedule feed
type ScheduleRecord struct {
	ExternalID      string    `json:"external_id"`
	PatientID       string    `json:"patient_id,omitempty"`
	Name            string    `json:"name"`
	DateOfBirth     string    `json:"dob"`
	AppointmentTime time.Time `json:"appointment_time"`
	AppointmentType string    `json:"appointment_type,omitempty"`
	ChiefComplaint  string    `json:"chief_complaint,omitempty"`
	Provider        string    `json:"provider"`
	Room            string    `json:"room,omitempty"`
	Status          string    `json:"status,omitempty"`
}

type ImportOptions struct {
	ConflictResolution ConflictResolution `json:"conflict_resolution,omitempty"`
}

// ImportError reports a record that could not be applied
type ImportError struct {
	Index      int    `json:"index"`
	ExternalID string `json:"external_id,omitempty"`
	Message    string `json:"message"`
}

// ImportSummary counts the outcome of a batch
type ImportSummary struct {
	SessionDate string        `json:"session_date"`
	Created     int           `json:"created"`
	Updated     int           `json:"updated"`
	Unchanged   int           `json:"unchanged"`
	Failed      int           `json:"failed"`
	Errors      []ImportError `json:"errors,omitempty"`
}

// ScheduleImportService merges schedule feed batches into the patient store
type ScheduleImportService struct {
	store    *PatientStore
	loc      *time.Location
	recorder ImportRecorder
	logger   zerolog.Logger
}

// NewScheduleImportService creates an importer. recorder may be nil.
func NewScheduleImportService(store *PatientStore, loc *time.Location, recorder ImportRecorder, logger zerolog.Logger) *ScheduleImportService {
	if loc == nil {
		loc = time.Local
	}
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &ScheduleImportService{store: store, loc: loc, recorder: recorder, logger: logger}
}

// ImportBatch applies records in order. A bad record is reported in the summary and
// never aborts the batch; only invalid options return an error.
func (s *ScheduleImportService) ImportBatch(ctx context.Context, sessionDate string, records []ScheduleRecord, opts ImportOptions) (*ImportSummary, error) {
	resolution := opts.ConflictResolution
	if resolution == "" {
		resolution = ConflictSourceWins
	}
	if resolution != ConflictSourceWins && resolution != ConflictTargetWins {
		return nil, apperrors.NewValidationError("invalid conflict_resolution: " + string(resolution))
	}
	if sessionDate != "" {
		if _, err := time.ParseInLocation("2006-01-02", sessionDate, s.loc); err != nil {
			return nil, apperrors.NewValidationError("invalid session date: " + sessionDate)
		}
	}

	summary := &ImportSummary{SessionDate: sessionDate}
	for i, rec := range records {
		outcome, err := s.importRecord(ctx, sessionDate, rec, resolution)
		if err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, ImportError{Index: i, ExternalID: rec.ExternalID, Message: err.Error()})
			continue
		}
		switch outcome {
		case "created":
			summary.Created++
		case "updated":
			summary.Updated++
		default:
			summary.Unchanged++
		}
	}

	s.recorder.RecordImport(ctx, "created", summary.Created)
	s.recorder.RecordImport(ctx, "updated", summary.Updated)
	s.recorder.RecordImport(ctx, "unchanged", summary.Unchanged)
	s.recorder.RecordImport(ctx, "failed", summary.Failed)

	s.logger.Info().
		Str("session_date", sessionDate).
		Str("conflict_resolution", string(resolution)).
		Int("created", summary.Created).
		Int("updated", summary.Updated).
		Int("unchanged", summary.Unchanged).
		Int("failed", summary.Failed).
		Msg("schedule batch imported")
	return summary, nil
}

func (s *ScheduleImportService) importRecord(ctx context.Context, sessionDate string, rec ScheduleRecord, resolution ConflictResolution) (string, error) {
	if sessionDate != "" && !rec.AppointmentTime.IsZero() {
		if day := rec.AppointmentTime.In(s.loc).Format("2006-01-02"); day != sessionDate {
			return "", fmt.Errorf("appointment on %s is outside session %s", day, sessionDate)
		}
	}

	var status entities.PatientStatus
	if rec.Status != "" {
		st, err := entities.ParsePatientStatus(rec.Status)
		if err != nil {
			return "", err
		}
		status = st
	}

	existing, found := s.store.FindByExternalID(rec.ExternalID)
	if !found && rec.PatientID != "" {
		if p, err := s.store.GetPatient(rec.PatientID); err == nil {
			existing, found = p, true
		}
	}

	if !found {
		in := entities.PatientInput{
			ID:              rec.PatientID,
			Name:            rec.Name,
			DateOfBirth:     rec.DateOfBirth,
			AppointmentTime: rec.AppointmentTime,
			AppointmentType: rec.AppointmentType,
			ChiefComplaint:  rec.ChiefComplaint,
			Provider:        rec.Provider,
			Room:            rec.Room,
			Status:          string(status),
			ExternalID:      rec.ExternalID,
		}
		if _, err := s.store.add(ctx, in, SourceSchedule); err != nil {
			return "", err
		}
		return "created", nil
	}

	if resolution == ConflictTargetWins && staffHaveProgressed(existing) {
		return "unchanged", nil
	}

	changed := false
	if status != "" && status != existing.Status {
		if _, _, err := s.store.updateStatus(ctx, existing.ID, status, SourceSchedule); err != nil {
			return "", err
		}
		changed = true
	}
	if room := strings.TrimSpace(rec.Room); room != "" && room != existing.Room {
		if _, err := s.store.AssignRoom(ctx, existing.ID, room); err != nil {
			return "", err
		}
		changed = true
	}

	if changed {
		return "updated", nil
	}
	return "unchanged", nil
}

// staffHaveProgressed reports whether local state has moved past the pre-arrival statuses.
func staffHaveProgressed(p *entities.Patient) bool {
	return p.Status.Rank() != 0
}
