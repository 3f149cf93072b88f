package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/luknerlumina/patientflow/internal/domain/entities"
	apperrors "github.com/luknerlumina/patientflow/pkg/errors"
)

// TransitionSource identifies who requested a status change
type TransitionSource string

const (
	SourceStaff    TransitionSource = "staff"
	SourceSchedule TransitionSource = "schedule"
)

// TransitionResult describes what a status change did
type TransitionResult struct {
	From     entities.PatientStatus
	To       entities.PatientStatus
	Backward bool
	Stamped  []entities.Stage
}

// StatusWorkflow applies status changes and stamps stage timestamps.
// The internal order is advisory: moving backwards is allowed and logged.
type StatusWorkflow struct {
	logger   zerolog.Logger
	recorder TransitionRecorder
}

// NewStatusWorkflow creates a workflow. recorder may be nil.
func NewStatusWorkflow(logger zerolog.Logger, recorder TransitionRecorder) *StatusWorkflow {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &StatusWorkflow{logger: logger, recorder: recorder}
}

var stageOrder = []entities.Stage{entities.StageCheckIn, entities.StageWithDoctor, entities.StageCompleted}

// Apply moves p to status `to` at instant `at`, mutating p in place.
func (w *StatusWorkflow) Apply(ctx context.Context, p *entities.Patient, to entities.PatientStatus, at time.Time, source TransitionSource) (TransitionResult, error) {
	if !to.IsValid() {
		return TransitionResult{}, apperrors.NewValidationError("unknown status: " + string(to))
	}

	from := p.Status
	result := TransitionResult{From: from, To: to}
	if from == to {
		return result, nil
	}

	if to.Lane() == entities.LaneInternal && from.Rank() >= 0 && to.Rank() >= 0 && to.Rank() < from.Rank() {
		result.Backward = true
		w.logger.Warn().
			Str("patient_id", p.ID).
			Str("from", string(from)).
			Str("to", string(to)).
			Str("source", string(source)).
			Msg("backward status transition")
	}

	p.Status = to
	changed := at
	p.StatusChangedAt = &changed
	p.UpdatedAt = at

	if stage := to.Stamps(); stage != entities.StageNone {
		result.Stamped = w.stamp(p, stage, at, source)
	}

	w.recorder.RecordTransition(ctx, string(from), string(to), result.Backward)
	return result, nil
}

// stamp sets the stage timestamp if unset. Earlier missing stages are filled with
// the same instant for staff changes; schedule changes mark the history unknown.
func (w *StatusWorkflow) stamp(p *entities.Patient, stage entities.Stage, at time.Time, source TransitionSource) []entities.Stage {
	if p.StageTime(stage) != nil {
		return nil
	}

	var stamped []entities.Stage
	var floor *time.Time
	for _, s := range stageOrder {
		if s == stage {
			break
		}
		if t := p.StageTime(s); t != nil {
			floor = t
			continue
		}
		if source == SourceSchedule {
			p.ImportedHistoryUnknown = true
			continue
		}
		setStage(p, s, at)
		stamped = append(stamped, s)
	}

	ts := at
	if floor != nil && ts.Before(*floor) {
		ts = *floor
	}
	setStage(p, stage, ts)
	return append(stamped, stage)
}

func setStage(p *entities.Patient, stage entities.Stage, t time.Time) {
	v := t
	switch stage {
	case entities.StageCheckIn:
		p.CheckInTime = &v
	case entities.StageWithDoctor:
		p.WithDoctorTime = &v
	case entities.StageCompleted:
		p.CompletedTime = &v
	}
}
