package services

import (
	"time"

	"github.com/luknerlumina/patientflow/internal/domain/entities"
	apperrors "github.com/luknerlumina/patientflow/pkg/errors"
)

// WaitTimeCalculator derives a patient's wait from the record and "now".
// It is stateless; callers pass the clock's current time on every call.
type WaitTimeCalculator struct{}

func NewWaitTimeCalculator() *WaitTimeCalculator {
	return &WaitTimeCalculator{}
}

// WaitTime measures from check-in (or the appointment time before check-in).
// Once the patient is seen, completed or drops out of the visit the value is
// frozen at the moment that happened. Never negative.
func (c *WaitTimeCalculator) WaitTime(p *entities.Patient, now time.Time) (time.Duration, error) {
	if p == nil {
		return 0, apperrors.NewInvalidStateError("patient is nil")
	}
	if p.AppointmentTime.IsZero() {
		return 0, apperrors.NewInvalidStateError("patient " + p.ID + " has no appointment time")
	}

	reference := p.AppointmentTime
	if p.CheckInTime != nil {
		reference = *p.CheckInTime
	}

	end := now
	if p.Status.FreezesWait() {
		end = freezePoint(p, now)
	}

	wait := end.Sub(reference)
	if wait < 0 {
		return 0, nil
	}
	return wait, nil
}

func freezePoint(p *entities.Patient, now time.Time) time.Time {
	switch {
	case p.CompletedTime != nil:
		return *p.CompletedTime
	case p.WithDoctorTime != nil:
		return *p.WithDoctorTime
	case p.StatusChangedAt != nil:
		return *p.StatusChangedAt
	}
	return now
}
